package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hivectl/hive/internal/domain"
)

func TestDetect_Claude(t *testing.T) {
	cases := []struct {
		name   string
		output string
		want   State
	}{
		{
			name: "idle prompt",
			output: `● Done. The endpoint now returns 404 for unknown refunds.

╭──────────────────────────────╮
│ >                            │
╰──────────────────────────────╯`,
			want: IdleAtPrompt,
		},
		{
			name: "typing",
			output: `╭──────────────────────────────╮
│ > git commit -m "refunds     │
╰──────────────────────────────╯`,
			want: Typing,
		},
		{
			name: "tool running",
			output: `● Bash(go test ./...)
  ⎿  Running…
✻ Churning… (esc to interrupt)`,
			want: ToolRunning,
		},
		{
			name: "permission prompt",
			output: `● Bash(rm -rf build/)
Do you want to proceed?
❯ 1. Yes
  2. No, and tell Claude what to do differently`,
			want: PermissionRequired,
		},
		{
			name: "selection menu",
			output: `Which migration should run first?
❯ 1. 0001_init
  2. 0002_sync_records
  3. Skip`,
			want: AwaitingSelection,
		},
		{
			name: "user declined",
			output: `⎿  Interrupted · What should Claude do instead?
│ >`,
			want: UserDeclined,
		},
		{
			name: "interrupted",
			output: `Request interrupted by user
│ >`,
			want: Interrupted,
		},
		{
			name:   "rate limited",
			output: `Claude usage limit reached. Your limit resets in 25 minutes.`,
			want:   RateLimited,
		},
		{
			name: "work complete marker",
			output: `All acceptance criteria verified.
WORK COMPLETE: STORY-ab12cd ready for review`,
			want: WorkComplete,
		},
		{
			name: "question above idle prompt",
			output: `● Should the refund endpoint also void pending captures?

│ >`,
			want: AskingQuestion,
		},
		{
			name:   "empty capture",
			output: "\n\n",
			want:   Unknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Detect(domain.FlavourClaude, tc.output)
			assert.Equal(t, tc.want, got.State)
		})
	}
}

func TestDetect_Codex(t *testing.T) {
	busy := Detect(domain.FlavourCodex, "• Working (2m13s · Esc to interrupt)")
	assert.Equal(t, ToolRunning, busy.State)

	perm := Detect(domain.FlavourCodex, "$ rm -rf node_modules\nAllow command?\n1. Yes\n2. No")
	assert.Equal(t, PermissionRequired, perm.State)

	idle := Detect(domain.FlavourCodex, "Applied patch successfully.\n▌")
	assert.Equal(t, IdleAtPrompt, idle.State)
}

func TestDetect_Gemini(t *testing.T) {
	perm := Detect(domain.FlavourGemini, "Apply this change?\n1. Yes, allow once\n2. No")
	assert.Equal(t, PermissionRequired, perm.State)

	limited := Detect(domain.FlavourGemini, "Error: Quota exceeded for model. Retrying in 30s")
	assert.Equal(t, RateLimited, limited.State)
}

func TestDetect_WaitingAndHumanFlags(t *testing.T) {
	perm := Detect(domain.FlavourClaude, "Do you want to proceed?\n❯ 1. Yes\n  2. No")
	assert.True(t, perm.IsWaiting)
	assert.True(t, perm.NeedsHuman)

	busy := Detect(domain.FlavourClaude, "✻ Thinking… (esc to interrupt)")
	assert.False(t, busy.IsWaiting)
	assert.False(t, busy.NeedsHuman)

	idle := Detect(domain.FlavourClaude, "│ >")
	assert.True(t, idle.IsWaiting)
	assert.False(t, idle.NeedsHuman)
}

func TestDetect_StripsANSI(t *testing.T) {
	// Colored spinner line still classifies as busy.
	out := "\x1b[38;5;205m✻ Churning…\x1b[0m (esc to interrupt)"
	got := Detect(domain.FlavourClaude, out)
	assert.Equal(t, ToolRunning, got.State)
}

func TestRateLimitWait(t *testing.T) {
	assert.Equal(t, 28*time.Second, RateLimitWait("Rate limit reached. Retrying in 28s"))
	assert.Equal(t, 25*time.Minute, RateLimitWait("usage limit resets in 25 minutes"))
	assert.Equal(t, 60*time.Second, RateLimitWait("rate limit reached, please wait"))
	assert.Equal(t, 30*time.Second, RateLimitWait("Quota exceeded. Retrying in 30 seconds"))
}

func TestDetect_IgnoresManagerReminders(t *testing.T) {
	// A reminder echoed into the pane must not read as agent output, even
	// when it quotes a completion marker.
	out := ReminderPrefix + ` completion noted. Run hive my-stories; WORK COMPLETE sessions spin down.
✻ Churning… (esc to interrupt)`
	got := Detect(domain.FlavourClaude, out)
	assert.Equal(t, ToolRunning, got.State)

	alone := Detect(domain.FlavourClaude, ReminderPrefix+" you appear stuck.")
	assert.NotEqual(t, WorkComplete, alone.State)
}

func TestDetect_FeatureTestVerdictMarkers(t *testing.T) {
	passed := Detect(domain.FlavourClaude, "suite done\nE2E tests PASSED")
	assert.Equal(t, WorkComplete, passed.State)

	failed := Detect(domain.FlavourClaude, "suite done\nE2E tests FAILED: 3 of 41")
	assert.Equal(t, WorkComplete, failed.State)
}
