// Package detect classifies captured session output into an agent state.
// Detection is a pure function of the CLI flavour and the captured text; it
// performs no I/O, so the manager can call it on every poll.
package detect

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/hivectl/hive/internal/domain"
)

// State is the closed classification set.
type State string

const (
	IdleAtPrompt       State = "IDLE_AT_PROMPT"
	Typing             State = "TYPING"
	ToolRunning        State = "TOOL_RUNNING"
	AwaitingSelection  State = "AWAITING_SELECTION"
	AskingQuestion     State = "ASKING_QUESTION"
	PermissionRequired State = "PERMISSION_REQUIRED"
	UserDeclined       State = "USER_DECLINED"
	WorkComplete       State = "WORK_COMPLETE"
	RateLimited        State = "RATE_LIMITED"
	Interrupted        State = "INTERRUPTED"
	Unknown            State = "UNKNOWN"
)

// Result is the detector's verdict for one capture.
type Result struct {
	State State
	// IsWaiting reports that the CLI is blocked on input of some kind.
	IsWaiting bool
	// NeedsHuman reports that the blockage cannot be cleared by a scripted
	// nudge (menus, questions, permission prompts, declines).
	NeedsHuman bool
}

// tailWindow bounds how many trailing lines are inspected. Older scrollback
// describes past states, not the current one.
const tailWindow = 40

// ReminderPrefix marks text injected by the manager. Lines carrying it are
// not agent output and are excluded from classification, otherwise a nudge
// mentioning "WORK COMPLETE" would read as a completed story.
const ReminderPrefix = "[manager reminder]"

// Detect classifies output for the given CLI flavour.
func Detect(flavour domain.CLIFlavour, output string) Result {
	lines := tailLines(output)
	if len(lines) == 0 {
		return Result{State: Unknown}
	}

	p := profileFor(flavour)
	state := p.classify(lines)
	return Result{
		State:      state,
		IsWaiting:  isWaiting(state),
		NeedsHuman: needsHuman(state),
	}
}

func isWaiting(s State) bool {
	switch s {
	case IdleAtPrompt, AwaitingSelection, AskingQuestion, PermissionRequired,
		UserDeclined, WorkComplete, Interrupted:
		return true
	}
	return false
}

func needsHuman(s State) bool {
	switch s {
	case AwaitingSelection, AskingQuestion, PermissionRequired, UserDeclined:
		return true
	}
	return false
}

var rateLimitWait = regexp.MustCompile(`(?i)(?:retry(?:ing)?|try again|resets?)\s+(?:in|after)\s+(\d+)\s*(s|sec|seconds?|m|min|minutes?)`)

// RateLimitWait extracts the backoff advertised in a rate-limit banner.
// Falls back to 60s when the output names none.
func RateLimitWait(output string) time.Duration {
	m := rateLimitWait.FindStringSubmatch(ansi.Strip(output))
	if m == nil {
		return 60 * time.Second
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 60 * time.Second
	}
	if strings.HasPrefix(m[2], "m") {
		return time.Duration(n) * time.Minute
	}
	return time.Duration(n) * time.Second
}

// tailLines strips ANSI sequences and returns the trailing non-empty lines,
// newest last.
func tailLines(output string) []string {
	clean := ansi.Strip(output)
	raw := strings.Split(clean, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimRight(l, " \t\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		if strings.Contains(l, ReminderPrefix) {
			continue
		}
		lines = append(lines, l)
	}
	if len(lines) > tailWindow {
		lines = lines[len(lines)-tailWindow:]
	}
	return lines
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
