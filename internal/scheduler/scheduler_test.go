package scheduler

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivectl/hive/internal/config"
	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/store"
	"github.com/hivectl/hive/internal/tmux"
)

// scriptedExec accepts every tmux command; captures come back quiet so
// message confirmation succeeds immediately.
type scriptedExec struct {
	sessions map[string]bool
}

func newScriptedExec() *scriptedExec { return &scriptedExec{sessions: map[string]bool{}} }

func (e *scriptedExec) Run(_ context.Context, args ...string) (string, error) {
	switch args[0] {
	case "new-session":
		for i, a := range args {
			if a == "-s" {
				e.sessions[args[i+1]] = true
			}
		}
	case "list-sessions":
		var names []string
		for n := range e.sessions {
			names = append(names, n)
		}
		return strings.Join(names, "\n"), nil
	case "capture-pane":
		return "working...", nil
	}
	return "", nil
}

type fixture struct {
	sched *Scheduler
	store *store.Store
	exec  *scriptedExec
	team  *domain.Team
	req   *domain.Requirement
}

func newFixture(t *testing.T, caps config.TeamCaps) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := store.NewDB(filepath.Join(dir, "hive.db"))
	require.NoError(t, err)
	st := store.NewWithDB(db, nil)
	t.Cleanup(func() { _ = st.Close() })

	team, err := st.CreateTeam(store.CreateTeamParams{
		ID: domain.NewTeamID(), Name: "Payments",
		RepoURL: "git@example.com:org/payments.git", RepoPath: "payments",
	})
	require.NoError(t, err)
	req, err := st.CreateRequirement(store.CreateRequirementParams{
		ID: domain.NewRequirementID(), Title: "Refunds", Submitter: "alice",
	})
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.Caps = caps

	exec := newScriptedExec()
	return &fixture{
		sched: New(st, tmux.NewSupervisor(exec).NoDelay(), cfg, dir),
		store: st,
		exec:  exec,
		team:  team,
		req:   req,
	}
}

func (f *fixture) plannedStory(t *testing.T, complexity int) *domain.Story {
	t.Helper()
	st, err := f.store.CreateStory(store.CreateStoryParams{
		ID: domain.NewStoryID(), RequirementID: f.req.ID, TeamID: f.team.ID,
		Title: "story", Complexity: complexity, Status: domain.StoryPlanned,
	})
	require.NoError(t, err)
	return st
}

func TestAssignStories_RoleRoutingWithCaps(t *testing.T) {
	f := newFixture(t, config.TeamCaps{JuniorMax: 1, IntermediateMax: 1, SeniorMax: 1, QAMax: 1})

	trivial := f.plannedStory(t, 2)
	medium := f.plannedStory(t, 4)
	hard := f.plannedStory(t, 6)
	epic := f.plannedStory(t, 13)

	res, err := f.sched.AssignStories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Assigned)
	assert.Empty(t, res.Errors)

	roleOf := func(storyID string) domain.AgentRole {
		s, err := f.store.GetStory(storyID)
		require.NoError(t, err)
		require.NotEmpty(t, s.AssignedAgentID)
		a, err := f.store.GetAgent(s.AssignedAgentID)
		require.NoError(t, err)
		return a.Role
	}

	assert.Equal(t, domain.RoleJunior, roleOf(trivial.ID))
	assert.Equal(t, domain.RoleIntermediate, roleOf(medium.ID))
	assert.Equal(t, domain.RoleSenior, roleOf(hard.ID))
	// Senior cap is 1, so the 13-pointer shares the existing senior.
	assert.Equal(t, domain.RoleSenior, roleOf(epic.ID))

	n, err := f.store.CountAliveAgents(f.team.ID, domain.RoleSenior)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAssignStories_DependencyGate(t *testing.T) {
	f := newFixture(t, config.TeamCaps{JuniorMax: 2, SeniorMax: 1})

	first := f.plannedStory(t, 2)
	second := f.plannedStory(t, 2)
	require.NoError(t, f.store.AddStoryDependency(second.ID, first.ID))

	res, err := f.sched.AssignStories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Assigned)

	blocked, err := f.store.GetStory(second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StoryPlanned, blocked.Status)
	assert.Empty(t, blocked.AssignedAgentID)
}

func TestAssignStories_AlreadyAssignedCountsAsDuplicate(t *testing.T) {
	f := newFixture(t, config.TeamCaps{JuniorMax: 1, SeniorMax: 1})
	story := f.plannedStory(t, 2)

	agent, err := f.store.CreateAgent(store.CreateAgentParams{
		ID: domain.NewAgentID(domain.RoleJunior), Role: domain.RoleJunior,
		TeamID: f.team.ID, CLITool: domain.FlavourClaude,
	})
	require.NoError(t, err)

	// A concurrent scheduler got there first: assignee set, still planned.
	_, err = f.store.DB().Conn().Exec(
		`UPDATE stories SET assigned_agent_id = ? WHERE id = ?`, agent.ID, story.ID)
	require.NoError(t, err)

	res, err := f.sched.AssignStories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Assigned)
	assert.Equal(t, 1, res.PreventedDuplicates)
}

func TestAssignStories_NoCapacityRecordsErrorAndMovesOn(t *testing.T) {
	f := newFixture(t, config.TeamCaps{})
	story := f.plannedStory(t, 2)

	res, err := f.sched.AssignStories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Assigned)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], story.ID)

	still, err := f.store.GetStory(story.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StoryPlanned, still.Status)
}

func TestAssignStories_PrefersIdleOverSpawn(t *testing.T) {
	f := newFixture(t, config.TeamCaps{JuniorMax: 2, SeniorMax: 1})

	idle, err := f.store.CreateAgent(store.CreateAgentParams{
		ID: domain.NewAgentID(domain.RoleJunior), Role: domain.RoleJunior,
		TeamID: f.team.ID, SessionName: "hive-junior-payments", CLITool: domain.FlavourClaude,
	})
	require.NoError(t, err)

	story := f.plannedStory(t, 2)
	res, err := f.sched.AssignStories(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Assigned)

	got, err := f.store.GetStory(story.ID)
	require.NoError(t, err)
	assert.Equal(t, idle.ID, got.AssignedAgentID)

	n, err := f.store.CountAliveAgents(f.team.ID, domain.RoleJunior)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "no extra junior should be spawned")
}

func TestSpawnWorker_SessionNameCollisionSuffix(t *testing.T) {
	f := newFixture(t, config.TeamCaps{JuniorMax: 3, SeniorMax: 1})

	a, err := f.sched.SpawnWorker(context.Background(), f.team.ID, domain.RoleJunior, false)
	require.NoError(t, err)
	b, err := f.sched.SpawnWorker(context.Background(), f.team.ID, domain.RoleJunior, false)
	require.NoError(t, err)

	assert.Equal(t, "hive-junior-payments", a.SessionName)
	assert.Equal(t, "hive-junior-payments-1", b.SessionName)
	assert.True(t, f.exec.sessions[b.SessionName])
}

func TestCheckScaling_SpawnsSeniorFirst(t *testing.T) {
	f := newFixture(t, config.TeamCaps{JuniorMax: 2, SeniorMax: 1})
	f.plannedStory(t, 2)

	require.NoError(t, f.sched.CheckScaling(context.Background()))

	n, err := f.store.CountAliveAgents(f.team.ID, domain.RoleSenior)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCheckMergeQueue_SpawnsQAWhenQueued(t *testing.T) {
	f := newFixture(t, config.TeamCaps{JuniorMax: 1, SeniorMax: 1, QAMax: 1})

	story := f.plannedStory(t, 2)
	_, err := f.store.DB().Conn().Exec(`UPDATE stories SET status = 'pr_submitted' WHERE id = ?`, story.ID)
	require.NoError(t, err)
	_, err = f.store.CreatePullRequest(store.CreatePullRequestParams{
		ID: domain.NewPullRequestID(), StoryID: story.ID, TeamID: f.team.ID, Branch: "story/x",
	})
	require.NoError(t, err)

	require.NoError(t, f.sched.CheckMergeQueue(context.Background()))
	n, err := f.store.CountAliveAgents(f.team.ID, domain.RoleQA)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Second pass is a no-op; the reviewer is already there.
	require.NoError(t, f.sched.CheckMergeQueue(context.Background()))
	n, err = f.store.CountAliveAgents(f.team.ID, domain.RoleQA)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
