package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivectl/hive/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "hive.db"))
	require.NoError(t, err)
	s := NewWithDB(db, nil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTeam(t *testing.T, s *Store) *domain.Team {
	t.Helper()
	team, err := s.CreateTeam(CreateTeamParams{
		ID: domain.NewTeamID(), Name: "payments",
		RepoURL: "git@example.com:org/payments.git", RepoPath: "payments",
	})
	require.NoError(t, err)
	return team
}

func seedRequirement(t *testing.T, s *Store) *domain.Requirement {
	t.Helper()
	req, err := s.CreateRequirement(CreateRequirementParams{
		ID: domain.NewRequirementID(), Title: "Add refunds", Submitter: "alice",
	})
	require.NoError(t, err)
	return req
}

func seedStory(t *testing.T, s *Store, team *domain.Team, req *domain.Requirement, status domain.StoryStatus) *domain.Story {
	t.Helper()
	story, err := s.CreateStory(CreateStoryParams{
		ID: domain.NewStoryID(), RequirementID: req.ID, TeamID: team.ID,
		Title: "refund endpoint", Complexity: 3, Status: status,
	})
	require.NoError(t, err)
	return story
}

func TestCreateTeam_DuplicateNameConflicts(t *testing.T) {
	s := newTestStore(t)
	seedTeam(t, s)

	_, err := s.CreateTeam(CreateTeamParams{
		ID: domain.NewTeamID(), Name: "payments",
		RepoURL: "git@example.com:org/other.git", RepoPath: "other",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestGetTeamByName(t *testing.T) {
	s := newTestStore(t)
	team := seedTeam(t, s)

	got, err := s.GetTeamByName("payments")
	require.NoError(t, err)
	assert.Equal(t, team.ID, got.ID)

	_, err = s.GetTeamByName("missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRequirementLifecycle(t *testing.T) {
	s := newTestStore(t)
	req := seedRequirement(t, s)
	assert.Equal(t, domain.RequirementPending, req.Status)

	req, err := s.UpdateRequirementStatus(req.ID, domain.RequirementPlanning)
	require.NoError(t, err)
	assert.Equal(t, domain.RequirementPlanning, req.Status)

	// pending is behind planning; no edge back.
	_, err = s.UpdateRequirementStatus(req.ID, domain.RequirementPending)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
}

func TestStoryCreate_RoundTripsCriteriaAndDeps(t *testing.T) {
	s := newTestStore(t)
	team := seedTeam(t, s)
	req := seedRequirement(t, s)

	dep := seedStory(t, s, team, req, domain.StoryPlanned)

	story, err := s.CreateStory(CreateStoryParams{
		ID: domain.NewStoryID(), RequirementID: req.ID, TeamID: team.ID,
		Title:              "refund listing",
		AcceptanceCriteria: []string{"lists refunds", "paginates"},
		Complexity:         5,
		DependsOn:          []string{dep.ID},
	})
	require.NoError(t, err)

	got, err := s.GetStory(story.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"lists refunds", "paginates"}, got.AcceptanceCriteria)
	assert.Equal(t, []string{dep.ID}, got.DependsOn)
	assert.Equal(t, domain.StoryDraft, got.Status)
}

func TestStoryDependency_CycleRejected(t *testing.T) {
	s := newTestStore(t)
	team := seedTeam(t, s)
	req := seedRequirement(t, s)

	a := seedStory(t, s, team, req, domain.StoryDraft)
	b := seedStory(t, s, team, req, domain.StoryDraft)
	c := seedStory(t, s, team, req, domain.StoryDraft)

	require.NoError(t, s.AddStoryDependency(b.ID, a.ID))
	require.NoError(t, s.AddStoryDependency(c.ID, b.ID))

	err := s.AddStoryDependency(a.ID, c.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))

	err = s.AddStoryDependency(a.ID, a.ID)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
}

func TestUnmergedDependencies(t *testing.T) {
	s := newTestStore(t)
	team := seedTeam(t, s)
	req := seedRequirement(t, s)

	dep := seedStory(t, s, team, req, domain.StoryQA)
	story := seedStory(t, s, team, req, domain.StoryPlanned)
	require.NoError(t, s.AddStoryDependency(story.ID, dep.ID))

	pending, err := s.UnmergedDependencies(story.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{dep.ID}, pending)

	_, err = s.UpdateStoryStatus(UpdateStoryStatusParams{ID: dep.ID, To: domain.StoryMerged})
	require.NoError(t, err)

	pending, err = s.UnmergedDependencies(story.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestClaimStory_SecondClaimerLoses(t *testing.T) {
	s := newTestStore(t)
	team := seedTeam(t, s)
	req := seedRequirement(t, s)
	story := seedStory(t, s, team, req, domain.StoryPlanned)

	agentA, err := s.CreateAgent(CreateAgentParams{
		ID: domain.NewAgentID(domain.RoleJunior), Role: domain.RoleJunior,
		TeamID: team.ID, CLITool: domain.FlavourClaude,
	})
	require.NoError(t, err)
	agentB, err := s.CreateAgent(CreateAgentParams{
		ID: domain.NewAgentID(domain.RoleJunior), Role: domain.RoleJunior,
		TeamID: team.ID, CLITool: domain.FlavourClaude,
	})
	require.NoError(t, err)

	claimed, err := s.ClaimStory(story.ID, agentA.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = s.ClaimStory(story.ID, agentB.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	got, err := s.GetStory(story.ID)
	require.NoError(t, err)
	assert.Equal(t, agentA.ID, got.AssignedAgentID)
	assert.Equal(t, domain.StoryInProgress, got.Status)
}

func TestUpdateStoryStatus_BackwardRequiresOverride(t *testing.T) {
	s := newTestStore(t)
	team := seedTeam(t, s)
	req := seedRequirement(t, s)
	story := seedStory(t, s, team, req, domain.StoryReview)

	_, err := s.UpdateStoryStatus(UpdateStoryStatusParams{ID: story.ID, To: domain.StoryInProgress})
	assert.True(t, errors.Is(err, domain.ErrInvalidState))

	got, err := s.UpdateStoryStatus(UpdateStoryStatusParams{ID: story.ID, To: domain.StoryInProgress, Override: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StoryInProgress, got.Status)
}

func TestUpdateStoryStatus_QAFailedKeepsAssignment(t *testing.T) {
	s := newTestStore(t)
	team := seedTeam(t, s)
	req := seedRequirement(t, s)
	story := seedStory(t, s, team, req, domain.StoryPlanned)

	agent, err := s.CreateAgent(CreateAgentParams{
		ID: domain.NewAgentID(domain.RoleSenior), Role: domain.RoleSenior,
		TeamID: team.ID, CLITool: domain.FlavourClaude,
	})
	require.NoError(t, err)

	claimed, err := s.ClaimStory(story.ID, agent.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	for _, next := range []domain.StoryStatus{domain.StoryReview, domain.StoryPRSubmitted, domain.StoryQA} {
		_, err = s.UpdateStoryStatus(UpdateStoryStatusParams{ID: story.ID, To: next})
		require.NoError(t, err)
	}

	got, err := s.UpdateStoryStatus(UpdateStoryStatusParams{ID: story.ID, To: domain.StoryQAFailed})
	require.NoError(t, err)
	assert.Equal(t, agent.ID, got.AssignedAgentID, "qa_failed goes back to its author, not the pool")

	// Only terminal/draft exits release the assignee.
	for _, next := range []domain.StoryStatus{domain.StoryQA, domain.StoryMerged} {
		got, err = s.UpdateStoryStatus(UpdateStoryStatusParams{ID: story.ID, To: next, Override: true})
		require.NoError(t, err)
	}
	assert.Empty(t, got.AssignedAgentID, "merge releases the agent")
}

func TestCreatePullRequest_SupersedesOpenPR(t *testing.T) {
	s := newTestStore(t)
	team := seedTeam(t, s)
	req := seedRequirement(t, s)
	story := seedStory(t, s, team, req, domain.StoryPRSubmitted)

	first, err := s.CreatePullRequest(CreatePullRequestParams{
		ID: domain.NewPullRequestID(), StoryID: story.ID, TeamID: team.ID, Branch: "story/refund",
	})
	require.NoError(t, err)

	second, err := s.CreatePullRequest(CreatePullRequestParams{
		ID: domain.NewPullRequestID(), StoryID: story.ID, TeamID: team.ID, Branch: "story/refund",
	})
	require.NoError(t, err)

	firstAgain, err := s.GetPullRequest(first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PRClosed, firstAgain.Status)

	open, err := s.GetOpenPRForStory(story.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, open.ID)
}

func TestOldestQueuedPR_FIFO(t *testing.T) {
	s := newTestStore(t)
	team := seedTeam(t, s)
	req := seedRequirement(t, s)

	s1 := seedStory(t, s, team, req, domain.StoryPRSubmitted)
	s2 := seedStory(t, s, team, req, domain.StoryPRSubmitted)

	head, err := s.CreatePullRequest(CreatePullRequestParams{
		ID: "pr-aaa", StoryID: s1.ID, TeamID: team.ID, Branch: "b1",
	})
	require.NoError(t, err)
	_, err = s.CreatePullRequest(CreatePullRequestParams{
		ID: "pr-bbb", StoryID: s2.ID, TeamID: team.ID, Branch: "b2",
	})
	require.NoError(t, err)

	got, err := s.OldestQueuedPR(team.ID)
	require.NoError(t, err)
	assert.Equal(t, head.ID, got.ID)
}

func TestUpdatePRStatus_ReviewerResetOnRequeue(t *testing.T) {
	s := newTestStore(t)
	team := seedTeam(t, s)
	req := seedRequirement(t, s)
	story := seedStory(t, s, team, req, domain.StoryPRSubmitted)

	pr, err := s.CreatePullRequest(CreatePullRequestParams{
		ID: domain.NewPullRequestID(), StoryID: story.ID, TeamID: team.ID, Branch: "b",
	})
	require.NoError(t, err)

	pr, err = s.UpdatePRStatus(UpdatePRStatusParams{ID: pr.ID, To: domain.PRReviewing, ReviewerAgentID: "qa-abc123"})
	require.NoError(t, err)
	assert.Equal(t, "qa-abc123", pr.ReviewerAgentID)

	pr, err = s.UpdatePRStatus(UpdatePRStatusParams{ID: pr.ID, To: domain.PRQueued})
	require.NoError(t, err)
	assert.Empty(t, pr.ReviewerAgentID)

	// Terminal states accept no further moves.
	pr, err = s.UpdatePRStatus(UpdatePRStatusParams{ID: pr.ID, To: domain.PRClosed})
	require.NoError(t, err)
	_, err = s.UpdatePRStatus(UpdatePRStatusParams{ID: pr.ID, To: domain.PRReviewing})
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
}

func TestAgents_StaleAndCount(t *testing.T) {
	s := newTestStore(t)
	team := seedTeam(t, s)

	fresh, err := s.CreateAgent(CreateAgentParams{
		ID: domain.NewAgentID(domain.RoleJunior), Role: domain.RoleJunior,
		TeamID: team.ID, CLITool: domain.FlavourClaude,
	})
	require.NoError(t, err)

	stale, err := s.CreateAgent(CreateAgentParams{
		ID: domain.NewAgentID(domain.RoleJunior), Role: domain.RoleJunior,
		TeamID: team.ID, CLITool: domain.FlavourClaude,
	})
	require.NoError(t, err)

	// Age the second agent's heartbeat directly.
	_, err = s.DB().Conn().Exec(`UPDATE agents SET last_seen = ? WHERE id = ?`,
		time.Now().Add(-10*time.Minute).Unix(), stale.ID)
	require.NoError(t, err)

	agents, err := s.StaleAgents(2 * time.Minute)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, stale.ID, agents[0].ID)

	n, err := s.CountAliveAgents(team.ID, domain.RoleJunior)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.TerminateAgent(stale.ID))
	n, err = s.CountAliveAgents(team.ID, domain.RoleJunior)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_ = fresh
}

func TestListAgents_IdleFirstThenOldest(t *testing.T) {
	s := newTestStore(t)
	team := seedTeam(t, s)

	working, err := s.CreateAgent(CreateAgentParams{
		ID: domain.NewAgentID(domain.RoleSenior), Role: domain.RoleSenior,
		TeamID: team.ID, CLITool: domain.FlavourClaude,
	})
	require.NoError(t, err)
	require.NoError(t, s.UpdateAgentStatus(working.ID, domain.AgentWorking, "STORY-x"))

	idle, err := s.CreateAgent(CreateAgentParams{
		ID: domain.NewAgentID(domain.RoleSenior), Role: domain.RoleSenior,
		TeamID: team.ID, CLITool: domain.FlavourClaude,
	})
	require.NoError(t, err)

	agents, err := s.ListAgents(ListAgentsParams{TeamID: team.ID, Role: domain.RoleSenior, AliveOnly: true})
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, idle.ID, agents[0].ID, "idle agents sort before working ones")
}

func TestEscalations_DedupWindowAndResolve(t *testing.T) {
	s := newTestStore(t)

	esc, err := s.CreateEscalation(CreateEscalationParams{
		ID: domain.NewEscalationID(), FromAgentID: "junior-abc123", Reason: "stuck on migration",
	})
	require.NoError(t, err)
	assert.True(t, esc.NeedsHuman())

	recent, err := s.HasRecentPendingEscalation("junior-abc123", time.Hour)
	require.NoError(t, err)
	assert.True(t, recent)

	resolved, err := s.ResolveEscalation(esc.ID, "unblocked manually")
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = s.ResolveEscalation(esc.ID, "again")
	assert.True(t, errors.Is(err, domain.ErrInvalidState))

	recent, err = s.HasRecentPendingEscalation("junior-abc123", time.Hour)
	require.NoError(t, err)
	assert.False(t, recent)
}

func TestLogs_AppendListCount(t *testing.T) {
	s := newTestStore(t)

	s.AppendLog(AppendLogParams{
		AgentID: "manager", EventType: domain.EventAgentSpawned,
		Message: "spawned junior", Metadata: map[string]string{"role": "junior"},
	})
	s.AppendLog(AppendLogParams{
		AgentID: "manager", StoryID: "STORY-1", EventType: domain.EventNudgeSent,
	})
	s.AppendLog(AppendLogParams{
		AgentID: "manager", StoryID: "STORY-1", EventType: domain.EventNudgeSent,
	})

	entries, err := s.ListLogs(ListLogsParams{AgentID: "manager", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	// Newest first.
	assert.Equal(t, domain.EventNudgeSent, entries[0].EventType)

	spawned, err := s.ListLogs(ListLogsParams{EventType: domain.EventAgentSpawned})
	require.NoError(t, err)
	require.Len(t, spawned, 1)
	assert.Equal(t, map[string]string{"role": "junior"}, spawned[0].Metadata)

	n, err := s.CountLogs(ListLogsParams{StoryID: "STORY-1", EventType: domain.EventNudgeSent})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRecordSync_IdempotentUpsert(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordSync(RecordSyncParams{
		EntityType: "story", EntityID: "STORY-1", Provider: "jira", ExternalID: "PROJ-101",
	}))
	require.NoError(t, s.RecordSync(RecordSyncParams{
		EntityType: "story", EntityID: "STORY-1", Provider: "jira", ExternalID: "PROJ-102",
	}))

	rec, err := s.GetSync("story", "STORY-1", "jira")
	require.NoError(t, err)
	assert.Equal(t, "PROJ-102", rec.ExternalID)

	back, err := s.FindSyncByExternalID("jira", "PROJ-102")
	require.NoError(t, err)
	assert.Equal(t, "STORY-1", back.EntityID)
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)

	boom := errors.New("boom")
	err := s.WithTransaction(func(q *Queries) error {
		if _, err := q.CreateTeam(CreateTeamParams{
			ID: domain.NewTeamID(), Name: "doomed", RepoURL: "u", RepoPath: "p",
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetTeamByName("doomed")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestNewDB_BackupBeforeMigration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hive.db")

	db, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening an existing database writes a .bak first.
	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, path+".bak")
}

func TestMessages_OutboxAndDelivery(t *testing.T) {
	s := newTestStore(t)

	first, err := s.CreateMessage(CreateMessageParams{
		ID: domain.NewMessageID(), FromAgentID: "senior-aaa111",
		ToAgentID: "qa-bbb222", Body: "endpoint is behind feature flag",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MessagePending, first.Status)
	assert.Nil(t, first.DeliveredAt)

	second, err := s.CreateMessage(CreateMessageParams{
		ID: domain.NewMessageID(), FromAgentID: "senior-aaa111",
		ToAgentID: "qa-bbb222", Body: "flag name is refunds_v2",
	})
	require.NoError(t, err)

	pending, err := s.ListPendingMessages()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	// Oldest first so delivery preserves send order.
	assert.Equal(t, first.ID, pending[0].ID)

	require.NoError(t, s.MarkMessageDelivered(first.ID))

	pending, err = s.ListPendingMessages()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	outbox, err := s.ListOutbox("senior-aaa111")
	require.NoError(t, err)
	require.Len(t, outbox, 2)

	delivered, err := s.GetMessage(first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageDelivered, delivered.Status)
	assert.NotNil(t, delivered.DeliveredAt)

	// Delivery is once only.
	err = s.MarkMessageDelivered(first.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
