package manager

import (
	"context"
	"fmt"

	"github.com/hivectl/hive/internal/connector"
	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/log"
	"github.com/hivectl/hive/internal/store"
)

// allStoryStatuses spans the whole lifecycle for sync sweeps.
var allStoryStatuses = []domain.StoryStatus{
	domain.StoryDraft, domain.StoryEstimated, domain.StoryPlanned,
	domain.StoryInProgress, domain.StoryReview, domain.StoryPRSubmitted,
	domain.StoryQAFailed, domain.StoryQA, domain.StoryMerged,
}

// syncPM runs one bidirectional sync pass against the PM provider: push
// unsynced stories, repair missing subtasks, retry sprint placement, push
// local status, then pull external transitions forward-only. Provider
// failures degrade to warnings; a sync never blocks the pipeline.
func (m *Manager) syncPM(ctx context.Context) error {
	if m.pm == nil || m.cfg.PM.Provider == "" {
		return nil
	}
	provider := m.cfg.PM.Provider

	m.store.AppendLog(store.AppendLogParams{
		AgentID: "manager", EventType: domain.EventJiraSyncStarted,
		Message: "pm sync pass started",
	})

	stories, err := m.store.ListStoriesByStatus(allStoryStatuses...)
	if err != nil {
		return err
	}

	warnings := 0
	for _, story := range stories {
		if err := m.syncOneStory(ctx, provider, story); err != nil {
			warnings++
			log.Warn(log.CatPM, "story sync degraded", "story", story.ID, "error", err)
			m.store.AppendLog(store.AppendLogParams{
				AgentID: "manager", StoryID: story.ID,
				EventType: domain.EventJiraSyncWarning,
				Message:   err.Error(),
			})
		}
	}

	m.store.AppendLog(store.AppendLogParams{
		AgentID: "manager", EventType: domain.EventJiraSyncCompleted,
		Message:  "pm sync pass completed",
		Metadata: map[string]string{"stories": fmt.Sprint(len(stories)), "warnings": fmt.Sprint(warnings)},
	})
	return nil
}

func (m *Manager) syncOneStory(ctx context.Context, provider string, story *domain.Story) error {
	// Push: a story the provider has never seen.
	if story.ExternalIssueKey == "" {
		return m.pushStory(ctx, provider, story)
	}

	// Repair: an assigned story that lost (or never got) its work subtask.
	if story.AssignedAgentID != "" && story.ExternalSubtaskKey == "" {
		m.repairSubtask(ctx, provider, story)
	}

	// Retry sprint placement until it sticks.
	if !story.InSprint {
		if err := m.withPMTimeout(ctx, func(c context.Context) error {
			return m.pm.AddToActiveSprint(c, story.ExternalIssueKey)
		}); err == nil {
			_ = m.store.WithTransaction(func(q *store.Queries) error {
				return q.SetStoryExternal(store.SetStoryExternalParams{
					StoryID:    story.ID,
					IssueKey:   story.ExternalIssueKey,
					SubtaskKey: story.ExternalSubtaskKey,
					ProjectKey: story.ExternalProjectKey,
					Provider:   provider,
					InSprint:   true,
				})
			})
		}
	}

	// Push local status ahead of the pull so a fresh local transition is
	// never clobbered by stale board state.
	if err := m.withPMTimeout(ctx, func(c context.Context) error {
		return m.pm.TransitionStory(c, story.ExternalIssueKey, connector.ExternalStatusFor(story.Status))
	}); err != nil {
		return fmt.Errorf("pushing status: %w", err)
	}

	// Pull: apply the externally attested status when it moves us forward.
	var issue *connector.Issue
	if err := m.withPMTimeout(ctx, func(c context.Context) error {
		var err error
		issue, err = m.pm.GetIssue(c, story.ExternalIssueKey)
		return err
	}); err != nil {
		return fmt.Errorf("pulling status: %w", err)
	}

	external, known := connector.StoryStatusFor(issue.Status)
	if !known || external == story.Status {
		return nil
	}
	if !connector.ForwardOnly(story.Status, external) {
		log.Debug(log.CatPM, "backward external transition skipped",
			"story", story.ID, "local", string(story.Status), "external", issue.Status)
		return nil
	}
	return m.store.WithTransaction(func(q *store.Queries) error {
		_, err := q.UpdateStoryStatus(store.UpdateStoryStatusParams{
			ID: story.ID, To: external, Override: true,
		})
		return err
	})
}

// pushStory creates the provider-side issue (and epic, when the requirement
// has none yet) and records the linkage.
func (m *Manager) pushStory(ctx context.Context, provider string, story *domain.Story) error {
	req, err := m.store.GetRequirement(story.RequirementID)
	if err != nil {
		return err
	}

	epicKey := req.EpicKey
	if epicKey == "" {
		if err := m.withPMTimeout(ctx, func(c context.Context) error {
			var err error
			epicKey, err = m.pm.CreateEpic(c, req.Title, req.Description)
			return err
		}); err != nil {
			return fmt.Errorf("creating epic: %w", err)
		}
		if err := m.store.WithTransaction(func(q *store.Queries) error {
			if err := q.SetRequirementEpicKey(req.ID, epicKey); err != nil {
				return err
			}
			q.AppendLog(store.AppendLogParams{
				AgentID: "manager", EventType: domain.EventJiraEpicCreated,
				Message: "epic created for " + req.ID, Metadata: map[string]string{"epic": epicKey},
			})
			return nil
		}); err != nil {
			return err
		}
	}

	var issueKey string
	if err := m.withPMTimeout(ctx, func(c context.Context) error {
		var err error
		issueKey, err = m.pm.CreateStory(c, epicKey, story.Title, story.Description, story.StoryPoints)
		return err
	}); err != nil {
		return fmt.Errorf("creating issue: %w", err)
	}

	return m.store.WithTransaction(func(q *store.Queries) error {
		if err := q.SetStoryExternal(store.SetStoryExternalParams{
			StoryID:    story.ID,
			IssueKey:   issueKey,
			ProjectKey: m.cfg.PM.ProjectKey,
			Provider:   provider,
		}); err != nil {
			return err
		}
		if err := q.RecordSync(store.RecordSyncParams{
			EntityType: "story", EntityID: story.ID,
			Provider: provider, ExternalID: issueKey,
		}); err != nil {
			return err
		}
		q.AppendLog(store.AppendLogParams{
			AgentID: "manager", StoryID: story.ID,
			EventType: domain.EventJiraStoryCreated,
			Message:   "issue created", Metadata: map[string]string{"issue": issueKey},
		})
		return nil
	})
}

// repairSubtask recreates the per-agent work subtask. Failures are logged
// and retried next pass rather than surfaced.
func (m *Manager) repairSubtask(ctx context.Context, provider string, story *domain.Story) {
	var subtaskKey string
	err := m.withPMTimeout(ctx, func(c context.Context) error {
		var err error
		subtaskKey, err = m.pm.CreateSubtask(c, story.ExternalIssueKey, "Agent work: "+story.AssignedAgentID)
		return err
	})
	if err != nil {
		m.store.AppendLog(store.AppendLogParams{
			AgentID: "manager", StoryID: story.ID,
			EventType: domain.EventJiraAssignmentRepairFailed,
			Message:   err.Error(),
		})
		return
	}
	_ = m.store.WithTransaction(func(q *store.Queries) error {
		if err := q.SetStoryExternal(store.SetStoryExternalParams{
			StoryID:    story.ID,
			IssueKey:   story.ExternalIssueKey,
			SubtaskKey: subtaskKey,
			ProjectKey: story.ExternalProjectKey,
			Provider:   provider,
			InSprint:   story.InSprint,
		}); err != nil {
			return err
		}
		q.AppendLog(store.AppendLogParams{
			AgentID: "manager", StoryID: story.ID,
			EventType: domain.EventJiraAssignmentRepaired,
			Message:   "subtask recreated", Metadata: map[string]string{"subtask": subtaskKey},
		})
		return nil
	})
}

func (m *Manager) withPMTimeout(ctx context.Context, fn func(context.Context) error) error {
	c, cancel := context.WithTimeout(ctx, m.cfg.PM.Timeout)
	defer cancel()
	return fn(c)
}
