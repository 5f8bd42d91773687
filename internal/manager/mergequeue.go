package manager

import (
	"context"

	"github.com/hivectl/hive/internal/connector"
	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/log"
	"github.com/hivectl/hive/internal/paths"
	"github.com/hivectl/hive/internal/store"
)

// checkApprovedPRs lands every approved pull request: squash merge, delete
// the branch, mark PR and story merged, then tell the PM provider. A VCS
// failure leaves the PR approved for the next tick.
func (m *Manager) checkApprovedPRs(ctx context.Context) error {
	if m.vcs == nil {
		return nil
	}
	teams, err := m.store.ListTeams()
	if err != nil {
		return err
	}

	for _, team := range teams {
		approved, err := m.store.ListPullRequests(team.ID, domain.PRApproved)
		if err != nil {
			return err
		}
		repo := paths.TeamRepo(m.hiveDir, team.RepoPath)

		for _, pr := range approved {
			if pr.ExternalNumber == 0 {
				continue // never submitted upstream, nothing to land
			}
			if err := m.vcs.MergePR(ctx, repo, pr.ExternalNumber, connector.MergeOpts{
				Squash: true, DeleteBranch: true,
			}); err != nil {
				log.Warn(log.CatVCS, "auto-merge failed, will retry",
					"pr", pr.ID, "number", pr.ExternalNumber, "error", err)
				continue
			}

			var story *domain.Story
			err = m.store.WithTransaction(func(q *store.Queries) error {
				if _, err := q.UpdatePRStatus(store.UpdatePRStatusParams{
					ID: pr.ID, To: domain.PRMerged,
				}); err != nil {
					return err
				}
				var err error
				story, err = q.UpdateStoryStatus(store.UpdateStoryStatusParams{
					ID: pr.StoryID, To: domain.StoryMerged, Override: true,
				})
				if err != nil {
					return err
				}
				q.AppendLog(store.AppendLogParams{
					AgentID:   "manager",
					StoryID:   pr.StoryID,
					EventType: domain.EventPRMerged,
					Message:   "auto-merged approved pull request",
					Metadata:  map[string]string{"pr": pr.ID, "branch": pr.Branch},
				})
				q.AppendLog(store.AppendLogParams{
					AgentID:   "manager",
					StoryID:   pr.StoryID,
					EventType: domain.EventStoryCompleted,
					Message:   "story merged",
				})
				return nil
			})
			if err != nil {
				return err
			}
			log.Info(log.CatManager, "approved pr merged", "pr", pr.ID, "story", pr.StoryID)

			if story.ExternalIssueKey != "" && m.pm != nil {
				pmCtx, cancel := context.WithTimeout(ctx, m.cfg.PM.Timeout)
				if err := m.pm.TransitionStory(pmCtx, story.ExternalIssueKey,
					connector.ExternalStatusFor(domain.StoryMerged)); err != nil {
					log.Warn(log.CatPM, "post-merge transition failed",
						"story", story.ID, "issue", story.ExternalIssueKey, "error", err)
				}
				cancel()
			}
		}
	}
	return nil
}

// checkOrphanedReviewers requeues reviewing PRs whose reviewer vanished so a
// fresh QA can claim them.
func (m *Manager) checkOrphanedReviewers(ctx context.Context) error {
	live, err := m.liveSessionSet(ctx)
	if err != nil {
		return err
	}
	teams, err := m.store.ListTeams()
	if err != nil {
		return err
	}

	for _, team := range teams {
		reviewing, err := m.store.ListPullRequests(team.ID, domain.PRReviewing)
		if err != nil {
			return err
		}
		for _, pr := range reviewing {
			if !m.reviewerGone(pr.ReviewerAgentID, live) {
				continue
			}
			err := m.store.WithTransaction(func(q *store.Queries) error {
				if _, err := q.UpdatePRStatus(store.UpdatePRStatusParams{
					ID: pr.ID, To: domain.PRQueued,
				}); err != nil {
					return err
				}
				q.AppendLog(store.AppendLogParams{
					AgentID:   "manager",
					StoryID:   pr.StoryID,
					EventType: domain.EventPRSubmitted,
					Message:   "reviewer gone, pr requeued",
					Metadata:  map[string]string{"pr": pr.ID, "reviewer": pr.ReviewerAgentID},
				})
				return nil
			})
			if err != nil {
				return err
			}
			log.Info(log.CatManager, "orphaned review requeued", "pr", pr.ID, "reviewer", pr.ReviewerAgentID)
		}
	}
	return nil
}

func (m *Manager) reviewerGone(reviewerID string, live map[string]bool) bool {
	if reviewerID == "" {
		return true
	}
	reviewer, err := m.store.GetAgent(reviewerID)
	if err != nil {
		return true
	}
	if reviewer.Status == domain.AgentTerminated {
		return true
	}
	return reviewer.SessionName == "" || !live[reviewer.SessionName]
}
