package manager

import (
	"context"
	"fmt"

	"github.com/hivectl/hive/internal/connector"
	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/log"
	"github.com/hivectl/hive/internal/paths"
	"github.com/hivectl/hive/internal/store"
)

// checkFeatureSignOff drives the sign-off stage end to end: when every story
// of an in-progress requirement has merged, spawn a feature_test agent
// against the integration branch; once the agent records its verdict, land
// the feature branch (on pass) and finalize the requirement.
func (m *Manager) checkFeatureSignOff(ctx context.Context) error {
	if err := m.triggerSignOffs(ctx); err != nil {
		return err
	}
	return m.collectVerdicts(ctx)
}

func (m *Manager) triggerSignOffs(ctx context.Context) error {
	reqs, err := m.store.ListRequirements(domain.RequirementInProgress)
	if err != nil {
		return err
	}

	for _, req := range reqs {
		stories, err := m.store.ListStoriesByRequirement(req.ID)
		if err != nil {
			return err
		}
		if len(stories) == 0 || !allMerged(stories) {
			continue
		}
		if req.FeatureBranch == "" && req.TargetBranch == "" {
			continue // nothing to integrate, sign-off has no subject
		}

		err = m.store.WithTransaction(func(q *store.Queries) error {
			if _, err := q.UpdateRequirementStatus(req.ID, domain.RequirementSignOff); err != nil {
				return err
			}
			q.AppendLog(store.AppendLogParams{
				AgentID:   "manager",
				EventType: domain.EventFeatureSignOffTriggered,
				Message:   "all stories merged, starting sign-off",
				Metadata:  map[string]string{"requirement": req.ID, "branch": req.FeatureBranch},
			})
			return nil
		})
		if err != nil {
			return err
		}

		if _, err := m.sched.SpawnFeatureTest(ctx, stories[0].TeamID, req); err != nil {
			log.Warn(log.CatManager, "feature test spawn failed, reverting",
				"requirement", req.ID, "error", err)
			if txErr := m.store.WithTransaction(func(q *store.Queries) error {
				_, err := q.UpdateRequirementStatus(req.ID, domain.RequirementInProgress)
				return err
			}); txErr != nil {
				return txErr
			}
			continue
		}
		log.Info(log.CatManager, "feature sign-off started", "requirement", req.ID)
	}
	return nil
}

// collectVerdicts reads each feature-test agent's recorded verdict lines
// (written through `hive req verdict`) and finalizes the owning requirement
// once per spawn. Session output is never parsed for verdicts: the delivered
// briefing quotes both markers, so pane text cannot be trusted.
func (m *Manager) collectVerdicts(ctx context.Context) error {
	testers, err := m.store.ListAgents(store.ListAgentsParams{
		Role: domain.RoleFeatureTest, AliveOnly: true,
	})
	if err != nil {
		return err
	}

	for _, tester := range testers {
		if m.verdictRead[tester.ID] {
			continue
		}
		entries, err := m.store.ListLogs(store.ListLogsParams{
			AgentID: tester.ID, EventType: domain.EventStoryProgressUpdate,
		})
		if err != nil {
			continue
		}
		var passed, failed bool
		for _, e := range entries {
			p, f := domain.ParseVerdict(e.Message)
			passed = passed || p
			failed = failed || f
		}
		if !passed && !failed {
			continue
		}
		if passed && failed {
			log.Warn(log.CatManager, "conflicting verdict lines, leaving for a human",
				"agent", tester.ID)
			continue
		}
		m.verdictRead[tester.ID] = true

		reqID := m.requirementForTester(tester.ID)
		if reqID == "" {
			log.Warn(log.CatManager, "verdict with no owning requirement", "agent", tester.ID)
			continue
		}
		if err := m.finalizeSignOff(ctx, reqID, tester, passed); err != nil {
			log.Warn(log.CatManager, "sign-off finalization failed",
				"requirement", reqID, "error", err)
		}
	}
	return nil
}

func (m *Manager) finalizeSignOff(ctx context.Context, reqID string, tester *domain.Agent, passed bool) error {
	req, err := m.store.GetRequirement(reqID)
	if err != nil {
		return err
	}

	if passed && m.vcs != nil && req.FeatureBranch != "" {
		if err := m.landFeatureBranch(ctx, req, tester.TeamID); err != nil {
			log.Warn(log.CatVCS, "feature branch merge failed, land it manually",
				"requirement", req.ID, "branch", req.FeatureBranch, "error", err)
		}
	}

	to := domain.RequirementSignOffFailed
	event := domain.EventFeatureSignOffFailed
	msg := "end-to-end verdict: failed"
	if passed {
		to = domain.RequirementSignOffPassed
		event = domain.EventFeatureSignOffPassed
		msg = "end-to-end verdict: passed"
	}
	err = m.store.WithTransaction(func(q *store.Queries) error {
		if _, err := q.UpdateRequirementStatus(reqID, to); err != nil {
			return err
		}
		q.AppendLog(store.AppendLogParams{
			AgentID:   tester.ID,
			EventType: event,
			Message:   msg,
			Metadata:  map[string]string{"requirement": reqID},
		})
		return nil
	})
	if err != nil {
		return err
	}
	log.Info(log.CatManager, "sign-off finalized", "requirement", reqID, "passed", passed)

	if m.pm != nil && req.EpicKey != "" {
		pmCtx, cancel := context.WithTimeout(ctx, m.cfg.PM.Timeout)
		report := fmt.Sprintf("Sign-off for %s: %s", reqID, msg)
		if err := m.pm.PostSignOffReport(pmCtx, req.EpicKey, report); err != nil {
			log.Warn(log.CatPM, "sign-off report failed", "epic", req.EpicKey, "error", err)
		}
		cancel()
	}

	return m.drainAgent(ctx, tester, "sign-off verdict recorded")
}

// landFeatureBranch merges the requirement's integration branch into its
// target via a PR, since the host has no direct branch-merge call.
func (m *Manager) landFeatureBranch(ctx context.Context, req *domain.Requirement, teamID string) error {
	team, err := m.store.GetTeam(teamID)
	if err != nil {
		return err
	}
	repo := paths.TeamRepo(m.hiveDir, team.RepoPath)
	target := req.TargetBranch
	if target == "" {
		target = m.cfg.VCS.DefaultBranch
	}

	pr, err := m.vcs.SubmitPR(ctx, connector.PRSpec{
		RepoPath:   repo,
		Title:      fmt.Sprintf("%s: %s", req.ID, req.Title),
		Body:       "Integration branch for " + req.ID + ", end-to-end tests passed.",
		HeadBranch: req.FeatureBranch,
		BaseBranch: target,
	})
	if err != nil {
		return err
	}
	return m.vcs.MergePR(ctx, repo, pr.Number, connector.MergeOpts{DeleteBranch: true})
}

// requirementForTester resolves the requirement a feature-test agent was
// spawned for from its spawn event.
func (m *Manager) requirementForTester(agentID string) string {
	entries, err := m.store.ListLogs(store.ListLogsParams{
		AgentID:   agentID,
		EventType: domain.EventFeatureTestSpawned,
		Limit:     1,
	})
	if err != nil || len(entries) == 0 {
		return ""
	}
	return entries[0].Metadata["requirement"]
}

func allMerged(stories []*domain.Story) bool {
	for _, st := range stories {
		if st.Status != domain.StoryMerged {
			return false
		}
	}
	return true
}
