package manager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hivectl/hive/internal/detect"
	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/log"
	"github.com/hivectl/hive/internal/store"
)

// checkStalledHandoffs recovers requirements whose tech lead estimated the
// stories but never promoted them to planned. Stage one nudges the tech
// lead; stage two, when the group is byte-identical after the retry delay,
// promotes the stories itself and runs a full scheduler pass.
func (m *Manager) checkStalledHandoffs(ctx context.Context) error {
	estimated, err := m.store.ListStoriesByStatus(domain.StoryEstimated)
	if err != nil {
		return err
	}
	if len(estimated) == 0 {
		return nil
	}

	groups := map[string][]*domain.Story{}
	for _, st := range estimated {
		groups[st.RequirementID] = append(groups[st.RequirementID], st)
	}

	now := m.clock()
	for reqID, stories := range groups {
		latest := time.Time{}
		for _, st := range stories {
			if st.UpdatedAt.After(latest) {
				latest = st.UpdatedAt
			}
		}
		if now.Sub(latest) < m.cfg.Manager.StuckThreshold {
			delete(m.handoffs, reqID)
			continue
		}

		sig := fmt.Sprintf("%d:%d", len(stories), latest.Unix())
		prev, seen := m.handoffs[reqID]
		if !seen || prev.signature != sig {
			m.handoffs[reqID] = handoffState{signature: sig, nudgedAt: now}
			m.nudgeTechLead(ctx, reqID, len(stories))
			continue
		}
		if now.Sub(prev.nudgedAt) < m.cfg.Manager.HandoffRetryDelay {
			continue
		}

		if err := m.promoteHandoff(ctx, reqID, stories); err != nil {
			log.Warn(log.CatManager, "handoff promotion failed", "requirement", reqID, "error", err)
			continue
		}
		delete(m.handoffs, reqID)
	}
	return nil
}

func (m *Manager) nudgeTechLead(ctx context.Context, reqID string, count int) {
	leads, err := m.store.ListAgents(store.ListAgentsParams{Role: domain.RoleTechLead, AliveOnly: true})
	if err != nil || len(leads) == 0 || leads[0].SessionName == "" {
		return
	}
	lead := leads[0]
	msg := fmt.Sprintf(
		"%s %d stories for %s are still estimated. Finish planning with `hive req plan-done %s`.",
		detect.ReminderPrefix, count, reqID, reqID)
	if err := m.sup.SendMessageWithConfirmation(ctx, lead.SessionName, msg, m.cfg.Manager.CaptureLines); err != nil {
		log.Debug(log.CatManager, "tech lead nudge failed", "error", err)
		return
	}
	m.store.AppendLog(store.AppendLogParams{
		AgentID:   lead.ID,
		EventType: domain.EventNudgeSent,
		Message:   "stalled planning handoff for " + reqID,
	})
}

// promoteHandoff closes the handoff on the tech lead's behalf, then runs the
// scheduler so the freed stories start moving in the same tick.
func (m *Manager) promoteHandoff(ctx context.Context, reqID string, stories []*domain.Story) error {
	err := m.store.WithTransaction(func(q *store.Queries) error {
		for _, st := range stories {
			if _, err := q.UpdateStoryStatus(store.UpdateStoryStatusParams{
				ID: st.ID, To: domain.StoryPlanned,
			}); err != nil {
				return err
			}
		}
		req, err := q.GetRequirement(reqID)
		if err != nil {
			return err
		}
		if req.Status == domain.RequirementPlanning {
			if _, err := q.UpdateRequirementStatus(reqID, domain.RequirementPlanned); err != nil {
				return err
			}
		}
		q.AppendLog(store.AppendLogParams{
			AgentID:   "manager",
			EventType: domain.EventHandoffPromoted,
			Message:   fmt.Sprintf("promoted %d estimated stories for %s", len(stories), reqID),
		})
		q.AppendLog(store.AppendLogParams{
			AgentID:   "manager",
			EventType: domain.EventPlanningCompleted,
			Message:   "planning completed by manager on behalf of tech lead",
			Metadata:  map[string]string{"requirement": reqID},
		})
		return nil
	})
	if err != nil {
		return err
	}
	log.Info(log.CatManager, "stalled handoff promoted", "requirement", reqID, "stories", len(stories))

	if err := m.sched.CheckScaling(ctx); err != nil {
		log.Warn(log.CatManager, "post-handoff scaling failed", "error", err)
	}
	if err := m.sched.CheckMergeQueue(ctx); err != nil {
		log.Warn(log.CatManager, "post-handoff merge-queue check failed", "error", err)
	}
	res, err := m.sched.AssignStories(ctx)
	if err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		// Collapse the failures into one escalation instead of aborting.
		return m.store.WithTransaction(func(q *store.Queries) error {
			_, err := q.CreateEscalation(store.CreateEscalationParams{
				ID:     domain.NewEscalationID(),
				Reason: fmt.Sprintf("assignment after handoff promotion for %s: %s", reqID, strings.Join(res.Errors, "; ")),
			})
			return err
		})
	}
	return nil
}
