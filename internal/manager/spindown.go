package manager

import (
	"context"
	"strings"

	"github.com/hivectl/hive/internal/detect"
	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/log"
	"github.com/hivectl/hive/internal/store"
)

// checkSpinDown retires workers with nothing left to do: agents whose story
// merged and who hold no other active assignment, workers idling while the
// pipeline is empty, and sessions flagged drainable after a persistent
// WORK_COMPLETE.
func (m *Manager) checkSpinDown(ctx context.Context) error {
	agents, err := m.store.ListAgents(store.ListAgentsParams{AliveOnly: true})
	if err != nil {
		return err
	}

	active, err := m.store.ListStoriesByStatus(domain.ActiveStoryStatuses...)
	if err != nil {
		return err
	}
	pipelineEmpty := len(active) == 0

	for _, agent := range agents {
		if agent.Role == domain.RoleTechLead {
			continue
		}

		if m.drainable[agent.SessionName] && agent.SessionName != "" {
			remaining, err := m.remainingWork(agent.ID)
			if err != nil {
				return err
			}
			if remaining == 0 {
				if err := m.drainAgent(ctx, agent, "work complete"); err != nil {
					log.Warn(log.CatManager, "spin-down failed", "agent", agent.ID, "error", err)
				}
			} else {
				// More assignments showed up since the completion marker.
				delete(m.drainable, agent.SessionName)
			}
			continue
		}

		if agent.CurrentStoryID != "" {
			story, err := m.store.GetStory(agent.CurrentStoryID)
			if err == nil && story.Status == domain.StoryMerged {
				if err := m.spinDownAfterMerge(ctx, agent); err != nil {
					log.Warn(log.CatManager, "merged-story spin-down failed", "agent", agent.ID, "error", err)
				}
				continue
			}
		}

		if pipelineEmpty && agent.Status == domain.AgentWorking {
			if err := m.drainAgent(ctx, agent, "pipeline empty"); err != nil {
				log.Warn(log.CatManager, "idle-worker spin-down failed", "agent", agent.ID, "error", err)
			}
		}
	}
	return nil
}

// spinDownAfterMerge retires the agent unless it still holds other live
// work, in which case only the merged pointer is cleared.
func (m *Manager) spinDownAfterMerge(ctx context.Context, agent *domain.Agent) error {
	remaining, err := m.remainingWork(agent.ID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return m.store.WithTransaction(func(q *store.Queries) error {
			return q.UpdateAgentStatus(agent.ID, domain.AgentWorking, "")
		})
	}
	return m.drainAgent(ctx, agent, "story merged")
}

// remainingWork counts the agent's assignments still in flight.
func (m *Manager) remainingWork(agentID string) (int, error) {
	assigned, err := m.store.ListStoriesByAgent(agentID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, st := range assigned {
		if st.Status != domain.StoryMerged && st.Status != domain.StoryDraft {
			n++
		}
	}
	return n, nil
}

// drainAgent says goodbye, waits out the drain delay, kills the session and
// terminates the agent row. Session resolution is exact name match; a
// substring scan over live sessions is the fallback for rows predating
// session tracking.
func (m *Manager) drainAgent(ctx context.Context, agent *domain.Agent, reason string) error {
	session := agent.SessionName
	if session == "" {
		session = m.findLegacySession(ctx, agent)
	}

	if session != "" {
		goodbye := detect.ReminderPrefix + " congratulations, your work here is done. Spinning this session down."
		if err := m.sup.SendMessageWithConfirmation(ctx, session, goodbye, m.cfg.Manager.CaptureLines); err != nil {
			log.Debug(log.CatManager, "goodbye undeliverable", "session", session, "error", err)
		}
		m.sleep(m.cfg.Manager.DrainDelay)
		if err := m.sup.Kill(ctx, session); err != nil {
			return err
		}
		m.forgetSession(session)
	}

	err := m.store.WithTransaction(func(q *store.Queries) error {
		if err := q.TerminateAgent(agent.ID); err != nil {
			return err
		}
		q.AppendLog(store.AppendLogParams{
			AgentID:   agent.ID,
			EventType: domain.EventAgentTerminated,
			Message:   "spun down: " + reason,
			Metadata:  map[string]string{"session": session},
		})
		return nil
	})
	if err != nil {
		return err
	}
	log.Info(log.CatManager, "agent spun down", "agent", agent.ID, "reason", reason)
	return nil
}

// findLegacySession locates a session for an agent row that never recorded
// one: any live session for the agent's role that no other agent owns.
func (m *Manager) findLegacySession(ctx context.Context, agent *domain.Agent) string {
	live, err := m.sup.ListSessions(ctx)
	if err != nil {
		return ""
	}
	marker := "-" + string(agent.Role) + "-"
	for _, name := range live {
		if !strings.Contains(name, marker) {
			continue
		}
		if _, err := m.store.GetAgentBySession(name); err == nil {
			continue // owned by someone else
		}
		return name
	}
	return ""
}
