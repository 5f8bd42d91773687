package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/hivectl/hive/internal/detect"
	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/log"
	"github.com/hivectl/hive/internal/store"
)

// pendingEscalationWindow is how long a pending escalation suppresses all
// automated contact with its session.
const pendingEscalationWindow = 24 * time.Hour

// checkLiveness reconciles agent rows against the live session set and the
// heartbeat threshold. An agent whose session is gone is terminated and its
// stories returned to the pool; an agent with a live session but a stale
// heartbeat is only reported.
func (m *Manager) checkLiveness(ctx context.Context) error {
	live, err := m.liveSessionSet(ctx)
	if err != nil {
		return err
	}

	stale, err := m.store.StaleAgents(m.cfg.Manager.StaleAgentThreshold)
	if err != nil {
		return err
	}

	for _, agent := range stale {
		if agent.SessionName != "" && !live[agent.SessionName] {
			if err := m.reclaimDeadAgent(agent); err != nil {
				log.Warn(log.CatManager, "reclaiming dead agent failed", "agent", agent.ID, "error", err)
			}
			continue
		}

		key := "stale:" + agent.ID
		if _, hit := m.cooldowns.Get(key); hit {
			continue
		}
		m.cooldowns.SetDefault(key, true)
		log.Warn(log.CatManager, "agent heartbeat stale",
			"agent", agent.ID, "last_seen", agent.LastSeen.Format(time.RFC3339))
		m.store.AppendLog(store.AppendLogParams{
			AgentID:   agent.ID,
			StoryID:   agent.CurrentStoryID,
			EventType: domain.EventAgentStale,
			Message:   "heartbeat older than threshold",
		})
	}
	return nil
}

// reclaimDeadAgent terminates an agent whose session vanished and requeues
// its in-flight stories.
func (m *Manager) reclaimDeadAgent(agent *domain.Agent) error {
	stories, err := m.store.ListStoriesByAgent(agent.ID)
	if err != nil {
		return err
	}

	err = m.store.WithTransaction(func(q *store.Queries) error {
		if err := q.TerminateAgent(agent.ID); err != nil {
			return err
		}
		for _, st := range stories {
			if st.Status == domain.StoryMerged || st.Status == domain.StoryDraft {
				continue
			}
			if err := q.ClearStoryAssignment(st.ID); err != nil {
				return err
			}
			if _, err := q.UpdateStoryStatus(store.UpdateStoryStatusParams{
				ID: st.ID, To: domain.StoryPlanned, Override: true,
			}); err != nil {
				return err
			}
		}
		q.AppendLog(store.AppendLogParams{
			AgentID:   agent.ID,
			EventType: domain.EventAgentTerminated,
			Message:   "session vanished, stories requeued",
			Metadata:  map[string]string{"session": agent.SessionName, "requeued": fmt.Sprint(len(stories))},
		})
		return nil
	})
	if err != nil {
		return err
	}

	m.forgetSession(agent.SessionName)
	log.Info(log.CatManager, "dead agent reclaimed", "agent", agent.ID, "session", agent.SessionName)
	return nil
}

// checkSessions probes every live session, classifies its output and applies
// the per-state nudge/escalate/recover policy.
func (m *Manager) checkSessions(ctx context.Context) error {
	agents, err := m.store.ListAgents(store.ListAgentsParams{AliveOnly: true})
	if err != nil {
		return err
	}

	for _, agent := range agents {
		if agent.SessionName == "" {
			continue
		}
		if err := m.checkOneSession(ctx, agent); err != nil {
			log.Debug(log.CatManager, "session probe failed",
				"agent", agent.ID, "session", agent.SessionName, "error", err)
		}
	}
	return nil
}

func (m *Manager) checkOneSession(ctx context.Context, agent *domain.Agent) error {
	pane, err := m.sup.CapturePane(ctx, agent.SessionName, m.cfg.Manager.CaptureLines)
	if err != nil {
		return err
	}

	res := detect.Detect(agent.CLITool, pane)
	unchanged := m.trackPane(agent.SessionName, pane)
	log.Debug(log.CatDetect, "session classified",
		"session", agent.SessionName, "state", string(res.State), "unchanged", unchanged.Truncate(time.Second).String())

	// A pending escalation freezes all automated contact with the session
	// until a human resolves it.
	pending, err := m.store.HasRecentPendingEscalation(agent.ID, pendingEscalationWindow)
	if err != nil {
		return err
	}
	if pending {
		return nil
	}

	switch {
	case res.NeedsHuman:
		return m.escalateToHuman(agent, res.State)

	case res.State == detect.RateLimited:
		wait := detect.RateLimitWait(pane)
		return m.nudge(ctx, agent, fmt.Sprintf(
			"you hit a rate limit. Run `sleep %d` in your shell, then continue your current task.",
			int(wait.Seconds())))

	case res.State == detect.Interrupted:
		msg := "your last request was interrupted. Resume where you left off"
		if agent.CurrentStoryID != "" {
			msg = fmt.Sprintf(
				"your last request was interrupted. You are assigned %s; resume it and submit with `hive pr submit %s` when done",
				agent.CurrentStoryID, agent.CurrentStoryID)
		}
		return m.nudge(ctx, agent, msg+".")

	case res.State == detect.WorkComplete:
		if !m.completionSent[agent.SessionName] {
			m.completionSent[agent.SessionName] = true
			return m.nudge(ctx, agent,
				"completion noted. Run `hive my-stories` to check for remaining work; this session spins down when none is left.")
		}
		if unchanged >= m.cfg.Manager.StaticInactivityThreshold {
			m.drainable[agent.SessionName] = true
		}
		return nil

	case res.State == detect.IdleAtPrompt, res.State == detect.Unknown:
		// UNKNOWN only counts as stuck when nothing is visibly awaited and
		// the pane has been static past the window.
		if res.State == detect.Unknown && res.IsWaiting {
			return nil
		}
		if unchanged < m.cfg.Manager.StaticInactivityThreshold {
			return nil
		}
		return m.nudge(ctx, agent,
			"you appear stuck. Available commands: `hive my-stories`, `hive story progress <id>`, `hive pr submit <id>`, `hive escalate <reason>`.")

	default:
		// TYPING / TOOL_RUNNING: visibly working, leave it alone.
		return nil
	}
}

// nudge delivers a manager-reminder message to the agent's session, bounded
// by the per-session cooldown.
func (m *Manager) nudge(ctx context.Context, agent *domain.Agent, text string) error {
	if _, hit := m.cooldowns.Get(agent.SessionName); hit {
		return nil
	}
	m.cooldowns.SetDefault(agent.SessionName, true)

	envelope := detect.ReminderPrefix + " " + text
	if err := m.sup.SendMessageWithConfirmation(ctx, agent.SessionName, envelope, m.cfg.Manager.CaptureLines); err != nil {
		return err
	}
	m.store.AppendLog(store.AppendLogParams{
		AgentID:   agent.ID,
		StoryID:   agent.CurrentStoryID,
		EventType: domain.EventNudgeSent,
		Message:   text,
	})
	log.Info(log.CatManager, "nudge sent", "agent", agent.ID, "session", agent.SessionName)
	return nil
}

// escalateToHuman records a pending human escalation with state-specific
// guidance. Dedup happens upstream via the pending-escalation freeze.
func (m *Manager) escalateToHuman(agent *domain.Agent, state detect.State) error {
	guidance := map[detect.State]string{
		detect.AwaitingSelection:  "session is waiting on a menu; attach and pick an option (e.g. `tmux attach -t %s`)",
		detect.AskingQuestion:     "agent asked a question that needs a human answer; attach with `tmux attach -t %s`",
		detect.PermissionRequired: "CLI is waiting for a permission grant; attach with `tmux attach -t %s`",
		detect.UserDeclined:       "a previous action was declined; attach with `tmux attach -t %s` and redirect the agent",
	}[state]
	reason := fmt.Sprintf(guidance, agent.SessionName)

	var esc *domain.Escalation
	err := m.store.WithTransaction(func(q *store.Queries) error {
		var err error
		esc, err = q.CreateEscalation(store.CreateEscalationParams{
			ID:          domain.NewEscalationID(),
			StoryID:     agent.CurrentStoryID,
			FromAgentID: agent.ID,
			Reason:      reason,
		})
		if err != nil {
			return err
		}
		q.AppendLog(store.AppendLogParams{
			AgentID:   agent.ID,
			StoryID:   agent.CurrentStoryID,
			EventType: domain.EventEscalationCreated,
			Message:   reason,
			Metadata:  map[string]string{"state": string(state)},
		})
		return nil
	})
	if err != nil {
		return err
	}
	log.Warn(log.CatManager, "human escalation created",
		"escalation", esc.ID, "agent", agent.ID, "state", string(state))
	return nil
}

func (m *Manager) liveSessionSet(ctx context.Context) (map[string]bool, error) {
	names, err := m.sup.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}
