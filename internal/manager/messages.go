package manager

import (
	"context"
	"fmt"

	"github.com/hivectl/hive/internal/log"
)

// deliverMessages pushes pending agent-to-agent messages into live recipient
// sessions, oldest first. Messages to dead or sessionless agents stay
// pending; a later tick retries once the recipient exists.
func (m *Manager) deliverMessages(ctx context.Context) error {
	pending, err := m.store.ListPendingMessages()
	if err != nil {
		return err
	}
	for _, msg := range pending {
		agent, err := m.store.GetAgent(msg.ToAgentID)
		if err != nil || !agent.IsAlive() || agent.SessionName == "" {
			continue
		}
		text := fmt.Sprintf("[msg from %s] %s", msg.FromAgentID, msg.Body)
		if err := m.sup.SendMessageWithConfirmation(ctx, agent.SessionName, text, m.cfg.Manager.CaptureLines); err != nil {
			log.Warn(log.CatManager, "message delivery failed",
				"message", msg.ID, "to", agent.ID, "error", err)
			continue
		}
		if err := m.store.MarkMessageDelivered(msg.ID); err != nil {
			log.Warn(log.CatManager, "message delivered but not recorded",
				"message", msg.ID, "error", err)
			continue
		}
		log.Info(log.CatManager, "message delivered", "message", msg.ID,
			"from", msg.FromAgentID, "to", agent.ID)
	}
	return nil
}
