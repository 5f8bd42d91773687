package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/hivectl/hive/internal/domain"
)

// CreateMessageParams describes one agent-to-agent message.
type CreateMessageParams struct {
	ID          string
	FromAgentID string
	ToAgentID   string
	Body        string
}

// CreateMessage stores a message in pending state. Delivery is the
// manager's job.
func (q *Queries) CreateMessage(p CreateMessageParams) (*domain.Message, error) {
	_, err := q.db.Exec(
		`INSERT INTO messages (id, from_agent_id, to_agent_id, body, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.FromAgentID, p.ToAgentID, p.Body, string(domain.MessagePending), now(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", mapConstraintErr(err))
	}
	return q.GetMessage(p.ID)
}

// GetMessage returns one message by id.
func (q *Queries) GetMessage(id string) (*domain.Message, error) {
	var m messageModel
	err := q.db.QueryRow(
		`SELECT id, from_agent_id, to_agent_id, body, status, created_at, delivered_at
		 FROM messages WHERE id = ?`, id,
	).Scan(&m.ID, &m.FromAgentID, &m.ToAgentID, &m.Body, &m.Status, &m.CreatedAt, &m.DeliveredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}

// ListOutbox returns the messages a sender has written, newest first.
func (q *Queries) ListOutbox(fromAgentID string) ([]*domain.Message, error) {
	return q.listMessages(
		`SELECT id, from_agent_id, to_agent_id, body, status, created_at, delivered_at
		 FROM messages WHERE from_agent_id = ? ORDER BY created_at DESC, rowid DESC`,
		fromAgentID)
}

// ListPendingMessages returns all undelivered messages, oldest first so
// delivery preserves send order.
func (q *Queries) ListPendingMessages() ([]*domain.Message, error) {
	return q.listMessages(
		`SELECT id, from_agent_id, to_agent_id, body, status, created_at, delivered_at
		 FROM messages WHERE status = ? ORDER BY created_at ASC, rowid ASC`,
		string(domain.MessagePending))
}

func (q *Queries) listMessages(query string, args ...any) ([]*domain.Message, error) {
	rows, err := q.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		var m messageModel
		if err := rows.Scan(&m.ID, &m.FromAgentID, &m.ToAgentID, &m.Body,
			&m.Status, &m.CreatedAt, &m.DeliveredAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m.toDomain())
	}
	return msgs, rows.Err()
}

// MarkMessageDelivered stamps a message delivered.
func (q *Queries) MarkMessageDelivered(id string) error {
	res, err := q.db.Exec(
		`UPDATE messages SET status = ?, delivered_at = ? WHERE id = ? AND status = ?`,
		string(domain.MessageDelivered), now(), id, string(domain.MessagePending),
	)
	if err != nil {
		return fmt.Errorf("marking message %s delivered: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
