package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hivectl/hive/internal/domain"
)

const escalationColumns = `id, story_id, from_agent_id, to_agent_id, reason,
	status, resolution, created_at, resolved_at`

// CreateEscalationParams describes a new escalation. Empty ToAgentID targets
// a human.
type CreateEscalationParams struct {
	ID          string
	StoryID     string
	FromAgentID string
	ToAgentID   string
	Reason      string
}

// CreateEscalation records a pending escalation.
func (q *Queries) CreateEscalation(p CreateEscalationParams) (*domain.Escalation, error) {
	_, err := q.db.Exec(
		`INSERT INTO escalations (id, story_id, from_agent_id, to_agent_id, reason, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, nullable(p.StoryID), nullable(p.FromAgentID), nullable(p.ToAgentID),
		p.Reason, string(domain.EscalationPending), now(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating escalation %s: %w", p.ID, mapConstraintErr(err))
	}
	return q.GetEscalation(p.ID)
}

// GetEscalation fetches an escalation by id.
func (q *Queries) GetEscalation(id string) (*domain.Escalation, error) {
	return scanEscalation(q.db.QueryRow(
		`SELECT ` + escalationColumns + ` FROM escalations WHERE id = ?`, id))
}

// ListEscalations returns escalations, optionally filtered by status.
func (q *Queries) ListEscalations(statuses ...domain.EscalationStatus) ([]*domain.Escalation, error) {
	query := `SELECT ` + escalationColumns + ` FROM escalations`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := q.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing escalations: %w", err)
	}
	defer rows.Close()

	var escs []*domain.Escalation
	for rows.Next() {
		e, err := scanEscalationRows(rows)
		if err != nil {
			return nil, err
		}
		escs = append(escs, e)
	}
	return escs, rows.Err()
}

// HasRecentPendingEscalation reports whether an agent already has a pending
// escalation newer than the window. The dedup guard before escalating again.
func (q *Queries) HasRecentPendingEscalation(fromAgentID string, window time.Duration) (bool, error) {
	cutoff := time.Now().UTC().Add(-window).Unix()
	var n int
	err := q.db.QueryRow(
		`SELECT COUNT(*) FROM escalations
		 WHERE from_agent_id = ? AND status = ? AND created_at >= ?`,
		fromAgentID, string(domain.EscalationPending), cutoff,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking recent escalations: %w", err)
	}
	return n > 0, nil
}

// ResolveEscalation marks a pending escalation resolved with a note.
func (q *Queries) ResolveEscalation(id, resolution string) (*domain.Escalation, error) {
	res, err := q.db.Exec(
		`UPDATE escalations SET status = ?, resolution = ?, resolved_at = ?
		 WHERE id = ? AND status = ?`,
		string(domain.EscalationResolved), nullable(resolution), now(),
		id, string(domain.EscalationPending),
	)
	if err != nil {
		return nil, fmt.Errorf("resolving escalation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Distinguish missing from already-resolved for callers.
		if _, getErr := q.GetEscalation(id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("escalation %s already resolved: %w", id, domain.ErrInvalidState)
	}
	return q.GetEscalation(id)
}

func scanEscalation(row *sql.Row) (*domain.Escalation, error) {
	var m escalationModel
	err := row.Scan(&m.ID, &m.StoryID, &m.FromAgentID, &m.ToAgentID, &m.Reason,
		&m.Status, &m.Resolution, &m.CreatedAt, &m.ResolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("escalation: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}

func scanEscalationRows(rows *sql.Rows) (*domain.Escalation, error) {
	var m escalationModel
	if err := rows.Scan(&m.ID, &m.StoryID, &m.FromAgentID, &m.ToAgentID, &m.Reason,
		&m.Status, &m.Resolution, &m.CreatedAt, &m.ResolvedAt); err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}
