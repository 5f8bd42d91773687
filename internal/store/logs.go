package store

import (
	"fmt"
	"time"

	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/log"
)

// AppendLogParams describes one append-only event record.
type AppendLogParams struct {
	AgentID   string
	StoryID   string
	EventType domain.EventType
	Message   string
	Metadata  map[string]string
}

// AppendLog inserts an event record. Failures are logged and swallowed so a
// log write never fails the enclosing business transaction.
func (q *Queries) AppendLog(p AppendLogParams) {
	_, err := q.db.Exec(
		`INSERT INTO agent_logs (agent_id, story_id, event_type, message, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.AgentID, nullable(p.StoryID), string(p.EventType), p.Message,
		marshalMetadata(p.Metadata), now(),
	)
	if err != nil {
		log.Warn(log.CatStore, "event log append failed",
			"event", string(p.EventType), "agent", p.AgentID, "error", err)
	}
}

// ListLogsParams filters ListLogs. Zero values mean no filter.
type ListLogsParams struct {
	AgentID   string
	StoryID   string
	EventType domain.EventType
	Since     time.Time
	Limit     int
}

// ListLogs returns matching event records, newest first.
func (q *Queries) ListLogs(p ListLogsParams) ([]*domain.LogEntry, error) {
	query := `SELECT id, agent_id, story_id, event_type, message, metadata, created_at
		FROM agent_logs WHERE 1=1`
	var args []any
	if p.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, p.AgentID)
	}
	if p.StoryID != "" {
		query += ` AND story_id = ?`
		args = append(args, p.StoryID)
	}
	if p.EventType != "" {
		query += ` AND event_type = ?`
		args = append(args, string(p.EventType))
	}
	if !p.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, p.Since.UTC().Unix())
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if p.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, p.Limit)
	}

	rows, err := q.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing logs: %w", err)
	}
	defer rows.Close()

	var entries []*domain.LogEntry
	for rows.Next() {
		var m logModel
		if err := rows.Scan(&m.ID, &m.AgentID, &m.StoryID, &m.EventType,
			&m.Message, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, m.toDomain())
	}
	return entries, rows.Err()
}

// CountLogs counts events matching the filter since a cutoff. Used for nudge
// escalation thresholds.
func (q *Queries) CountLogs(p ListLogsParams) (int, error) {
	query := `SELECT COUNT(*) FROM agent_logs WHERE 1=1`
	var args []any
	if p.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, p.AgentID)
	}
	if p.StoryID != "" {
		query += ` AND story_id = ?`
		args = append(args, p.StoryID)
	}
	if p.EventType != "" {
		query += ` AND event_type = ?`
		args = append(args, string(p.EventType))
	}
	if !p.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, p.Since.UTC().Unix())
	}

	var n int
	if err := q.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting logs: %w", err)
	}
	return n, nil
}
