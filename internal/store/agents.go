package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hivectl/hive/internal/domain"
)

const agentColumns = `id, role, team_id, session_name, cli_tool, status,
	current_story_id, memory_path, last_seen, created_at`

// CreateAgentParams describes a newly spawned agent row.
type CreateAgentParams struct {
	ID          string
	Role        domain.AgentRole
	TeamID      string
	SessionName string
	CLITool     domain.CLIFlavour
	MemoryPath  string
}

// CreateAgent inserts an agent in the idle state with last_seen set to now.
func (q *Queries) CreateAgent(p CreateAgentParams) (*domain.Agent, error) {
	ts := now()
	_, err := q.db.Exec(
		`INSERT INTO agents (id, role, team_id, session_name, cli_tool, status, memory_path, last_seen, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.Role), nullable(p.TeamID), nullable(p.SessionName),
		string(p.CLITool), string(domain.AgentIdle), nullable(p.MemoryPath), ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("creating agent %s: %w", p.ID, mapConstraintErr(err))
	}
	return q.GetAgent(p.ID)
}

// GetAgent fetches an agent by id.
func (q *Queries) GetAgent(id string) (*domain.Agent, error) {
	return scanAgent(q.db.QueryRow(`SELECT ` + agentColumns + ` FROM agents WHERE id = ?`, id))
}

// GetAgentBySession fetches the live agent owning a tmux session name.
func (q *Queries) GetAgentBySession(sessionName string) (*domain.Agent, error) {
	return scanAgent(q.db.QueryRow(
		`SELECT `+agentColumns+` FROM agents WHERE session_name = ? AND status != ?`,
		sessionName, string(domain.AgentTerminated)))
}

// ListAgentsParams filters ListAgents. Zero values mean no filter.
type ListAgentsParams struct {
	TeamID    string
	Role      domain.AgentRole
	Status    domain.AgentStatus
	AliveOnly bool
}

// ListAgents returns agents matching the filter, idle first then oldest
// last_seen. That ordering is the selection preference for assignment.
func (q *Queries) ListAgents(p ListAgentsParams) ([]*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE 1=1`
	var args []any
	if p.TeamID != "" {
		query += ` AND team_id = ?`
		args = append(args, p.TeamID)
	}
	if p.Role != "" {
		query += ` AND role = ?`
		args = append(args, string(p.Role))
	}
	if p.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(p.Status))
	}
	if p.AliveOnly {
		query += ` AND status != ?`
		args = append(args, string(domain.AgentTerminated))
	}
	query += ` ORDER BY CASE status WHEN 'idle' THEN 0 ELSE 1 END, last_seen, id`

	rows, err := q.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var agents []*domain.Agent
	for rows.Next() {
		a, err := scanAgentRows(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// CountAliveAgents returns the number of non-terminated agents for a team and
// role, the number CheckScaling compares against caps.
func (q *Queries) CountAliveAgents(teamID string, role domain.AgentRole) (int, error) {
	var n int
	err := q.db.QueryRow(
		`SELECT COUNT(*) FROM agents WHERE team_id = ? AND role = ? AND status != ?`,
		teamID, string(role), string(domain.AgentTerminated),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting agents: %w", err)
	}
	return n, nil
}

// UpdateAgentStatus moves an agent between idle/working/blocked/terminated and
// optionally points it at a story (empty clears).
func (q *Queries) UpdateAgentStatus(id string, status domain.AgentStatus, currentStoryID string) error {
	res, err := q.db.Exec(
		`UPDATE agents SET status = ?, current_story_id = ?, last_seen = ? WHERE id = ?`,
		string(status), nullable(currentStoryID), now(), id)
	if err != nil {
		return fmt.Errorf("updating agent %s: %w", id, err)
	}
	return requireRowAffected(res, "agent")
}

// TouchAgent refreshes last_seen, the liveness heartbeat.
func (q *Queries) TouchAgent(id string) error {
	res, err := q.db.Exec(`UPDATE agents SET last_seen = ? WHERE id = ?`, now(), id)
	if err != nil {
		return fmt.Errorf("touching agent %s: %w", id, err)
	}
	return requireRowAffected(res, "agent")
}

// SetAgentSession records (or clears) the tmux session backing an agent.
func (q *Queries) SetAgentSession(id, sessionName string) error {
	res, err := q.db.Exec(
		`UPDATE agents SET session_name = ?, last_seen = ? WHERE id = ?`,
		nullable(sessionName), now(), id)
	if err != nil {
		return fmt.Errorf("setting session for %s: %w", id, err)
	}
	return requireRowAffected(res, "agent")
}

// SetAgentMemoryPath records where the agent's memory snapshot lives.
func (q *Queries) SetAgentMemoryPath(id, memoryPath string) error {
	res, err := q.db.Exec(
		`UPDATE agents SET memory_path = ? WHERE id = ?`,
		nullable(memoryPath), id)
	if err != nil {
		return fmt.Errorf("setting memory path for %s: %w", id, err)
	}
	return requireRowAffected(res, "agent")
}

// TerminateAgent marks an agent terminated and detaches its story pointer.
// The story itself is recovered separately.
func (q *Queries) TerminateAgent(id string) error {
	res, err := q.db.Exec(
		`UPDATE agents SET status = ?, current_story_id = NULL, last_seen = ? WHERE id = ?`,
		string(domain.AgentTerminated), now(), id)
	if err != nil {
		return fmt.Errorf("terminating agent %s: %w", id, err)
	}
	return requireRowAffected(res, "agent")
}

// StaleAgents returns non-terminated agents whose last_seen is older than the
// threshold.
func (q *Queries) StaleAgents(olderThan time.Duration) ([]*domain.Agent, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Unix()
	rows, err := q.db.Query(
		`SELECT `+agentColumns+` FROM agents
		 WHERE status != ? AND (last_seen IS NULL OR last_seen < ?)
		 ORDER BY last_seen, id`,
		string(domain.AgentTerminated), cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing stale agents: %w", err)
	}
	defer rows.Close()

	var agents []*domain.Agent
	for rows.Next() {
		a, err := scanAgentRows(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func scanAgent(row *sql.Row) (*domain.Agent, error) {
	var m agentModel
	err := row.Scan(&m.ID, &m.Role, &m.TeamID, &m.SessionName, &m.CLITool,
		&m.Status, &m.CurrentStoryID, &m.MemoryPath, &m.LastSeen, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}

func scanAgentRows(rows *sql.Rows) (*domain.Agent, error) {
	var m agentModel
	if err := rows.Scan(&m.ID, &m.Role, &m.TeamID, &m.SessionName, &m.CLITool,
		&m.Status, &m.CurrentStoryID, &m.MemoryPath, &m.LastSeen, &m.CreatedAt); err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}
