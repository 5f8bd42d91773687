package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/hivectl/hive/internal/domain"
)

// CreateTeamParams describes a new team registration.
type CreateTeamParams struct {
	ID       string
	Name     string
	RepoURL  string
	RepoPath string
}

// CreateTeam inserts a team. Team names are unique; a duplicate name returns
// domain.ErrConflict.
func (q *Queries) CreateTeam(p CreateTeamParams) (*domain.Team, error) {
	ts := now()
	_, err := q.db.Exec(
		`INSERT INTO teams (id, name, repo_url, repo_path, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.RepoURL, p.RepoPath, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("creating team %s: %w", p.Name, mapConstraintErr(err))
	}
	return q.GetTeam(p.ID)
}

// GetTeam fetches a team by id.
func (q *Queries) GetTeam(id string) (*domain.Team, error) {
	return q.scanTeam(q.db.QueryRow(
		`SELECT id, name, repo_url, repo_path, created_at FROM teams WHERE id = ?`, id))
}

// GetTeamByName fetches a team by its unique name.
func (q *Queries) GetTeamByName(name string) (*domain.Team, error) {
	return q.scanTeam(q.db.QueryRow(
		`SELECT id, name, repo_url, repo_path, created_at FROM teams WHERE name = ?`, name))
}

// ListTeams returns all teams ordered by creation time.
func (q *Queries) ListTeams() ([]*domain.Team, error) {
	rows, err := q.db.Query(
		`SELECT id, name, repo_url, repo_path, created_at FROM teams ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	defer rows.Close()

	var teams []*domain.Team
	for rows.Next() {
		var m teamModel
		if err := rows.Scan(&m.ID, &m.Name, &m.RepoURL, &m.RepoPath, &m.CreatedAt); err != nil {
			return nil, err
		}
		teams = append(teams, m.toDomain())
	}
	return teams, rows.Err()
}

func (q *Queries) scanTeam(row *sql.Row) (*domain.Team, error) {
	var m teamModel
	err := row.Scan(&m.ID, &m.Name, &m.RepoURL, &m.RepoPath, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("team: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}
