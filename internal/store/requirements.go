package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/hivectl/hive/internal/domain"
)

const requirementColumns = `id, title, description, submitter, status, epic_key,
	feature_branch, target_branch, godmode, created_at, updated_at`

// CreateRequirementParams describes a newly submitted requirement.
type CreateRequirementParams struct {
	ID          string
	Title       string
	Description string
	Submitter   string
	EpicKey     string
	Godmode     bool
}

// CreateRequirement inserts a requirement in the pending state.
func (q *Queries) CreateRequirement(p CreateRequirementParams) (*domain.Requirement, error) {
	ts := now()
	_, err := q.db.Exec(
		`INSERT INTO requirements (id, title, description, submitter, status, epic_key, godmode, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Description, p.Submitter, string(domain.RequirementPending),
		nullable(p.EpicKey), p.Godmode, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("creating requirement %s: %w", p.ID, mapConstraintErr(err))
	}
	return q.GetRequirement(p.ID)
}

// GetRequirement fetches a requirement by id.
func (q *Queries) GetRequirement(id string) (*domain.Requirement, error) {
	return scanRequirement(q.db.QueryRow(
		`SELECT `+requirementColumns+` FROM requirements WHERE id = ?`, id))
}

// ListRequirements returns requirements, optionally filtered by status.
func (q *Queries) ListRequirements(statuses ...domain.RequirementStatus) ([]*domain.Requirement, error) {
	query := `SELECT ` + requirementColumns + ` FROM requirements`
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
		return nil, fmt.Errorf("listing requirements: %w", err)
	}
	defer rows.Close()

	var reqs []*domain.Requirement
	for rows.Next() {
		r, err := scanRequirementRows(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// UpdateRequirementStatus moves a requirement along its lifecycle, enforcing
// the transition table.
func (q *Queries) UpdateRequirementStatus(id string, to domain.RequirementStatus) (*domain.Requirement, error) {
	req, err := q.GetRequirement(id)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateRequirementTransition(req.Status, to); err != nil {
		return nil, err
	}
	if _, err := q.db.Exec(
		`UPDATE requirements SET status = ?, updated_at = ? WHERE id = ?`,
		string(to), now(), id,
	); err != nil {
		return nil, fmt.Errorf("updating requirement %s: %w", id, err)
	}
	return q.GetRequirement(id)
}

// SetRequirementBranches records the feature and target branches chosen during
// planning.
func (q *Queries) SetRequirementBranches(id, featureBranch, targetBranch string) error {
	res, err := q.db.Exec(
		`UPDATE requirements SET feature_branch = ?, target_branch = ?, updated_at = ? WHERE id = ?`,
		nullable(featureBranch), nullable(targetBranch), now(), id,
	)
	if err != nil {
		return fmt.Errorf("setting branches for %s: %w", id, err)
	}
	return requireRowAffected(res, "requirement")
}

// SetRequirementEpicKey links a requirement to an external PM epic.
func (q *Queries) SetRequirementEpicKey(id, epicKey string) error {
	res, err := q.db.Exec(
		`UPDATE requirements SET epic_key = ?, updated_at = ? WHERE id = ?`,
		nullable(epicKey), now(), id,
	)
	if err != nil {
		return fmt.Errorf("setting epic key for %s: %w", id, err)
	}
	return requireRowAffected(res, "requirement")
}

func scanRequirement(row *sql.Row) (*domain.Requirement, error) {
	var m requirementModel
	err := row.Scan(&m.ID, &m.Title, &m.Description, &m.Submitter, &m.Status,
		&m.EpicKey, &m.FeatureBranch, &m.TargetBranch, &m.Godmode, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("requirement: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}

func scanRequirementRows(rows *sql.Rows) (*domain.Requirement, error) {
	var m requirementModel
	if err := rows.Scan(&m.ID, &m.Title, &m.Description, &m.Submitter, &m.Status,
		&m.EpicKey, &m.FeatureBranch, &m.TargetBranch, &m.Godmode, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}

func placeholders(n int) string {
	switch n {
	case 0:
		return ""
	case 1:
		return "?"
	}
	out := make([]byte, 0, n*3-2)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',', ' ')
		}
		out = append(out, '?')
	}
	return string(out)
}

func requireRowAffected(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", entity, domain.ErrNotFound)
	}
	return nil
}
