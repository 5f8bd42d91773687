package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/hivectl/hive/internal/domain"
)

const prColumns = `id, story_id, team_id, branch, external_number, external_url,
	status, submitter_agent_id, reviewer_agent_id, review_notes, created_at, updated_at`

// CreatePullRequestParams describes a PR submission.
type CreatePullRequestParams struct {
	ID               string
	StoryID          string
	TeamID           string
	Branch           string
	SubmitterAgentID string
}

// CreatePullRequest queues a PR. Any open PR for the same story is closed
// first so exactly one PR per story is ever open.
func (q *Queries) CreatePullRequest(p CreatePullRequestParams) (*domain.PullRequest, error) {
	ts := now()
	if _, err := q.db.Exec(
		`UPDATE pull_requests SET status = ?, updated_at = ?
		 WHERE story_id = ? AND status IN (?, ?)`,
		string(domain.PRClosed), ts, p.StoryID,
		string(domain.PRQueued), string(domain.PRReviewing),
	); err != nil {
		return nil, fmt.Errorf("closing superseded PRs for %s: %w", p.StoryID, err)
	}

	_, err := q.db.Exec(
		`INSERT INTO pull_requests (id, story_id, team_id, branch, status, submitter_agent_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.StoryID, p.TeamID, p.Branch, string(domain.PRQueued),
		nullable(p.SubmitterAgentID), ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("creating PR %s: %w", p.ID, mapConstraintErr(err))
	}
	return q.GetPullRequest(p.ID)
}

// GetPullRequest fetches a PR by id.
func (q *Queries) GetPullRequest(id string) (*domain.PullRequest, error) {
	return scanPR(q.db.QueryRow(`SELECT ` + prColumns + ` FROM pull_requests WHERE id = ?`, id))
}

// GetOpenPRForStory returns the story's open (queued or reviewing) PR.
func (q *Queries) GetOpenPRForStory(storyID string) (*domain.PullRequest, error) {
	return scanPR(q.db.QueryRow(
		`SELECT `+prColumns+` FROM pull_requests
		 WHERE story_id = ? AND status IN (?, ?)
		 ORDER BY created_at DESC LIMIT 1`,
		storyID, string(domain.PRQueued), string(domain.PRReviewing)))
}

// ListPullRequests returns a team's PRs in queue order (FIFO by creation),
// optionally filtered by status. Empty teamID means all teams.
func (q *Queries) ListPullRequests(teamID string, statuses ...domain.PRStatus) ([]*domain.PullRequest, error) {
	query := `SELECT ` + prColumns + ` FROM pull_requests WHERE 1=1`
	var args []any
	if teamID != "" {
		query += ` AND team_id = ?`
		args = append(args, teamID)
	}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := q.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing PRs: %w", err)
	}
	defer rows.Close()

	var prs []*domain.PullRequest
	for rows.Next() {
		pr, err := scanPRRows(rows)
		if err != nil {
			return nil, err
		}
		prs = append(prs, pr)
	}
	return prs, rows.Err()
}

// OldestQueuedPR returns the head of a team's merge queue, or ErrNotFound
// when the queue is empty.
func (q *Queries) OldestQueuedPR(teamID string) (*domain.PullRequest, error) {
	return scanPR(q.db.QueryRow(
		`SELECT `+prColumns+` FROM pull_requests
		 WHERE team_id = ? AND status = ?
		 ORDER BY created_at, id LIMIT 1`,
		teamID, string(domain.PRQueued)))
}

// UpdatePRStatusParams carries a PR lifecycle move.
type UpdatePRStatusParams struct {
	ID              string
	To              domain.PRStatus
	ReviewerAgentID string // set when moving to reviewing, preserved otherwise
	ReviewNotes     string
}

// UpdatePRStatus moves a PR along its lifecycle, enforcing the transition
// table. Moving back from reviewing to queued clears the reviewer (the
// orphaned-review reset).
func (q *Queries) UpdatePRStatus(p UpdatePRStatusParams) (*domain.PullRequest, error) {
	pr, err := q.GetPullRequest(p.ID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidatePRTransition(pr.Status, p.To); err != nil {
		return nil, fmt.Errorf("pr %s: %w", p.ID, err)
	}

	reviewer := nullable(p.ReviewerAgentID)
	if p.ReviewerAgentID == "" && p.To != domain.PRQueued {
		reviewer = nullable(pr.ReviewerAgentID)
	}
	notes := nullable(p.ReviewNotes)
	if p.ReviewNotes == "" {
		notes = nullable(pr.ReviewNotes)
	}

	if _, err := q.db.Exec(
		`UPDATE pull_requests SET status = ?, reviewer_agent_id = ?, review_notes = ?, updated_at = ?
		 WHERE id = ?`,
		string(p.To), reviewer, notes, now(), p.ID,
	); err != nil {
		return nil, fmt.Errorf("updating PR %s: %w", p.ID, err)
	}
	return q.GetPullRequest(p.ID)
}

// SetPRExternal records the VCS host's PR number and URL.
func (q *Queries) SetPRExternal(id string, number int, url string) error {
	res, err := q.db.Exec(
		`UPDATE pull_requests SET external_number = ?, external_url = ?, updated_at = ? WHERE id = ?`,
		number, nullable(url), now(), id)
	if err != nil {
		return fmt.Errorf("setting external PR identity for %s: %w", id, err)
	}
	return requireRowAffected(res, "pull request")
}

func scanPR(row *sql.Row) (*domain.PullRequest, error) {
	var m pullRequestModel
	err := row.Scan(&m.ID, &m.StoryID, &m.TeamID, &m.Branch, &m.ExternalNumber,
		&m.ExternalURL, &m.Status, &m.SubmitterAgentID, &m.ReviewerAgentID,
		&m.ReviewNotes, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pull request: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}

func scanPRRows(rows *sql.Rows) (*domain.PullRequest, error) {
	var m pullRequestModel
	if err := rows.Scan(&m.ID, &m.StoryID, &m.TeamID, &m.Branch, &m.ExternalNumber,
		&m.ExternalURL, &m.Status, &m.SubmitterAgentID, &m.ReviewerAgentID,
		&m.ReviewNotes, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}
