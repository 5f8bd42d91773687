package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/hivectl/hive/internal/domain"
)

const storyColumns = `id, requirement_id, team_id, title, description, acceptance_criteria,
	complexity, story_points, assigned_agent_id, branch, status, external_issue_key,
	external_subtask_key, external_project_key, external_provider, in_sprint,
	created_at, updated_at`

// CreateStoryParams describes a story produced by planning.
type CreateStoryParams struct {
	ID                 string
	RequirementID      string
	TeamID             string
	Title              string
	Description        string
	AcceptanceCriteria []string
	Complexity         int
	StoryPoints        int
	DependsOn          []string
	Status             domain.StoryStatus // defaults to draft
}

// CreateStory inserts a story and its dependency edges. Dependencies are
// rejected when they would form a cycle.
func (q *Queries) CreateStory(p CreateStoryParams) (*domain.Story, error) {
	if p.Complexity < 1 {
		p.Complexity = 1
	}
	status := p.Status
	if status == "" {
		status = domain.StoryDraft
	}
	ts := now()
	_, err := q.db.Exec(
		`INSERT INTO stories (id, requirement_id, team_id, title, description, acceptance_criteria,
		   complexity, story_points, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.RequirementID, p.TeamID, p.Title, p.Description,
		marshalCriteria(p.AcceptanceCriteria), p.Complexity, p.StoryPoints,
		string(status), ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("creating story %s: %w", p.ID, mapConstraintErr(err))
	}
	for _, dep := range p.DependsOn {
		if err := q.AddStoryDependency(p.ID, dep); err != nil {
			return nil, err
		}
	}
	return q.GetStory(p.ID)
}

// GetStory fetches a story with its dependency list.
func (q *Queries) GetStory(id string) (*domain.Story, error) {
	s, err := scanStory(q.db.QueryRow(`SELECT `+storyColumns+` FROM stories WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	s.DependsOn, err = q.storyDependencies(id)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListStoriesByStatus returns stories in any of the given statuses, oldest
// first. Dependency lists are populated.
func (q *Queries) ListStoriesByStatus(statuses ...domain.StoryStatus) ([]*domain.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE status IN (` +
		placeholders(len(statuses)) + `) ORDER BY created_at, id`
	args := make([]any, 0, len(statuses))
	for _, s := range statuses {
		args = append(args, string(s))
	}
	return q.queryStories(query, args...)
}

// ListStoriesByRequirement returns a requirement's stories.
func (q *Queries) ListStoriesByRequirement(requirementID string) ([]*domain.Story, error) {
	return q.queryStories(
		`SELECT `+storyColumns+` FROM stories WHERE requirement_id = ? ORDER BY created_at, id`,
		requirementID)
}

// ListStoriesByTeam returns a team's stories, optionally filtered by status.
func (q *Queries) ListStoriesByTeam(teamID string, statuses ...domain.StoryStatus) ([]*domain.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE team_id = ?`
	args := []any{teamID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY created_at, id`
	return q.queryStories(query, args...)
}

// ListStoriesByAgent returns the stories currently assigned to an agent.
func (q *Queries) ListStoriesByAgent(agentID string) ([]*domain.Story, error) {
	return q.queryStories(
		`SELECT `+storyColumns+` FROM stories WHERE assigned_agent_id = ? ORDER BY created_at, id`,
		agentID)
}

// UpdateStoryStatusParams carries a lifecycle move.
type UpdateStoryStatusParams struct {
	ID       string
	To       domain.StoryStatus
	Override bool // permit backward moves outside the sanctioned set
}

// UpdateStoryStatus moves a story along its lifecycle. Backward moves are
// rejected unless sanctioned (qa to qa_failed) or Override is set. A move to
// a non-active status clears the assignment.
func (q *Queries) UpdateStoryStatus(p UpdateStoryStatusParams) (*domain.Story, error) {
	s, err := q.GetStory(p.ID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateStoryTransition(s.Status, p.To, p.Override); err != nil {
		return nil, fmt.Errorf("story %s: %w", p.ID, err)
	}

	clearAssignee := p.To == domain.StoryMerged || p.To == domain.StoryDraft
	if clearAssignee {
		_, err = q.db.Exec(
			`UPDATE stories SET status = ?, assigned_agent_id = NULL, updated_at = ? WHERE id = ?`,
			string(p.To), now(), p.ID)
	} else {
		_, err = q.db.Exec(
			`UPDATE stories SET status = ?, updated_at = ? WHERE id = ?`,
			string(p.To), now(), p.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("updating story %s: %w", p.ID, err)
	}
	return q.GetStory(p.ID)
}

// ClaimStory atomically assigns a planned, unassigned story to an agent and
// moves it to in_progress. Returns false when another writer claimed it
// first; that is the duplicate-assignment guard, not an error.
func (q *Queries) ClaimStory(storyID, agentID string) (bool, error) {
	res, err := q.db.Exec(
		`UPDATE stories SET assigned_agent_id = ?, status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND assigned_agent_id IS NULL`,
		agentID, string(domain.StoryInProgress), now(),
		storyID, string(domain.StoryPlanned),
	)
	if err != nil {
		return false, fmt.Errorf("claiming story %s: %w", storyID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClearStoryAssignment detaches a story from its agent without changing
// status. Used when an agent dies mid-flight and the story returns to the
// pool via a separate status move.
func (q *Queries) ClearStoryAssignment(storyID string) error {
	res, err := q.db.Exec(
		`UPDATE stories SET assigned_agent_id = NULL, updated_at = ? WHERE id = ?`,
		now(), storyID)
	if err != nil {
		return fmt.Errorf("clearing assignment for %s: %w", storyID, err)
	}
	return requireRowAffected(res, "story")
}

// SetStoryBranch records the working branch an agent created for the story.
func (q *Queries) SetStoryBranch(storyID, branch string) error {
	res, err := q.db.Exec(
		`UPDATE stories SET branch = ?, updated_at = ? WHERE id = ?`,
		nullable(branch), now(), storyID)
	if err != nil {
		return fmt.Errorf("setting branch for %s: %w", storyID, err)
	}
	return requireRowAffected(res, "story")
}

// SetStoryExternalParams links a story to its PM-provider identity.
type SetStoryExternalParams struct {
	StoryID    string
	IssueKey   string
	SubtaskKey string
	ProjectKey string
	Provider   string
	InSprint   bool
}

// SetStoryExternal records the story's external PM identity after a sync.
func (q *Queries) SetStoryExternal(p SetStoryExternalParams) error {
	res, err := q.db.Exec(
		`UPDATE stories SET external_issue_key = ?, external_subtask_key = ?,
		   external_project_key = ?, external_provider = ?, in_sprint = ?, updated_at = ?
		 WHERE id = ?`,
		nullable(p.IssueKey), nullable(p.SubtaskKey), nullable(p.ProjectKey),
		nullable(p.Provider), p.InSprint, now(), p.StoryID)
	if err != nil {
		return fmt.Errorf("setting external identity for %s: %w", p.StoryID, err)
	}
	return requireRowAffected(res, "story")
}

// AddStoryDependency records that story depends on dep. Self-dependencies and
// cycles are rejected with domain.ErrInvalidState.
func (q *Queries) AddStoryDependency(storyID, dependsOnID string) error {
	if storyID == dependsOnID {
		return fmt.Errorf("story %s cannot depend on itself: %w", storyID, domain.ErrInvalidState)
	}
	reachable, err := q.dependencyReaches(dependsOnID, storyID)
	if err != nil {
		return err
	}
	if reachable {
		return fmt.Errorf("dependency %s -> %s forms a cycle: %w", storyID, dependsOnID, domain.ErrInvalidState)
	}
	if _, err := q.db.Exec(
		`INSERT OR IGNORE INTO story_dependencies (story_id, depends_on_id) VALUES (?, ?)`,
		storyID, dependsOnID,
	); err != nil {
		return fmt.Errorf("adding dependency: %w", mapConstraintErr(err))
	}
	return nil
}

// UnmergedDependencies returns the ids of a story's dependencies that have not
// reached merged. Empty means the story is eligible for assignment.
func (q *Queries) UnmergedDependencies(storyID string) ([]string, error) {
	rows, err := q.db.Query(
		`SELECT d.depends_on_id FROM story_dependencies d
		 JOIN stories s ON s.id = d.depends_on_id
		 WHERE d.story_id = ? AND s.status != ?
		 ORDER BY d.depends_on_id`,
		storyID, string(domain.StoryMerged))
	if err != nil {
		return nil, fmt.Errorf("checking dependencies for %s: %w", storyID, err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// storyDependencies returns all dependency ids for a story.
func (q *Queries) storyDependencies(storyID string) ([]string, error) {
	rows, err := q.db.Query(
		`SELECT depends_on_id FROM story_dependencies WHERE story_id = ? ORDER BY depends_on_id`,
		storyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// dependencyReaches walks the dependency graph from start looking for target.
func (q *Queries) dependencyReaches(start, target string) (bool, error) {
	seen := map[string]bool{}
	frontier := []string{start}
	for len(frontier) > 0 {
		id := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if id == target {
			return true, nil
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		deps, err := q.storyDependencies(id)
		if err != nil {
			return false, err
		}
		frontier = append(frontier, deps...)
	}
	return false, nil
}

func (q *Queries) queryStories(query string, args ...any) ([]*domain.Story, error) {
	rows, err := q.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying stories: %w", err)
	}
	stories, err := collectStories(rows)
	if err != nil {
		return nil, err
	}
	for _, s := range stories {
		s.DependsOn, err = q.storyDependencies(s.ID)
		if err != nil {
			return nil, err
		}
	}
	return stories, nil
}

func collectStories(rows *sql.Rows) ([]*domain.Story, error) {
	defer rows.Close()
	var stories []*domain.Story
	for rows.Next() {
		var m storyModel
		if err := rows.Scan(&m.ID, &m.RequirementID, &m.TeamID, &m.Title, &m.Description,
			&m.AcceptanceCriteria, &m.Complexity, &m.StoryPoints, &m.AssignedAgentID,
			&m.Branch, &m.Status, &m.ExternalIssueKey, &m.ExternalSubtaskKey,
			&m.ExternalProjectKey, &m.ExternalProvider, &m.InSprint,
			&m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		stories = append(stories, m.toDomain())
	}
	return stories, rows.Err()
}

func scanStory(row *sql.Row) (*domain.Story, error) {
	var m storyModel
	err := row.Scan(&m.ID, &m.RequirementID, &m.TeamID, &m.Title, &m.Description,
		&m.AcceptanceCriteria, &m.Complexity, &m.StoryPoints, &m.AssignedAgentID,
		&m.Branch, &m.Status, &m.ExternalIssueKey, &m.ExternalSubtaskKey,
		&m.ExternalProjectKey, &m.ExternalProvider, &m.InSprint,
		&m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("story: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
