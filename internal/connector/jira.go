package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hivectl/hive/internal/config"
	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/log"
)

func init() {
	RegisterPM("jira", func(cfg config.PMConfig) (PM, error) {
		return NewJira(cfg)
	})
}

// Jira implements PM against the Jira Cloud REST API (v2 issue endpoints
// plus the agile API for sprints). Auth is basic email:token.
type Jira struct {
	base    string
	email   string
	token   string
	project string
	boardID string
	client  *http.Client
}

// NewJira validates the configuration and builds the adapter.
func NewJira(cfg config.PMConfig) (*Jira, error) {
	if cfg.BaseURL == "" || cfg.ProjectKey == "" {
		return nil, fmt.Errorf("jira: base_url and project_key are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Jira{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		email:   cfg.Email,
		token:   cfg.Token,
		project: cfg.ProjectKey,
		boardID: cfg.BoardID,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (j *Jira) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, j.base+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(j.email, j.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: jira %s %s: %v", domain.ErrExternalFailure, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: jira %s %s: %s: %s",
			domain.ErrExternalFailure, method, path, resp.Status, strings.TrimSpace(string(snippet)))
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string          `json:"summary"`
		Description json.RawMessage `json:"description"`
		Status      struct {
			Name string `json:"name"`
		} `json:"status"`
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
	} `json:"fields"`
}

func (i *jiraIssue) toIssue() Issue {
	return Issue{
		Key:         i.Key,
		Summary:     i.Fields.Summary,
		Description: flattenDescription(i.Fields.Description),
		Status:      i.Fields.Status.Name,
		Type:        i.Fields.IssueType.Name,
	}
}

// flattenDescription accepts both plain-string (v2) and document (v3)
// description payloads and returns plain text.
func flattenDescription(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var doc struct {
		Content []struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range doc.Content {
		for _, c := range p.Content {
			b.WriteString(c.Text)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// GetIssue fetches one issue by key.
func (j *Jira) GetIssue(ctx context.Context, key string) (*Issue, error) {
	var raw jiraIssue
	if err := j.do(ctx, http.MethodGet, "/rest/api/2/issue/"+key, nil, &raw); err != nil {
		return nil, err
	}
	issue := raw.toIssue()
	return &issue, nil
}

// SearchIssues runs a JQL query.
func (j *Jira) SearchIssues(ctx context.Context, query string) ([]Issue, error) {
	var out struct {
		Issues []jiraIssue `json:"issues"`
	}
	path := "/rest/api/2/search?jql=" + url.QueryEscape(query)
	if err := j.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	issues := make([]Issue, 0, len(out.Issues))
	for i := range out.Issues {
		issues = append(issues, out.Issues[i].toIssue())
	}
	return issues, nil
}

// FetchEpic fetches an epic and its child issues.
func (j *Jira) FetchEpic(ctx context.Context, key string) (*Epic, error) {
	issue, err := j.GetIssue(ctx, key)
	if err != nil {
		return nil, err
	}
	children, err := j.SearchIssues(ctx, fmt.Sprintf(`parent = %q ORDER BY created ASC`, key))
	if err != nil {
		return nil, err
	}
	return &Epic{
		Key:         issue.Key,
		Summary:     issue.Summary,
		Description: issue.Description,
		Issues:      children,
	}, nil
}

type createIssueResponse struct {
	Key string `json:"key"`
}

// CreateEpic creates an epic in the configured project.
func (j *Jira) CreateEpic(ctx context.Context, summary, description string) (string, error) {
	body := map[string]any{
		"fields": map[string]any{
			"project":     map[string]string{"key": j.project},
			"issuetype":   map[string]string{"name": "Epic"},
			"summary":     summary,
			"description": description,
		},
	}
	var out createIssueResponse
	if err := j.do(ctx, http.MethodPost, "/rest/api/2/issue", body, &out); err != nil {
		return "", err
	}
	return out.Key, nil
}

// CreateStory creates a story under an epic.
func (j *Jira) CreateStory(ctx context.Context, epicKey, summary, description string, points int) (string, error) {
	fields := map[string]any{
		"project":     map[string]string{"key": j.project},
		"issuetype":   map[string]string{"name": "Story"},
		"summary":     summary,
		"description": description,
	}
	if epicKey != "" {
		fields["parent"] = map[string]string{"key": epicKey}
	}
	var out createIssueResponse
	if err := j.do(ctx, http.MethodPost, "/rest/api/2/issue", map[string]any{"fields": fields}, &out); err != nil {
		return "", err
	}
	_ = points // story-point custom field ids vary per site; set via board config
	return out.Key, nil
}

// CreateSubtask creates a subtask under a story.
func (j *Jira) CreateSubtask(ctx context.Context, parentKey, summary string) (string, error) {
	body := map[string]any{
		"fields": map[string]any{
			"project":   map[string]string{"key": j.project},
			"issuetype": map[string]string{"name": "Sub-task"},
			"parent":    map[string]string{"key": parentKey},
			"summary":   summary,
		},
	}
	var out createIssueResponse
	if err := j.do(ctx, http.MethodPost, "/rest/api/2/issue", body, &out); err != nil {
		return "", err
	}
	return out.Key, nil
}

// TransitionStory moves an issue to the named board column.
func (j *Jira) TransitionStory(ctx context.Context, issueKey, targetStatus string) error {
	return j.transition(ctx, issueKey, targetStatus)
}

// TransitionSubtask moves a subtask to the named board column.
func (j *Jira) TransitionSubtask(ctx context.Context, subtaskKey, targetStatus string) error {
	return j.transition(ctx, subtaskKey, targetStatus)
}

// transition resolves the transition id whose target matches targetStatus,
// then applies it. Jira transitions are per-issue and per-workflow, so the
// lookup cannot be cached.
func (j *Jira) transition(ctx context.Context, key, targetStatus string) error {
	var out struct {
		Transitions []struct {
			ID string `json:"id"`
			To struct {
				Name string `json:"name"`
			} `json:"to"`
		} `json:"transitions"`
	}
	if err := j.do(ctx, http.MethodGet, "/rest/api/2/issue/"+key+"/transitions", nil, &out); err != nil {
		return err
	}

	for _, t := range out.Transitions {
		if strings.EqualFold(t.To.Name, targetStatus) {
			return j.do(ctx, http.MethodPost, "/rest/api/2/issue/"+key+"/transitions",
				map[string]any{"transition": map[string]string{"id": t.ID}}, nil)
		}
	}
	log.Warn(log.CatPM, "no transition to target status", "issue", key, "target", targetStatus)
	return nil
}

// PostComment adds a comment to an issue.
func (j *Jira) PostComment(ctx context.Context, issueKey, body string) error {
	return j.do(ctx, http.MethodPost, "/rest/api/2/issue/"+issueKey+"/comment",
		map[string]string{"body": body}, nil)
}

// PostSignOffReport posts the sign-off verdict as an epic comment.
func (j *Jira) PostSignOffReport(ctx context.Context, epicKey, report string) error {
	return j.PostComment(ctx, epicKey, report)
}

// AddToActiveSprint moves an issue into the board's active sprint.
func (j *Jira) AddToActiveSprint(ctx context.Context, issueKey string) error {
	if j.boardID == "" {
		return fmt.Errorf("jira: board_id not configured")
	}
	var sprints struct {
		Values []struct {
			ID int `json:"id"`
		} `json:"values"`
	}
	path := "/rest/agile/1.0/board/" + j.boardID + "/sprint?state=active"
	if err := j.do(ctx, http.MethodGet, path, nil, &sprints); err != nil {
		return err
	}
	if len(sprints.Values) == 0 {
		return fmt.Errorf("%w: jira: board %s has no active sprint", domain.ErrExternalFailure, j.boardID)
	}
	return j.do(ctx, http.MethodPost,
		fmt.Sprintf("/rest/agile/1.0/sprint/%d/issue", sprints.Values[0].ID),
		map[string]any{"issues": []string{issueKey}}, nil)
}

var _ PM = (*Jira)(nil)
