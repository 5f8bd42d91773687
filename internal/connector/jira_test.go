package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivectl/hive/internal/config"
)

func newTestJira(t *testing.T, handler http.HandlerFunc) *Jira {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	j, err := NewJira(config.PMConfig{
		Provider: "jira", BaseURL: srv.URL, ProjectKey: "PROJ", BoardID: "9",
		Email: "bot@example.com", Token: "tok",
	})
	require.NoError(t, err)
	return j
}

func TestNewJira_RequiresBaseURLAndProject(t *testing.T) {
	_, err := NewJira(config.PMConfig{Provider: "jira"})
	assert.Error(t, err)
}

func TestJira_GetIssue(t *testing.T) {
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/2/issue/PROJ-7", r.URL.Path)
		user, _, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "bot@example.com", user)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"key": "PROJ-7",
			"fields": map[string]any{
				"summary":     "Refund endpoint",
				"description": "Add POST /refunds",
				"status":      map[string]string{"name": "In Progress"},
				"issuetype":   map[string]string{"name": "Story"},
			},
		})
	})

	issue, err := j.GetIssue(context.Background(), "PROJ-7")
	require.NoError(t, err)
	assert.Equal(t, "PROJ-7", issue.Key)
	assert.Equal(t, "Refund endpoint", issue.Summary)
	assert.Equal(t, "In Progress", issue.Status)
}

func TestJira_CreateStoryUnderEpic(t *testing.T) {
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body struct {
			Fields map[string]any `json:"fields"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"key": "PROJ-1"}, body.Fields["parent"])
		assert.Equal(t, map[string]any{"name": "Story"}, body.Fields["issuetype"])

		_ = json.NewEncoder(w).Encode(map[string]string{"key": "PROJ-8"})
	})

	key, err := j.CreateStory(context.Background(), "PROJ-1", "Refund endpoint", "desc", 3)
	require.NoError(t, err)
	assert.Equal(t, "PROJ-8", key)
}

func TestJira_TransitionResolvesIDByTargetName(t *testing.T) {
	var applied string
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"transitions": []map[string]any{
					{"id": "11", "to": map[string]string{"name": "To Do"}},
					{"id": "31", "to": map[string]string{"name": "In Review"}},
				},
			})
		case http.MethodPost:
			var body struct {
				Transition struct {
					ID string `json:"id"`
				} `json:"transition"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			applied = body.Transition.ID
			w.WriteHeader(http.StatusNoContent)
		}
	})

	require.NoError(t, j.TransitionStory(context.Background(), "PROJ-7", "In Review"))
	assert.Equal(t, "31", applied)
}

func TestJira_TransitionUnknownTargetIsSkipped(t *testing.T) {
	posted := false
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posted = true
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"transitions": []map[string]any{}})
	})

	// No transition to the target exists: logged and skipped, not an error.
	require.NoError(t, j.TransitionStory(context.Background(), "PROJ-7", "Blocked"))
	assert.False(t, posted)
}

func TestJira_AddToActiveSprint(t *testing.T) {
	var movedTo string
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/agile/1.0/board/9/sprint":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"values": []map[string]any{{"id": 55}},
			})
		case "/rest/agile/1.0/sprint/55/issue":
			movedTo = r.URL.Path
			w.WriteHeader(http.StatusNoContent)
		}
	})

	require.NoError(t, j.AddToActiveSprint(context.Background(), "PROJ-7"))
	assert.Equal(t, "/rest/agile/1.0/sprint/55/issue", movedTo)
}

func TestJira_ErrorStatusSurfacesExternalFailure(t *testing.T) {
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := j.GetIssue(context.Background(), "PROJ-7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
