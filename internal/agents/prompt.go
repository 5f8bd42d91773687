package agents

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/hivectl/hive/internal/domain"
)

//go:embed prompts/*.md
var promptFS embed.FS

// PromptData is the context rendered into a role's prompt template.
type PromptData struct {
	AgentID       string
	TeamName      string
	RepoPath      string
	FeatureBranch string
	TargetBranch  string

	// Story fields, empty for roles not bound to a single story at spawn.
	StoryID            string
	StoryTitle         string
	StoryDescription   string
	AcceptanceCriteria []string
	Branch             string

	// RequirementID is set for feature_test sign-off runs.
	RequirementID string
}

var promptTemplates = template.Must(template.New("prompts").Funcs(template.FuncMap{
	"join": strings.Join,
}).ParseFS(promptFS, "prompts/*.md"))

// RenderPrompt renders the spawn prompt for a role.
func RenderPrompt(role domain.AgentRole, data PromptData) (string, error) {
	if _, err := Spec(role); err != nil {
		return "", err
	}
	var b strings.Builder
	if err := promptTemplates.ExecuteTemplate(&b, string(role)+".md", data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", role, err)
	}
	return b.String(), nil
}
