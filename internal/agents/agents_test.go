package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivectl/hive/internal/config"
	"github.com/hivectl/hive/internal/domain"
)

func TestRoleForComplexity(t *testing.T) {
	assert.Equal(t, domain.RoleJunior, RoleForComplexity(1))
	assert.Equal(t, domain.RoleJunior, RoleForComplexity(3))
	assert.Equal(t, domain.RoleIntermediate, RoleForComplexity(4))
	assert.Equal(t, domain.RoleIntermediate, RoleForComplexity(5))
	assert.Equal(t, domain.RoleSenior, RoleForComplexity(6))
	assert.Equal(t, domain.RoleSenior, RoleForComplexity(13))
}

func TestCanSubstitute_UpwardOnly(t *testing.T) {
	assert.True(t, CanSubstitute(domain.RoleSenior, domain.RoleJunior))
	assert.True(t, CanSubstitute(domain.RoleIntermediate, domain.RoleJunior))
	assert.True(t, CanSubstitute(domain.RoleSenior, domain.RoleSenior))

	assert.False(t, CanSubstitute(domain.RoleJunior, domain.RoleSenior))
	assert.False(t, CanSubstitute(domain.RoleJunior, domain.RoleIntermediate))
	assert.False(t, CanSubstitute(domain.RoleQA, domain.RoleJunior))
}

func TestSubstitutionLadder(t *testing.T) {
	assert.Equal(t,
		[]domain.AgentRole{domain.RoleJunior, domain.RoleIntermediate, domain.RoleSenior},
		SubstitutionLadder(domain.RoleJunior))
	assert.Equal(t,
		[]domain.AgentRole{domain.RoleSenior},
		SubstitutionLadder(domain.RoleSenior))
}

func TestRenderPrompt_Junior(t *testing.T) {
	out, err := RenderPrompt(domain.RoleJunior, PromptData{
		AgentID:            "junior-ab12cd",
		TeamName:           "payments",
		RepoPath:           "repos/payments",
		FeatureBranch:      "feature/REQ-x",
		StoryID:            "STORY-ab12cd",
		StoryTitle:         "Refund endpoint",
		StoryDescription:   "Add POST /refunds.",
		AcceptanceCriteria: []string{"returns 201", "idempotent by key"},
		Branch:             "story/STORY-ab12cd",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "junior-ab12cd")
	assert.Contains(t, out, "STORY-ab12cd: Refund endpoint")
	assert.Contains(t, out, "- returns 201")
	assert.Contains(t, out, "hive pr submit STORY-ab12cd")
	assert.Contains(t, out, "WORK COMPLETE: STORY-ab12cd")
}

func TestRenderPrompt_FeatureTestVerdictContract(t *testing.T) {
	out, err := RenderPrompt(domain.RoleFeatureTest, PromptData{
		AgentID:       "feature_test-ab12cd",
		TeamName:      "payments",
		RepoPath:      "repos/payments",
		RequirementID: "REQ-ab12cd",
		FeatureBranch: "feature/REQ-ab12cd",
		TargetBranch:  "main",
	})
	require.NoError(t, err)

	assert.Contains(t, out, `hive req verdict REQ-ab12cd "E2E tests PASSED"`)
	assert.Contains(t, out, `hive req verdict REQ-ab12cd "E2E tests FAILED:`)
	assert.Contains(t, out, "feature/REQ-ab12cd")
}

func TestRenderPrompt_UnknownRole(t *testing.T) {
	_, err := RenderPrompt(domain.AgentRole("wizard"), PromptData{})
	assert.Error(t, err)
}

func TestBuildArgv_Claude(t *testing.T) {
	cfg := config.CLIConfig{Tool: "claude", Model: "sonnet", PremiumModel: "opus"}

	args := BuildArgv(cfg, domain.FlavourClaude, false, "do the thing")
	assert.Equal(t, []string{
		"claude", "--dangerously-skip-permissions", "--model", "sonnet", "--", "do the thing",
	}, args)

	godmode := BuildArgv(cfg, domain.FlavourClaude, true, "do the thing")
	assert.Contains(t, godmode, "opus")
	assert.NotContains(t, godmode, "sonnet")
}

func TestBuildArgv_OtherFlavours(t *testing.T) {
	cfg := config.CLIConfig{Model: "gpt-5"}
	args := BuildArgv(cfg, domain.FlavourCodex, false, "p")
	assert.Equal(t, []string{"codex", "--full-auto", "--model", "gpt-5", "p"}, args)

	cfg = config.CLIConfig{Model: "gemini-2.5-pro"}
	args = BuildArgv(cfg, domain.FlavourGemini, false, "p")
	assert.Equal(t, []string{"gemini", "--yolo", "--model", "gemini-2.5-pro", "--prompt-interactive", "p"}, args)
}

func TestSessionEnv(t *testing.T) {
	env := SessionEnv("junior-ab12cd", "team-xyz", "/work/.hive")
	assert.Contains(t, env, "HIVE_AGENT_ID=junior-ab12cd")
	assert.Contains(t, env, "HIVE_TEAM_ID=team-xyz")
	assert.Contains(t, env, "HIVE_DIR=/work/.hive")

	env = SessionEnv("tech_lead-ab12cd", "", "/work/.hive")
	assert.NotContains(t, env, "HIVE_TEAM_ID=")
}
