package agents

import (
	"github.com/hivectl/hive/internal/config"
	"github.com/hivectl/hive/internal/domain"
)

// BuildArgv constructs the command line that a worker session runs. The
// prompt is passed positionally after "--" so no flag can consume it.
func BuildArgv(cfg config.CLIConfig, flavour domain.CLIFlavour, godmode bool, prompt string) []string {
	model := cfg.Model
	if godmode && cfg.PremiumModel != "" {
		model = cfg.PremiumModel
	}

	var args []string
	switch flavour {
	case domain.FlavourCodex:
		args = []string{"codex", "--full-auto"}
		if model != "" {
			args = append(args, "--model", model)
		}
		args = append(args, cfg.ExtraArgs...)
		if prompt != "" {
			args = append(args, prompt)
		}
	case domain.FlavourGemini:
		args = []string{"gemini", "--yolo"}
		if model != "" {
			args = append(args, "--model", model)
		}
		args = append(args, cfg.ExtraArgs...)
		if prompt != "" {
			args = append(args, "--prompt-interactive", prompt)
		}
	default: // claude
		args = []string{"claude", "--dangerously-skip-permissions"}
		if model != "" {
			args = append(args, "--model", model)
		}
		args = append(args, cfg.ExtraArgs...)
		if prompt != "" {
			args = append(args, "--", prompt)
		}
	}
	return args
}

// SessionEnv builds the environment entries every worker session receives.
func SessionEnv(agentID, teamID, hiveDir string) []string {
	env := []string{
		"HIVE_AGENT_ID=" + agentID,
		"HIVE_DIR=" + hiveDir,
	}
	if teamID != "" {
		env = append(env, "HIVE_TEAM_ID="+teamID)
	}
	return env
}
