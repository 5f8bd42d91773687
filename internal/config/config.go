// Package config provides configuration types, defaults, and persistence for
// the hive workspace.
package config

import (
	"fmt"
	"time"
)

// TeamCaps bounds how many workers of each role the scheduler may keep alive
// per team.
type TeamCaps struct {
	JuniorMax       int `mapstructure:"junior_max"`
	IntermediateMax int `mapstructure:"intermediate_max"`
	SeniorMax       int `mapstructure:"senior_max"`
	QAMax           int `mapstructure:"qa_max"`
}

// ManagerConfig tunes the reconciliation daemon.
type ManagerConfig struct {
	// FastPollInterval is the tick cadence for the reconcile loop.
	FastPollInterval time.Duration `mapstructure:"fast_poll_interval"`
	// PMSyncInterval is the long-poll cadence for bidirectional PM sync.
	PMSyncInterval time.Duration `mapstructure:"pm_sync_interval"`
	// StaleAgentThreshold marks an agent unresponsive when last_seen is older.
	StaleAgentThreshold time.Duration `mapstructure:"stale_agent_threshold"`
	// StaticInactivityThreshold defers IDLE/UNKNOWN nudges until the session
	// output has been unchanged this long.
	StaticInactivityThreshold time.Duration `mapstructure:"static_inactivity_threshold"`
	// NudgeCooldown suppresses repeat nudges to the same session.
	NudgeCooldown time.Duration `mapstructure:"nudge_cooldown"`
	// StuckThreshold flags estimated stories that never reached planned.
	StuckThreshold time.Duration `mapstructure:"stuck_threshold"`
	// HandoffRetryDelay is the wait before the manager force-promotes a
	// stalled planning handoff it already nudged about.
	HandoffRetryDelay time.Duration `mapstructure:"handoff_retry_delay"`
	// DrainDelay is the goodbye-message grace before killing a session.
	DrainDelay time.Duration `mapstructure:"drain_delay"`
	// CaptureLines is how many visible lines to capture per session probe.
	CaptureLines int `mapstructure:"capture_lines"`
}

// CLIConfig describes how worker sessions run their LLM CLI.
type CLIConfig struct {
	// Tool is the default CLI flavour: claude, codex, or gemini.
	Tool string `mapstructure:"tool"`
	// Model is the default model flag value.
	Model string `mapstructure:"model"`
	// PremiumModel is used for godmode requirements and tech-lead planning.
	PremiumModel string `mapstructure:"premium_model"`
	// ExtraArgs are appended to every spawn (safety flags etc).
	ExtraArgs []string `mapstructure:"extra_args"`
}

// PMConfig selects and parameterises the project-management provider.
type PMConfig struct {
	Provider   string `mapstructure:"provider"` // empty disables PM sync
	BaseURL    string `mapstructure:"base_url"`
	ProjectKey string `mapstructure:"project_key"`
	BoardID    string `mapstructure:"board_id"`
	Email      string `mapstructure:"email"`
	Token      string `mapstructure:"token"`
	// Timeout bounds every provider call.
	Timeout time.Duration `mapstructure:"timeout"`
	// ProgressComments enables per-story progress comments.
	ProgressComments bool `mapstructure:"progress_comments"`
}

// VCSConfig selects the version-control host adapter.
type VCSConfig struct {
	Provider      string        `mapstructure:"provider"`
	DefaultBranch string        `mapstructure:"default_branch"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// TracingConfig configures the otel trace provider.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"` // none, stdout, file, otlp
	FilePath     string  `mapstructure:"file_path"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// Config is the root configuration loaded from <hive-dir>/config.yaml.
type Config struct {
	HiveDir   string        `mapstructure:"hive_dir"`
	Caps      TeamCaps      `mapstructure:"caps"`
	Manager   ManagerConfig `mapstructure:"manager"`
	CLI       CLIConfig     `mapstructure:"cli"`
	PM        PMConfig      `mapstructure:"pm"`
	VCS       VCSConfig     `mapstructure:"vcs"`
	Tracing   TracingConfig `mapstructure:"tracing"`
	Debug     bool          `mapstructure:"debug"`
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		Caps: TeamCaps{
			JuniorMax:       2,
			IntermediateMax: 2,
			SeniorMax:       1,
			QAMax:           1,
		},
		Manager: ManagerConfig{
			FastPollInterval:          5 * time.Second,
			PMSyncInterval:            5 * time.Minute,
			StaleAgentThreshold:       2 * time.Minute,
			StaticInactivityThreshold: 90 * time.Second,
			NudgeCooldown:             2 * time.Minute,
			StuckThreshold:            10 * time.Minute,
			HandoffRetryDelay:         5 * time.Minute,
			DrainDelay:                5 * time.Second,
			CaptureLines:              80,
		},
		CLI: CLIConfig{
			Tool:         "claude",
			Model:        "sonnet",
			PremiumModel: "opus",
		},
		PM: PMConfig{
			Timeout:          15 * time.Second,
			ProgressComments: true,
		},
		VCS: VCSConfig{
			Provider:      "github",
			DefaultBranch: "main",
			Timeout:       30 * time.Second,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "stdout",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Validate rejects configurations the control plane cannot run with.
func (c Config) Validate() error {
	switch c.CLI.Tool {
	case "claude", "codex", "gemini":
	default:
		return fmt.Errorf("unsupported cli tool %q", c.CLI.Tool)
	}
	if c.Manager.FastPollInterval <= 0 {
		return fmt.Errorf("manager.fast_poll_interval must be positive")
	}
	if c.Caps.SeniorMax < 1 {
		return fmt.Errorf("caps.senior_max must be at least 1")
	}
	return nil
}
