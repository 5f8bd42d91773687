// Package cmd implements the hive CLI verbs.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hivectl/hive/internal/config"
	"github.com/hivectl/hive/internal/connector"
	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/log"
	"github.com/hivectl/hive/internal/paths"
	"github.com/hivectl/hive/internal/scheduler"
	"github.com/hivectl/hive/internal/store"
	"github.com/hivectl/hive/internal/tmux"
)

var (
	version  = "dev"
	hiveDir  string
	cfgFile  string
	cfg      config.Config
	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var rootCmd = &cobra.Command{
	Use:           "hive",
	Short:         "Multi-agent software delivery orchestrator",
	Long:          "hive coordinates LLM worker agents in tmux sessions through a shared sqlite state store: planning, assignment, review and merge.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&hiveDir, "hive-dir", "",
		"hive workspace directory (default: nearest .hive, or $HIVE_DIR)")
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: <hive-dir>/config.yaml)")
}

func initConfig() {
	hiveDir = paths.ResolveHiveDir(hiveDir)

	defaults := config.Defaults()
	viper.SetDefault("caps.junior_max", defaults.Caps.JuniorMax)
	viper.SetDefault("caps.intermediate_max", defaults.Caps.IntermediateMax)
	viper.SetDefault("caps.senior_max", defaults.Caps.SeniorMax)
	viper.SetDefault("caps.qa_max", defaults.Caps.QAMax)
	viper.SetDefault("manager.fast_poll_interval", defaults.Manager.FastPollInterval)
	viper.SetDefault("manager.pm_sync_interval", defaults.Manager.PMSyncInterval)
	viper.SetDefault("manager.stale_agent_threshold", defaults.Manager.StaleAgentThreshold)
	viper.SetDefault("manager.static_inactivity_threshold", defaults.Manager.StaticInactivityThreshold)
	viper.SetDefault("manager.nudge_cooldown", defaults.Manager.NudgeCooldown)
	viper.SetDefault("manager.stuck_threshold", defaults.Manager.StuckThreshold)
	viper.SetDefault("manager.handoff_retry_delay", defaults.Manager.HandoffRetryDelay)
	viper.SetDefault("manager.drain_delay", defaults.Manager.DrainDelay)
	viper.SetDefault("manager.capture_lines", defaults.Manager.CaptureLines)
	viper.SetDefault("cli.tool", defaults.CLI.Tool)
	viper.SetDefault("cli.model", defaults.CLI.Model)
	viper.SetDefault("cli.premium_model", defaults.CLI.PremiumModel)
	viper.SetDefault("pm.timeout", defaults.PM.Timeout)
	viper.SetDefault("vcs.provider", defaults.VCS.Provider)
	viper.SetDefault("vcs.default_branch", defaults.VCS.DefaultBranch)
	viper.SetDefault("vcs.timeout", defaults.VCS.Timeout)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if _, err := os.Stat(paths.Config(hiveDir)); err == nil {
		viper.SetConfigFile(paths.Config(hiveDir))
	} else {
		home, _ := os.UserHomeDir()
		viper.AddConfigPath(filepath.Join(home, ".config", "hive"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && cfgFile != "" {
			fail(fmt.Errorf("reading config: %w", err))
		}
	}
	_ = viper.Unmarshal(&cfg)
	cfg.HiveDir = hiveDir
}

// hiveCtx is the per-invocation wiring: store (with lock), supervisor,
// scheduler, connectors. Every mutating verb goes through withHive so the
// store closes on all exit paths.
type hiveCtx struct {
	dir   string
	cfg   config.Config
	store *store.Store
	sup   *tmux.Supervisor
	sched *scheduler.Scheduler
	vcs   connector.VCS
	pm    connector.PM
}

func withHive(fn func(h *hiveCtx) error) error {
	if _, err := os.Stat(paths.DB(hiveDir)); err != nil {
		return usageErr(fmt.Errorf("no hive workspace at %s (run `hive init`)", hiveDir))
	}
	if err := cfg.Validate(); err != nil {
		return usageErr(err)
	}

	closeLog, err := log.Init(paths.Log(hiveDir))
	if err == nil {
		defer closeLog()
	}

	st, err := store.Open(hiveDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	sup := tmux.NewSupervisor(tmux.NewExecutor())
	h := &hiveCtx{
		dir:   hiveDir,
		cfg:   cfg,
		store: st,
		sup:   sup,
		sched: scheduler.New(st, sup, cfg, hiveDir),
	}
	if h.vcs, err = connector.NewVCS(cfg.VCS); err != nil {
		return usageErr(err)
	}
	if h.pm, err = connector.NewPM(cfg.PM); err != nil {
		return usageErr(err)
	}
	return fn(h)
}

// usageError marks user or configuration mistakes (exit 1, not 2).
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usageErr(err error) error { return usageError{err: err} }

func exitCodeFor(err error) int {
	var ue usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ue),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrConflict):
		return 1
	default:
		return 2
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, errStyle.Render("error: "+err.Error()))
	os.Exit(exitCodeFor(err))
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error: "+err.Error()))
		return exitCodeFor(err)
	}
	return 0
}

// SetVersion sets the version string injected from main via ldflags.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// agentIdentity resolves the calling agent from the session environment.
// Agent-facing verbs run inside spawned sessions where HIVE_AGENT_ID is set.
func agentIdentity(h *hiveCtx) (*domain.Agent, error) {
	id := envAgentID()
	if id == "" {
		return nil, usageErr(errors.New("HIVE_AGENT_ID not set; this command runs inside an agent session"))
	}
	agent, err := h.store.GetAgent(id)
	if err != nil {
		return nil, err
	}
	_ = h.store.TouchAgent(id)
	return agent, nil
}

func envAgentID() string { return os.Getenv("HIVE_AGENT_ID") }
