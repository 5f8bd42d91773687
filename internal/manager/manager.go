// Package manager implements the reconciliation daemon: a single long-lived
// process that ticks on a fixed interval, probes worker sessions, nudges or
// escalates stuck agents, merges approved pull requests, triggers feature
// sign-off and keeps the PM provider in sync. Every check follows the same
// shape: read state, do external I/O outside the lock, write results in a
// short transaction.
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"

	"github.com/hivectl/hive/internal/config"
	"github.com/hivectl/hive/internal/connector"
	"github.com/hivectl/hive/internal/log"
	"github.com/hivectl/hive/internal/paths"
	"github.com/hivectl/hive/internal/scheduler"
	"github.com/hivectl/hive/internal/store"
	"github.com/hivectl/hive/internal/tmux"
	"github.com/hivectl/hive/internal/watcher"
)

// Deps wires the manager to the rest of the control plane. VCS and PM may be
// nil; the checks that need them are skipped.
type Deps struct {
	Store      *store.Store
	Supervisor *tmux.Supervisor
	Scheduler  *scheduler.Scheduler
	VCS        connector.VCS
	PM         connector.PM
	Config     config.Config
	HiveDir    string
}

// Manager is the reconciliation daemon.
type Manager struct {
	store   *store.Store
	sup     *tmux.Supervisor
	sched   *scheduler.Scheduler
	vcs     connector.VCS
	pm      connector.PM
	cfg     config.Config
	hiveDir string

	// cooldowns dedups nudges and repeated stale warnings, keyed per
	// session. Entries expire after the nudge cooldown.
	cooldowns *cache.Cache

	// panes tracks per-session output so "unchanged for Δ" heuristics work.
	panes map[string]*paneState

	// handoffs remembers stalled planning groups between ticks.
	handoffs map[string]handoffState

	// completionSent marks sessions that already got their one completion
	// reminder; drainable marks them ready for spin-down.
	completionSent map[string]bool
	drainable      map[string]bool

	// verdictRead marks feature-test agents whose sign-off verdict was
	// already consumed.
	verdictRead map[string]bool

	clock func() time.Time
	sleep func(time.Duration)
}

type paneState struct {
	last    string
	since   time.Time
}

type handoffState struct {
	signature string
	nudgedAt  time.Time
}

var tracer = otel.Tracer("hive/manager")

// New builds a manager from its dependencies.
func New(d Deps) *Manager {
	return &Manager{
		store:          d.Store,
		sup:            d.Supervisor,
		sched:          d.Scheduler,
		vcs:            d.VCS,
		pm:             d.PM,
		cfg:            d.Config,
		hiveDir:        d.HiveDir,
		cooldowns:      cache.New(d.Config.Manager.NudgeCooldown, time.Minute),
		panes:          map[string]*paneState{},
		handoffs:       map[string]handoffState{},
		completionSent: map[string]bool{},
		drainable:      map[string]bool{},
		verdictRead:    map[string]bool{},
		clock:          time.Now,
		sleep:          time.Sleep,
	}
}

// Run ticks until ctx is cancelled. It refuses to start when another manager
// holds the pid file. A watcher on the database file triggers a debounced
// early tick so CLI writes are reconciled promptly.
func (m *Manager) Run(ctx context.Context) error {
	release, err := acquirePidFile(paths.Pid(m.hiveDir))
	if err != nil {
		return err
	}
	defer release()

	var dbChanged <-chan struct{}
	if w, err := watcher.New(watcher.DefaultConfig(paths.DB(m.hiveDir))); err != nil {
		log.Warn(log.CatManager, "db watcher unavailable, polling only", "error", err)
	} else if ch, err := w.Start(); err != nil {
		log.Warn(log.CatManager, "db watcher failed to start", "error", err)
	} else {
		dbChanged = ch
		defer func() { _ = w.Stop() }()
	}

	ticker := time.NewTicker(m.cfg.Manager.FastPollInterval)
	defer ticker.Stop()
	pmTicker := time.NewTicker(m.cfg.Manager.PMSyncInterval)
	defer pmTicker.Stop()

	log.Info(log.CatManager, "manager started",
		"poll", m.cfg.Manager.FastPollInterval.String(),
		"pm_sync", m.cfg.Manager.PMSyncInterval.String())

	m.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info(log.CatManager, "manager stopping")
			return nil
		case <-ticker.C:
			m.Tick(ctx)
		case <-dbChanged:
			log.Debug(log.CatManager, "db change observed, early tick")
			m.Tick(ctx)
		case <-pmTicker.C:
			m.runCheck(ctx, "pm_sync", m.syncPM)
			m.runCheck(ctx, "orphan_scan", m.reportOrphans)
		}
	}
}

// Tick runs one reconciliation pass. Checks run in a fixed order; a failing
// or panicking check never takes down the others.
func (m *Manager) Tick(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "manager.tick")
	defer span.End()

	m.runCheck(ctx, "liveness", m.checkLiveness)
	m.runCheck(ctx, "sessions", m.checkSessions)
	m.runCheck(ctx, "handoffs", m.checkStalledHandoffs)
	m.runCheck(ctx, "spin_down", m.checkSpinDown)
	m.runCheck(ctx, "auto_merge", m.checkApprovedPRs)
	m.runCheck(ctx, "orphaned_reviewers", m.checkOrphanedReviewers)
	m.runCheck(ctx, "sign_off", m.checkFeatureSignOff)
	m.runCheck(ctx, "messages", m.deliverMessages)
	m.runCheck(ctx, "assign", m.runScheduler)
}

func (m *Manager) runCheck(ctx context.Context, name string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.CatManager, "check panicked", "check", name, "panic", fmt.Sprint(r))
		}
	}()
	if err := fn(ctx); err != nil {
		log.Warn(log.CatManager, "check failed", "check", name, "error", err)
	}
}

// runScheduler lets each tick pick up newly planned stories and staffing
// needs without waiting for an explicit assign command.
func (m *Manager) runScheduler(ctx context.Context) error {
	if err := m.sched.CheckScaling(ctx); err != nil {
		return err
	}
	if err := m.sched.CheckMergeQueue(ctx); err != nil {
		return err
	}
	_, err := m.sched.AssignStories(ctx)
	return err
}

// trackPane records the latest capture for a session and returns how long
// the output has been unchanged.
func (m *Manager) trackPane(session, pane string) time.Duration {
	now := m.clock()
	ps, ok := m.panes[session]
	if !ok || ps.last != pane {
		m.panes[session] = &paneState{last: pane, since: now}
		return 0
	}
	return now.Sub(ps.since)
}

// forgetSession drops per-session bookkeeping after a kill.
func (m *Manager) forgetSession(session string) {
	delete(m.panes, session)
	delete(m.completionSent, session)
	delete(m.drainable, session)
	m.cooldowns.Delete(session)
}
