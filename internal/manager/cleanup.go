package manager

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/log"
	"github.com/hivectl/hive/internal/paths"
	"github.com/hivectl/hive/internal/store"
)

// OrphanReport lists resources nothing references anymore. Scanning is
// always safe; removal is separate and explicit.
type OrphanReport struct {
	// Worktrees are directories under the repos root no team points at.
	Worktrees []string
	// StaleLock is set when the write lock is older than the stale threshold.
	StaleLock string
	// Sessions are live hive sessions with no matching agent row.
	Sessions []string
	// Assignments are story ids assigned to terminated agents.
	Assignments []string
}

// Empty reports whether the scan found nothing.
func (r OrphanReport) Empty() bool {
	return len(r.Worktrees) == 0 && r.StaleLock == "" &&
		len(r.Sessions) == 0 && len(r.Assignments) == 0
}

// ScanOrphans inventories orphaned resources without touching them.
func (m *Manager) ScanOrphans(ctx context.Context) (OrphanReport, error) {
	var report OrphanReport

	teams, err := m.store.ListTeams()
	if err != nil {
		return report, err
	}
	known := map[string]bool{}
	for _, t := range teams {
		known[t.RepoPath] = true
	}
	entries, err := os.ReadDir(paths.Repos(m.hiveDir))
	if err == nil {
		for _, e := range entries {
			if e.IsDir() && !known[e.Name()] {
				report.Worktrees = append(report.Worktrees, filepath.Join(paths.Repos(m.hiveDir), e.Name()))
			}
		}
	}

	lockPath := paths.Lock(m.hiveDir)
	if info, err := os.Stat(lockPath); err == nil {
		if m.clock().Sub(info.ModTime()) > m.cfg.Manager.StaleAgentThreshold {
			report.StaleLock = lockPath
		}
	}

	live, err := m.sup.ListSessions(ctx)
	if err != nil {
		return report, err
	}
	for _, name := range live {
		if _, err := m.store.GetAgentBySession(name); err != nil {
			report.Sessions = append(report.Sessions, name)
		}
	}

	stories, err := m.store.ListStoriesByStatus(domain.ActiveStoryStatuses...)
	if err != nil {
		return report, err
	}
	for _, st := range stories {
		if st.AssignedAgentID == "" {
			continue
		}
		agent, err := m.store.GetAgent(st.AssignedAgentID)
		if err != nil || agent.Status == domain.AgentTerminated {
			report.Assignments = append(report.Assignments, st.ID)
		}
	}

	return report, nil
}

// RemoveOrphans deletes everything in the report: worktrees, the stale lock,
// unowned sessions, and dead assignments (requeued to planned). Callers pass
// a report they have shown to, or been authorized by, the operator.
func (m *Manager) RemoveOrphans(ctx context.Context, report OrphanReport) error {
	for _, dir := range report.Worktrees {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn(log.CatManager, "worktree removal failed", "dir", dir, "error", err)
		} else {
			log.Info(log.CatManager, "orphan worktree removed", "dir", dir)
		}
	}

	if report.StaleLock != "" {
		if err := os.Remove(report.StaleLock); err != nil && !os.IsNotExist(err) {
			log.Warn(log.CatManager, "stale lock removal failed", "error", err)
		} else {
			log.Info(log.CatLock, "stale lock reclaimed", "path", report.StaleLock)
		}
	}

	for _, name := range report.Sessions {
		if err := m.sup.Kill(ctx, name); err != nil {
			log.Warn(log.CatManager, "orphan session kill failed", "session", name, "error", err)
		} else {
			log.Info(log.CatManager, "orphan session killed", "session", name)
		}
	}

	for _, storyID := range report.Assignments {
		err := m.store.WithTransaction(func(q *store.Queries) error {
			if err := q.ClearStoryAssignment(storyID); err != nil {
				return err
			}
			_, err := q.UpdateStoryStatus(store.UpdateStoryStatusParams{
				ID: storyID, To: domain.StoryPlanned, Override: true,
			})
			return err
		})
		if err != nil {
			log.Warn(log.CatManager, "dead assignment requeue failed", "story", storyID, "error", err)
		} else {
			log.Info(log.CatManager, "dead assignment requeued", "story", storyID)
		}
	}
	return nil
}

// reportOrphans logs scan findings on the long cadence. Removal stays
// manual through the cleanup command.
func (m *Manager) reportOrphans(ctx context.Context) error {
	report, err := m.ScanOrphans(ctx)
	if err != nil {
		return err
	}
	if report.Empty() {
		return nil
	}
	log.Warn(log.CatManager, "orphaned resources found, run `hive cleanup`",
		"worktrees", len(report.Worktrees),
		"stale_lock", report.StaleLock != "",
		"sessions", len(report.Sessions),
		"assignments", len(report.Assignments))
	return nil
}

// StaleLockAge returns how old the lock file is, for dry-run output. Zero
// when the lock does not exist.
func StaleLockAge(path string, now time.Time) time.Duration {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return now.Sub(info.ModTime())
}
