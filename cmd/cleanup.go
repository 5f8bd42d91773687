package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivectl/hive/internal/manager"
)

var cleanupOpts struct {
	dryRun      bool
	force       bool
	worktrees   bool
	locks       bool
	sessions    bool
	assignments bool
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Scan for and remove orphaned worktrees, locks, sessions and assignments",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			m := manager.New(manager.Deps{
				Store:      h.store,
				Supervisor: h.sup,
				Scheduler:  h.sched,
				VCS:        h.vcs,
				PM:         h.pm,
				Config:     h.cfg,
				HiveDir:    h.dir,
			})

			report, err := m.ScanOrphans(cmd.Context())
			if err != nil {
				return err
			}

			// Category flags narrow the report; no flags means everything.
			if cleanupOpts.worktrees || cleanupOpts.locks || cleanupOpts.sessions || cleanupOpts.assignments {
				if !cleanupOpts.worktrees {
					report.Worktrees = nil
				}
				if !cleanupOpts.locks {
					report.StaleLock = ""
				}
				if !cleanupOpts.sessions {
					report.Sessions = nil
				}
				if !cleanupOpts.assignments {
					report.Assignments = nil
				}
			}

			if report.Empty() {
				fmt.Println(okStyle.Render("nothing orphaned"))
				return nil
			}

			for _, dir := range report.Worktrees {
				fmt.Println("worktree    " + dir)
			}
			if report.StaleLock != "" {
				age := manager.StaleLockAge(report.StaleLock, time.Now())
				fmt.Printf("lock        %s (age %s)\n", report.StaleLock, age.Round(time.Second))
			}
			for _, name := range report.Sessions {
				fmt.Println("session     " + name)
			}
			for _, id := range report.Assignments {
				fmt.Println("assignment  " + id)
			}

			if cleanupOpts.dryRun {
				fmt.Println(dimStyle.Render("dry run, nothing removed"))
				return nil
			}
			if !cleanupOpts.force {
				return usageErr(fmt.Errorf("re-run with --force to remove, or --dry-run to keep scanning"))
			}

			if err := m.RemoveOrphans(cmd.Context(), report); err != nil {
				return err
			}
			fmt.Println(okStyle.Render("orphans removed; requeued stories flow on the manager's next tick"))
			return nil
		})
	},
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupOpts.dryRun, "dry-run", false, "report only")
	cleanupCmd.Flags().BoolVar(&cleanupOpts.force, "force", false, "remove without prompting")
	cleanupCmd.Flags().BoolVar(&cleanupOpts.worktrees, "worktrees", false, "limit to orphaned worktrees")
	cleanupCmd.Flags().BoolVar(&cleanupOpts.locks, "locks", false, "limit to the stale write lock")
	cleanupCmd.Flags().BoolVar(&cleanupOpts.sessions, "sessions", false, "limit to unowned sessions")
	cleanupCmd.Flags().BoolVar(&cleanupOpts.assignments, "assignments", false, "limit to dead assignments")
	rootCmd.AddCommand(cleanupCmd)
}
