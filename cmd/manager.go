package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivectl/hive/internal/log"
	"github.com/hivectl/hive/internal/manager"
	"github.com/hivectl/hive/internal/paths"
	"github.com/hivectl/hive/internal/store"
	"github.com/hivectl/hive/internal/tracing"
)

var managerVerbose bool

var managerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Control the reconciliation daemon",
}

var managerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the manager daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			provider, err := tracing.NewProvider(h.cfg.Tracing, h.dir)
			if err != nil {
				return usageErr(err)
			}
			defer func() {
				shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = provider.Shutdown(shutCtx)
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if managerVerbose {
				if events := log.Follow(ctx); events != nil {
					go func() {
						for ev := range events {
							fmt.Print(ev.Payload)
						}
					}()
				}
			}

			m := manager.New(manager.Deps{
				Store:      h.store,
				Supervisor: h.sup,
				Scheduler:  h.sched,
				VCS:        h.vcs,
				PM:         h.pm,
				Config:     h.cfg,
				HiveDir:    h.dir,
			})
			fmt.Println(okStyle.Render("manager running (ctrl-c to stop)"))
			return m.Run(ctx)
		})
	},
}

var managerStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running manager daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		pid := manager.RunningPid(paths.Pid(hiveDir))
		if pid == 0 {
			fmt.Println(dimStyle.Render("no manager running"))
			return nil
		}
		proc, err := os.FindProcess(pid)
		if err != nil {
			return err
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("signalling pid %d: %w", pid, err)
		}
		fmt.Println(okStyle.Render(fmt.Sprintf("sent SIGTERM to manager (pid %d)", pid)))
		return nil
	},
}

var managerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status and recent events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			pid := manager.RunningPid(paths.Pid(h.dir))
			if pid == 0 {
				fmt.Println(errStyle.Render("manager: not running"))
			} else {
				fmt.Println(okStyle.Render(fmt.Sprintf("manager: running (pid %d)", pid)))
			}

			entries, err := h.store.ListLogs(store.ListLogsParams{Limit: 15})
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s  %-28s  %s\n",
					e.CreatedAt.Format("15:04:05"), e.EventType, truncate(e.Message, 60))
			}

			if managerVerbose {
				fmt.Println(dimStyle.Render("following " + paths.Log(h.dir) + " (ctrl-c to stop)"))
				return tailFile(cmd.Context(), paths.Log(h.dir))
			}
			return nil
		})
	},
}

// tailFile streams appended lines from the runtime log. The daemon writes it
// from another process, so this follows the file rather than the in-process
// broker.
func tailFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(500 * time.Millisecond):
		}
		for {
			n, err := f.Read(buf)
			if n > 0 {
				os.Stdout.Write(buf[:n])
			}
			if err != nil {
				break
			}
		}
	}
}

func init() {
	managerStartCmd.Flags().BoolVar(&managerVerbose, "verbose", false, "stream daemon logs to stdout")
	managerStatusCmd.Flags().BoolVar(&managerVerbose, "verbose", false, "follow the runtime log")
	managerCmd.AddCommand(managerStartCmd, managerStopCmd, managerStatusCmd)
	rootCmd.AddCommand(managerCmd)
}
