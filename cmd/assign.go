package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/scheduler"
)

var assignDryRun bool

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Run one scheduler pass over planned stories",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			if assignDryRun {
				return printAssignPlan(h)
			}
			res, err := h.sched.AssignStories(cmd.Context())
			if err != nil {
				return err
			}
			printAssignResult(res)
			return nil
		})
	},
}

// printAssignPlan lists what a pass would pick up without mutating anything.
func printAssignPlan(h *hiveCtx) error {
	planned, err := h.store.ListStoriesByStatus(domain.StoryPlanned)
	if err != nil {
		return err
	}
	eligible := 0
	for _, st := range planned {
		if st.AssignedAgentID != "" {
			continue
		}
		blocked, err := h.store.UnmergedDependencies(st.ID)
		if err != nil {
			return err
		}
		if len(blocked) > 0 {
			fmt.Printf("  %s  blocked on %v\n", st.ID, blocked)
			continue
		}
		fmt.Printf("  %s  c=%-2d  would assign\n", st.ID, st.Complexity)
		eligible++
	}
	fmt.Println(dimStyle.Render(fmt.Sprintf("%d of %d planned stories eligible", eligible, len(planned))))
	return nil
}

func printAssignResult(res scheduler.AssignResult) {
	fmt.Println(okStyle.Render(fmt.Sprintf("assigned %d", res.Assigned)))
	if res.PreventedDuplicates > 0 {
		fmt.Println(dimStyle.Render(fmt.Sprintf("skipped %d already-assigned", res.PreventedDuplicates)))
	}
	for _, e := range res.Errors {
		fmt.Println(errStyle.Render("  " + e))
	}
}

func init() {
	assignCmd.Flags().BoolVar(&assignDryRun, "dry-run", false, "report eligible stories without assigning")
	rootCmd.AddCommand(assignCmd)
}
