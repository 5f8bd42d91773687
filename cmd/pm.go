package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var pmCmd = &cobra.Command{
	Use:     "pm",
	Aliases: []string{"jira"},
	Short:   "Query the configured project-management provider",
}

var pmSearchCmd = &cobra.Command{
	Use:   "search <query>...",
	Short: "Search provider issues",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), h.cfg.PM.Timeout)
			defer cancel()

			issues, err := h.pm.SearchIssues(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(issues) == 0 {
				fmt.Println(dimStyle.Render("no matches"))
				return nil
			}
			for _, is := range issues {
				fmt.Printf("%-12s  [%-12s]  %s\n", is.Key, is.Status, truncate(is.Summary, 60))
			}
			return nil
		})
	},
}

var pmShowCmd = &cobra.Command{
	Use:   "show <issue-key>",
	Short: "Show one provider issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), h.cfg.PM.Timeout)
			defer cancel()

			is, err := h.pm.GetIssue(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s  [%s]  %s\n", is.Key, is.Status, is.Summary)
			if is.Description != "" {
				fmt.Println(is.Description)
			}
			return nil
		})
	},
}

var pmEpicCmd = &cobra.Command{
	Use:   "epic <epic-key>",
	Short: "Show a provider epic and its child issues",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), h.cfg.PM.Timeout)
			defer cancel()

			epic, err := h.pm.FetchEpic(ctx, args[0])
			if err != nil {
				return err
			}
			if epic == nil {
				return usageErr(fmt.Errorf("epic %s not found", args[0]))
			}
			fmt.Printf("%s  %s\n", epic.Key, epic.Summary)
			for _, is := range epic.Issues {
				fmt.Printf("  %-12s  [%-12s]  %s\n", is.Key, is.Status, truncate(is.Summary, 56))
			}
			return nil
		})
	},
}

func init() {
	pmCmd.AddCommand(pmSearchCmd, pmShowCmd, pmEpicCmd)
	rootCmd.AddCommand(pmCmd)
}
