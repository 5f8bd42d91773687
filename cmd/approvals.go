package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/store"
)

var approvalsOpts struct {
	all     bool
	jsonOut bool
	message string
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Human escalation queue",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending escalations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			statuses := []domain.EscalationStatus{domain.EscalationPending}
			if approvalsOpts.all {
				statuses = nil
			}
			escs, err := h.store.ListEscalations(statuses...)
			if err != nil {
				return err
			}
			if approvalsOpts.jsonOut {
				return json.NewEncoder(os.Stdout).Encode(escs)
			}
			if len(escs) == 0 {
				fmt.Println(dimStyle.Render("nothing waiting on a human"))
				return nil
			}
			for _, e := range escs {
				from := e.FromAgentID
				if from == "" {
					from = "-"
				}
				fmt.Printf("%s  [%-8s]  %-22s  %s\n", e.ID, e.Status, from, truncate(e.Reason, 70))
			}
			return nil
		})
	},
}

var approvalsShowCmd = &cobra.Command{
	Use:   "show <escalation-id>",
	Short: "Show one escalation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			e, err := h.store.GetEscalation(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s  [%s]\n%s\n", e.ID, e.Status, e.Reason)
			if e.StoryID != "" {
				fmt.Println(dimStyle.Render("story: " + e.StoryID))
			}
			if e.FromAgentID != "" {
				fmt.Println(dimStyle.Render("from: " + e.FromAgentID))
			}
			if e.Resolution != "" {
				fmt.Println("resolution: " + e.Resolution)
			}
			return nil
		})
	},
}

func resolveEscalation(h *hiveCtx, id, resolution string) error {
	e, err := h.store.ResolveEscalation(id, resolution)
	if err != nil {
		return err
	}
	fmt.Println(okStyle.Render(e.ID + " resolved"))
	return nil
}

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve <escalation-id>",
	Short: "Resolve an escalation affirmatively",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			msg := approvalsOpts.message
			if msg == "" {
				msg = "approved"
			}
			return resolveEscalation(h, args[0], msg)
		})
	},
}

var approvalsDenyCmd = &cobra.Command{
	Use:   "deny <escalation-id>",
	Short: "Resolve an escalation negatively",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			msg := approvalsOpts.message
			if msg == "" {
				msg = "denied"
			}
			return resolveEscalation(h, args[0], msg)
		})
	},
}

var escalateCmd = &cobra.Command{
	Use:   "escalate <reason>",
	Short: "Raise an issue to a human",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			reason := args[0]
			fromAgent, storyID := "", ""
			if agent, err := agentIdentity(h); err == nil {
				fromAgent = agent.ID
				storyID = agent.CurrentStoryID
			}

			var esc *domain.Escalation
			err := h.store.WithTransaction(func(q *store.Queries) error {
				var err error
				esc, err = q.CreateEscalation(store.CreateEscalationParams{
					ID:          domain.NewEscalationID(),
					StoryID:     storyID,
					FromAgentID: fromAgent,
					Reason:      reason,
				})
				if err != nil {
					return err
				}
				q.AppendLog(store.AppendLogParams{
					AgentID: actorID(), StoryID: storyID,
					EventType: domain.EventEscalationCreated,
					Message:   reason,
				})
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Println(okStyle.Render("escalation " + esc.ID + " raised; resolve with `hive approvals approve|deny " + esc.ID + "`"))
			return nil
		})
	},
}

func init() {
	approvalsListCmd.Flags().BoolVar(&approvalsOpts.all, "all", false, "include resolved escalations")
	approvalsListCmd.Flags().BoolVar(&approvalsOpts.jsonOut, "json", false, "machine-readable output")
	approvalsApproveCmd.Flags().StringVarP(&approvalsOpts.message, "message", "m", "", "resolution note")
	approvalsDenyCmd.Flags().StringVarP(&approvalsOpts.message, "message", "m", "", "resolution note")
	approvalsCmd.AddCommand(approvalsListCmd, approvalsShowCmd, approvalsApproveCmd, approvalsDenyCmd)
	rootCmd.AddCommand(approvalsCmd, escalateCmd)
}
