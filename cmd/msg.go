package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/store"
)

var msgCmd = &cobra.Command{
	Use:   "msg",
	Short: "Agent-to-agent messages",
}

var msgSendCmd = &cobra.Command{
	Use:   "send <agent-id> <text>...",
	Short: "Queue a message for another agent",
	Long: `Stores the message; the manager delivers it into the recipient's
session on its next tick. Messages to agents without a live session wait
until one exists.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			sender, err := agentIdentity(h)
			if err != nil {
				return err
			}
			recipient, err := h.store.GetAgent(args[0])
			if err != nil {
				return err
			}
			if !recipient.IsAlive() {
				return usageErr(fmt.Errorf("%s is terminated", recipient.ID))
			}

			var msg *domain.Message
			err = h.store.WithTransaction(func(q *store.Queries) error {
				msg, err = q.CreateMessage(store.CreateMessageParams{
					ID:          domain.NewMessageID(),
					FromAgentID: sender.ID,
					ToAgentID:   recipient.ID,
					Body:        strings.Join(args[1:], " "),
				})
				return err
			})
			if err != nil {
				return err
			}
			fmt.Println(okStyle.Render("queued " + msg.ID + " for " + recipient.ID))
			return nil
		})
	},
}

var msgOutboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "List messages this agent has sent",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			sender, err := agentIdentity(h)
			if err != nil {
				return err
			}
			msgs, err := h.store.ListOutbox(sender.ID)
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Println(dimStyle.Render("outbox empty"))
				return nil
			}
			for _, m := range msgs {
				fmt.Printf("%s  [%-9s]  %-20s  %s\n", m.ID, m.Status, m.ToAgentID, truncate(m.Body, 60))
			}
			return nil
		})
	},
}

func init() {
	msgCmd.AddCommand(msgSendCmd, msgOutboxCmd)
	rootCmd.AddCommand(msgCmd)
}
