package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/store"
)

var reqOpts struct {
	team    string
	godmode bool
	branch  string
	target  string
}

var reqCmd = &cobra.Command{
	Use:   "req <text-or-epic-url>",
	Short: "Submit a requirement, or import one from a PM epic URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			input := strings.TrimSpace(args[0])
			if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
				return importEpic(cmd.Context(), h, input)
			}
			return submitRequirement(h, input)
		})
	},
}

func submitRequirement(h *hiveCtx, text string) error {
	req, err := h.store.CreateRequirement(store.CreateRequirementParams{
		ID:          domain.NewRequirementID(),
		Title:       truncate(text, 80),
		Description: text,
		Submitter:   os.Getenv("USER"),
		Godmode:     reqOpts.godmode,
	})
	if err != nil {
		return err
	}
	if reqOpts.branch != "" || reqOpts.target != "" {
		if err := h.store.SetRequirementBranches(req.ID, reqOpts.branch, reqOpts.target); err != nil {
			return err
		}
	}
	fmt.Println(okStyle.Render("requirement " + req.ID + " submitted"))
	fmt.Println(dimStyle.Render("next: `hive req plan " + req.ID + " --team <name>`"))
	return nil
}

// importEpic pulls an external epic and materialises it as a requirement
// with draft stories awaiting estimation.
func importEpic(ctx context.Context, h *hiveCtx, url string) error {
	if reqOpts.team == "" {
		return usageErr(fmt.Errorf("--team is required when importing an epic"))
	}
	team, err := h.store.GetTeamByName(reqOpts.team)
	if err != nil {
		return err
	}

	// The epic key is the last path segment of the issue URL.
	parts := strings.Split(strings.TrimRight(url, "/"), "/")
	epicKey := parts[len(parts)-1]

	pmCtx, cancel := context.WithTimeout(ctx, h.cfg.PM.Timeout)
	defer cancel()
	epic, err := h.pm.FetchEpic(pmCtx, epicKey)
	if err != nil {
		return fmt.Errorf("fetching epic %s: %w", epicKey, err)
	}
	if epic == nil {
		return usageErr(fmt.Errorf("no PM provider configured, cannot import %s", epicKey))
	}

	var req *domain.Requirement
	err = h.store.WithTransaction(func(q *store.Queries) error {
		req, err = q.CreateRequirement(store.CreateRequirementParams{
			ID:          domain.NewRequirementID(),
			Title:       epic.Summary,
			Description: epic.Description,
			Submitter:   os.Getenv("USER"),
			EpicKey:     epic.Key,
			Godmode:     reqOpts.godmode,
		})
		if err != nil {
			return err
		}
		for _, issue := range epic.Issues {
			story, err := q.CreateStory(store.CreateStoryParams{
				ID:            domain.NewStoryID(),
				RequirementID: req.ID,
				TeamID:        team.ID,
				Title:         issue.Summary,
				Description:   issue.Description,
			})
			if err != nil {
				return err
			}
			if err := q.SetStoryExternal(store.SetStoryExternalParams{
				StoryID:    story.ID,
				IssueKey:   issue.Key,
				ProjectKey: h.cfg.PM.ProjectKey,
				Provider:   h.cfg.PM.Provider,
			}); err != nil {
				return err
			}
		}
		q.AppendLog(store.AppendLogParams{
			AgentID:   "cli",
			EventType: domain.EventJiraEpicIngested,
			Message:   fmt.Sprintf("epic %s imported as %s with %d stories", epic.Key, req.ID, len(epic.Issues)),
			Metadata:  map[string]string{"epic": epic.Key, "requirement": req.ID},
		})
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Println(okStyle.Render(fmt.Sprintf("epic %s imported as %s (%d stories)", epic.Key, req.ID, len(epic.Issues))))
	return nil
}

var reqShowCmd = &cobra.Command{
	Use:   "show <requirement-id>",
	Short: "Show a requirement and its stories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			req, err := h.store.GetRequirement(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s  [%s]  %s\n", req.ID, req.Status, req.Title)
			if req.EpicKey != "" {
				fmt.Println(dimStyle.Render("epic: " + req.EpicKey))
			}
			if req.FeatureBranch != "" {
				fmt.Println(dimStyle.Render("branch: " + req.FeatureBranch + " → " + req.TargetBranch))
			}

			stories, err := h.store.ListStoriesByRequirement(req.ID)
			if err != nil {
				return err
			}
			for _, st := range stories {
				assignee := st.AssignedAgentID
				if assignee == "" {
					assignee = "-"
				}
				fmt.Printf("  %s  [%-12s]  c=%-2d  %-20s  %s\n",
					st.ID, st.Status, st.Complexity, assignee, truncate(st.Title, 50))
			}
			return nil
		})
	},
}

var reqPlanCmd = &cobra.Command{
	Use:   "plan <requirement-id>",
	Short: "Start planning: spawn the tech lead against a requirement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			if reqOpts.team == "" {
				return usageErr(fmt.Errorf("--team is required"))
			}
			team, err := h.store.GetTeamByName(reqOpts.team)
			if err != nil {
				return err
			}
			req, err := h.store.GetRequirement(args[0])
			if err != nil {
				return err
			}

			err = h.store.WithTransaction(func(q *store.Queries) error {
				if _, err := q.UpdateRequirementStatus(req.ID, domain.RequirementPlanning); err != nil {
					return err
				}
				q.AppendLog(store.AppendLogParams{
					AgentID:   "cli",
					EventType: domain.EventPlanningStarted,
					Message:   "planning started for " + req.ID,
					Metadata:  map[string]string{"requirement": req.ID, "team": team.Name},
				})
				return nil
			})
			if err != nil {
				return err
			}

			lead, err := h.sched.SpawnWorker(cmd.Context(), team.ID, domain.RoleTechLead, req.Godmode)
			if err != nil {
				return fmt.Errorf("spawning tech lead: %w", err)
			}

			brief := fmt.Sprintf(
				"Plan requirement %s: %s\n\n%s\n\nCreate stories with `hive story create --req %s --team %s ...`, then run `hive req plan-done %s`.",
				req.ID, req.Title, req.Description, req.ID, team.Name, req.ID)
			if err := h.sup.SendMessageWithConfirmation(cmd.Context(), lead.SessionName, brief, h.cfg.Manager.CaptureLines); err != nil {
				return fmt.Errorf("briefing tech lead: %w", err)
			}

			fmt.Println(okStyle.Render("tech lead " + lead.ID + " planning " + req.ID + " in session " + lead.SessionName))
			return nil
		})
	},
}

var reqPlanDoneCmd = &cobra.Command{
	Use:   "plan-done <requirement-id>",
	Short: "Finish planning: promote estimated stories and assign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			reqID := args[0]
			stories, err := h.store.ListStoriesByRequirement(reqID)
			if err != nil {
				return err
			}
			if len(stories) == 0 {
				return usageErr(fmt.Errorf("%s has no stories; create them before plan-done", reqID))
			}

			err = h.store.WithTransaction(func(q *store.Queries) error {
				for _, st := range stories {
					if st.Status != domain.StoryEstimated {
						continue
					}
					if _, err := q.UpdateStoryStatus(store.UpdateStoryStatusParams{
						ID: st.ID, To: domain.StoryPlanned,
					}); err != nil {
						return err
					}
				}
				if _, err := q.UpdateRequirementStatus(reqID, domain.RequirementPlanned); err != nil {
					return err
				}
				q.AppendLog(store.AppendLogParams{
					AgentID:   "cli",
					EventType: domain.EventPlanningCompleted,
					Message:   "planning completed for " + reqID,
					Metadata:  map[string]string{"requirement": reqID, "stories": fmt.Sprint(len(stories))},
				})
				return nil
			})
			if err != nil {
				return err
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

var reqVerdictCmd = &cobra.Command{
	Use:   "verdict <requirement-id> <verdict>",
	Short: "Record the end-to-end sign-off verdict for a requirement",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			agent, err := agentIdentity(h)
			if err != nil {
				return err
			}
			req, err := h.store.GetRequirement(args[0])
			if err != nil {
				return err
			}
			if req.Status != domain.RequirementSignOff {
				return usageErr(fmt.Errorf("%s is %s, not awaiting sign-off", req.ID, req.Status))
			}

			verdict := strings.TrimSpace(strings.Join(args[1:], " "))
			if passed, failed := domain.ParseVerdict(verdict); !passed && !failed {
				return usageErr(fmt.Errorf("verdict must be %q or %q",
					domain.VerdictPassed, domain.VerdictFailed+": <summary>"))
			}

			h.store.AppendLog(store.AppendLogParams{
				AgentID:   agent.ID,
				EventType: domain.EventStoryProgressUpdate,
				Message:   verdict,
				Metadata:  map[string]string{"requirement": req.ID},
			})
			fmt.Println(okStyle.Render("verdict recorded for " + req.ID))
			return nil
		})
	},
}

func init() {
	reqCmd.PersistentFlags().StringVar(&reqOpts.team, "team", "", "team name")
	reqCmd.Flags().BoolVar(&reqOpts.godmode, "godmode", false, "use the premium model for all agents on this requirement")
	reqCmd.Flags().StringVar(&reqOpts.branch, "feature-branch", "", "integration branch for this requirement")
	reqCmd.Flags().StringVar(&reqOpts.target, "target-branch", "", "branch the feature branch merges into")
	reqCmd.AddCommand(reqShowCmd, reqPlanCmd, reqPlanDoneCmd, reqVerdictCmd)
	rootCmd.AddCommand(reqCmd)
}
