package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/store"
)

var myStoriesAll bool

var myStoriesCmd = &cobra.Command{
	Use:   "my-stories",
	Short: "List the stories assigned to this agent session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			agent, err := agentIdentity(h)
			if err != nil {
				return err
			}
			stories, err := h.store.ListStoriesByAgent(agent.ID)
			if err != nil {
				return err
			}

			shown := 0
			for _, st := range stories {
				if !myStoriesAll && (st.Status == domain.StoryMerged || st.Status == domain.StoryDraft) {
					continue
				}
				marker := " "
				if st.ID == agent.CurrentStoryID {
					marker = "*"
				}
				fmt.Printf("%s %s  [%-12s]  %s\n", marker, st.ID, st.Status, truncate(st.Title, 60))
				if len(st.DependsOn) > 0 {
					fmt.Println(dimStyle.Render("    depends on: " + fmt.Sprint(st.DependsOn)))
				}
				shown++
			}
			if shown == 0 {
				fmt.Println(dimStyle.Render("no open stories; the manager spins this session down when the pipeline is empty"))
			}
			return nil
		})
	},
}

var myStoriesClaimCmd = &cobra.Command{
	Use:   "claim <story-id>",
	Short: "Claim a planned story for this agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			agent, err := agentIdentity(h)
			if err != nil {
				return err
			}
			story, err := h.store.GetStory(args[0])
			if err != nil {
				return err
			}
			if blocked, err := h.store.UnmergedDependencies(story.ID); err != nil {
				return err
			} else if len(blocked) > 0 {
				return usageErr(fmt.Errorf("%s is blocked on %v", story.ID, blocked))
			}

			err = h.store.WithTransaction(func(q *store.Queries) error {
				won, err := q.ClaimStory(story.ID, agent.ID)
				if err != nil {
					return err
				}
				if !won {
					return fmt.Errorf("claiming %s: %w", story.ID, domain.ErrConflict)
				}
				if err := q.UpdateAgentStatus(agent.ID, domain.AgentWorking, story.ID); err != nil {
					return err
				}
				req, err := q.GetRequirement(story.RequirementID)
				if err != nil {
					return err
				}
				if req.Status == domain.RequirementPlanned {
					if _, err := q.UpdateRequirementStatus(req.ID, domain.RequirementInProgress); err != nil {
						return err
					}
				}
				q.AppendLog(store.AppendLogParams{
					AgentID: agent.ID, StoryID: story.ID,
					EventType: domain.EventStoryAssigned,
					Message:   "self-claimed",
				})
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Println(okStyle.Render(story.ID + " is yours"))
			return nil
		})
	},
}

var myStoriesCompleteCmd = &cobra.Command{
	Use:   "complete <story-id>",
	Short: "Mark a story's implementation done (moves it to review)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			agent, err := agentIdentity(h)
			if err != nil {
				return err
			}
			story, err := h.store.GetStory(args[0])
			if err != nil {
				return err
			}
			if story.AssignedAgentID != agent.ID {
				return usageErr(fmt.Errorf("%s is assigned to %q, not you", story.ID, story.AssignedAgentID))
			}
			err = h.store.WithTransaction(func(q *store.Queries) error {
				if _, err := q.UpdateStoryStatus(store.UpdateStoryStatusParams{
					ID: story.ID, To: domain.StoryReview,
				}); err != nil {
					return err
				}
				q.AppendLog(store.AppendLogParams{
					AgentID: agent.ID, StoryID: story.ID,
					EventType: domain.EventStoryReviewRequested,
					Message:   "implementation complete, ready for review",
				})
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Println(okStyle.Render(story.ID + " moved to review; submit with `hive pr submit " + story.ID + "`"))
			return nil
		})
	},
}

var refactorOpts struct {
	title string
	desc  string
}

var myStoriesRefactorCmd = &cobra.Command{
	Use:   "refactor <story-id>",
	Short: "File a follow-up refactor story depending on this one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			agent, err := agentIdentity(h)
			if err != nil {
				return err
			}
			if refactorOpts.title == "" {
				return usageErr(fmt.Errorf("--title is required"))
			}
			parent, err := h.store.GetStory(args[0])
			if err != nil {
				return err
			}

			var story *domain.Story
			err = h.store.WithTransaction(func(q *store.Queries) error {
				story, err = q.CreateStory(store.CreateStoryParams{
					ID:            domain.NewStoryID(),
					RequirementID: parent.RequirementID,
					TeamID:        parent.TeamID,
					Title:         refactorOpts.title,
					Description:   refactorOpts.desc,
					Complexity:    2,
					DependsOn:     []string{parent.ID},
					Status:        domain.StoryEstimated,
				})
				if err != nil {
					return err
				}
				q.AppendLog(store.AppendLogParams{
					AgentID: agent.ID, StoryID: story.ID,
					EventType: domain.EventStoryCreated,
					Message:   story.Title,
					Metadata:  map[string]string{"refactor_of": parent.ID},
				})
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Println(okStyle.Render("refactor story " + story.ID + " filed behind " + parent.ID))
			return nil
		})
	},
}

func init() {
	myStoriesCmd.Flags().BoolVar(&myStoriesAll, "all", false, "include merged and draft stories")
	myStoriesRefactorCmd.Flags().StringVar(&refactorOpts.title, "title", "", "refactor story title")
	myStoriesRefactorCmd.Flags().StringVar(&refactorOpts.desc, "desc", "", "refactor story description")
	myStoriesCmd.AddCommand(myStoriesClaimCmd, myStoriesCompleteCmd, myStoriesRefactorCmd)
	rootCmd.AddCommand(myStoriesCmd)
}
