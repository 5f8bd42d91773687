package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/log"
	"github.com/hivectl/hive/internal/store"
)

var storyCreateOpts struct {
	req        string
	team       string
	title      string
	desc       string
	criteria   []string
	complexity int
	points     int
	dependsOn  []string
}

var storyCmd = &cobra.Command{
	Use:   "story",
	Short: "Story operations",
}

var storyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an estimated story under a requirement",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			if storyCreateOpts.req == "" || storyCreateOpts.team == "" || storyCreateOpts.title == "" {
				return usageErr(fmt.Errorf("--req, --team and --title are required"))
			}
			team, err := h.store.GetTeamByName(storyCreateOpts.team)
			if err != nil {
				return err
			}
			if _, err := h.store.GetRequirement(storyCreateOpts.req); err != nil {
				return err
			}

			var story *domain.Story
			err = h.store.WithTransaction(func(q *store.Queries) error {
				story, err = q.CreateStory(store.CreateStoryParams{
					ID:                 domain.NewStoryID(),
					RequirementID:      storyCreateOpts.req,
					TeamID:             team.ID,
					Title:              storyCreateOpts.title,
					Description:        storyCreateOpts.desc,
					AcceptanceCriteria: storyCreateOpts.criteria,
					Complexity:         storyCreateOpts.complexity,
					StoryPoints:        storyCreateOpts.points,
					DependsOn:          storyCreateOpts.dependsOn,
					Status:             domain.StoryEstimated,
				})
				if err != nil {
					return err
				}
				q.AppendLog(store.AppendLogParams{
					AgentID:   actorID(),
					StoryID:   story.ID,
					EventType: domain.EventStoryCreated,
					Message:   story.Title,
					Metadata:  map[string]string{"requirement": story.RequirementID, "complexity": fmt.Sprint(story.Complexity)},
				})
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Println(okStyle.Render("story " + story.ID + " created (estimated)"))
			return nil
		})
	},
}

var progressOpts struct {
	message string
	done    bool
}

var progressCmd = &cobra.Command{
	Use:   "progress <story-id>",
	Short: "Record progress on an assigned story",
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
			if progressOpts.message == "" && !progressOpts.done {
				return usageErr(fmt.Errorf("nothing to record: pass -m and/or --done"))
			}

			err = h.store.WithTransaction(func(q *store.Queries) error {
				if progressOpts.message != "" {
					started, err := q.CountLogs(store.ListLogsParams{
						StoryID: story.ID, EventType: domain.EventStoryProgressUpdate,
					})
					if err != nil {
						return err
					}
					if started == 0 {
						q.AppendLog(store.AppendLogParams{
							AgentID: agent.ID, StoryID: story.ID,
							EventType: domain.EventStoryStarted,
							Message:   "work started",
						})
					}
					q.AppendLog(store.AppendLogParams{
						AgentID: agent.ID, StoryID: story.ID,
						EventType: domain.EventStoryProgressUpdate,
						Message:   progressOpts.message,
					})
				}
				if progressOpts.done {
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
				}
				return nil
			})
			if err != nil {
				return err
			}

			postProgressComment(cmd.Context(), h, story, progressOpts.message)

			if progressOpts.done {
				fmt.Println(okStyle.Render(story.ID + " moved to review; submit with `hive pr submit " + story.ID + "`"))
			} else {
				fmt.Println(okStyle.Render("progress recorded"))
			}
			return nil
		})
	},
}

// postProgressComment mirrors progress to the PM issue when enabled.
// Provider failures never block the agent.
func postProgressComment(ctx context.Context, h *hiveCtx, story *domain.Story, msg string) {
	if msg == "" || !h.cfg.PM.ProgressComments || story.ExternalIssueKey == "" {
		return
	}
	pmCtx, cancel := context.WithTimeout(ctx, h.cfg.PM.Timeout)
	defer cancel()
	if err := h.pm.PostComment(pmCtx, story.ExternalIssueKey, msg); err != nil {
		log.Warn(log.CatPM, "progress comment failed", "story", story.ID, "error", err)
	}
}

var approachCmd = &cobra.Command{
	Use:   "approach <story-id>",
	Short: "Record the planned approach before starting work",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			agent, err := agentIdentity(h)
			if err != nil {
				return err
			}
			if progressOpts.message == "" {
				return usageErr(fmt.Errorf("-m is required"))
			}
			story, err := h.store.GetStory(args[0])
			if err != nil {
				return err
			}
			h.store.AppendLog(store.AppendLogParams{
				AgentID: agent.ID, StoryID: story.ID,
				EventType: domain.EventStoryProgressUpdate,
				Message:   "approach: " + progressOpts.message,
			})
			fmt.Println(okStyle.Render("approach recorded"))
			return nil
		})
	},
}

// actorID names the event author: the calling agent when run inside a
// session, otherwise the human CLI.
func actorID() string {
	if id := envAgentID(); id != "" {
		return id
	}
	return "cli"
}

func init() {
	storyCreateCmd.Flags().StringVar(&storyCreateOpts.req, "req", "", "requirement id")
	storyCreateCmd.Flags().StringVar(&storyCreateOpts.team, "team", "", "team name")
	storyCreateCmd.Flags().StringVar(&storyCreateOpts.title, "title", "", "story title")
	storyCreateCmd.Flags().StringVar(&storyCreateOpts.desc, "desc", "", "story description")
	storyCreateCmd.Flags().StringArrayVar(&storyCreateOpts.criteria, "criteria", nil, "acceptance criterion (repeatable)")
	storyCreateCmd.Flags().IntVar(&storyCreateOpts.complexity, "complexity", 1, "Fibonacci complexity 1..13")
	storyCreateCmd.Flags().IntVar(&storyCreateOpts.points, "points", 0, "story points for the PM board")
	storyCreateCmd.Flags().StringArrayVar(&storyCreateOpts.dependsOn, "depends", nil, "story id that must merge first (repeatable)")
	storyCmd.AddCommand(storyCreateCmd)

	progressCmd.Flags().StringVarP(&progressOpts.message, "message", "m", "", "progress note")
	progressCmd.Flags().BoolVar(&progressOpts.done, "done", false, "mark implementation complete (moves to review)")
	approachCmd.Flags().StringVarP(&progressOpts.message, "message", "m", "", "approach note")

	rootCmd.AddCommand(storyCmd, progressCmd, approachCmd)
}
