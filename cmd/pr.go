package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hivectl/hive/internal/connector"
	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/log"
	"github.com/hivectl/hive/internal/paths"
	"github.com/hivectl/hive/internal/store"
)

var prOpts struct {
	notes string
	all   bool
}

var prCmd = &cobra.Command{
	Use:   "pr",
	Short: "Merge-queue operations",
}

var prSubmitCmd = &cobra.Command{
	Use:   "submit <story-id>",
	Short: "Submit the story branch as a pull request",
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
			if story.Branch == "" {
				return usageErr(fmt.Errorf("%s has no branch recorded", story.ID))
			}
			team, err := h.store.GetTeam(story.TeamID)
			if err != nil {
				return err
			}

			var pr *domain.PullRequest
			err = h.store.WithTransaction(func(q *store.Queries) error {
				// A straight-to-submit story passes through review first.
				if story.Status == domain.StoryInProgress {
					if _, err := q.UpdateStoryStatus(store.UpdateStoryStatusParams{
						ID: story.ID, To: domain.StoryReview,
					}); err != nil {
						return err
					}
				}
				if _, err := q.UpdateStoryStatus(store.UpdateStoryStatusParams{
					ID: story.ID, To: domain.StoryPRSubmitted,
				}); err != nil {
					return err
				}
				pr, err = q.CreatePullRequest(store.CreatePullRequestParams{
					ID:               domain.NewPullRequestID(),
					StoryID:          story.ID,
					TeamID:           story.TeamID,
					Branch:           story.Branch,
					SubmitterAgentID: agent.ID,
				})
				if err != nil {
					return err
				}
				// Hands are free for the next story.
				if agent.CurrentStoryID == story.ID {
					if err := q.UpdateAgentStatus(agent.ID, domain.AgentWorking, ""); err != nil {
						return err
					}
				}
				q.AppendLog(store.AppendLogParams{
					AgentID: agent.ID, StoryID: story.ID,
					EventType: domain.EventPRSubmitted,
					Message:   "pull request queued",
					Metadata:  map[string]string{"pr": pr.ID, "branch": pr.Branch},
				})
				return nil
			})
			if err != nil {
				return err
			}

			// Host submission happens outside the lock; failure leaves the PR
			// queued locally and the manager reports it on the next pass.
			pushPRUpstream(cmd.Context(), h, team, story, pr)

			fmt.Println(okStyle.Render("pull request " + pr.ID + " queued for " + story.ID))
			return nil
		})
	},
}

func pushPRUpstream(ctx context.Context, h *hiveCtx, team *domain.Team, story *domain.Story, pr *domain.PullRequest) {
	if h.vcs == nil {
		return
	}
	vcsCtx, cancel := context.WithTimeout(ctx, h.cfg.VCS.Timeout)
	defer cancel()

	ext, err := h.vcs.SubmitPR(vcsCtx, connector.PRSpec{
		RepoPath:   paths.TeamRepo(h.dir, team.RepoPath),
		Title:      fmt.Sprintf("%s: %s", story.ID, story.Title),
		Body:       story.Description,
		HeadBranch: pr.Branch,
		BaseBranch: h.cfg.VCS.DefaultBranch,
	})
	if err != nil {
		log.Warn(log.CatVCS, "host submission failed, pr stays local",
			"pr", pr.ID, "error", err)
		return
	}
	if err := h.store.SetPRExternal(pr.ID, ext.Number, ext.URL); err != nil {
		log.Warn(log.CatVCS, "recording external pr failed", "pr", pr.ID, "error", err)
	}
}

var prQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show the merge queue, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			statuses := []domain.PRStatus{domain.PRQueued, domain.PRReviewing}
			if prOpts.all {
				statuses = nil
			}
			return eachTeamPR(h, statuses, func(team *domain.Team, pr *domain.PullRequest) {
				reviewer := pr.ReviewerAgentID
				if reviewer == "" {
					reviewer = "-"
				}
				fmt.Printf("%s  [%-9s]  %-14s  #%-4d %-20s %s\n",
					pr.ID, pr.Status, team.Name, pr.ExternalNumber, reviewer, pr.Branch)
			})
		})
	},
}

func eachTeamPR(h *hiveCtx, statuses []domain.PRStatus, fn func(*domain.Team, *domain.PullRequest)) error {
	teams, err := h.store.ListTeams()
	if err != nil {
		return err
	}
	for _, team := range teams {
		prs, err := h.store.ListPullRequests(team.ID, statuses...)
		if err != nil {
			return err
		}
		for _, pr := range prs {
			fn(team, pr)
		}
	}
	return nil
}

var prShowCmd = &cobra.Command{
	Use:   "show <pr-id>",
	Short: "Show one pull request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			pr, err := h.store.GetPullRequest(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s  [%s]  story=%s  branch=%s\n", pr.ID, pr.Status, pr.StoryID, pr.Branch)
			if pr.ExternalNumber != 0 {
				fmt.Println(dimStyle.Render(fmt.Sprintf("#%d %s", pr.ExternalNumber, pr.ExternalURL)))
			}
			if pr.ReviewerAgentID != "" {
				fmt.Println(dimStyle.Render("reviewer: " + pr.ReviewerAgentID))
			}
			if pr.ReviewNotes != "" {
				fmt.Println("notes: " + pr.ReviewNotes)
			}
			return nil
		})
	},
}

var prReviewCmd = &cobra.Command{
	Use:   "review [pr-id]",
	Short: "Claim a pull request for review (oldest queued when no id)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			agent, err := agentIdentity(h)
			if err != nil {
				return err
			}

			var pr *domain.PullRequest
			if len(args) == 1 {
				pr, err = h.store.GetPullRequest(args[0])
			} else {
				pr, err = h.store.OldestQueuedPR(agent.TeamID)
			}
			if err != nil {
				return err
			}

			err = h.store.WithTransaction(func(q *store.Queries) error {
				if _, err := q.UpdatePRStatus(store.UpdatePRStatusParams{
					ID: pr.ID, To: domain.PRReviewing, ReviewerAgentID: agent.ID,
				}); err != nil {
					return err
				}
				if _, err := q.UpdateStoryStatus(store.UpdateStoryStatusParams{
					ID: pr.StoryID, To: domain.StoryQA,
				}); err != nil {
					return err
				}
				q.AppendLog(store.AppendLogParams{
					AgentID: agent.ID, StoryID: pr.StoryID,
					EventType: domain.EventPRReviewStarted,
					Message:   "review started",
					Metadata:  map[string]string{"pr": pr.ID},
				})
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Println(okStyle.Render("reviewing " + pr.ID + " (branch " + pr.Branch + ")"))
			return nil
		})
	},
}

var prApproveCmd = &cobra.Command{
	Use:   "approve <pr-id>",
	Short: "Approve a reviewed pull request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			pr, err := h.store.GetPullRequest(args[0])
			if err != nil {
				return err
			}
			err = h.store.WithTransaction(func(q *store.Queries) error {
				if _, err := q.UpdatePRStatus(store.UpdatePRStatusParams{
					ID: pr.ID, To: domain.PRApproved, ReviewNotes: prOpts.notes,
				}); err != nil {
					return err
				}
				q.AppendLog(store.AppendLogParams{
					AgentID: actorID(), StoryID: pr.StoryID,
					EventType: domain.EventPRApproved,
					Message:   "approved",
					Metadata:  map[string]string{"pr": pr.ID},
				})
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Println(okStyle.Render(pr.ID + " approved; the manager merges it on the next tick"))
			return nil
		})
	},
}

var prRejectCmd = &cobra.Command{
	Use:   "reject <pr-id>",
	Short: "Reject a reviewed pull request back to its author",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			if prOpts.notes == "" {
				return usageErr(fmt.Errorf("--notes is required on reject"))
			}
			pr, err := h.store.GetPullRequest(args[0])
			if err != nil {
				return err
			}
			err = h.store.WithTransaction(func(q *store.Queries) error {
				if _, err := q.UpdatePRStatus(store.UpdatePRStatusParams{
					ID: pr.ID, To: domain.PRRejected, ReviewNotes: prOpts.notes,
				}); err != nil {
					return err
				}
				if _, err := q.UpdateStoryStatus(store.UpdateStoryStatusParams{
					ID: pr.StoryID, To: domain.StoryQAFailed,
				}); err != nil {
					return err
				}
				q.AppendLog(store.AppendLogParams{
					AgentID: actorID(), StoryID: pr.StoryID,
					EventType: domain.EventPRRejected,
					Message:   prOpts.notes,
					Metadata:  map[string]string{"pr": pr.ID},
				})
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Println(okStyle.Render(pr.ID + " rejected; " + pr.StoryID + " is back with its author"))
			return nil
		})
	},
}

var prSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile local pull requests against the VCS host",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			teams, err := h.store.ListTeams()
			if err != nil {
				return err
			}
			for _, team := range teams {
				if err := syncTeamPRs(cmd.Context(), h, team); err != nil {
					log.Warn(log.CatVCS, "pr sync failed for team, continuing",
						"team", team.Name, "error", err)
				}
			}
			fmt.Println(okStyle.Render("merge queue reconciled"))
			return nil
		})
	},
}

// syncTeamPRs repairs missing external numbers by branch match and closes
// local PRs the host no longer lists as open.
func syncTeamPRs(ctx context.Context, h *hiveCtx, team *domain.Team) error {
	vcsCtx, cancel := context.WithTimeout(ctx, h.cfg.VCS.Timeout)
	defer cancel()

	hostOpen, err := h.vcs.ListOpenPRs(vcsCtx, paths.TeamRepo(h.dir, team.RepoPath))
	if err != nil {
		return err
	}
	openByNumber := map[int]bool{}
	openByBranch := map[string]connector.ExternalPR{}
	for _, ext := range hostOpen {
		openByNumber[ext.Number] = true
		openByBranch[ext.HeadBranch] = ext
	}

	local, err := h.store.ListPullRequests(team.ID,
		domain.PRQueued, domain.PRReviewing, domain.PRApproved)
	if err != nil {
		return err
	}
	for _, pr := range local {
		if pr.ExternalNumber == 0 {
			if ext, ok := openByBranch[pr.Branch]; ok {
				if err := h.store.SetPRExternal(pr.ID, ext.Number, ext.URL); err != nil {
					return err
				}
				fmt.Printf("repaired  %s -> #%d\n", pr.ID, ext.Number)
			}
			continue
		}
		if openByNumber[pr.ExternalNumber] {
			continue
		}
		// The host closed or merged it behind our back; mirror the closure
		// and let a human requeue the story if work remains.
		err := h.store.WithTransaction(func(q *store.Queries) error {
			if _, err := q.UpdatePRStatus(store.UpdatePRStatusParams{
				ID: pr.ID, To: domain.PRClosed,
			}); err != nil {
				return err
			}
			q.AppendLog(store.AppendLogParams{
				AgentID: actorID(), StoryID: pr.StoryID,
				EventType: domain.EventPRClosed,
				Message:   "closed on host, mirrored locally",
				Metadata:  map[string]string{"pr": pr.ID, "number": fmt.Sprint(pr.ExternalNumber)},
			})
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Printf("closed    %s (#%d gone from host)\n", pr.ID, pr.ExternalNumber)
	}
	return nil
}

func init() {
	prQueueCmd.Flags().BoolVar(&prOpts.all, "all", false, "include merged, rejected and closed PRs")
	prApproveCmd.Flags().StringVar(&prOpts.notes, "notes", "", "review notes")
	prRejectCmd.Flags().StringVar(&prOpts.notes, "notes", "", "review notes (required)")
	prCmd.AddCommand(prSubmitCmd, prQueueCmd, prShowCmd, prReviewCmd, prApproveCmd, prRejectCmd, prSyncCmd)
	rootCmd.AddCommand(prCmd)
}
