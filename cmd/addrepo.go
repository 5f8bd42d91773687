package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/git"
	"github.com/hivectl/hive/internal/paths"
	"github.com/hivectl/hive/internal/store"
)

var addRepoOpts struct {
	url    string
	team   string
	branch string
}

var addRepoCmd = &cobra.Command{
	Use:   "add-repo",
	Short: "Register a team and clone its repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			if addRepoOpts.url == "" || addRepoOpts.team == "" {
				return usageErr(fmt.Errorf("--url and --team are required"))
			}

			slug := domain.Slugify(addRepoOpts.team)
			team, err := h.store.CreateTeam(store.CreateTeamParams{
				ID:       domain.NewTeamID(),
				Name:     addRepoOpts.team,
				RepoURL:  addRepoOpts.url,
				RepoPath: slug,
			})
			if err != nil {
				return err
			}

			dest := paths.TeamRepo(h.dir, slug)
			if err := git.NewRunner("").Clone(cmd.Context(), addRepoOpts.url, dest, addRepoOpts.branch); err != nil {
				return fmt.Errorf("cloning %s: %w", addRepoOpts.url, err)
			}

			fmt.Println(okStyle.Render(fmt.Sprintf("team %s registered (%s)", team.Name, team.ID)))
			fmt.Println(dimStyle.Render("working tree: " + dest))
			return nil
		})
	},
}

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "List registered teams",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHive(func(h *hiveCtx) error {
			teams, err := h.store.ListTeams()
			if err != nil {
				return err
			}
			if len(teams) == 0 {
				fmt.Println(dimStyle.Render("no teams registered"))
				return nil
			}
			for _, t := range teams {
				fmt.Printf("%s  %-20s %s\n", t.ID, t.Name, t.RepoURL)
			}
			return nil
		})
	},
}

func init() {
	addRepoCmd.Flags().StringVar(&addRepoOpts.url, "url", "", "git clone URL")
	addRepoCmd.Flags().StringVar(&addRepoOpts.team, "team", "", "team name")
	addRepoCmd.Flags().StringVar(&addRepoOpts.branch, "branch", "", "branch to check out (default: remote HEAD)")
	rootCmd.AddCommand(addRepoCmd)
	rootCmd.AddCommand(teamsCmd)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n-1]) + "…"
}
