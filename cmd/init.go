package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hivectl/hive/internal/config"
	"github.com/hivectl/hive/internal/paths"
	"github.com/hivectl/hive/internal/store"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the hive workspace and database",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(paths.DB(hiveDir)); err == nil && !initForce {
			return usageErr(fmt.Errorf("workspace already exists at %s (use --force to reinitialise)", hiveDir))
		}

		for _, dir := range []string{
			hiveDir,
			paths.Memory(hiveDir),
			paths.Repos(hiveDir),
			paths.Logs(hiveDir),
		} {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return fmt.Errorf("creating %s: %w", dir, err)
			}
		}

		if err := config.WriteDefaultConfig(paths.Config(hiveDir), initForce); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		db, err := store.NewDB(paths.DB(hiveDir))
		if err != nil {
			return fmt.Errorf("creating database: %w", err)
		}
		if err := db.Close(); err != nil {
			return err
		}

		fmt.Println(okStyle.Render("initialised hive workspace at " + hiveDir))
		fmt.Println(dimStyle.Render("next: `hive add-repo --url <git-url> --team <name>`"))
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "reinitialise over an existing workspace")
	rootCmd.AddCommand(initCmd)
}
