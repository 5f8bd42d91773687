package cmd

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hivectl/hive/internal/config"
	"github.com/hivectl/hive/internal/connector"
	"github.com/hivectl/hive/internal/paths"
)

var authToken string

var authCmd = &cobra.Command{
	Use:   "auth <provider>",
	Short: "Store a project-management provider token",
	Long: `Writes the API token for a PM provider into the workspace config.
The token is read from --token, the HIVE_PM_TOKEN environment variable,
or stdin, in that order.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider := strings.ToLower(args[0])
		if !slices.Contains(connector.RegisteredPMs(), provider) {
			return usageErr(fmt.Errorf("unknown provider %q (have: %s)",
				provider, strings.Join(connector.RegisteredPMs(), ", ")))
		}

		token := authToken
		if token == "" {
			token = os.Getenv("HIVE_PM_TOKEN")
		}
		if token == "" {
			fmt.Fprint(os.Stderr, "token: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading token: %w", err)
			}
			token = strings.TrimSpace(line)
		}
		if token == "" {
			return usageErr(fmt.Errorf("empty token"))
		}

		if err := config.SaveProviderToken(paths.Config(hiveDir), provider, token); err != nil {
			return err
		}
		fmt.Println(okStyle.Render("token saved for " + provider))
		return nil
	},
}

func init() {
	authCmd.Flags().StringVar(&authToken, "token", "", "provider API token")
	rootCmd.AddCommand(authCmd)
}
