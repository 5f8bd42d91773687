// Command hive is the multi-agent delivery orchestrator CLI.
package main

import (
	"fmt"
	"os"

	"github.com/hivectl/hive/cmd"
)

// Build information injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersion(fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date))
	os.Exit(cmd.Execute())
}
