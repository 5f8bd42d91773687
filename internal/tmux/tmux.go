// Package tmux drives the tmux sessions that host agent CLI processes. Every
// agent is one detached session; the supervisor is the only code that shells
// out to tmux.
package tmux

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hivectl/hive/internal/log"
)

// SessionPrefix namespaces every session the supervisor owns. Sessions
// without it are never touched.
const SessionPrefix = "hive-"

// Executor runs a tmux command and returns its stdout. Injected so tests can
// run without a tmux server.
type Executor interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// execRunner shells out to the real tmux binary.
type execRunner struct{}

// NewExecutor returns the production executor.
func NewExecutor() Executor { return execRunner{} }

func (execRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "tmux", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		log.Debug(log.CatTmux, "tmux command failed", "args", strings.Join(args, " "), "error", msg)
		return "", fmt.Errorf("tmux %s: %s", args[0], msg)
	}
	return stdout.String(), nil
}
