// Package git shells out to the git binary for the few repository
// operations hive needs: cloning team repos and preparing branches.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hivectl/hive/internal/log"
)

var (
	// ErrNotGitRepo indicates the directory is not a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrBranchExists indicates the branch already exists.
	ErrBranchExists = errors.New("branch already exists")
)

// Runner executes git commands rooted at a working directory.
type Runner struct {
	workDir string
}

// NewRunner returns a Runner operating in workDir. An empty workDir runs
// in the process working directory, which only Clone should do.
func NewRunner(workDir string) *Runner {
	return &Runner{workDir: workDir}
}

func (r *Runner) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if r.workDir != "" {
		cmd.Dir = r.workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		log.Debug(log.CatVCS, "git command failed", "args", strings.Join(args, " "), "stderr", msg)
		if msg != "" {
			return "", classify(msg, args)
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func classify(stderr string, args []string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "not a git repository"):
		return fmt.Errorf("git %s: %w", strings.Join(args, " "), ErrNotGitRepo)
	case strings.Contains(lower, "already exists"):
		return fmt.Errorf("git %s: %w", strings.Join(args, " "), ErrBranchExists)
	default:
		return fmt.Errorf("git %s: %s", strings.Join(args, " "), stderr)
	}
}

// Clone clones url into path. A non-empty branch checks that branch out.
func (r *Runner) Clone(ctx context.Context, url, path, branch string) error {
	args := []string{"clone", url, path}
	if branch != "" {
		args = []string{"clone", "--branch", branch, url, path}
	}
	_, err := r.run(ctx, args...)
	return err
}

// CurrentBranch returns the checked-out branch name.
func (r *Runner) CurrentBranch(ctx context.Context) (string, error) {
	return r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// BranchExists reports whether a local branch with the name exists.
func (r *Runner) BranchExists(ctx context.Context, name string) bool {
	_, err := r.run(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// CreateBranch creates a branch from base without checking it out. An
// empty base branches from HEAD.
func (r *Runner) CreateBranch(ctx context.Context, name, base string) error {
	args := []string{"branch", name}
	if base != "" {
		args = append(args, base)
	}
	_, err := r.run(ctx, args...)
	return err
}

// IsRepo reports whether the working directory is inside a git repo.
func (r *Runner) IsRepo(ctx context.Context) bool {
	_, err := r.run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// Fetch updates remote refs, pruning removed branches.
func (r *Runner) Fetch(ctx context.Context) error {
	_, err := r.run(ctx, "fetch", "--prune")
	return err
}
