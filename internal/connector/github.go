package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hivectl/hive/internal/config"
	"github.com/hivectl/hive/internal/log"
)

func init() {
	RegisterVCS("github", func(cfg config.VCSConfig) (VCS, error) {
		return NewGitHub(cfg, nil), nil
	})
}

// CmdRunner runs a command in a directory and returns its stdout. Injected
// so tests run without gh or git installed.
type CmdRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

type execCmdRunner struct{}

func (execCmdRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s %s: %s", name, args[0], msg)
	}
	return stdout.String(), nil
}

// GitHub implements VCS on top of the gh CLI, which carries the host auth so
// the control plane stores no VCS token of its own.
type GitHub struct {
	runner  CmdRunner
	timeout time.Duration

	// Notify delivers reviewer notifications; the manager wires it to the
	// session supervisor. Nil means notifications are dropped.
	Notify func(ctx context.Context, session, text string) error
}

// NewGitHub builds the adapter. runner may be nil for the real CLI.
func NewGitHub(cfg config.VCSConfig, runner CmdRunner) *GitHub {
	if runner == nil {
		runner = execCmdRunner{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GitHub{runner: runner, timeout: timeout}
}

func (g *GitHub) run(ctx context.Context, dir, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.runner.Run(ctx, dir, name, args...)
}

// SubmitPR opens a PR from spec.HeadBranch into spec.BaseBranch.
func (g *GitHub) SubmitPR(ctx context.Context, spec PRSpec) (ExternalPR, error) {
	out, err := g.run(ctx, spec.RepoPath, "gh", "pr", "create",
		"--title", spec.Title,
		"--body", spec.Body,
		"--head", spec.HeadBranch,
		"--base", spec.BaseBranch,
	)
	if err != nil {
		return ExternalPR{}, fmt.Errorf("submitting PR: %w", err)
	}

	url := strings.TrimSpace(out)
	pr := ExternalPR{
		URL:        url,
		HeadBranch: spec.HeadBranch,
		BaseBranch: spec.BaseBranch,
		State:      "open",
	}
	// gh prints the PR URL; the trailing path element is the number.
	if i := strings.LastIndexByte(url, '/'); i >= 0 {
		if n, err := strconv.Atoi(url[i+1:]); err == nil {
			pr.Number = n
		}
	}
	log.Info(log.CatVCS, "pr submitted", "head", spec.HeadBranch, "number", pr.Number)
	return pr, nil
}

// ApprovePR approves the PR by number.
func (g *GitHub) ApprovePR(ctx context.Context, repoPath string, number int) error {
	_, err := g.run(ctx, repoPath, "gh", "pr", "review", strconv.Itoa(number), "--approve")
	if err != nil {
		return fmt.Errorf("approving PR #%d: %w", number, err)
	}
	return nil
}

// MergePR merges the PR by number.
func (g *GitHub) MergePR(ctx context.Context, repoPath string, number int, opts MergeOpts) error {
	args := []string{"pr", "merge", strconv.Itoa(number)}
	if opts.Squash {
		args = append(args, "--squash")
	} else {
		args = append(args, "--merge")
	}
	if opts.DeleteBranch {
		args = append(args, "--delete-branch")
	}
	if _, err := g.run(ctx, repoPath, "gh", args...); err != nil {
		return fmt.Errorf("merging PR #%d: %w", number, err)
	}
	log.Info(log.CatVCS, "pr merged", "number", number, "squash", opts.Squash)
	return nil
}

// ListOpenPRs lists the repository's open PRs.
func (g *GitHub) ListOpenPRs(ctx context.Context, repoPath string) ([]ExternalPR, error) {
	out, err := g.run(ctx, repoPath, "gh", "pr", "list",
		"--state", "open",
		"--json", "number,url,headRefName,baseRefName,state",
	)
	if err != nil {
		return nil, fmt.Errorf("listing PRs: %w", err)
	}

	var raw []struct {
		Number      int    `json:"number"`
		URL         string `json:"url"`
		HeadRefName string `json:"headRefName"`
		BaseRefName string `json:"baseRefName"`
		State       string `json:"state"`
	}
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("parsing gh pr list output: %w", err)
	}

	prs := make([]ExternalPR, 0, len(raw))
	for _, r := range raw {
		prs = append(prs, ExternalPR{
			Number:     r.Number,
			URL:        r.URL,
			HeadBranch: r.HeadRefName,
			BaseBranch: r.BaseRefName,
			State:      strings.ToLower(r.State),
		})
	}
	return prs, nil
}

// CreateBranch creates and pushes a branch off from.
func (g *GitHub) CreateBranch(ctx context.Context, repoPath, name, from string) error {
	if _, err := g.run(ctx, repoPath, "git", "branch", name, from); err != nil {
		// Re-runs are fine; the branch may already exist.
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("creating branch %s: %w", name, err)
		}
	}
	if _, err := g.run(ctx, repoPath, "git", "push", "-u", "origin", name); err != nil {
		return fmt.Errorf("pushing branch %s: %w", name, err)
	}
	return nil
}

// NotifyReviewer delivers text to the reviewer's session via the injected
// channel.
func (g *GitHub) NotifyReviewer(ctx context.Context, session, text string) error {
	if g.Notify == nil {
		log.Debug(log.CatVCS, "reviewer notification dropped, no channel", "session", session)
		return nil
	}
	return g.Notify(ctx, session, text)
}

var _ VCS = (*GitHub)(nil)
