// Package connector defines the narrow provider-agnostic interfaces the core
// uses to talk to the VCS host and the project-management tool, plus the
// provider registries. Implementations register themselves by name in init()
// and are selected by configuration; connector failures are warnings to the
// pipeline, never fatal.
package connector

import (
	"context"
	"fmt"

	"github.com/hivectl/hive/internal/config"
)

// ExternalPR is a pull request as the VCS host sees it.
type ExternalPR struct {
	Number     int
	URL        string
	HeadBranch string
	BaseBranch string
	State      string
}

// PRSpec describes a PR submission.
type PRSpec struct {
	RepoPath   string
	Title      string
	Body       string
	HeadBranch string
	BaseBranch string
}

// MergeOpts controls how a PR is merged.
type MergeOpts struct {
	Squash       bool
	DeleteBranch bool
}

// VCS is the version-control host adapter.
type VCS interface {
	SubmitPR(ctx context.Context, spec PRSpec) (ExternalPR, error)
	ApprovePR(ctx context.Context, repoPath string, number int) error
	MergePR(ctx context.Context, repoPath string, number int, opts MergeOpts) error
	ListOpenPRs(ctx context.Context, repoPath string) ([]ExternalPR, error)
	CreateBranch(ctx context.Context, repoPath, name, from string) error
	// NotifyReviewer pushes review context to the reviewer's session. The
	// delivery channel is injected by the caller; without one it is a no-op.
	NotifyReviewer(ctx context.Context, session, text string) error
}

// Issue is a PM work item in provider-neutral shape.
type Issue struct {
	Key         string
	Summary     string
	Description string
	Status      string
	Type        string
}

// Epic is a PM epic with its child issues.
type Epic struct {
	Key         string
	Summary     string
	Description string
	Issues      []Issue
}

// PM is the project-management provider adapter.
type PM interface {
	FetchEpic(ctx context.Context, key string) (*Epic, error)
	CreateEpic(ctx context.Context, summary, description string) (string, error)
	CreateStory(ctx context.Context, epicKey, summary, description string, points int) (string, error)
	TransitionStory(ctx context.Context, issueKey, targetStatus string) error
	CreateSubtask(ctx context.Context, parentKey, summary string) (string, error)
	TransitionSubtask(ctx context.Context, subtaskKey, targetStatus string) error
	PostComment(ctx context.Context, issueKey, body string) error
	PostSignOffReport(ctx context.Context, epicKey, report string) error
	SearchIssues(ctx context.Context, query string) ([]Issue, error)
	GetIssue(ctx context.Context, key string) (*Issue, error)
	AddToActiveSprint(ctx context.Context, issueKey string) error
}

type vcsFactory func(cfg config.VCSConfig) (VCS, error)

type pmFactory func(cfg config.PMConfig) (PM, error)

var (
	vcsRegistry = map[string]vcsFactory{}
	pmRegistry  = map[string]pmFactory{}
)

// RegisterVCS registers a VCS factory under a provider name. Called from
// provider package init().
func RegisterVCS(name string, factory func(cfg config.VCSConfig) (VCS, error)) {
	vcsRegistry[name] = factory
}

// RegisterPM registers a PM factory under a provider name.
func RegisterPM(name string, factory func(cfg config.PMConfig) (PM, error)) {
	pmRegistry[name] = factory
}

// NewVCS builds the configured VCS adapter.
func NewVCS(cfg config.VCSConfig) (VCS, error) {
	factory, ok := vcsRegistry[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown vcs provider %q", cfg.Provider)
	}
	return factory(cfg)
}

// NewPM builds the configured PM adapter. An empty provider name yields the
// silent no-op adapter, so callers never branch on "is PM configured".
func NewPM(cfg config.PMConfig) (PM, error) {
	if cfg.Provider == "" {
		return NoopPM{}, nil
	}
	factory, ok := pmRegistry[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown pm provider %q", cfg.Provider)
	}
	return factory(cfg)
}

// RegisteredPMs lists the available PM provider names.
func RegisteredPMs() []string {
	names := make([]string, 0, len(pmRegistry))
	for n := range pmRegistry {
		names = append(names, n)
	}
	return names
}
