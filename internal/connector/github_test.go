package connector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivectl/hive/internal/config"
)

type fakeRunner struct {
	calls [][]string
	out   map[string]string
	err   map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{out: map[string]string{}, err: map[string]error{}}
}

func (f *fakeRunner) Run(_ context.Context, dir, name string, args ...string) (string, error) {
	call := append([]string{dir, name}, args...)
	f.calls = append(f.calls, call)
	key := name + " " + args[0]
	if len(args) > 1 {
		key += " " + args[1]
	}
	return f.out[key], f.err[key]
}

func TestGitHub_SubmitPR(t *testing.T) {
	f := newFakeRunner()
	f.out["gh pr create"] = "https://github.com/org/payments/pull/42\n"
	g := NewGitHub(config.VCSConfig{}, f)

	pr, err := g.SubmitPR(context.Background(), PRSpec{
		RepoPath:   "/repos/payments",
		Title:      "STORY-ab12cd: refund endpoint",
		Body:       "Implements the refund endpoint.",
		HeadBranch: "story/STORY-ab12cd",
		BaseBranch: "feature/REQ-x",
	})
	require.NoError(t, err)
	assert.Equal(t, 42, pr.Number)
	assert.Equal(t, "https://github.com/org/payments/pull/42", pr.URL)

	require.Len(t, f.calls, 1)
	assert.Equal(t, "/repos/payments", f.calls[0][0])
	assert.Contains(t, f.calls[0], "--head")
	assert.Contains(t, f.calls[0], "story/STORY-ab12cd")
}

func TestGitHub_MergePRFlags(t *testing.T) {
	f := newFakeRunner()
	g := NewGitHub(config.VCSConfig{}, f)

	require.NoError(t, g.MergePR(context.Background(), "/r", 7, MergeOpts{Squash: true, DeleteBranch: true}))
	require.Len(t, f.calls, 1)
	assert.Equal(t, []string{"/r", "gh", "pr", "merge", "7", "--squash", "--delete-branch"}, f.calls[0])

	f.calls = nil
	require.NoError(t, g.MergePR(context.Background(), "/r", 7, MergeOpts{}))
	assert.Equal(t, []string{"/r", "gh", "pr", "merge", "7", "--merge"}, f.calls[0])
}

func TestGitHub_ListOpenPRs(t *testing.T) {
	f := newFakeRunner()
	f.out["gh pr list"] = `[
		{"number": 3, "url": "u3", "headRefName": "story/a", "baseRefName": "feature/x", "state": "OPEN"},
		{"number": 5, "url": "u5", "headRefName": "story/b", "baseRefName": "feature/x", "state": "OPEN"}
	]`
	g := NewGitHub(config.VCSConfig{}, f)

	prs, err := g.ListOpenPRs(context.Background(), "/r")
	require.NoError(t, err)
	require.Len(t, prs, 2)
	assert.Equal(t, 3, prs[0].Number)
	assert.Equal(t, "story/a", prs[0].HeadBranch)
	assert.Equal(t, "open", prs[0].State)
}

func TestGitHub_CreateBranch_ExistingIsFine(t *testing.T) {
	f := newFakeRunner()
	f.err["git branch feature/REQ-x"] = errors.New(`git branch: a branch named 'feature/REQ-x' already exists`)
	g := NewGitHub(config.VCSConfig{}, f)

	require.NoError(t, g.CreateBranch(context.Background(), "/r", "feature/REQ-x", "main"))

	// Push still happens.
	require.Len(t, f.calls, 2)
	assert.Equal(t, []string{"/r", "git", "push", "-u", "origin", "feature/REQ-x"}, f.calls[1])
}

func TestGitHub_NotifyReviewer(t *testing.T) {
	g := NewGitHub(config.VCSConfig{}, newFakeRunner())

	// Without a channel, dropped silently.
	assert.NoError(t, g.NotifyReviewer(context.Background(), "hive-qa-payments", "PR ready"))

	var gotSession, gotText string
	g.Notify = func(_ context.Context, session, text string) error {
		gotSession, gotText = session, text
		return nil
	}
	require.NoError(t, g.NotifyReviewer(context.Background(), "hive-qa-payments", "PR ready"))
	assert.Equal(t, "hive-qa-payments", gotSession)
	assert.Equal(t, "PR ready", gotText)
}
