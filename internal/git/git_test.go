package git

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	err := classify("fatal: not a git repository (or any of the parent directories): .git",
		[]string{"rev-parse", "--git-dir"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotGitRepo))
	assert.Contains(t, err.Error(), "rev-parse --git-dir")

	err = classify("fatal: a branch named 'feature/refunds' already exists",
		[]string{"branch", "feature/refunds"})
	assert.True(t, errors.Is(err, ErrBranchExists))

	err = classify("error: could not lock config file .git/config", []string{"fetch"})
	assert.False(t, errors.Is(err, ErrNotGitRepo))
	assert.False(t, errors.Is(err, ErrBranchExists))
	assert.Contains(t, err.Error(), "could not lock config file")
}
