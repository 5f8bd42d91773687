package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivectl/hive/internal/config"
	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/paths"
)

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, 0, exitCodeFor(nil))
	assert.Equal(t, 1, exitCodeFor(usageErr(errors.New("bad flag"))))
	assert.Equal(t, 1, exitCodeFor(fmt.Errorf("loading: %w", domain.ErrNotFound)))
	assert.Equal(t, 1, exitCodeFor(fmt.Errorf("moving: %w", domain.ErrInvalidState)))
	assert.Equal(t, 1, exitCodeFor(fmt.Errorf("inserting: %w", domain.ErrConflict)))
	assert.Equal(t, 2, exitCodeFor(errors.New("disk on fire")))
}

func TestWithHive_NoWorkspaceIsUsageError(t *testing.T) {
	hiveDir = filepath.Join(t.TempDir(), ".hive")
	cfg = config.Defaults()

	err := withHive(func(h *hiveCtx) error { return nil })
	require.Error(t, err)
	var ue usageError
	assert.True(t, errors.As(err, &ue))
}

func TestInit_CreatesWorkspaceOnceThenRefuses(t *testing.T) {
	hiveDir = filepath.Join(t.TempDir(), ".hive")
	cfg = config.Defaults()

	require.NoError(t, initCmd.RunE(initCmd, nil))

	for _, p := range []string{
		paths.Config(hiveDir),
		paths.DB(hiveDir),
		paths.Memory(hiveDir),
		paths.Repos(hiveDir),
		paths.Logs(hiveDir),
	} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}

	err := initCmd.RunE(initCmd, nil)
	require.Error(t, err)
	var ue usageError
	assert.True(t, errors.As(err, &ue))

	// An initialised workspace lets verbs through to their own logic.
	require.NoError(t, withHive(func(h *hiveCtx) error {
		teams, err := h.store.ListTeams()
		require.NoError(t, err)
		assert.Empty(t, teams)
		return nil
	}))
}
