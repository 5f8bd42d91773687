package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveHiveDir_ExplicitDotHive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".hive")
	assert.Equal(t, dir, ResolveHiveDir(dir))
}

func TestResolveHiveDir_ProjectDirAppendsDotHive(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, ".hive"), ResolveHiveDir(dir))
}

func TestResolveHiveDir_DirContainingDB(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DBFile), nil, 0o600))
	assert.Equal(t, dir, ResolveHiveDir(dir))
}

func TestResolveHiveDir_EnvVar(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HIVE_DIR", dir)
	assert.Equal(t, filepath.Join(dir, ".hive"), ResolveHiveDir(""))
}

func TestResolveHiveDir_WalksUp(t *testing.T) {
	root := t.TempDir()
	hive := filepath.Join(root, ".hive")
	require.NoError(t, os.MkdirAll(hive, 0o700))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o700))

	wd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(wd) })
	require.NoError(t, os.Chdir(nested))
	t.Setenv("HIVE_DIR", "")

	resolved := ResolveHiveDir("")
	// Resolve symlinks; macOS tempdirs live under /var -> /private/var.
	want, _ := filepath.EvalSymlinks(hive)
	got, _ := filepath.EvalSymlinks(resolved)
	assert.Equal(t, want, got)
}
