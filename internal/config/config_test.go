package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaults_Validate(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestValidate_RejectsUnknownTool(t *testing.T) {
	cfg := Defaults()
	cfg.CLI.Tool = "copilot"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsZeroSeniorCap(t *testing.T) {
	cfg := Defaults()
	cfg.Caps.SeniorMax = 0
	assert.Error(t, cfg.Validate())
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hive", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path, false))

	// Second write without force fails.
	require.Error(t, WriteDefaultConfig(path, false))
	require.NoError(t, WriteDefaultConfig(path, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal(data, &parsed), "starter config must be valid yaml")
	assert.Contains(t, parsed, "manager")
	assert.Contains(t, parsed, "cli")
}

func TestSaveProviderToken_PreservesOtherSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vcs:\n  provider: github\n"), 0o600))

	require.NoError(t, SaveProviderToken(path, "jira", "secret-token"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var parsed struct {
		VCS struct {
			Provider string `yaml:"provider"`
		} `yaml:"vcs"`
		PM struct {
			Provider string `yaml:"provider"`
			Token    string `yaml:"token"`
		} `yaml:"pm"`
	}
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	assert.Equal(t, "github", parsed.VCS.Provider)
	assert.Equal(t, "jira", parsed.PM.Provider)
	assert.Equal(t, "secret-token", parsed.PM.Token)
}

func TestSaveProviderToken_NewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveProviderToken(path, "jira", "tok"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "jira")
}
