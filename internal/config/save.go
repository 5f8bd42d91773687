package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// defaultConfigContent is the commented starter config written by `hive init`.
const defaultConfigContent = `# hive configuration
# See https://github.com/hivectl/hive for the full reference.

caps:
  junior_max: 2
  intermediate_max: 2
  senior_max: 1
  qa_max: 1

manager:
  fast_poll_interval: 5s
  pm_sync_interval: 5m
  stale_agent_threshold: 2m
  static_inactivity_threshold: 90s
  nudge_cooldown: 2m
  stuck_threshold: 10m
  handoff_retry_delay: 5m
  drain_delay: 5s
  capture_lines: 80

cli:
  tool: claude          # claude | codex | gemini
  model: sonnet
  premium_model: opus
  # extra_args: ["--add-dir", "/extra/path"]

# pm:
#   provider: jira
#   base_url: https://yourteam.atlassian.net
#   project_key: PROJ
#   board_id: "1"
#   email: you@example.com
#   token: ""           # set via 'hive auth --provider jira'

vcs:
  provider: github
  default_branch: main

tracing:
  enabled: false
  exporter: stdout
`

// WriteDefaultConfig writes the commented starter config, creating parent
// directories as needed. Fails if the file already exists unless force is set.
func WriteDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigContent), 0o600)
}

// SaveProviderToken updates pm.token (and optionally pm.provider) in the
// config file. Uses yaml.Node so comments and formatting elsewhere in the
// file survive the edit.
func SaveProviderToken(configPath, provider, token string) error {
	data, err := os.ReadFile(configPath) //nolint:gosec // path is the workspace config
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("config root is not a mapping")
	}

	pmNode := findOrAppendMap(root, "pm")
	setScalar(pmNode, "provider", provider)
	setScalar(pmNode, "token", token)

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(configPath, out, 0o600)
}

// findOrAppendMap returns the mapping node for key under root, creating an
// empty one if absent.
func findOrAppendMap(root *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == key {
			if root.Content[i+1].Kind != yaml.MappingNode {
				root.Content[i+1] = &yaml.Node{Kind: yaml.MappingNode}
			}
			return root.Content[i+1]
		}
	}
	node := &yaml.Node{Kind: yaml.MappingNode}
	root.Content = append(root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		node,
	)
	return node
}

// setScalar sets key to value inside a mapping node, replacing or appending.
func setScalar(m *yaml.Node, key, value string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = &yaml.Node{Kind: yaml.ScalarNode, Value: value}
			return
		}
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Value: value},
	)
}
