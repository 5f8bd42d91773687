package connector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivectl/hive/internal/config"
	"github.com/hivectl/hive/internal/domain"
)

func TestNewPM_EmptyProviderIsNoop(t *testing.T) {
	pm, err := NewPM(config.PMConfig{})
	require.NoError(t, err)
	assert.IsType(t, NoopPM{}, pm)

	// The no-op accepts everything silently.
	assert.NoError(t, pm.TransitionStory(context.Background(), "PROJ-1", "Done"))
	key, err := pm.CreateStory(context.Background(), "PROJ-1", "s", "d", 3)
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestNewPM_UnknownProvider(t *testing.T) {
	_, err := NewPM(config.PMConfig{Provider: "linear"})
	assert.Error(t, err)
}

func TestNewVCS_GitHubRegistered(t *testing.T) {
	vcs, err := NewVCS(config.VCSConfig{Provider: "github"})
	require.NoError(t, err)
	assert.IsType(t, (*GitHub)(nil), vcs)

	_, err = NewVCS(config.VCSConfig{Provider: "gitlab"})
	assert.Error(t, err)
}

func TestStatusMapping_RoundTrip(t *testing.T) {
	assert.Equal(t, "In Progress", ExternalStatusFor(domain.StoryInProgress))
	assert.Equal(t, "In Review", ExternalStatusFor(domain.StoryQA))
	assert.Equal(t, "Done", ExternalStatusFor(domain.StoryMerged))

	s, ok := StoryStatusFor("In Review")
	require.True(t, ok)
	assert.Equal(t, domain.StoryPRSubmitted, s)

	_, ok = StoryStatusFor("Weird Column")
	assert.False(t, ok)
}

func TestForwardOnly(t *testing.T) {
	// External board says Done while we are at qa: forward, apply.
	assert.True(t, ForwardOnly(domain.StoryQA, domain.StoryMerged))
	// External board says In Progress while we are at qa: backward, skip.
	assert.False(t, ForwardOnly(domain.StoryQA, domain.StoryInProgress))
	// Same position is fine.
	assert.True(t, ForwardOnly(domain.StoryInProgress, domain.StoryInProgress))
}
