package connector

import (
	"strings"

	"github.com/hivectl/hive/internal/domain"
)

// storyToExternal maps hive story statuses to the provider-neutral column
// names jira-style boards use.
var storyToExternal = map[domain.StoryStatus]string{
	domain.StoryDraft:       "To Do",
	domain.StoryEstimated:   "To Do",
	domain.StoryPlanned:     "To Do",
	domain.StoryInProgress:  "In Progress",
	domain.StoryQAFailed:    "In Progress",
	domain.StoryReview:      "In Progress",
	domain.StoryPRSubmitted: "In Review",
	domain.StoryQA:          "In Review",
	domain.StoryMerged:      "Done",
}

// externalToStory maps board columns back to the most advanced hive status
// the column can attest to.
var externalToStory = map[string]domain.StoryStatus{
	"to do":       domain.StoryPlanned,
	"open":        domain.StoryPlanned,
	"backlog":     domain.StoryPlanned,
	"in progress": domain.StoryInProgress,
	"in review":   domain.StoryPRSubmitted,
	"done":        domain.StoryMerged,
	"closed":      domain.StoryMerged,
}

// ExternalStatusFor returns the external column for a hive story status.
func ExternalStatusFor(s domain.StoryStatus) string {
	if col, ok := storyToExternal[s]; ok {
		return col
	}
	return "To Do"
}

// StoryStatusFor resolves an external column to a hive status. ok is false
// for columns the mapping does not know.
func StoryStatusFor(external string) (domain.StoryStatus, bool) {
	s, ok := externalToStory[strings.ToLower(strings.TrimSpace(external))]
	return s, ok
}

// ForwardOnly reports whether applying the externally attested status to a
// story moves it forward (or keeps it in place) in the lifecycle order.
// Backward external transitions are skipped by the sync.
func ForwardOnly(current, external domain.StoryStatus) bool {
	return domain.IsForwardTransition(current, external)
}
