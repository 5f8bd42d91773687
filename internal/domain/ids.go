package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// idSuffixLen is the number of uuid hex characters appended to id prefixes.
const idSuffixLen = 6

func shortSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:idSuffixLen]
}

// NewTeamID generates a team id (team-a1b2c3).
func NewTeamID() string { return "team-" + shortSuffix() }

// NewRequirementID generates a requirement id (REQ-a1b2c3).
func NewRequirementID() string { return "REQ-" + shortSuffix() }

// NewStoryID generates a story id (STORY-a1b2c3).
func NewStoryID() string { return "STORY-" + shortSuffix() }

// NewPullRequestID generates a pull request id (pr-a1b2c3).
func NewPullRequestID() string { return "pr-" + shortSuffix() }

// NewEscalationID generates an escalation id (ESC-a1b2c3).
func NewEscalationID() string { return "ESC-" + shortSuffix() }

// NewMessageID generates a message id (msg-a1b2c3).
func NewMessageID() string { return "msg-" + shortSuffix() }

// NewAgentID generates a role-prefixed agent id (senior-a1b2c3).
func NewAgentID(role AgentRole) string {
	return fmt.Sprintf("%s-%s", role, shortSuffix())
}

// Slugify lowercases a name and collapses everything outside [a-z0-9] into
// single hyphens. Used for session names and repo directories.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
