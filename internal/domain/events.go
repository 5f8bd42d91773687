package domain

import "strings"

// EventType enumerates the closed set of event-log types used by queries and
// dashboards.
type EventType string

const (
	EventAgentSpawned    EventType = "AGENT_SPAWNED"
	EventAgentTerminated EventType = "AGENT_TERMINATED"

	EventPlanningStarted   EventType = "PLANNING_STARTED"
	EventPlanningCompleted EventType = "PLANNING_COMPLETED"

	EventStoryCreated         EventType = "STORY_CREATED"
	EventStoryAssigned        EventType = "STORY_ASSIGNED"
	EventStoryStarted         EventType = "STORY_STARTED"
	EventStoryProgressUpdate  EventType = "STORY_PROGRESS_UPDATE"
	EventStoryReviewRequested EventType = "STORY_REVIEW_REQUESTED"
	EventStoryCompleted       EventType = "STORY_COMPLETED"

	EventEscalationCreated EventType = "ESCALATION_CREATED"

	EventNudgeSent       EventType = "NUDGE_SENT"
	EventAgentStale      EventType = "AGENT_STALE"
	EventHandoffPromoted EventType = "HANDOFF_PROMOTED"

	EventPRSubmitted     EventType = "PR_SUBMITTED"
	EventPRReviewStarted EventType = "PR_REVIEW_STARTED"
	EventPRApproved      EventType = "PR_APPROVED"
	EventPRMerged        EventType = "PR_MERGED"
	EventPRRejected      EventType = "PR_REJECTED"
	EventPRClosed        EventType = "PR_CLOSED"

	EventFeatureTestSpawned      EventType = "FEATURE_TEST_SPAWNED"
	EventFeatureSignOffTriggered EventType = "FEATURE_SIGN_OFF_TRIGGERED"
	EventFeatureSignOffPassed    EventType = "FEATURE_SIGN_OFF_PASSED"
	EventFeatureSignOffFailed    EventType = "FEATURE_SIGN_OFF_FAILED"

	EventJiraSyncStarted            EventType = "JIRA_SYNC_STARTED"
	EventJiraSyncCompleted          EventType = "JIRA_SYNC_COMPLETED"
	EventJiraSyncWarning            EventType = "JIRA_SYNC_WARNING"
	EventJiraEpicCreated            EventType = "JIRA_EPIC_CREATED"
	EventJiraEpicIngested           EventType = "JIRA_EPIC_INGESTED"
	EventJiraStoryCreated           EventType = "JIRA_STORY_CREATED"
	EventJiraAssignmentRepaired     EventType = "JIRA_ASSIGNMENT_REPAIRED"
	EventJiraAssignmentRepairFailed EventType = "JIRA_ASSIGNMENT_REPAIR_FAILED"
	EventJiraBoardPollStarted       EventType = "JIRA_BOARD_POLL_STARTED"
	EventJiraBoardPollCompleted     EventType = "JIRA_BOARD_POLL_COMPLETED"
)

// Sign-off verdict markers a feature_test agent records, verbatim.
const (
	VerdictPassed = "E2E tests PASSED"
	VerdictFailed = "E2E tests FAILED"
)

// ParseVerdict classifies a recorded sign-off line. Exact match only: the
// markers quoted inside other prose (a briefing, agent chatter) do not
// count as a verdict.
func ParseVerdict(msg string) (passed, failed bool) {
	msg = strings.TrimSpace(msg)
	switch {
	case msg == VerdictPassed:
		return true, false
	case msg == VerdictFailed, strings.HasPrefix(msg, VerdictFailed+":"):
		return false, true
	}
	return false, false
}
