package domain

import "fmt"

// StoryStatus is the story lifecycle state.
type StoryStatus string

const (
	StoryDraft       StoryStatus = "draft"
	StoryEstimated   StoryStatus = "estimated"
	StoryPlanned     StoryStatus = "planned"
	StoryInProgress  StoryStatus = "in_progress"
	StoryReview      StoryStatus = "review"
	StoryPRSubmitted StoryStatus = "pr_submitted"
	StoryQAFailed    StoryStatus = "qa_failed"
	StoryQA          StoryStatus = "qa"
	StoryMerged      StoryStatus = "merged"
)

// storyOrder is the fixed lifecycle order used for forward-only checks.
// qa_failed is a lateral of review (same order) rather than a post-qa state:
// it re-enters the pipeline at review, and anything else requires an
// explicit override.
var storyOrder = map[StoryStatus]int{
	StoryDraft:       0,
	StoryEstimated:   1,
	StoryPlanned:     2,
	StoryInProgress:  3,
	StoryReview:      4,
	StoryQAFailed:    4,
	StoryPRSubmitted: 5,
	StoryQA:          6,
	StoryMerged:      7,
}

// StoryStatusOrder returns the lifecycle position of s, or -1 if unknown.
func StoryStatusOrder(s StoryStatus) int {
	if o, ok := storyOrder[s]; ok {
		return o
	}
	return -1
}

// IsForwardTransition reports whether moving from to next never goes
// backwards in the fixed lifecycle order.
func IsForwardTransition(from, to StoryStatus) bool {
	fo, ok1 := storyOrder[from]
	to2, ok2 := storyOrder[to]
	return ok1 && ok2 && to2 >= fo
}

// storyTransitions enumerates the permitted forward edges. Backward edges are
// forbidden except qa -> qa_failed and explicit override.
var storyTransitions = map[StoryStatus][]StoryStatus{
	StoryDraft:       {StoryEstimated},
	StoryEstimated:   {StoryPlanned},
	StoryPlanned:     {StoryInProgress},
	StoryInProgress:  {StoryReview},
	StoryReview:      {StoryPRSubmitted, StoryQAFailed},
	StoryQAFailed:    {StoryReview, StoryInProgress},
	StoryPRSubmitted: {StoryQA},
	StoryQA:          {StoryMerged, StoryQAFailed},
	StoryMerged:      {},
}

// ValidateStoryTransition returns ErrInvalidState unless from -> to is a
// permitted edge. override bypasses the check entirely (human intervention).
func ValidateStoryTransition(from, to StoryStatus, override bool) error {
	if override {
		return nil
	}
	if from == to {
		return nil
	}
	for _, next := range storyTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: story %s -> %s", ErrInvalidState, from, to)
}

// RequirementStatus is the requirement lifecycle state.
type RequirementStatus string

const (
	RequirementPending        RequirementStatus = "pending"
	RequirementPlanning       RequirementStatus = "planning"
	RequirementPlanned        RequirementStatus = "planned"
	RequirementInProgress     RequirementStatus = "in_progress"
	RequirementSignOff        RequirementStatus = "sign_off"
	RequirementSignOffPassed  RequirementStatus = "sign_off_passed"
	RequirementSignOffFailed  RequirementStatus = "sign_off_failed"
)

var requirementTransitions = map[RequirementStatus][]RequirementStatus{
	RequirementPending:       {RequirementPlanning},
	RequirementPlanning:      {RequirementPlanned},
	RequirementPlanned:       {RequirementInProgress},
	RequirementInProgress:    {RequirementSignOff},
	RequirementSignOff:       {RequirementSignOffPassed, RequirementSignOffFailed, RequirementInProgress},
	RequirementSignOffPassed: {},
	RequirementSignOffFailed: {RequirementInProgress},
}

// ValidateRequirementTransition returns ErrInvalidState unless from -> to is
// a permitted edge.
func ValidateRequirementTransition(from, to RequirementStatus) error {
	if from == to {
		return nil
	}
	for _, next := range requirementTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: requirement %s -> %s", ErrInvalidState, from, to)
}

// PRStatus is the pull request lifecycle state.
type PRStatus string

const (
	PRQueued    PRStatus = "queued"
	PRReviewing PRStatus = "reviewing"
	PRApproved  PRStatus = "approved"
	PRMerged    PRStatus = "merged"
	PRRejected  PRStatus = "rejected"
	PRClosed    PRStatus = "closed"
)

// IsTerminal reports whether the PR can no longer change state.
func (s PRStatus) IsTerminal() bool {
	return s == PRMerged || s == PRRejected || s == PRClosed
}

// IsOpen reports whether the PR still occupies its story's open-PR slot.
func (s PRStatus) IsOpen() bool { return !s.IsTerminal() }

var prTransitions = map[PRStatus][]PRStatus{
	PRQueued:    {PRReviewing, PRClosed},
	PRReviewing: {PRApproved, PRRejected, PRQueued, PRClosed},
	PRApproved:  {PRMerged, PRClosed},
	PRMerged:    {},
	PRRejected:  {},
	PRClosed:    {},
}

// ValidatePRTransition returns ErrInvalidState unless from -> to is a
// permitted edge. reviewing -> queued is the orphaned-reviewer reset.
func ValidatePRTransition(from, to PRStatus) error {
	if from == to {
		return nil
	}
	for _, next := range prTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: pull request %s -> %s", ErrInvalidState, from, to)
}

// ActiveStoryStatuses are statuses that represent live pipeline work. Used
// by idle-worker spin-down and the scheduler.
var ActiveStoryStatuses = []StoryStatus{
	StoryPlanned, StoryInProgress, StoryReview, StoryQA, StoryQAFailed, StoryPRSubmitted,
}
