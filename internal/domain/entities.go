package domain

import "time"

// Team is a named repository registered with add-repo. Immutable after
// creation; owns agents and stories.
type Team struct {
	ID       string
	Name     string
	RepoURL  string
	RepoPath string // relative to the hive repos root
	CreatedAt time.Time
}

// Requirement is a user-submitted unit of work, planned into stories by the
// tech lead.
type Requirement struct {
	ID            string
	Title         string
	Description   string
	Submitter     string
	Status        RequirementStatus
	EpicKey       string // external PM epic key, empty when not imported
	FeatureBranch string // integration branch for the requirement's stories
	TargetBranch  string // default integration branch
	Godmode       bool   // force the premium model for all spawned agents
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Story is the atomic unit the pipeline moves.
type Story struct {
	ID                 string
	RequirementID      string
	TeamID             string
	Title              string
	Description        string
	AcceptanceCriteria []string
	Complexity         int // Fibonacci 1..13
	StoryPoints        int
	DependsOn          []string // story ids that must be merged first
	AssignedAgentID    string
	Branch             string
	Status             StoryStatus

	// PM-external identity.
	ExternalIssueKey   string
	ExternalSubtaskKey string
	ExternalProjectKey string
	ExternalProvider   string
	InSprint           bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AgentRole is the worker role type.
type AgentRole string

const (
	RoleTechLead     AgentRole = "tech_lead"
	RoleSenior       AgentRole = "senior"
	RoleIntermediate AgentRole = "intermediate"
	RoleJunior       AgentRole = "junior"
	RoleQA           AgentRole = "qa"
	RoleFeatureTest  AgentRole = "feature_test"
)

// WorkerRoles are the roles that take stories (everything except tech_lead).
var WorkerRoles = []AgentRole{RoleSenior, RoleIntermediate, RoleJunior, RoleQA, RoleFeatureTest}

// AgentStatus is the agent lifecycle state.
type AgentStatus string

const (
	AgentIdle       AgentStatus = "idle"
	AgentWorking    AgentStatus = "working"
	AgentBlocked    AgentStatus = "blocked"
	AgentTerminated AgentStatus = "terminated"
)

// CLIFlavour tags which LLM CLI an agent session runs.
type CLIFlavour string

const (
	FlavourClaude CLIFlavour = "claude"
	FlavourCodex  CLIFlavour = "codex"
	FlavourGemini CLIFlavour = "gemini"
)

// Agent is a logical worker: a state row plus a tmux session hosting an LLM
// CLI. The in-process abstraction is thin; the subprocess does the work.
type Agent struct {
	ID             string
	Role           AgentRole
	TeamID         string // empty for the process-wide tech lead
	SessionName    string // tmux session, empty until spawned
	CLITool        CLIFlavour
	Status         AgentStatus
	CurrentStoryID string
	MemoryPath     string // opaque memory snapshot location
	LastSeen       time.Time
	CreatedAt      time.Time
}

// IsAlive reports whether the agent may still be holding work.
func (a *Agent) IsAlive() bool { return a.Status != AgentTerminated }

// PullRequest is one merge-queue entry. Queued+reviewing PRs form the FIFO
// merge queue per team.
type PullRequest struct {
	ID               string
	StoryID          string
	TeamID           string
	Branch           string
	ExternalNumber   int // 0 when the VCS host has not assigned one
	ExternalURL      string
	Status           PRStatus
	SubmitterAgentID string
	ReviewerAgentID  string
	ReviewNotes      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EscalationStatus is the escalation lifecycle state.
type EscalationStatus string

const (
	EscalationPending  EscalationStatus = "pending"
	EscalationResolved EscalationStatus = "resolved"
)

// Escalation surfaces an issue to another agent or, when ToAgentID is empty,
// to a human.
type Escalation struct {
	ID          string
	StoryID     string // optional
	FromAgentID string // optional
	ToAgentID   string // empty means human
	Reason      string
	Status      EscalationStatus
	Resolution  string
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

// NeedsHuman reports whether the escalation targets a person.
func (e *Escalation) NeedsHuman() bool { return e.ToAgentID == "" }

// LogEntry is one append-only event record.
type LogEntry struct {
	ID        int64
	AgentID   string
	StoryID   string // optional
	EventType EventType
	Message   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// MessageStatus is the delivery state of an agent-to-agent message.
type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageDelivered MessageStatus = "delivered"
)

// Message is a one-way note between agents. The sender writes it to the
// store; the manager delivers it into the recipient's session on a tick.
type Message struct {
	ID          string
	FromAgentID string
	ToAgentID   string
	Body        string
	Status      MessageStatus
	CreatedAt   time.Time
	DeliveredAt *time.Time
}

// SyncRecord links a local entity to an external provider identity.
// Unique per (EntityType, EntityID, Provider).
type SyncRecord struct {
	ID         int64
	EntityType string // "story", "requirement", ...
	EntityID   string
	Provider   string
	ExternalID string
	CreatedAt  time.Time
}
