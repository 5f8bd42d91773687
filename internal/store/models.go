package store

import (
	"encoding/json"
	"time"

	"github.com/hivectl/hive/internal/domain"
)

// Row models map directly to SQL columns. Nullable columns use pointers;
// time values are Unix seconds.

type teamModel struct {
	ID        string
	Name      string
	RepoURL   string
	RepoPath  string
	CreatedAt int64
}

func (m *teamModel) toDomain() *domain.Team {
	return &domain.Team{
		ID:        m.ID,
		Name:      m.Name,
		RepoURL:   m.RepoURL,
		RepoPath:  m.RepoPath,
		CreatedAt: time.Unix(m.CreatedAt, 0).UTC(),
	}
}

type requirementModel struct {
	ID            string
	Title         string
	Description   string
	Submitter     string
	Status        string
	EpicKey       *string
	FeatureBranch *string
	TargetBranch  *string
	Godmode       bool
	CreatedAt     int64
	UpdatedAt     int64
}

func (m *requirementModel) toDomain() *domain.Requirement {
	return &domain.Requirement{
		ID:            m.ID,
		Title:         m.Title,
		Description:   m.Description,
		Submitter:     m.Submitter,
		Status:        domain.RequirementStatus(m.Status),
		EpicKey:       deref(m.EpicKey),
		FeatureBranch: deref(m.FeatureBranch),
		TargetBranch:  deref(m.TargetBranch),
		Godmode:       m.Godmode,
		CreatedAt:     time.Unix(m.CreatedAt, 0).UTC(),
		UpdatedAt:     time.Unix(m.UpdatedAt, 0).UTC(),
	}
}

type storyModel struct {
	ID                 string
	RequirementID      string
	TeamID             string
	Title              string
	Description        string
	AcceptanceCriteria string
	Complexity         int
	StoryPoints        int
	AssignedAgentID    *string
	Branch             *string
	Status             string
	ExternalIssueKey   *string
	ExternalSubtaskKey *string
	ExternalProjectKey *string
	ExternalProvider   *string
	InSprint           bool
	CreatedAt          int64
	UpdatedAt          int64
}

func (m *storyModel) toDomain() *domain.Story {
	var criteria []string
	_ = json.Unmarshal([]byte(m.AcceptanceCriteria), &criteria)
	return &domain.Story{
		ID:                 m.ID,
		RequirementID:      m.RequirementID,
		TeamID:             m.TeamID,
		Title:              m.Title,
		Description:        m.Description,
		AcceptanceCriteria: criteria,
		Complexity:         m.Complexity,
		StoryPoints:        m.StoryPoints,
		AssignedAgentID:    deref(m.AssignedAgentID),
		Branch:             deref(m.Branch),
		Status:             domain.StoryStatus(m.Status),
		ExternalIssueKey:   deref(m.ExternalIssueKey),
		ExternalSubtaskKey: deref(m.ExternalSubtaskKey),
		ExternalProjectKey: deref(m.ExternalProjectKey),
		ExternalProvider:   deref(m.ExternalProvider),
		InSprint:           m.InSprint,
		CreatedAt:          time.Unix(m.CreatedAt, 0).UTC(),
		UpdatedAt:          time.Unix(m.UpdatedAt, 0).UTC(),
	}
}

type agentModel struct {
	ID             string
	Role           string
	TeamID         *string
	SessionName    *string
	CLITool        string
	Status         string
	CurrentStoryID *string
	MemoryPath     *string
	LastSeen       *int64
	CreatedAt      int64
}

func (m *agentModel) toDomain() *domain.Agent {
	a := &domain.Agent{
		ID:             m.ID,
		Role:           domain.AgentRole(m.Role),
		TeamID:         deref(m.TeamID),
		SessionName:    deref(m.SessionName),
		CLITool:        domain.CLIFlavour(m.CLITool),
		Status:         domain.AgentStatus(m.Status),
		CurrentStoryID: deref(m.CurrentStoryID),
		MemoryPath:     deref(m.MemoryPath),
		CreatedAt:      time.Unix(m.CreatedAt, 0).UTC(),
	}
	if m.LastSeen != nil {
		a.LastSeen = time.Unix(*m.LastSeen, 0).UTC()
	}
	return a
}

type pullRequestModel struct {
	ID               string
	StoryID          string
	TeamID           string
	Branch           string
	ExternalNumber   *int64
	ExternalURL      *string
	Status           string
	SubmitterAgentID *string
	ReviewerAgentID  *string
	ReviewNotes      *string
	CreatedAt        int64
	UpdatedAt        int64
}

func (m *pullRequestModel) toDomain() *domain.PullRequest {
	pr := &domain.PullRequest{
		ID:               m.ID,
		StoryID:          m.StoryID,
		TeamID:           m.TeamID,
		Branch:           m.Branch,
		ExternalURL:      deref(m.ExternalURL),
		Status:           domain.PRStatus(m.Status),
		SubmitterAgentID: deref(m.SubmitterAgentID),
		ReviewerAgentID:  deref(m.ReviewerAgentID),
		ReviewNotes:      deref(m.ReviewNotes),
		CreatedAt:        time.Unix(m.CreatedAt, 0).UTC(),
		UpdatedAt:        time.Unix(m.UpdatedAt, 0).UTC(),
	}
	if m.ExternalNumber != nil {
		pr.ExternalNumber = int(*m.ExternalNumber)
	}
	return pr
}

type escalationModel struct {
	ID          string
	StoryID     *string
	FromAgentID *string
	ToAgentID   *string
	Reason      string
	Status      string
	Resolution  *string
	CreatedAt   int64
	ResolvedAt  *int64
}

func (m *escalationModel) toDomain() *domain.Escalation {
	e := &domain.Escalation{
		ID:          m.ID,
		StoryID:     deref(m.StoryID),
		FromAgentID: deref(m.FromAgentID),
		ToAgentID:   deref(m.ToAgentID),
		Reason:      m.Reason,
		Status:      domain.EscalationStatus(m.Status),
		Resolution:  deref(m.Resolution),
		CreatedAt:   time.Unix(m.CreatedAt, 0).UTC(),
	}
	if m.ResolvedAt != nil {
		t := time.Unix(*m.ResolvedAt, 0).UTC()
		e.ResolvedAt = &t
	}
	return e
}

type logModel struct {
	ID        int64
	AgentID   string
	StoryID   *string
	EventType string
	Message   string
	Metadata  *string
	CreatedAt int64
}

func (m *logModel) toDomain() *domain.LogEntry {
	entry := &domain.LogEntry{
		ID:        m.ID,
		AgentID:   m.AgentID,
		StoryID:   deref(m.StoryID),
		EventType: domain.EventType(m.EventType),
		Message:   m.Message,
		CreatedAt: time.Unix(m.CreatedAt, 0).UTC(),
	}
	if m.Metadata != nil {
		_ = json.Unmarshal([]byte(*m.Metadata), &entry.Metadata)
	}
	return entry
}

type messageModel struct {
	ID          string
	FromAgentID string
	ToAgentID   string
	Body        string
	Status      string
	CreatedAt   int64
	DeliveredAt *int64
}

func (m *messageModel) toDomain() *domain.Message {
	msg := &domain.Message{
		ID:          m.ID,
		FromAgentID: m.FromAgentID,
		ToAgentID:   m.ToAgentID,
		Body:        m.Body,
		Status:      domain.MessageStatus(m.Status),
		CreatedAt:   time.Unix(m.CreatedAt, 0).UTC(),
	}
	if m.DeliveredAt != nil {
		t := time.Unix(*m.DeliveredAt, 0).UTC()
		msg.DeliveredAt = &t
	}
	return msg
}

type syncModel struct {
	ID         int64
	EntityType string
	EntityID   string
	Provider   string
	ExternalID string
	CreatedAt  int64
}

func (m *syncModel) toDomain() *domain.SyncRecord {
	return &domain.SyncRecord{
		ID:         m.ID,
		EntityType: m.EntityType,
		EntityID:   m.EntityID,
		Provider:   m.Provider,
		ExternalID: m.ExternalID,
		CreatedAt:  time.Unix(m.CreatedAt, 0).UTC(),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nullable converts an empty string to NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func marshalCriteria(criteria []string) string {
	if criteria == nil {
		criteria = []string{}
	}
	data, _ := json.Marshal(criteria)
	return string(data)
}

func marshalMetadata(meta map[string]string) *string {
	if len(meta) == 0 {
		return nil
	}
	data, _ := json.Marshal(meta)
	s := string(data)
	return &s
}
