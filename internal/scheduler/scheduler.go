// Package scheduler turns planned stories into work on live agents and grows
// the worker pool as the queue demands. It is invoked synchronously by the
// assign command and on every manager tick.
package scheduler

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/hivectl/hive/internal/agents"
	"github.com/hivectl/hive/internal/config"
	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/log"
	"github.com/hivectl/hive/internal/store"
	"github.com/hivectl/hive/internal/tmux"
)

var tracer = otel.Tracer("hive/scheduler")

// Scheduler routes stories to agents.
type Scheduler struct {
	store   *store.Store
	sup     *tmux.Supervisor
	cfg     config.Config
	hiveDir string
}

// New builds a scheduler.
func New(st *store.Store, sup *tmux.Supervisor, cfg config.Config, hiveDir string) *Scheduler {
	return &Scheduler{store: st, sup: sup, cfg: cfg, hiveDir: hiveDir}
}

// AssignResult summarises one assignment pass.
type AssignResult struct {
	Assigned            int
	PreventedDuplicates int
	Errors              []string
}

// AssignStories assigns every eligible planned story to a worker. The pass
// never aborts on a single story: failures are collected in the result.
// Idempotent under retry; a story claimed by a concurrent scheduler counts
// as a prevented duplicate.
func (s *Scheduler) AssignStories(ctx context.Context) (AssignResult, error) {
	ctx, span := tracer.Start(ctx, "scheduler.assign")
	defer span.End()

	var res AssignResult

	planned, err := s.store.ListStoriesByStatus(domain.StoryPlanned)
	if err != nil {
		return res, err
	}

	for _, story := range planned {
		if story.AssignedAgentID != "" {
			res.PreventedDuplicates++
			continue
		}

		pending, err := s.store.UnmergedDependencies(story.ID)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", story.ID, err))
			continue
		}
		if len(pending) > 0 {
			continue
		}

		agent, err := s.workerFor(ctx, story)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", story.ID, err))
			continue
		}

		claimed, err := s.claim(story, agent)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", story.ID, err))
			continue
		}
		if !claimed {
			res.PreventedDuplicates++
			continue
		}

		if err := s.deliverStory(ctx, story, agent); err != nil {
			// The claim stands; the manager's nudge loop recovers delivery.
			log.Warn(log.CatSched, "story prompt delivery failed",
				"story", story.ID, "agent", agent.ID, "error", err)
		}
		res.Assigned++
	}

	if res.Assigned > 0 || len(res.Errors) > 0 {
		log.Info(log.CatSched, "assignment pass done",
			"assigned", res.Assigned, "duplicates", res.PreventedDuplicates, "errors", len(res.Errors))
	}
	return res, nil
}

// workerFor picks or spawns the agent for a story: target role by
// complexity, upward substitution when the target is at cap, idle before
// working, oldest last_seen first.
func (s *Scheduler) workerFor(ctx context.Context, story *domain.Story) (*domain.Agent, error) {
	target := agents.RoleForComplexity(story.Complexity)

	// Walk the ladder from the target role upward. A higher role is only
	// considered once the roles below it are at cap.
	for _, role := range rolesAtOrAbove(target) {
		candidates, err := s.store.ListAgents(store.ListAgentsParams{
			TeamID: story.TeamID, Role: role, AliveOnly: true,
		})
		if err != nil {
			return nil, err
		}
		for _, a := range candidates {
			if a.Status == domain.AgentIdle {
				return a, nil
			}
		}
		if len(candidates) < s.capFor(role) {
			return s.SpawnWorker(ctx, story.TeamID, role, false)
		}
	}

	// Every capable role is at cap with no one idle: a busy worker takes
	// the story into its backlog, target role first.
	for _, role := range rolesAtOrAbove(target) {
		candidates, err := s.store.ListAgents(store.ListAgentsParams{
			TeamID: story.TeamID, Role: role, AliveOnly: true,
		})
		if err != nil {
			return nil, err
		}
		if len(candidates) > 0 {
			return candidates[0], nil
		}
	}

	return nil, fmt.Errorf("no eligible worker for role %s and team at cap", target)
}

// claim atomically assigns the story and records the branch and event.
func (s *Scheduler) claim(story *domain.Story, agent *domain.Agent) (bool, error) {
	claimed := false
	err := s.store.WithTransaction(func(q *store.Queries) error {
		// Re-check dependencies inside the transaction to avoid racing a
		// concurrent merge or un-merge.
		pending, err := q.UnmergedDependencies(story.ID)
		if err != nil {
			return err
		}
		if len(pending) > 0 {
			return nil
		}

		ok, err := q.ClaimStory(story.ID, agent.ID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		claimed = true

		if err := q.SetStoryBranch(story.ID, storyBranch(story.ID)); err != nil {
			return err
		}
		if err := q.UpdateAgentStatus(agent.ID, domain.AgentWorking, story.ID); err != nil {
			return err
		}

		// First claimed story pulls the requirement into in_progress.
		req, err := q.GetRequirement(story.RequirementID)
		if err == nil && req.Status == domain.RequirementPlanned {
			if _, err := q.UpdateRequirementStatus(req.ID, domain.RequirementInProgress); err != nil {
				return err
			}
		}

		q.AppendLog(store.AppendLogParams{
			AgentID:   agent.ID,
			StoryID:   story.ID,
			EventType: domain.EventStoryAssigned,
			Message:   fmt.Sprintf("assigned to %s", agent.ID),
			Metadata:  map[string]string{"role": string(agent.Role), "complexity": fmt.Sprint(story.Complexity)},
		})
		return nil
	})
	return claimed, err
}

// deliverStory sends the story prompt into the worker's session.
func (s *Scheduler) deliverStory(ctx context.Context, story *domain.Story, agent *domain.Agent) error {
	if agent.SessionName == "" {
		return fmt.Errorf("agent %s has no session", agent.ID)
	}
	prompt, err := s.storyPrompt(story, agent)
	if err != nil {
		return err
	}
	return s.sup.SendMessageWithConfirmation(ctx, agent.SessionName, prompt, s.cfg.Manager.CaptureLines)
}

func (s *Scheduler) storyPrompt(story *domain.Story, agent *domain.Agent) (string, error) {
	team, err := s.store.GetTeam(story.TeamID)
	if err != nil {
		return "", err
	}
	req, err := s.store.GetRequirement(story.RequirementID)
	if err != nil {
		return "", err
	}
	return agents.RenderPrompt(agent.Role, agents.PromptData{
		AgentID:            agent.ID,
		TeamName:           team.Name,
		RepoPath:           team.RepoPath,
		FeatureBranch:      featureBranch(req),
		TargetBranch:       targetBranch(req, s.cfg),
		StoryID:            story.ID,
		StoryTitle:         story.Title,
		StoryDescription:   story.Description,
		AcceptanceCriteria: story.AcceptanceCriteria,
		Branch:             storyBranch(story.ID),
	})
}

// CheckScaling keeps each team with pending planned work staffed: at least
// one live senior, plus workers of the roles the queue needs, capped.
func (s *Scheduler) CheckScaling(ctx context.Context) error {
	teams, err := s.store.ListTeams()
	if err != nil {
		return err
	}

	for _, team := range teams {
		planned, err := s.store.ListStoriesByTeam(team.ID, domain.StoryPlanned)
		if err != nil {
			return err
		}
		unassigned := 0
		needed := map[domain.AgentRole]int{}
		for _, st := range planned {
			if st.AssignedAgentID == "" {
				unassigned++
				needed[agents.RoleForComplexity(st.Complexity)]++
			}
		}
		if unassigned == 0 {
			continue
		}

		seniors, err := s.store.CountAliveAgents(team.ID, domain.RoleSenior)
		if err != nil {
			return err
		}
		if seniors == 0 && s.capFor(domain.RoleSenior) > 0 {
			if _, err := s.SpawnWorker(ctx, team.ID, domain.RoleSenior, false); err != nil {
				log.Warn(log.CatSched, "senior spawn failed", "team", team.Name, "error", err)
			}
			continue // one spawn per team per pass keeps growth gentle
		}

		for role, want := range needed {
			alive, err := s.store.CountAliveAgents(team.ID, role)
			if err != nil {
				return err
			}
			if alive < want && alive < s.capFor(role) {
				if _, err := s.SpawnWorker(ctx, team.ID, role, false); err != nil {
					log.Warn(log.CatSched, "worker spawn failed",
						"team", team.Name, "role", string(role), "error", err)
				}
				break
			}
		}
	}
	return nil
}

// CheckMergeQueue ensures every team with queued PRs has a live QA reviewer.
func (s *Scheduler) CheckMergeQueue(ctx context.Context) error {
	teams, err := s.store.ListTeams()
	if err != nil {
		return err
	}
	for _, team := range teams {
		queued, err := s.store.ListPullRequests(team.ID, domain.PRQueued)
		if err != nil {
			return err
		}
		if len(queued) == 0 {
			continue
		}
		alive, err := s.store.CountAliveAgents(team.ID, domain.RoleQA)
		if err != nil {
			return err
		}
		if alive > 0 || s.cfg.Caps.QAMax < 1 {
			continue
		}
		if _, err := s.SpawnWorker(ctx, team.ID, domain.RoleQA, false); err != nil {
			log.Warn(log.CatSched, "qa spawn failed", "team", team.Name, "error", err)
		}
	}
	return nil
}

func (s *Scheduler) capFor(role domain.AgentRole) int {
	switch role {
	case domain.RoleJunior:
		return s.cfg.Caps.JuniorMax
	case domain.RoleIntermediate:
		return s.cfg.Caps.IntermediateMax
	case domain.RoleSenior:
		return s.cfg.Caps.SeniorMax
	case domain.RoleQA:
		return s.cfg.Caps.QAMax
	default:
		return 1
	}
}

func rolesAtOrAbove(target domain.AgentRole) []domain.AgentRole {
	ladder := []domain.AgentRole{domain.RoleJunior, domain.RoleIntermediate, domain.RoleSenior}
	var out []domain.AgentRole
	for _, r := range ladder {
		if agents.CanSubstitute(r, target) {
			out = append(out, r)
		}
	}
	return out
}

func storyBranch(storyID string) string { return "story/" + storyID }

func featureBranch(req *domain.Requirement) string {
	if req.FeatureBranch != "" {
		return req.FeatureBranch
	}
	return "feature/" + req.ID
}

func targetBranch(req *domain.Requirement, cfg config.Config) string {
	if req.TargetBranch != "" {
		return req.TargetBranch
	}
	return cfg.VCS.DefaultBranch
}
