package scheduler

import (
	"context"
	"fmt"

	"github.com/hivectl/hive/internal/agents"
	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/log"
	"github.com/hivectl/hive/internal/paths"
	"github.com/hivectl/hive/internal/store"
	"github.com/hivectl/hive/internal/tmux"
)

// SpawnWorker brings up a new agent of the given role for a team: agent row,
// tmux session running the configured CLI, then the role prompt as the first
// message. On any failure the agent row is terminated and the error logged
// as an event; spawn failures never abort the caller's pass.
func (s *Scheduler) SpawnWorker(ctx context.Context, teamID string, role domain.AgentRole, godmode bool) (*domain.Agent, error) {
	team, err := s.store.GetTeam(teamID)
	if err != nil {
		return nil, err
	}

	flavour := domain.CLIFlavour(s.cfg.CLI.Tool)
	agentID := domain.NewAgentID(role)
	sessionName, err := s.pickSessionName(ctx, role, team)
	if err != nil {
		return nil, err
	}

	var agent *domain.Agent
	err = s.store.WithTransaction(func(q *store.Queries) error {
		agent, err = q.CreateAgent(store.CreateAgentParams{
			ID:         agentID,
			Role:       role,
			TeamID:     teamID,
			CLITool:    flavour,
			MemoryPath: paths.Memory(s.hiveDir) + "/" + agentID + ".md",
		})
		if err != nil {
			return err
		}
		return q.UpdateAgentStatus(agentID, domain.AgentWorking, "")
	})
	if err != nil {
		return nil, err
	}

	// Session creation and prompt delivery are long I/O: outside the lock.
	argv := agents.BuildArgv(s.cfg.CLI, flavour, godmode, "")
	workDir := paths.TeamRepo(s.hiveDir, team.RepoPath)
	env := agents.SessionEnv(agentID, teamID, s.hiveDir)

	if err := s.sup.CreateSession(ctx, sessionName, workDir, argv, env); err != nil {
		s.failSpawn(agentID, err)
		return nil, fmt.Errorf("spawning %s: %w", agentID, err)
	}

	prompt, err := agents.RenderPrompt(role, agents.PromptData{
		AgentID:  agentID,
		TeamName: team.Name,
		RepoPath: team.RepoPath,
	})
	if err == nil {
		err = s.sup.SendMessageWithConfirmation(ctx, sessionName, prompt, s.cfg.Manager.CaptureLines)
	}
	if err != nil {
		_ = s.sup.Kill(ctx, sessionName)
		s.failSpawn(agentID, err)
		return nil, fmt.Errorf("priming %s: %w", agentID, err)
	}

	err = s.store.WithTransaction(func(q *store.Queries) error {
		if err := q.SetAgentSession(agentID, sessionName); err != nil {
			return err
		}
		q.AppendLog(store.AppendLogParams{
			AgentID:   agentID,
			EventType: domain.EventAgentSpawned,
			Message:   fmt.Sprintf("%s spawned for team %s", role, team.Name),
			Metadata:  map[string]string{"session": sessionName, "cli": string(flavour)},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	agent.SessionName = sessionName
	agent.Status = domain.AgentWorking
	log.Info(log.CatSched, "agent spawned",
		"agent", agentID, "role", string(role), "team", team.Name, "session", sessionName)
	return agent, nil
}

// SpawnFeatureTest creates a one-shot feature_test agent to run the
// requirement's end-to-end sign-off against its integration branch.
func (s *Scheduler) SpawnFeatureTest(ctx context.Context, teamID string, req *domain.Requirement) (*domain.Agent, error) {
	team, err := s.store.GetTeam(teamID)
	if err != nil {
		return nil, err
	}

	flavour := domain.CLIFlavour(s.cfg.CLI.Tool)
	agentID := domain.NewAgentID(domain.RoleFeatureTest)
	sessionName, err := s.pickSessionName(ctx, domain.RoleFeatureTest, team)
	if err != nil {
		return nil, err
	}

	var agent *domain.Agent
	err = s.store.WithTransaction(func(q *store.Queries) error {
		agent, err = q.CreateAgent(store.CreateAgentParams{
			ID:      agentID,
			Role:    domain.RoleFeatureTest,
			TeamID:  teamID,
			CLITool: flavour,
		})
		if err != nil {
			return err
		}
		return q.UpdateAgentStatus(agentID, domain.AgentWorking, "")
	})
	if err != nil {
		return nil, err
	}

	argv := agents.BuildArgv(s.cfg.CLI, flavour, req.Godmode, "")
	workDir := paths.TeamRepo(s.hiveDir, team.RepoPath)

	if err := s.sup.CreateSession(ctx, sessionName, workDir, argv, agents.SessionEnv(agentID, teamID, s.hiveDir)); err != nil {
		s.failSpawn(agentID, err)
		return nil, fmt.Errorf("spawning feature test: %w", err)
	}

	prompt, err := agents.RenderPrompt(domain.RoleFeatureTest, agents.PromptData{
		AgentID:       agentID,
		TeamName:      team.Name,
		RepoPath:      team.RepoPath,
		RequirementID: req.ID,
		FeatureBranch: featureBranch(req),
		TargetBranch:  targetBranch(req, s.cfg),
	})
	if err == nil {
		err = s.sup.SendMessageWithConfirmation(ctx, sessionName, prompt, s.cfg.Manager.CaptureLines)
	}
	if err != nil {
		_ = s.sup.Kill(ctx, sessionName)
		s.failSpawn(agentID, err)
		return nil, fmt.Errorf("priming feature test: %w", err)
	}

	err = s.store.WithTransaction(func(q *store.Queries) error {
		if err := q.SetAgentSession(agentID, sessionName); err != nil {
			return err
		}
		q.AppendLog(store.AppendLogParams{
			AgentID:   agentID,
			EventType: domain.EventFeatureTestSpawned,
			Message:   fmt.Sprintf("sign-off run for %s", req.ID),
			Metadata:  map[string]string{"requirement": req.ID, "branch": featureBranch(req)},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	agent.SessionName = sessionName
	agent.Status = domain.AgentWorking
	return agent, nil
}

// pickSessionName resolves collisions with a monotonic suffix, checking both
// live tmux sessions and non-terminated agent rows.
func (s *Scheduler) pickSessionName(ctx context.Context, role domain.AgentRole, team *domain.Team) (string, error) {
	live, err := s.sup.ListSessions(ctx)
	if err != nil {
		return "", err
	}
	taken := map[string]bool{}
	for _, name := range live {
		taken[name] = true
	}

	slug := domain.Slugify(team.Name)
	for n := 0; n < 100; n++ {
		name := tmux.SessionName(string(role), slug, n)
		if taken[name] {
			continue
		}
		if _, err := s.store.GetAgentBySession(name); err == nil {
			continue
		}
		return name, nil
	}
	return "", fmt.Errorf("no free session name for %s on %s", role, slug)
}

// failSpawn terminates the half-born agent and records the failure.
func (s *Scheduler) failSpawn(agentID string, cause error) {
	err := s.store.WithTransaction(func(q *store.Queries) error {
		if err := q.TerminateAgent(agentID); err != nil {
			return err
		}
		q.AppendLog(store.AppendLogParams{
			AgentID:   agentID,
			EventType: domain.EventAgentSpawned,
			Message:   "spawn failed",
			Metadata:  map[string]string{"error": cause.Error()},
		})
		return nil
	})
	if err != nil {
		log.Error(log.CatSched, "recording spawn failure", "agent", agentID, "error", err)
	}
}
