// Package agents holds the role catalog, the per-role prompt templates, and
// the CLI argv construction for spawning worker sessions.
package agents

import (
	"fmt"

	"github.com/hivectl/hive/internal/domain"
)

// RoleSpec describes one role's place in the routing ladder.
type RoleSpec struct {
	Role domain.AgentRole
	// Seniority orders the substitution ladder; a story may be routed to a
	// role with equal or higher seniority, never lower.
	Seniority int
	// TakesStories is false for roles driven by other means (tech lead
	// plans, feature_test signs off).
	TakesStories bool
}

var catalog = map[domain.AgentRole]RoleSpec{
	domain.RoleJunior:       {Role: domain.RoleJunior, Seniority: 1, TakesStories: true},
	domain.RoleIntermediate: {Role: domain.RoleIntermediate, Seniority: 2, TakesStories: true},
	domain.RoleSenior:       {Role: domain.RoleSenior, Seniority: 3, TakesStories: true},
	domain.RoleQA:           {Role: domain.RoleQA, Seniority: 0, TakesStories: false},
	domain.RoleFeatureTest:  {Role: domain.RoleFeatureTest, Seniority: 0, TakesStories: false},
	domain.RoleTechLead:     {Role: domain.RoleTechLead, Seniority: 0, TakesStories: false},
}

// Spec returns the catalog entry for a role.
func Spec(role domain.AgentRole) (RoleSpec, error) {
	s, ok := catalog[role]
	if !ok {
		return RoleSpec{}, fmt.Errorf("unknown agent role %q: %w", role, domain.ErrInvalidState)
	}
	return s, nil
}

// RoleForComplexity routes a story's complexity to the cheapest capable
// implementer role: 1-3 junior, 4-5 intermediate, 6+ senior.
func RoleForComplexity(complexity int) domain.AgentRole {
	switch {
	case complexity <= 3:
		return domain.RoleJunior
	case complexity <= 5:
		return domain.RoleIntermediate
	default:
		return domain.RoleSenior
	}
}

// CanSubstitute reports whether an agent of role have may take work routed to
// role want. Substitution only goes up the ladder.
func CanSubstitute(have, want domain.AgentRole) bool {
	hs, ok1 := catalog[have]
	ws, ok2 := catalog[want]
	if !ok1 || !ok2 || !hs.TakesStories || !ws.TakesStories {
		return have == want
	}
	return hs.Seniority >= ws.Seniority
}

// SubstitutionLadder returns the implementer roles that may take work routed
// to want, cheapest first.
func SubstitutionLadder(want domain.AgentRole) []domain.AgentRole {
	ladder := []domain.AgentRole{domain.RoleJunior, domain.RoleIntermediate, domain.RoleSenior}
	var out []domain.AgentRole
	for _, r := range ladder {
		if CanSubstitute(r, want) {
			out = append(out, r)
		}
	}
	return out
}
