// Package userctx builds the per-session user snapshot and computes the
// session's fixed conversational role. Resolution is deliberately lossy:
// any collaborator failure yields an empty context rather than an error,
// because a session must start even when the profile service is down.
package userctx

import (
	"context"
	"log"
	"strings"

	"omnigate/pkg/interfaces"
	"omnigate/pkg/types"
)

// SummaryThreshold is the goal proficiency at which a session graduates
// into summary/archival mode.
const SummaryThreshold = 90

// Context is the immutable user snapshot taken at session start.
type Context struct {
	UserID  string
	Profile types.UserProfile
	Goal    *types.LearningGoal
	// Topic is the session's practice focus. When the handshake names a
	// scenario that matches one of the goal's scenarios, Topic carries the
	// expanded "Title (Tasks: ...)" form.
	Topic string
}

// Resolver fetches profile and goal state for new sessions.
type Resolver struct {
	directory interfaces.ProfileDirectory
}

func NewResolver(directory interfaces.ProfileDirectory) *Resolver {
	return &Resolver{directory: directory}
}

// Resolve fetches the user snapshot. Failures degrade to an empty context
// and are logged; the caller never sees an error.
func (r *Resolver) Resolve(ctx context.Context, token string) Context {
	if r == nil || r.directory == nil || token == "" {
		return Context{}
	}

	out := Context{}

	profile, err := r.directory.Profile(ctx, token)
	if err != nil {
		log.Printf("Context resolution: profile fetch failed: %v", err)
		return out
	}
	out.Profile = profile
	out.UserID = profile.ID

	goal, err := r.directory.ActiveGoal(ctx, token)
	if err != nil {
		log.Printf("Context resolution: goal fetch failed: %v", err)
		return out
	}
	out.Goal = goal

	log.Printf("Resolved context: user=%s native=%s target=%s",
		profile.Nickname, profile.NativeLanguage, profile.TargetLanguage)
	return out
}

// ComputeRole maps a user snapshot to the session role. Pure, evaluated
// exactly once per session; GrammarGuide is never returned here.
func ComputeRole(c Context) types.Role {
	if c.Profile.NativeLanguage == "" {
		return types.RoleInfoCollector
	}
	if c.Goal == nil || c.Goal.Type == "" {
		return types.RoleGoalPlanner
	}
	if c.Goal.CurrentProficiency >= SummaryThreshold {
		return types.RoleSummaryExpert
	}
	return types.RoleOralTutor
}

// ApplyScenario sets the session topic from the handshake scenario,
// expanding it with the matching goal scenario's task list when one exists.
func (c *Context) ApplyScenario(scenario string) {
	if scenario == "" {
		return
	}
	c.Topic = scenario
	if c.Goal == nil {
		return
	}
	for _, s := range c.Goal.Scenarios {
		if s.Title == scenario {
			if len(s.Tasks) > 0 {
				c.Topic = scenario + " (Tasks: " + strings.Join(s.Tasks, ", ") + ")"
			}
			return
		}
	}
}

// ScenarioTitle strips the task suffix from an expanded topic, recovering
// the bare scenario title the scoring collaborator expects.
func ScenarioTitle(topic string) string {
	if i := strings.Index(topic, " (Tasks:"); i >= 0 {
		return strings.TrimSpace(topic[:i])
	}
	return topic
}
