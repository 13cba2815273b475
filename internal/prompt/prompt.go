// Package prompt generates system and turn instructions for each session
// role. Everything here is pure string substitution over fixed templates;
// no state, no I/O.
package prompt

import (
	"fmt"
	"strings"

	"omnigate/internal/userctx"
	"omnigate/pkg/types"
)

const infoCollectorTemplate = `# Role
You are a language learning planner for new users. Your task is to collect the user's basic information and learning goals accurately.

# Context
- Known Native Language: {native_language}
- Known Target Language: {target_language}

# Task
Guide the user to provide, step by step, conducting the conversation in {native_language}:
1. Nickname (required)
2. Gender (optional)
3. Native Language (required)
4. Target Language (required)
5. Target Proficiency Level (Beginner, Intermediate, Advanced, Native) (required)
6. Completion Time in days (optional)
7. Interests (optional)
8. Major Challenges (optional)

# Interaction Rules
1. Speak primarily in {native_language}.
2. Ask for 1-2 items per turn, never everything at once.
3. Once all required fields are collected, summarize the profile and wait for the user's explicit confirmation before finishing.`

const goalPlannerTemplate = `# Role
You are a professional Oral Goal Planner. Help the user set a specific, achievable oral practice goal based on their profile.

# Context
User: {nickname}
Target Language: {target_language}
Current Level: {proficiency}
Interests: {interests}

# Task
Propose a goal based on their interests, refine it with the user, and confirm. The goal must include a target level, a completion time, and a specific focus. Summarize the final goal and wait for explicit confirmation before finishing.`

const oralTutorTemplate = `# Role
You are "Omni", an expert linguist and oral language tutor. Be a supportive language partner who encourages BOLD speaking.

# User Profile
- Native Language: {native_language}
- Target Language: {target_language}
- Current Proficiency: {proficiency} (0-100)
- Current Goal: {goal_description}
- Interests: {interests}
- Current Practice Focus: {current_focus}

# Interaction Rules
1. Adapt to proficiency {proficiency}: beginners get simple words and short sentences; intermediate learners get compound sentences and opinions; advanced learners get deeper topics and professional vocabulary; near-native learners get idiomatic, fast-paced expressions.
2. Be concise. If the user is correct, reply naturally without praise or analysis. If errors exist, give a one-sentence correction after your natural response, plus a brief proactive tip on a better expression or pronunciation.
3. Drive the conversation with open-ended prompts; avoid yes/no questions.

# Language Strategy
{language_strategy}

# Pronunciation Rule
When speaking {target_language}, switch your accent completely to that language and use its native script.

# Objective
Help the user practice towards their goal: {goal_description}.`

const summaryExpertTemplate = `# Role
You are an expert language evaluator. The user has achieved a high proficiency ({proficiency}) in {target_language}, effectively completing their goal: "{goal_description}".

# Context
- User: {nickname}

# Task
1. Warmly congratulate the user on reaching this level and completing their goal.
2. Tell them this goal will now be archived so they can define a new, more advanced challenge.`

const grammarGuideTemplate = `# Role
You are a specialized Grammar Guide. Analyze the user's proficiency and goal, and present a focused list of grammar points to work on.

# Context
- Target Language: {target_language}
- Current Proficiency: {proficiency} (0-100)
- Goal: {goal_description}

# Task
Select 3-5 grammar points matched to proficiency {proficiency}: basic structures and simple tenses below 20, perfect tenses, clauses and modals up to 50, advanced passives and inversion up to 70, nuanced register and rhetoric above that. Explain why each matters for the goal "{goal_description}", then practice them conversationally.`

const immersionStrategy = `Speak primarily in {target_language}. To keep pronunciation accurate, avoid mixing {native_language} characters into spoken output; if the user struggles, paraphrase in simpler {target_language}.`

const bridgeStrategy = `Use a bridge approach: speak mostly in {target_language} (about 70%), switching to {native_language} to explain difficult concepts, give feedback, or ensure understanding.`

// StopInstruction forces a farewell and session summary when the user
// issues a deterministic stop command.
const StopInstruction = `The user has issued a SYSTEM STOP COMMAND.
1. Say goodbye politely.
2. Summarize the session immediately: key topics, performance notes, and one piece of specific advice.`

// System builds the session system prompt for the given role.
func System(c userctx.Context, role types.Role) string {
	switch role {
	case types.RoleInfoCollector:
		return apply(infoCollectorTemplate, map[string]string{
			"native_language": defaultString(c.Profile.NativeLanguage, "Chinese"),
			"target_language": defaultString(c.Profile.TargetLanguage, "Unknown"),
		})

	case types.RoleGoalPlanner:
		return apply(goalPlannerTemplate, map[string]string{
			"nickname":        defaultString(c.Profile.Nickname, "User"),
			"target_language": defaultString(c.Profile.TargetLanguage, "English"),
			"proficiency":     fmt.Sprintf("%d", goalProficiency(c, 1)),
			"interests":       c.Profile.Interests,
		})

	case types.RoleSummaryExpert:
		return apply(summaryExpertTemplate, map[string]string{
			"nickname":         defaultString(c.Profile.Nickname, "User"),
			"proficiency":      fmt.Sprintf("%d", goalProficiency(c, userctx.SummaryThreshold)),
			"target_language":  defaultString(c.Profile.TargetLanguage, "English"),
			"goal_description": goalDescription(c),
		})

	case types.RoleGrammarGuide:
		return apply(grammarGuideTemplate, map[string]string{
			"target_language":  defaultString(c.Profile.TargetLanguage, "English"),
			"proficiency":      fmt.Sprintf("%d", goalProficiency(c, 20)),
			"goal_description": goalDescription(c),
		})

	default: // OralTutor
		target := defaultString(c.Profile.TargetLanguage, "English")
		native := defaultString(c.Profile.NativeLanguage, "Chinese")

		strategy := bridgeStrategy
		if target == "Japanese" {
			// Kanji is ambiguous with Hanzi for the TTS engine, so
			// Japanese sessions run in strict immersion.
			strategy = immersionStrategy
		}
		strategy = apply(strategy, map[string]string{
			"target_language": target,
			"native_language": native,
		})

		interests := c.Profile.Interests
		if c.Goal != nil && c.Goal.Interests != "" {
			interests = c.Goal.Interests
		}

		return apply(oralTutorTemplate, map[string]string{
			"native_language":   native,
			"target_language":   target,
			"proficiency":       fmt.Sprintf("%d", goalProficiency(c, 20)),
			"goal_description":  goalDescription(c),
			"interests":         defaultString(interests, "General"),
			"current_focus":     defaultString(c.Topic, "General Practice"),
			"language_strategy": strategy,
		})
	}
}

// historyLimit bounds how many restored messages the system prompt carries.
const historyLimit = 10

// WithHistory appends restored conversation context so a fresh backend
// session keeps multi-turn memory.
func WithHistory(system string, messages []types.Message) string {
	if len(messages) == 0 {
		return system
	}
	recent := messages
	if len(recent) > historyLimit {
		recent = recent[len(recent)-historyLimit:]
	}

	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\n# Previous Conversation Context:\n")
	for _, m := range recent {
		label := "AI"
		if m.Role == types.MessageRoleUser {
			label = "User"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, m.Content)
	}
	return b.String()
}

// Welcome builds the turn instruction that triggers a greeting for a
// brand-new session.
func Welcome(role types.Role, c userctx.Context, topic string) string {
	instruction := "This is the start of a new session. You MUST greet the user to initiate the interaction."
	switch role {
	case types.RoleInfoCollector:
		instruction += " Introduce yourself as their personal language goal planner and ask for their nickname."
	case types.RoleGoalPlanner:
		instruction += " Welcome them and mention you are ready to design their learning scenarios."
	case types.RoleOralTutor:
		instruction += fmt.Sprintf(" Greet the user for their %s practice session on %s.",
			defaultString(c.Profile.TargetLanguage, "language"), defaultString(topic, "General Practice"))
	}
	return instruction
}

// TurnInput wraps typed user text as a per-turn instruction.
func TurnInput(text string) string {
	return "User input: " + text
}

func apply(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.TrimSpace(strings.NewReplacer(pairs...).Replace(template))
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func goalProficiency(c userctx.Context, fallback int) int {
	if c.Goal != nil && c.Goal.CurrentProficiency > 0 {
		return c.Goal.CurrentProficiency
	}
	return fallback
}

func goalDescription(c userctx.Context) string {
	if c.Goal == nil {
		return "Master the language"
	}
	if c.Goal.Description != "" {
		return c.Goal.Description
	}
	if c.Goal.TargetLevel != "" {
		return "Reach " + c.Goal.TargetLevel + " level"
	}
	return "Master the language"
}
