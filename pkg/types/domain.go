package types

import "encoding/json"

// UserProfile mirrors the identity collaborator's profile envelope.
// Field names follow the collaborator's snake_case wire format.
type UserProfile struct {
	ID             string `json:"id"`
	Nickname       string `json:"nickname"`
	Gender         *int   `json:"gender,omitempty"`
	NativeLanguage string `json:"native_language"`
	TargetLanguage string `json:"target_language"`
	Interests      string `json:"interests"`
}

// LearningGoal mirrors the goal collaborator's active-goal envelope.
// CurrentProficiency is a 0-100 score maintained by the scoring service.
type LearningGoal struct {
	ID                 json.Number    `json:"id"`
	Type               string         `json:"type"`
	Description        string         `json:"description"`
	TargetLevel        string         `json:"target_level"`
	TargetLanguage     string         `json:"target_language"`
	CurrentProficiency int            `json:"current_proficiency"`
	Interests          string         `json:"interests"`
	Scenarios          []GoalScenario `json:"scenarios,omitempty"`
}

// GoalScenario is one practice scenario with its ordered task list.
type GoalScenario struct {
	Title string   `json:"title"`
	Tasks []string `json:"tasks"`
}

// SummaryUpdate carries a proficiency score delta to the history/scoring
// collaborator. The delta is the only field the detector ever fills with
// a non-constant value.
type SummaryUpdate struct {
	SessionID             string      `json:"sessionId"`
	UserID                string      `json:"userId"`
	Summary               string      `json:"summary"`
	Feedback              string      `json:"feedback"`
	ProficiencyScoreDelta int         `json:"proficiency_score_delta"`
	GoalID                json.Number `json:"goalId,omitempty"`
}
