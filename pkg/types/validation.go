package types

import "regexp"

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidID reports whether a user or session identifier is well formed.
func IsValidID(id string) bool {
	return id != "" && len(id) <= 128 && idRegex.MatchString(id)
}

// IsValidRole reports whether r is one of the defined session roles.
func IsValidRole(r Role) bool {
	switch r {
	case RoleInfoCollector, RoleGoalPlanner, RoleOralTutor, RoleSummaryExpert, RoleGrammarGuide:
		return true
	}
	return false
}

// Validate ensures a message is well formed before it enters the log.
func (m *Message) Validate() error {
	if m.Role != MessageRoleUser && m.Role != MessageRoleAssistant {
		return ErrInvalidMessageRole
	}
	if m.Content == "" && m.AudioURL == "" {
		return ErrEmptyMessage
	}
	return nil
}

// IsActionable reports whether a client frame should trigger an upstream
// reconnect when the backend connection is down. Only frames that feed the
// conversation count; pings and interruptions do not.
func IsActionable(frameType string) bool {
	switch frameType {
	case FrameAudioStream, FrameTextMessage, FrameInputText, FrameUserAudioEnded:
		return true
	}
	return false
}
