package types

import (
	"strings"
	"testing"
)

func TestIsValidID(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{"simple alphanumeric", "user123", true},
		{"with underscore and hyphen", "user_1-a", true},
		{"empty", "", false},
		{"spaces", "user 123", false},
		{"path traversal", "../etc", false},
		{"unicode", "usér", false},
		{"max length", strings.Repeat("a", 128), true},
		{"over max length", strings.Repeat("a", 129), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidID(tt.id); got != tt.valid {
				t.Errorf("IsValidID(%q) = %v, want %v", tt.id, got, tt.valid)
			}
		})
	}
}

func TestIsValidRole(t *testing.T) {
	for _, role := range []Role{RoleInfoCollector, RoleGoalPlanner, RoleOralTutor, RoleSummaryExpert, RoleGrammarGuide} {
		if !IsValidRole(role) {
			t.Errorf("IsValidRole(%q) = false, want true", role)
		}
	}
	if IsValidRole(Role("Pirate")) {
		t.Error("IsValidRole accepted an unknown role")
	}
	if IsValidRole(Role("")) {
		t.Error("IsValidRole accepted an empty role")
	}
}

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr error
	}{
		{"valid user message", Message{Role: MessageRoleUser, Content: "hello"}, nil},
		{"valid assistant message", Message{Role: MessageRoleAssistant, Content: "hi"}, nil},
		{"audio only", Message{Role: MessageRoleUser, AudioURL: "https://cdn/x.pcm"}, nil},
		{"bad role", Message{Role: "system", Content: "x"}, ErrInvalidMessageRole},
		{"empty", Message{Role: MessageRoleUser}, ErrEmptyMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.msg.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsActionable(t *testing.T) {
	actionable := []string{FrameAudioStream, FrameTextMessage, FrameInputText, FrameUserAudioEnded}
	for _, ft := range actionable {
		if !IsActionable(ft) {
			t.Errorf("IsActionable(%q) = false, want true", ft)
		}
	}

	passive := []string{FramePing, FrameInterruption, FrameSwitchMode, FrameSessionStart, "bogus"}
	for _, ft := range passive {
		if IsActionable(ft) {
			t.Errorf("IsActionable(%q) = true, want false", ft)
		}
	}
}
