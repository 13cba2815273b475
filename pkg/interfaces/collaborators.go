package interfaces

import (
	"context"

	"omnigate/pkg/types"
)

// HistoryStore persists and retrieves conversation logs. Save is a full
// replace with idempotent semantics; failures must be tolerated by callers.
type HistoryStore interface {
	SessionMessages(ctx context.Context, sessionID string) ([]types.Message, error)
	SaveConversation(ctx context.Context, conversation types.ConversationLog) error
	SaveSummary(ctx context.Context, update types.SummaryUpdate) error
}

// MediaUploader stores one raw audio blob and returns its public URL.
// An empty URL with nil error means the collaborator accepted the upload
// but produced no link.
type MediaUploader interface {
	Upload(ctx context.Context, direction, filename string, data []byte) (string, error)
}

// TaskScorer records task completion against the goal service. The task
// argument may be a placeholder reference; the collaborator resolves which
// concrete task it names.
type TaskScorer interface {
	CompleteTask(ctx context.Context, userID, scenario, task string) error
}

// ProfileDirectory exposes the identity collaborator. Failures degrade to
// zero values at the resolver, never at the caller.
type ProfileDirectory interface {
	Profile(ctx context.Context, token string) (types.UserProfile, error)
	ActiveGoal(ctx context.Context, token string) (*types.LearningGoal, error)
}

// Archiver journals a conversation payload locally when the history
// collaborator is unreachable.
type Archiver interface {
	Journal(ctx context.Context, sessionID string, payload []byte) error
}
