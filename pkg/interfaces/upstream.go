package interfaces

import "omnigate/internal/upstream"

// Upstream is the bridge-facing view of one realtime backend connection.
// *upstream.Client is the production implementation; tests substitute a
// scripted fake fed through the same event channel.
type Upstream interface {
	Events() <-chan upstream.Event
	Connected() bool
	UpdateSession(opts upstream.SessionOptions) error
	AppendAudio(audioB64 string) error
	CreateResponse(instructions string) error
	CancelResponse() error
	Close() error
	// Err reports the terminal connection error once the event channel
	// has closed, nil for a clean shutdown.
	Err() error
}
