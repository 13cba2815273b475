package interfaces

// ClientConn is the bridge-facing view of a client WebSocket connection.
// Implementations must serialize writes internally; the bridge calls
// WriteJSON from its processing goroutine and the heartbeat goroutine.
type ClientConn interface {
	WriteJSON(v interface{}) error
	Close() error
}
