// Package audio holds the per-direction capture primitives: an accumulating
// PCM buffer with copy-then-clear swap semantics and a single-slot holder
// for an upload URL waiting on its message.
package audio

import "sync"

// Upload directions, used as multipart field names by the media collaborator.
const (
	DirectionUser      = "user_audio"
	DirectionAssistant = "ai_audio"
)

// Buffer accumulates raw PCM chunks for one direction of one session.
// Swap returns everything accumulated so far and clears the buffer in the
// same critical section, so no two consumers can observe the same bytes.
type Buffer struct {
	mu   sync.Mutex
	data []byte
}

// Append adds one chunk to the buffer.
func (b *Buffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.mu.Lock()
	b.data = append(b.data, chunk...)
	b.mu.Unlock()
}

// Swap returns a copy of the accumulated bytes and resets the buffer.
// Returns nil when the buffer is empty.
func (b *Buffer) Swap() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.data) == 0 {
		return nil
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	b.data = b.data[:0]
	return out
}

// Len reports the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// URLSlot holds at most one uploaded-audio URL waiting for its message.
// Take consumes the value, so a URL can never attach to two messages or
// leak across turns.
type URLSlot struct {
	mu  sync.Mutex
	url string
}

// Put stores a URL, replacing any unconsumed value.
func (s *URLSlot) Put(url string) {
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
}

// Take returns the held URL and clears the slot.
func (s *URLSlot) Take() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.url == "" {
		return "", false
	}
	url := s.url
	s.url = ""
	return url, true
}
