package archive

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"omnigate/pkg/types"
)

type fakeHistory struct {
	mu    sync.Mutex
	saved []types.ConversationLog
	err   error
}

func (f *fakeHistory) SessionMessages(ctx context.Context, sessionID string) ([]types.Message, error) {
	return nil, nil
}

func (f *fakeHistory) SaveConversation(ctx context.Context, conversation types.ConversationLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, conversation)
	return nil
}

func (f *fakeHistory) SaveSummary(ctx context.Context, update types.SummaryUpdate) error {
	return nil
}

func (f *fakeHistory) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func setupFlusherStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "flush.db"))
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestFlusherDeliversAndDeletes(t *testing.T) {
	store := setupFlusherStore(t)
	ctx := context.Background()

	if err := store.Journal(ctx, "s1", []byte(`{"sessionId":"s1","userId":"u1","messages":[]}`)); err != nil {
		t.Fatalf("Journal() error: %v", err)
	}

	history := &fakeHistory{}
	flusher := NewFlusher(store, history, time.Minute)
	flusher.flushOnce()

	if history.savedCount() != 1 {
		t.Fatalf("saved %d conversations, want 1", history.savedCount())
	}
	if history.saved[0].SessionID != "s1" {
		t.Errorf("SessionID = %q", history.saved[0].SessionID)
	}
	entries, err := store.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("Pending() error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries after flush = %d, want 0", len(entries))
	}
}

func TestFlusherStopsBatchOnDeliveryFailure(t *testing.T) {
	store := setupFlusherStore(t)
	ctx := context.Background()

	for _, session := range []string{"a", "b"} {
		if err := store.Journal(ctx, session, []byte(`{"sessionId":"`+session+`"}`)); err != nil {
			t.Fatalf("Journal() error: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	history := &fakeHistory{err: errors.New("collaborator down")}
	flusher := NewFlusher(store, history, time.Minute)
	flusher.flushOnce()

	entries, err := store.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("Pending() error: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("entries after failed flush = %d, want 2 untouched", len(entries))
	}
}

func TestFlusherDropsUndecodableEntries(t *testing.T) {
	store := setupFlusherStore(t)
	ctx := context.Background()

	if err := store.Journal(ctx, "bad", []byte(`{not json`)); err != nil {
		t.Fatalf("Journal() error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := store.Journal(ctx, "good", []byte(`{"sessionId":"good"}`)); err != nil {
		t.Fatalf("Journal() error: %v", err)
	}

	history := &fakeHistory{}
	flusher := NewFlusher(store, history, time.Minute)
	flusher.flushOnce()

	if history.savedCount() != 1 {
		t.Fatalf("saved %d conversations, want 1", history.savedCount())
	}
	if history.saved[0].SessionID != "good" {
		t.Errorf("SessionID = %q", history.saved[0].SessionID)
	}
	entries, err := store.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("Pending() error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries after flush = %d, want undecodable entry dropped", len(entries))
	}
}

func TestFlusherStartStop(t *testing.T) {
	store := setupFlusherStore(t)
	flusher := NewFlusher(store, &fakeHistory{}, 10*time.Millisecond)
	flusher.Start()
	time.Sleep(30 * time.Millisecond)
	flusher.Stop()
	flusher.Stop()
}
