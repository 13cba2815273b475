package archive

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"omnigate/pkg/interfaces"
	"omnigate/pkg/types"
)

// flushBatchSize bounds how many entries one flush cycle attempts.
const flushBatchSize = 50

// Flusher periodically replays journaled conversations against the
// history collaborator, deleting each entry once accepted.
type Flusher struct {
	store    *Store
	history  interfaces.HistoryStore
	interval time.Duration
	shutdown chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func NewFlusher(store *Store, history interfaces.HistoryStore, interval time.Duration) *Flusher {
	return &Flusher{
		store:    store,
		history:  history,
		interval: interval,
		shutdown: make(chan struct{}),
	}
}

// Start launches the background flush loop.
func (f *Flusher) Start() {
	f.wg.Add(1)
	go f.run()
}

// Stop signals the loop to exit and waits for it.
func (f *Flusher) Stop() {
	f.once.Do(func() { close(f.shutdown) })
	f.wg.Wait()
}

func (f *Flusher) run() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.flushOnce()
		case <-f.shutdown:
			return
		}
	}
}

// flushOnce replays one batch. A delivery failure stops the batch early;
// the collaborator is likely still down and the rest can wait.
func (f *Flusher) flushOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), f.interval)
	defer cancel()

	entries, err := f.store.Pending(ctx, flushBatchSize)
	if err != nil {
		log.Printf("Archive flush: failed to read pending entries: %v", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	delivered := 0
	for _, entry := range entries {
		var conversation types.ConversationLog
		if err := json.Unmarshal(entry.Payload, &conversation); err != nil {
			log.Printf("Archive flush: dropping undecodable entry %s: %v", entry.ID, err)
			_ = f.store.Delete(ctx, entry.ID)
			continue
		}

		if err := f.history.SaveConversation(ctx, conversation); err != nil {
			log.Printf("Archive flush: delivery failed for session %s: %v", entry.SessionID, err)
			break
		}
		if err := f.store.Delete(ctx, entry.ID); err != nil {
			log.Printf("Archive flush: failed to delete entry %s: %v", entry.ID, err)
			break
		}
		delivered++
	}

	if delivered > 0 {
		log.Printf("Archive flush: delivered %d journaled conversation(s)", delivered)
	}
}
