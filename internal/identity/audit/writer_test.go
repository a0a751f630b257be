// Copyright (c) 2026 Keyra. All rights reserved.

package audit_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyrahq/keyra/internal/identity/audit"
	"github.com/keyrahq/keyra/pkg/pagination"
)

// memoryStore collects appended entries, optionally blocking on a gate to
// simulate a slow database.
type memoryStore struct {
	mu      sync.Mutex
	entries []audit.Entry
	gate    chan struct{} // when non-nil, Append waits for the gate
}

func (store *memoryStore) Append(ctx context.Context, entry *audit.Entry) error {
	if store.gate != nil {
		<-store.gate
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	store.entries = append(store.entries, *entry)
	return nil
}

func (store *memoryStore) List(ctx context.Context, filter audit.Filter, params pagination.Params) ([]audit.Entry, int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return append([]audit.Entry(nil), store.entries...), len(store.entries), nil
}

func (store *memoryStore) count() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.entries)
}

/*
TestWriter_PersistsAsync verifies entries flow through the queue to the
store and Close drains everything.
*/
func TestWriter_PersistsAsync(t *testing.T) {
	store := &memoryStore{}
	writer := audit.NewWriter(store, slog.Default())

	actorID := "actor-1"
	for i := 0; i < 10; i++ {
		writer.Record(context.Background(), audit.Entry{
			ActorID:   &actorID,
			EventType: audit.EventIssued,
			Outcome:   audit.OutcomeSuccess,
			Message:   "login",
		})
	}

	writer.Close()

	require.Equal(t, 10, store.count())
	assert.NotEmpty(t, store.entries[0].ID)
	assert.False(t, store.entries[0].CreatedAt.IsZero())
}

/*
TestWriter_NeverBlocks floods the queue while the store is wedged and
asserts Record stays non-blocking, dropping the overflow.
*/
func TestWriter_NeverBlocks(t *testing.T) {
	gate := make(chan struct{})
	store := &memoryStore{gate: gate}
	writer := audit.NewWriter(store, slog.New(slog.DiscardHandler))

	// Far beyond the queue capacity, with the worker stuck on entry one.
	const flood = 5000
	done := make(chan struct{})
	go func() {
		for i := 0; i < flood; i++ {
			writer.Record(context.Background(), audit.Entry{
				EventType: audit.EventFailed,
				Outcome:   audit.OutcomeFailure,
			})
		}
		close(done)
	}()

	select {
	case <-done:
		// Recording never waited on the wedged store.
	case <-time.After(5 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	close(gate)
	writer.Close()

	// Everything queued was persisted; the overflow was dropped, not queued.
	assert.Greater(t, store.count(), 0)
	assert.Less(t, store.count(), flood)
}
