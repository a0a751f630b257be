// Copyright (c) 2026 Keyra. All rights reserved.

package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/keyrahq/keyra/internal/platform/constants"
	"github.com/keyrahq/keyra/pkg/uuid"
)

// persistTimeout bounds each background write so a stalled database
// cannot wedge the drain loop.
const persistTimeout = 5 * time.Second

// Writer records audit entries asynchronously through a buffered queue.
//
// # Never Block, Never Fail
//
// Record enqueues without waiting. When the queue is full the entry is
// dropped and counted; the auth flow that produced it is unaffected. The
// background worker persists entries one at a time until Close drains
// the queue on shutdown.
type Writer struct {
	store  Store
	logger *slog.Logger
	queue  chan *Entry
	done   chan struct{}
}

// NewWriter creates an audit writer and starts its background worker.
func NewWriter(store Store, logger *slog.Logger) *Writer {
	writer := &Writer{
		store:  store,
		logger: logger,
		queue:  make(chan *Entry, constants.AuditWriterBuffer),
		done:   make(chan struct{}),
	}

	go writer.run()
	return writer
}

/*
Record enqueues an entry for asynchronous persistence.

Description: Assigns the entry id and timestamp at enqueue time so the
trail reflects when the event happened, not when it was flushed. Never
blocks; a full queue drops the entry with a warning log.

Parameters:
  - ctx: context.Context (used for log correlation only)
  - entry: Entry
*/
func (writer *Writer) Record(ctx context.Context, entry Entry) {
	entry.ID = uuid.New()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	select {
	case writer.queue <- &entry:
	default:
		writer.logger.WarnContext(ctx, "audit_entry_dropped",
			slog.String("event_type", entry.EventType),
			slog.String("outcome", entry.Outcome),
		)
	}
}

// Close stops the writer after draining every queued entry.
func (writer *Writer) Close() {
	close(writer.queue)
	<-writer.done
}

// run persists queued entries until the queue is closed and drained.
func (writer *Writer) run() {
	defer close(writer.done)

	for entry := range writer.queue {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := writer.store.Append(ctx, entry); err != nil {
			writer.logger.Error("audit_entry_persist_failed",
				slog.String("event_type", entry.EventType),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}
}
