// Package analytics records one row per search query in PostgreSQL so
// operators can study query traffic offline. Recording is fire-and-forget:
// events flow through a buffered channel to a background writer, and a full
// buffer drops events rather than slowing searches down.
package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/searchlite/searchlite/pkg/postgres"
	"github.com/searchlite/searchlite/pkg/resilience"
)

// SearchEvent describes one executed search.
type SearchEvent struct {
	Collection string
	Query      string
	HitCount   int
	ElapsedUS  int64
	Timestamp  time.Time
}

// Recorder persists search events.
//
// It requires a `search_events` table:
//
//	CREATE TABLE search_events (
//	    id          BIGSERIAL PRIMARY KEY,
//	    collection  TEXT NOT NULL,
//	    query       TEXT NOT NULL,
//	    hit_count   INTEGER NOT NULL,
//	    elapsed_us  BIGINT NOT NULL,
//	    executed_at TIMESTAMPTZ NOT NULL
//	);
type Recorder struct {
	db     *postgres.Client
	events chan SearchEvent
	done   chan struct{}
	logger *slog.Logger
}

// NewRecorder creates a Recorder with the given buffer capacity.
func NewRecorder(db *postgres.Client, bufferSize int) *Recorder {
	return &Recorder{
		db:     db,
		events: make(chan SearchEvent, bufferSize),
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "analytics-recorder"),
	}
}

// Start launches the background writer. It returns immediately; the writer
// drains until ctx is cancelled, then flushes what is buffered.
func (r *Recorder) Start(ctx context.Context) {
	go func() {
		defer close(r.done)
		for {
			select {
			case <-ctx.Done():
				r.drain()
				return
			case event := <-r.events:
				r.insert(ctx, event)
			}
		}
	}()
}

// Record enqueues an event, dropping it when the buffer is full.
func (r *Recorder) Record(event SearchEvent) {
	select {
	case r.events <- event:
	default:
		r.logger.Warn("analytics buffer full, dropping event", "collection", event.Collection)
	}
}

// Wait blocks until the background writer has exited.
func (r *Recorder) Wait() {
	<-r.done
}

func (r *Recorder) insert(ctx context.Context, event SearchEvent) {
	err := resilience.Retry(ctx, "analytics-insert", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		_, err := r.db.DB.ExecContext(ctx,
			`INSERT INTO search_events (collection, query, hit_count, elapsed_us, executed_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			event.Collection, event.Query, event.HitCount, event.ElapsedUS, event.Timestamp.UTC(),
		)
		return err
	})
	if err != nil {
		r.logger.Error("failed to record search event", "collection", event.Collection, "error", err)
	}
}

// drain flushes buffered events with a short deadline during shutdown.
func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case event := <-r.events:
			r.insert(ctx, event)
		default:
			return
		}
	}
}
