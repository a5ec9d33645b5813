// Package ingest consumes document events from Kafka and feeds them into
// collections, saving each collection once per batch instead of per
// document so bulk loads do not thrash the snapshot writer.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/searchlite/searchlite/internal/engine"
	"github.com/searchlite/searchlite/internal/registry"
	pkgerrors "github.com/searchlite/searchlite/pkg/errors"
	"github.com/searchlite/searchlite/pkg/kafka"
)

// Event is one ingestion message: a document destined for a collection.
// When ID is empty the engine generates one.
type Event struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id,omitempty"`
	Document   engine.Document `json:"document"`
}

// Consumer drives the bulk ingestion pipeline.
type Consumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates a Consumer that indexes events into reg's collections and
// snapshots each touched collection every batchSize documents.
func New(reg *registry.Registry, newKafkaConsumer func(kafka.MessageHandler) *kafka.Consumer, batchSize int) *Consumer {
	handler := newHandler(reg, batchSize)
	return &Consumer{
		consumer: newKafkaConsumer(handler),
		logger:   slog.Default().With("component", "ingest-consumer"),
	}
}

// Start blocks consuming messages until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("ingest consumer starting")
	return c.consumer.Start(ctx)
}

// newHandler returns the per-message handler. Malformed events are logged
// and skipped; indexing errors other than duplicate ids are returned so the
// message is not committed.
func newHandler(reg *registry.Registry, batchSize int) kafka.MessageHandler {
	logger := slog.Default().With("component", "ingest-consumer")
	pending := make(map[string]int)

	flush := func(collection string) error {
		if err := reg.SaveCollection(collection); err != nil {
			return fmt.Errorf("saving collection %q after batch: %w", collection, err)
		}
		logger.Info("ingest batch persisted", "collection", collection, "docs", pending[collection])
		pending[collection] = 0
		return nil
	}

	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[Event](value)
		if err != nil {
			logger.Error("failed to decode ingest event", "error", err, "key", string(key))
			return nil
		}
		eng, err := reg.Get(event.Collection)
		if err != nil {
			logger.Error("ingest event for unknown collection", "collection", event.Collection)
			return nil
		}

		id, err := eng.Add(event.Document, event.ID)
		if err != nil {
			if errors.Is(err, pkgerrors.ErrDuplicateID) {
				logger.Warn("duplicate document id, skipping", "collection", event.Collection, "id", event.ID)
				return nil
			}
			return fmt.Errorf("indexing document in %q: %w", event.Collection, err)
		}
		logger.Debug("document ingested", "collection", event.Collection, "id", id)

		pending[event.Collection]++
		if pending[event.Collection] >= batchSize {
			return flush(event.Collection)
		}
		return nil
	}
}
