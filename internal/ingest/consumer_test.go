package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchlite/searchlite/internal/engine"
	"github.com/searchlite/searchlite/internal/registry"
)

func newTestRegistry(t *testing.T) (*registry.Registry, string) {
	t.Helper()
	dir := t.TempDir()
	reg, err := registry.New(dir)
	require.NoError(t, err)
	require.NoError(t, reg.Create("products", engine.Schema{
		"title": {Type: engine.FieldString},
	}))
	return reg, dir
}

func encodeEvent(t *testing.T, event Event) []byte {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return data
}

func TestHandlerIndexesEvents(t *testing.T) {
	reg, _ := newTestRegistry(t)
	handler := newHandler(reg, 100)
	ctx := context.Background()

	for i, title := range []string{"first widget", "second widget"} {
		err := handler(ctx, nil, encodeEvent(t, Event{
			Collection: "products",
			ID:         string(rune('a' + i)),
			Document:   engine.Document{"title": title},
		}))
		require.NoError(t, err)
	}

	eng, err := reg.Get("products")
	require.NoError(t, err)
	assert.Equal(t, 2, eng.DocCount())
}

func TestHandlerGeneratesIDWhenMissing(t *testing.T) {
	reg, _ := newTestRegistry(t)
	handler := newHandler(reg, 100)

	err := handler(context.Background(), nil, encodeEvent(t, Event{
		Collection: "products",
		Document:   engine.Document{"title": "anonymous"},
	}))
	require.NoError(t, err)

	eng, _ := reg.Get("products")
	assert.Equal(t, 1, eng.DocCount())
}

func TestHandlerSkipsMalformedEvent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	handler := newHandler(reg, 100)

	err := handler(context.Background(), []byte("key"), []byte("{broken"))
	assert.NoError(t, err, "malformed events are skipped, not retried")

	eng, _ := reg.Get("products")
	assert.Equal(t, 0, eng.DocCount())
}

func TestHandlerSkipsUnknownCollection(t *testing.T) {
	reg, _ := newTestRegistry(t)
	handler := newHandler(reg, 100)

	err := handler(context.Background(), nil, encodeEvent(t, Event{
		Collection: "ghost",
		Document:   engine.Document{"title": "lost"},
	}))
	assert.NoError(t, err)
}

func TestHandlerSkipsDuplicateID(t *testing.T) {
	reg, _ := newTestRegistry(t)
	handler := newHandler(reg, 100)
	ctx := context.Background()

	event := Event{Collection: "products", ID: "dup", Document: engine.Document{"title": "one"}}
	require.NoError(t, handler(ctx, nil, encodeEvent(t, event)))
	require.NoError(t, handler(ctx, nil, encodeEvent(t, event)))

	eng, _ := reg.Get("products")
	assert.Equal(t, 1, eng.DocCount())
}

func TestHandlerFlushesPerBatch(t *testing.T) {
	reg, dir := newTestRegistry(t)
	handler := newHandler(reg, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, handler(ctx, nil, encodeEvent(t, Event{
			Collection: "products",
			ID:         string(rune('a' + i)),
			Document:   engine.Document{"title": "batched widget"},
		})))
	}

	// The batch boundary persisted the collection: a fresh registry over the
	// same directory sees all three documents.
	reloaded, err := registry.New(dir)
	require.NoError(t, err)
	require.NoError(t, reloaded.LoadAll(ctx))
	eng, err := reloaded.Get("products")
	require.NoError(t, err)
	assert.Equal(t, 3, eng.DocCount())
}
