// Package registry manages the named directory of collections. Each
// collection is an independent engine.Engine persisted to its own snapshot
// file under the data directory; the registry saves a collection after every
// successful write and loads all snapshots concurrently on startup.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/searchlite/searchlite/internal/engine"
	"github.com/searchlite/searchlite/pkg/errors"
)

// Registry is the named directory of collections.
type Registry struct {
	mu          sync.RWMutex
	collections map[string]*engine.Engine
	dataDir     string
	logger      *slog.Logger
}

// New creates a Registry rooted at dataDir, creating the directory if
// needed.
func New(dataDir string) (*Registry, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	return &Registry{
		collections: make(map[string]*engine.Engine),
		dataDir:     dataDir,
		logger:      slog.Default().With("component", "registry"),
	}, nil
}

// Create builds an empty collection for the schema and saves it immediately
// so an empty collection survives a restart.
func (r *Registry) Create(name string, schema engine.Schema) error {
	if err := validateName(name); err != nil {
		return err
	}
	eng, err := engine.New(schema)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.collections[name]; exists {
		r.mu.Unlock()
		return errors.Newf(errors.ErrCollectionExists, 400, "collection %q", name)
	}
	r.collections[name] = eng
	r.mu.Unlock()

	if err := eng.Save(r.snapshotPath(name)); err != nil {
		r.mu.Lock()
		delete(r.collections, name)
		r.mu.Unlock()
		return fmt.Errorf("saving new collection %q: %w", name, err)
	}
	r.logger.Info("collection created", "collection", name, "fields", len(schema))
	return nil
}

// Drop removes a collection and deletes its snapshot file.
func (r *Registry) Drop(name string) error {
	r.mu.Lock()
	if _, exists := r.collections[name]; !exists {
		r.mu.Unlock()
		return errors.Newf(errors.ErrCollectionNotFound, 404, "collection %q", name)
	}
	delete(r.collections, name)
	r.mu.Unlock()

	if err := os.Remove(r.snapshotPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing snapshot for %q: %w", name, err)
	}
	r.logger.Info("collection dropped", "collection", name)
	return nil
}

// Get returns the engine for a collection.
func (r *Registry) Get(name string) (*engine.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eng, exists := r.collections[name]
	if !exists {
		return nil, errors.Newf(errors.ErrCollectionNotFound, 404, "collection %q", name)
	}
	return eng, nil
}

// Names returns all collection names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.collections))
	for name := range r.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of collections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.collections)
}

// SaveCollection snapshots one collection to disk. The HTTP layer calls
// this after every successful mutation.
func (r *Registry) SaveCollection(name string) error {
	eng, err := r.Get(name)
	if err != nil {
		return err
	}
	if err := eng.Save(r.snapshotPath(name)); err != nil {
		return fmt.Errorf("saving collection %q: %w", name, err)
	}
	return nil
}

// SaveAll snapshots every collection, continuing past individual failures
// and returning the first error encountered. Used on shutdown.
func (r *Registry) SaveAll() error {
	var firstErr error
	for _, name := range r.Names() {
		if err := r.SaveCollection(name); err != nil {
			r.logger.Error("failed to save collection", "collection", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// LoadAll scans the data directory for snapshot files and loads every
// collection concurrently. A corrupt snapshot fails the whole startup;
// deleting the bad file is an operator decision, not ours.
func (r *Registry) LoadAll(ctx context.Context) error {
	suffix := ".index." + engine.SnapshotExtension
	entries, err := os.ReadDir(r.dataDir)
	if err != nil {
		return fmt.Errorf("reading data directory %s: %w", r.dataDir, err)
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), suffix)
		path := filepath.Join(r.dataDir, entry.Name())
		g.Go(func() error {
			eng, err := engine.Load(path)
			if err != nil {
				return fmt.Errorf("loading collection %q: %w", name, err)
			}
			r.mu.Lock()
			r.collections[name] = eng
			r.mu.Unlock()
			stats := eng.Stats()
			r.logger.Info("collection loaded",
				"collection", name,
				"docs", stats.DocCount,
				"vocabulary", stats.VocabularySize,
			)
			return nil
		})
	}
	return g.Wait()
}

func (r *Registry) snapshotPath(name string) string {
	return filepath.Join(r.dataDir, fmt.Sprintf("%s.index.%s", name, engine.SnapshotExtension))
}

// validateName rejects names that would escape the data directory or
// collide with the snapshot naming scheme.
func validateName(name string) error {
	if name == "" {
		return errors.Newf(errors.ErrInvalidInput, 400, "collection name must be non-empty")
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") || strings.Contains(name, ".index.") {
		return errors.Newf(errors.ErrInvalidInput, 400, "invalid collection name %q", name)
	}
	return nil
}
