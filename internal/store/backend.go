package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jward/atlas/internal/query"
	"github.com/jward/atlas/internal/semantic"
)

// Backend evaluates graph-dialect structural queries. It keeps one
// in-memory Store for the most recently queried snapshot.
type Backend struct {
	mu    sync.Mutex
	snap  *semantic.WorkspaceSnapshot
	store *Store
}

var _ query.StructuralBackend = (*Backend)(nil)

// NewBackend creates a Backend with no snapshot loaded.
func NewBackend() *Backend {
	return &Backend{}
}

// Evaluate runs a read-only SQL query against snap's graph and returns
// the first column of each row as an entity id.
func (b *Backend) Evaluate(ctx context.Context, snap *semantic.WorkspaceSnapshot, q string, limit int) ([]string, error) {
	if err := checkReadOnly(q); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.storeFor(ctx, snap)
	if err != nil {
		return nil, err
	}
	return s.EntityIDs(ctx, q, limit)
}

// Store returns the Store holding snap's graph, building it if needed.
func (b *Backend) Store(ctx context.Context, snap *semantic.WorkspaceSnapshot) (*Store, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.storeFor(ctx, snap)
}

func (b *Backend) storeFor(ctx context.Context, snap *semantic.WorkspaceSnapshot) (*Store, error) {
	if b.store != nil && b.snap == snap {
		return b.store, nil
	}
	s, err := NewMemoryStore()
	if err != nil {
		return nil, err
	}
	if err := s.CommitSnapshot(ctx, snap); err != nil {
		s.Close()
		return nil, fmt.Errorf("load graph: %w", err)
	}
	if err := s.Freeze(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if b.store != nil {
		b.store.Close()
	}
	b.snap, b.store = snap, s
	return s, nil
}

// Close releases the cached Store.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.store == nil {
		return nil
	}
	err := b.store.Close()
	b.snap, b.store = nil, nil
	return err
}
