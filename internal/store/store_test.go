package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/atlas/internal/semantic"
)

func ptr[T any](v T) *T { return &v }

func testSnapshot() *semantic.WorkspaceSnapshot {
	snap := semantic.NewSnapshot(semantic.SnapshotWorking, semantic.SnapshotProvenance{})
	snap.Completeness = semantic.Partial
	snap.Entities = []semantic.Entity{
		{ID: "function:src/a.rs:crate::alpha", Kind: semantic.KindFunction, Name: "alpha", QualifiedName: ptr("crate::alpha"),
			Location: &semantic.Location{Path: "src/a.rs", Span: &semantic.Span{End: semantic.Point{Line: 2, Column: 1}}}},
		{ID: "function:src/a.rs:crate::beta", Kind: semantic.KindFunction, Name: "beta", QualifiedName: ptr("crate::beta"),
			Location: &semantic.Location{Path: "src/a.rs"}},
		{ID: "struct:src/b.rs:crate::Gamma", Kind: semantic.KindStruct, Name: "Gamma"},
	}
	snap.Relationships = []semantic.Relationship{
		{Source: "function:src/a.rs:crate::alpha", Target: "function:src/a.rs:crate::beta", Kind: semantic.RelCalls,
			Certainty: semantic.ObservedCertainty(), Provenance: semantic.Provenance{Source: semantic.SourceSyntaxTree}},
		{Source: "function:src/a.rs:crate::beta", Target: "struct:src/b.rs:crate::Gamma", Kind: semantic.RelReferences,
			Certainty:  semantic.InferredCertainty(semantic.MustConfidence(55)),
			Provenance: semantic.Provenance{Source: semantic.SourceHeuristic, Detail: ptr("bare name")}},
		{Source: "function:src/missing.rs:crate::ghost", Target: "function:src/a.rs:crate::alpha", Kind: semantic.RelCalls,
			Certainty: semantic.InferredCertainty(semantic.MustConfidence(35)), Provenance: semantic.Provenance{Source: semantic.SourceSymbolResolution}},
	}
	snap.Diagnostics = []semantic.Diagnostic{
		{Severity: semantic.SeverityWarning, Message: "syntax error", Location: &semantic.Location{Path: "src/c.rs"}},
	}
	return snap
}

func newLoadedStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CommitSnapshot(context.Background(), testSnapshot()))
	return s
}

// =============================================================================
// Schema & loading
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s, err := NewMemoryStore()
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"entities", "relationships", "diagnostics"} {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
	require.NoError(t, s.Migrate(), "migrate is idempotent")
}

func TestCommitSnapshot_Rows(t *testing.T) {
	t.Parallel()
	s := newLoadedStore(t)
	ctx := context.Background()

	_, rows, err := s.Select(ctx, "SELECT id, qualified_name, path, end_line FROM entities ORDER BY id")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "function:src/a.rs:crate::alpha", rows[0][0])
	assert.Equal(t, "crate::alpha", rows[0][1])
	assert.Equal(t, int64(2), rows[0][3])
	assert.Nil(t, rows[1][3], "no span stores NULL positions")
	assert.Nil(t, rows[2][1])
	assert.Nil(t, rows[2][2])

	_, rows, err = s.Select(ctx, "SELECT certainty, confidence, provenance, detail FROM relationships WHERE kind = ?", "references")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []any{"inferred", int64(55), "heuristic", "bare name"}, rows[0])

	_, rows, err = s.Select(ctx, "SELECT severity, path FROM diagnostics")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"warning", "src/c.rs"}}, rows)
}

func TestCommitSnapshot_DuplicateEntityKeepsFirst(t *testing.T) {
	t.Parallel()
	s, err := NewMemoryStore()
	require.NoError(t, err)
	defer s.Close()

	snap := testSnapshot()
	dup := snap.Entities[0]
	dup.Name = "shadow"
	snap.Entities = append(snap.Entities, dup)
	require.NoError(t, s.CommitSnapshot(context.Background(), snap))

	_, rows, err := s.Select(context.Background(), "SELECT name FROM entities WHERE id = ?", dup.ID)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"alpha"}}, rows)
}

// =============================================================================
// Read-only queries
// =============================================================================

func TestCheckReadOnly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query string
		ok    bool
	}{
		{"SELECT id FROM entities", true},
		{"  select id from entities;", true},
		{"WITH x AS (SELECT id FROM entities) SELECT id FROM x", true},
		{"", false},
		{";", false},
		{"DELETE FROM entities", false},
		{"SELECT 1; DROP TABLE entities", false},
		{"PRAGMA query_only = OFF", false},
	}
	for _, tt := range tests {
		err := checkReadOnly(tt.query)
		if tt.ok {
			assert.NoError(t, err, tt.query)
		} else {
			assert.Error(t, err, tt.query)
		}
	}
}

func TestFreeze_RejectsWrites(t *testing.T) {
	t.Parallel()
	s := newLoadedStore(t)
	require.NoError(t, s.Freeze(context.Background()))

	_, err := s.DB().Exec("DELETE FROM entities")
	require.Error(t, err)
}

func TestEntityIDs(t *testing.T) {
	t.Parallel()
	s := newLoadedStore(t)
	ctx := context.Background()

	ids, err := s.EntityIDs(ctx, "SELECT id FROM entities ORDER BY id", 0)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	ids, err = s.EntityIDs(ctx, "SELECT id FROM entities ORDER BY id", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"function:src/a.rs:crate::alpha", "function:src/a.rs:crate::beta"}, ids)

	ids, err = s.EntityIDs(ctx, "SELECT qualified_name FROM entities ORDER BY id", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"crate::alpha", "crate::beta"}, ids, "NULL first columns are skipped")

	ids, err = s.EntityIDs(ctx, "SELECT id FROM entities WHERE 0", 5)
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)

	_, err = s.EntityIDs(ctx, "SELECT nope FROM entities", 5)
	require.Error(t, err)
}

// =============================================================================
// Backend
// =============================================================================

func TestBackend_Evaluate(t *testing.T) {
	t.Parallel()
	b := NewBackend()
	defer b.Close()
	snap := testSnapshot()
	ctx := context.Background()

	ids, err := b.Evaluate(ctx, snap, `
		SELECT e.id FROM entities e
		JOIN relationships r ON r.target = e.id
		WHERE r.certainty = 'inferred'
		ORDER BY e.id`, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"function:src/a.rs:crate::alpha", "struct:src/b.rs:crate::Gamma"}, ids)

	first, err := b.Store(ctx, snap)
	require.NoError(t, err)
	second, err := b.Store(ctx, snap)
	require.NoError(t, err)
	assert.Same(t, first, second, "the store is reused for the same snapshot")

	other, err := b.Store(ctx, testSnapshot())
	require.NoError(t, err)
	assert.NotSame(t, first, other)
}

func TestBackend_RejectsWrites(t *testing.T) {
	t.Parallel()
	b := NewBackend()
	defer b.Close()

	_, err := b.Evaluate(context.Background(), testSnapshot(), "DELETE FROM entities", 10)
	require.Error(t, err)
	_, err = b.Evaluate(context.Background(), testSnapshot(), "WITH d AS (SELECT 1) DELETE FROM entities", 10)
	require.Error(t, err)
}

func TestBackend_ExpiredContext(t *testing.T) {
	t.Parallel()
	b := NewBackend()
	defer b.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := b.Evaluate(ctx, testSnapshot(), "SELECT id FROM entities", 10)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
