package query

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/atlas/internal/agent"
	"github.com/jward/atlas/internal/semantic"
)

type fakeBackend struct {
	ids   []string
	err   error
	limit int
}

func (f *fakeBackend) Evaluate(_ context.Context, _ *semantic.WorkspaceSnapshot, _ string, limit int) ([]string, error) {
	f.limit = limit
	return f.ids, f.err
}

func structuralService(t *testing.T, b StructuralBackend) *Service {
	t.Helper()
	return newTestService(t,
		[]semantic.Entity{
			entity("function:a.rs:a::alpha", semantic.KindFunction, "alpha", "a::alpha", "a.rs"),
			entity("struct:a.rs:a::Beta", semantic.KindStruct, "Beta", "a::Beta", "a.rs"),
		},
		nil,
		WithBackend(agent.DialectPattern, b),
	)
}

func TestStructuralQuery_BuildsMatchesFromBackendIDs(t *testing.T) {
	t.Parallel()
	b := &fakeBackend{ids: []string{"struct:a.rs:a::Beta", "unknown", "struct:a.rs:a::Beta", "function:a.rs:a::alpha"}}
	s := structuralService(t, b)

	resp := s.StructuralQuery(context.Background(), agent.StructuralQueryRequest{
		Dialect: agent.DialectPattern, Query: `entity.kind == "struct"`, Limit: 10,
	})
	require.Equal(t, agent.StatusSuccess, resp.Status)
	assert.Equal(t, 10, b.limit)
	matches := resp.Result.Matches
	require.Len(t, matches, 2)
	assert.Equal(t, "Beta", matches[0].Entity.Name)
	assert.Equal(t, "struct Beta matched the pattern query.", matches[0].Summary)
	assert.Equal(t, semantic.ObservedCertainty(), matches[0].Certainty)
	assert.Equal(t, "pattern structural query", matches[0].Provenance.DetailText())
	assert.Equal(t, "alpha", matches[1].Entity.Name)
}

func TestStructuralQuery_TruncatesToLimit(t *testing.T) {
	t.Parallel()
	s := structuralService(t, &fakeBackend{ids: []string{"function:a.rs:a::alpha", "struct:a.rs:a::Beta"}})

	resp := s.StructuralQuery(context.Background(), agent.StructuralQueryRequest{
		Dialect: agent.DialectPattern, Query: "true", Limit: 1,
	})
	require.Equal(t, agent.StatusSuccess, resp.Status)
	require.Len(t, resp.Result.Matches, 1)
}

func TestStructuralQuery_RequestValidation(t *testing.T) {
	t.Parallel()
	s := structuralService(t, &fakeBackend{})

	tests := []struct {
		name string
		req  agent.StructuralQueryRequest
		code agent.ErrorCode
	}{
		{"empty query", agent.StructuralQueryRequest{Dialect: agent.DialectPattern, Query: " ", Limit: 5}, agent.CodeInvalidRequest},
		{"unknown dialect", agent.StructuralQueryRequest{Dialect: "datalog", Query: "x", Limit: 5}, agent.CodeUnsupportedQuery},
		{"unregistered dialect", agent.StructuralQueryRequest{Dialect: agent.DialectGraph, Query: "x", Limit: 5}, agent.CodeUnsupportedQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := s.StructuralQuery(context.Background(), tt.req)
			require.Equal(t, agent.StatusError, resp.Status)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.False(t, resp.Error.Retryable)
		})
	}
}

func TestStructuralQuery_ZeroLimitSkipsBackend(t *testing.T) {
	t.Parallel()
	b := &fakeBackend{ids: []string{"function:a.rs:a::alpha"}, limit: -1}
	s := structuralService(t, b)

	resp := s.StructuralQuery(context.Background(), agent.StructuralQueryRequest{
		Dialect: agent.DialectPattern, Query: "true", Limit: 0,
	})
	require.Equal(t, agent.StatusSuccess, resp.Status)
	assert.Empty(t, resp.Result.Matches)
	assert.Equal(t, -1, b.limit)
}

func TestStructuralQuery_BackendErrorIsInvalidRequest(t *testing.T) {
	t.Parallel()
	s := structuralService(t, &fakeBackend{err: errors.New("unexpected token")})

	resp := s.StructuralQuery(context.Background(), agent.StructuralQueryRequest{
		Dialect: agent.DialectPattern, Query: "((", Limit: 5,
	})
	require.Equal(t, agent.StatusError, resp.Status)
	assert.Equal(t, agent.CodeInvalidRequest, resp.Error.Code)
	assert.Equal(t, "pattern query failed: unexpected token", resp.Error.Message)
}

func TestStructuralQuery_DeadlineReturnsPartialMatches(t *testing.T) {
	t.Parallel()
	s := structuralService(t, &fakeBackend{
		ids: []string{"function:a.rs:a::alpha"},
		err: fmt.Errorf("evaluate: %w", context.DeadlineExceeded),
	})
	ctx, cancel := agent.WithBudget(context.Background(), 250*time.Millisecond)
	defer cancel()

	resp := s.StructuralQuery(ctx, agent.StructuralQueryRequest{
		Dialect: agent.DialectPattern, Query: "true", Limit: 5,
	})
	require.Equal(t, agent.StatusTimeout, resp.Status)
	require.NotNil(t, resp.Timeout)
	assert.Equal(t, uint64(250), resp.Timeout.LimitMS)
	require.NotNil(t, resp.PartialResult)
	require.Len(t, resp.PartialResult.Matches, 1)
	assert.Equal(t, "alpha", resp.PartialResult.Matches[0].Entity.Name)
}
