package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jward/atlas/internal/agent"
	"github.com/jward/atlas/internal/semantic"
)

// StructuralBackend evaluates one structural query dialect against a
// snapshot. It returns matching entity ids in match order and stops once
// limit ids were found. When ctx expires mid-evaluation it returns the ids
// gathered so far together with ctx's error.
type StructuralBackend interface {
	Evaluate(ctx context.Context, snap *semantic.WorkspaceSnapshot, query string, limit int) ([]string, error)
}

// StructuralQuery runs a free-form query through the backend registered
// for the requested dialect.
func (s *Service) StructuralQuery(ctx context.Context, req agent.StructuralQueryRequest) agent.Response[agent.StructuralQueryResult] {
	if strings.TrimSpace(req.Query) == "" {
		return agent.Failure[agent.StructuralQueryResult](agent.CodeInvalidRequest, "structural query must not be empty", false)
	}
	backend, ok := s.backends[req.Dialect]
	if !ok {
		return agent.Failure[agent.StructuralQueryResult](agent.CodeUnsupportedQuery,
			fmt.Sprintf("structural query dialect %q is not supported", req.Dialect), false)
	}
	result := agent.StructuralQueryResult{Matches: make([]agent.StructuralQueryMatch, 0)}
	if req.Limit == 0 {
		return agent.Success(result)
	}

	start := time.Now()
	ids, err := backend.Evaluate(ctx, s.snapshot, req.Query, int(req.Limit))
	result.Matches = s.structuralMatches(req.Dialect, ids, int(req.Limit))

	switch {
	case err == nil:
		return agent.Success(result)
	case errors.Is(err, context.DeadlineExceeded):
		budget, _ := agent.BudgetFrom(ctx)
		s.logger.Warn("structural query exceeded budget", "dialect", req.Dialect, "matches", len(result.Matches))
		return agent.TimedOut(agent.NewTimeout(budget, time.Since(start)), &result)
	default:
		return agent.Failure[agent.StructuralQueryResult](agent.CodeInvalidRequest,
			fmt.Sprintf("%s query failed: %v", req.Dialect, err), false)
	}
}

func (s *Service) structuralMatches(dialect agent.Dialect, ids []string, limit int) []agent.StructuralQueryMatch {
	matches := make([]agent.StructuralQueryMatch, 0, min(len(ids), limit))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if len(matches) == limit {
			break
		}
		e := s.entities[id]
		if e == nil || seen[id] {
			continue
		}
		seen[id] = true
		matches = append(matches, agent.StructuralQueryMatch{
			Entity:    *e,
			Summary:   fmt.Sprintf("%s %s matched the %s query.", e.Kind.Label(), e.Name, dialect),
			Certainty: semantic.ObservedCertainty(),
			Provenance: semantic.Provenance{
				Source: semantic.SourceSyntaxTree,
				Detail: semantic.Ptr(fmt.Sprintf("%s structural query", dialect)),
			},
		})
	}
	return matches
}
