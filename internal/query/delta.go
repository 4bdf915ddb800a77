package query

import (
	"context"
	"fmt"

	"github.com/jward/atlas/internal/agent"
	"github.com/jward/atlas/internal/gitdiff"
	"github.com/jward/atlas/internal/semantic"
)

// Collector lists the working-tree changes under a root.
type Collector interface {
	Collect(ctx context.Context, root string, scope gitdiff.Scope) ([]gitdiff.Change, error)
}

func diffScope(scope agent.DeltaScope) gitdiff.Scope {
	switch scope {
	case agent.ScopeStaged:
		return gitdiff.ScopeStaged
	case agent.ScopeUnstaged:
		return gitdiff.ScopeUnstaged
	}
	return gitdiff.ScopeAll
}

// DeltaImpactScan maps working-tree changes onto the entities located in
// each changed file.
func (s *Service) DeltaImpactScan(ctx context.Context, req agent.DeltaImpactScanRequest) agent.Response[agent.DeltaImpactScanResult] {
	if s.collector == nil || s.root == "" {
		return agent.Failure[agent.DeltaImpactScanResult](agent.CodeInternal,
			"delta impact scan requires a workspace root and a diff collector", false)
	}

	changes, err := s.collector.Collect(ctx, s.root, diffScope(req.Scope))
	if err != nil {
		s.logger.Warn("delta scan collector failed", "root", s.root, "error", err)
		return agent.Failure[agent.DeltaImpactScanResult](agent.CodeInternal,
			fmt.Sprintf("failed to collect working tree changes: %v", err), true)
	}

	type changedPath struct {
		path   string
		status string
	}
	var paths []changedPath
	seen := make(map[string]bool)
	add := func(path, status string) {
		if path == "" || seen[path] {
			return
		}
		seen[path] = true
		paths = append(paths, changedPath{path: path, status: status})
	}
	for _, ch := range changes {
		add(ch.Path, string(ch.Kind))
		if ch.Kind == gitdiff.Renamed {
			add(ch.OldPath, string(ch.Kind))
		}
	}

	result := agent.DeltaImpactScanResult{
		Completeness: semantic.Complete,
		FileImpacts:  make([]agent.FileImpact, 0, len(paths)),
	}
	for _, p := range paths {
		impacted := make([]agent.ImpactTarget, 0)
		for _, e := range s.byID {
			if e.Location == nil || e.Location.Path != p.path {
				continue
			}
			impacted = append(impacted, agent.ImpactTarget{
				Entity:    *e,
				Depth:     0,
				Certainty: semantic.ObservedCertainty(),
				Provenance: semantic.Provenance{
					Source: semantic.SourceWorkingTree,
					Detail: semantic.Ptr(p.status),
				},
			})
		}
		if len(impacted) == 0 {
			result.Completeness = semantic.Partial
		}
		result.FileImpacts = append(result.FileImpacts, agent.FileImpact{Path: p.path, ImpactedEntities: impacted})
	}
	return agent.Success(result)
}
