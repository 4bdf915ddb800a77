package query

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jward/atlas/internal/agent"
	"github.com/jward/atlas/internal/semantic"
)

type frontierItem struct {
	entity *semantic.Entity
	depth  uint32
}

// BlastRadius walks inbound relationships breadth-first from the focal
// entity. Each entity is reported once, at the depth it was first reached.
func (s *Service) BlastRadius(_ context.Context, req agent.BlastRadiusRequest) agent.Response[agent.BlastRadiusResult] {
	focal := s.resolve(req.Entity)
	if focal == nil {
		return notFound[agent.BlastRadiusResult](req.Entity)
	}

	result := agent.BlastRadiusResult{
		DirectImpacts:        make([]agent.ImpactTarget, 0),
		IndirectImpacts:      make([]agent.ImpactTarget, 0),
		UnresolvedReferences: make([]agent.UnresolvedReference, 0),
	}
	if req.MaxDepth == 0 {
		return agent.Success(result)
	}

	visited := map[string]bool{focal.ID: true}
	queue := []frontierItem{{entity: focal, depth: 0}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.depth >= req.MaxDepth {
			continue
		}
		next := current.depth + 1

		for _, r := range s.inbound[current.entity.ID] {
			source := s.entities[r.Source]
			if source == nil {
				result.UnresolvedReferences = append(result.UnresolvedReferences, agent.UnresolvedReference{
					Description: fmt.Sprintf("Unresolved %s relationship from `%s` to `%s`.",
						r.Kind.Verb(), r.Source, current.entity.Name),
					Certainty:  r.Certainty,
					Provenance: r.Provenance,
				})
				continue
			}
			if visited[source.ID] {
				continue
			}
			visited[source.ID] = true

			impact := agent.ImpactTarget{
				Entity:     *source,
				Depth:      next,
				Reason:     semantic.Ptr(relationshipSummary(agent.Inbound, r.Kind, current.entity.Name, source.Name)),
				Certainty:  r.Certainty,
				Provenance: r.Provenance,
			}
			if next == 1 {
				result.DirectImpacts = append(result.DirectImpacts, impact)
			} else {
				result.IndirectImpacts = append(result.IndirectImpacts, impact)
			}
			if next < req.MaxDepth {
				queue = append(queue, frontierItem{entity: source, depth: next})
			}
		}
	}

	slices.SortFunc(result.UnresolvedReferences, func(a, b agent.UnresolvedReference) int {
		if c := strings.Compare(a.Description, b.Description); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Certainty.Confidence, b.Certainty.Confidence); c != 0 {
			return c
		}
		return a.Provenance.CompareDetail(b.Provenance)
	})
	return agent.Success(result)
}
