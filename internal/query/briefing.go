package query

import (
	"context"
	"fmt"

	"github.com/jward/atlas/internal/agent"
)

// EntityBriefing summarizes one entity and a bounded set of its neighbors.
func (s *Service) EntityBriefing(_ context.Context, req agent.EntityBriefingRequest) agent.Response[agent.EntityBriefingResult] {
	focal := s.resolve(req.Entity)
	if focal == nil {
		return notFound[agent.EntityBriefingResult](req.Entity)
	}

	summary := fmt.Sprintf("%s %s with %d inbound and %d outbound relationships.",
		focal.Kind.Label(), focal.Name, len(s.inbound[focal.ID]), len(s.outbound[focal.ID]))

	return agent.Success(agent.EntityBriefingResult{
		Entity:          *focal,
		Summary:         summary,
		RelatedEntities: s.relatedEntities(focal, int(req.RelationshipLimit)),
	})
}
