// Package query answers the agent capabilities over one immutable
// WorkspaceSnapshot. A Service indexes the snapshot once at construction and
// is safe for concurrent use; a changed snapshot needs a new Service.
package query

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/jward/atlas/internal/agent"
	"github.com/jward/atlas/internal/semantic"
)

// Option configures a Service.
type Option func(*Service)

// WithWorkspaceRoot sets the directory that rename planning re-parses and
// delta scanning diffs.
func WithWorkspaceRoot(root string) Option {
	return func(s *Service) { s.root = root }
}

// WithCollector sets the diff collector used by delta scans.
func WithCollector(c Collector) Option {
	return func(s *Service) { s.collector = c }
}

// WithBackend registers the structural query backend for dialect.
func WithBackend(dialect agent.Dialect, b StructuralBackend) Option {
	return func(s *Service) { s.backends[dialect] = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service is the snapshot query service.
type Service struct {
	snapshot *semantic.WorkspaceSnapshot
	entities map[string]*semantic.Entity
	// byID holds every entity in ascending id order.
	byID     []*semantic.Entity
	inbound  map[string][]*semantic.Relationship
	outbound map[string][]*semantic.Relationship

	root      string
	collector Collector
	backends  map[agent.Dialect]StructuralBackend
	logger    *slog.Logger
}

var _ agent.Service = (*Service)(nil)

// New indexes snap. The snapshot must not be mutated while the Service is
// in use.
func New(snap *semantic.WorkspaceSnapshot, opts ...Option) *Service {
	s := &Service{
		snapshot: snap,
		entities: make(map[string]*semantic.Entity, len(snap.Entities)),
		inbound:  make(map[string][]*semantic.Relationship),
		outbound: make(map[string][]*semantic.Relationship),
		backends: make(map[agent.Dialect]StructuralBackend),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	for i := range snap.Entities {
		e := &snap.Entities[i]
		if _, dup := s.entities[e.ID]; dup {
			continue
		}
		s.entities[e.ID] = e
		s.byID = append(s.byID, e)
	}
	slices.SortFunc(s.byID, func(a, b *semantic.Entity) int {
		return strings.Compare(a.ID, b.ID)
	})

	for i := range snap.Relationships {
		r := &snap.Relationships[i]
		s.inbound[r.Target] = append(s.inbound[r.Target], r)
		s.outbound[r.Source] = append(s.outbound[r.Source], r)
	}
	for _, rels := range s.inbound {
		slices.SortFunc(rels, func(a, b *semantic.Relationship) int {
			return compareRelationships(a, b, a.Source, b.Source)
		})
	}
	for _, rels := range s.outbound {
		slices.SortFunc(rels, func(a, b *semantic.Relationship) int {
			return compareRelationships(a, b, a.Target, b.Target)
		})
	}
	return s
}

// Snapshot returns the indexed snapshot.
func (s *Service) Snapshot() *semantic.WorkspaceSnapshot {
	return s.snapshot
}

// Entities returns every entity in ascending id order. Callers must not
// modify the returned slice.
func (s *Service) Entities() []*semantic.Entity {
	return s.byID
}

// Entity returns the entity with id, or nil.
func (s *Service) Entity(id string) *semantic.Entity {
	return s.entities[id]
}

// Inbound returns the sorted relationships targeting id.
func (s *Service) Inbound(id string) []*semantic.Relationship {
	return s.inbound[id]
}

// Outbound returns the sorted relationships originating at id.
func (s *Service) Outbound(id string) []*semantic.Relationship {
	return s.outbound[id]
}

// compareRelationships orders by kind rank, neighbor id, certainty,
// provenance source rank, then provenance detail.
func compareRelationships(a, b *semantic.Relationship, neighborA, neighborB string) int {
	if c := cmp.Compare(a.Kind.Rank(), b.Kind.Rank()); c != 0 {
		return c
	}
	if c := strings.Compare(neighborA, neighborB); c != 0 {
		return c
	}
	if c := a.Certainty.Compare(b.Certainty); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Provenance.Source.Rank(), b.Provenance.Source.Rank()); c != 0 {
		return c
	}
	return a.Provenance.CompareDetail(b.Provenance)
}

// resolve finds the focal entity of a selector. Qualified-name selection
// returns the first match in id order.
func (s *Service) resolve(sel agent.Selector) *semantic.Entity {
	switch sel.Kind {
	case agent.SelectByID:
		return s.entities[sel.ID]
	case agent.SelectByQualifiedName:
		for _, e := range s.byID {
			if e.QualifiedName != nil && *e.QualifiedName == sel.QualifiedName {
				return e
			}
		}
	}
	return nil
}

func notFound[T any](sel agent.Selector) agent.Response[T] {
	return agent.Failure[T](agent.CodeInvalidRequest,
		fmt.Sprintf("entity `%s` was not found in the current snapshot", sel.Value()), false)
}

// relationshipSummary renders "related verb focal." for inbound edges and
// "focal verb related." for outbound ones.
func relationshipSummary(dir agent.Direction, kind semantic.RelationshipKind, focal, related string) string {
	if dir == agent.Inbound {
		return fmt.Sprintf("%s %s %s.", related, kind.Verb(), focal)
	}
	return fmt.Sprintf("%s %s %s.", focal, kind.Verb(), related)
}

// relatedEntities returns up to limit inbound then up to limit outbound
// neighbors in index order. Edges to missing entities are skipped.
func (s *Service) relatedEntities(focal *semantic.Entity, limit int) []agent.RelatedEntity {
	related := make([]agent.RelatedEntity, 0)
	add := func(rels []*semantic.Relationship, dir agent.Direction) {
		for _, r := range rels[:min(limit, len(rels))] {
			neighborID := r.Target
			if dir == agent.Inbound {
				neighborID = r.Source
			}
			neighbor := s.entities[neighborID]
			if neighbor == nil {
				continue
			}
			related = append(related, agent.RelatedEntity{
				Direction:        dir,
				RelationshipKind: r.Kind,
				Entity:           *neighbor,
				Summary:          semantic.Ptr(relationshipSummary(dir, r.Kind, focal.Name, neighbor.Name)),
				Certainty:        r.Certainty,
				Provenance:       r.Provenance,
			})
		}
	}
	add(s.inbound[focal.ID], agent.Inbound)
	add(s.outbound[focal.ID], agent.Outbound)
	return related
}
