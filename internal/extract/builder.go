package extract

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jward/atlas/internal/semantic"
)

// Confidence scores for resolved call edges, by call shape.
var (
	confidenceFunctionPath = semantic.MustConfidence(85)
	confidenceFunctionBare = semantic.MustConfidence(72)
	confidenceMethodPath   = semantic.MustConfidence(74)
	confidenceMethodBare   = semantic.MustConfidence(64)
)

// CallObservation is a call site recorded during traversal and resolved
// only after every file has been visited.
type CallObservation struct {
	CallerID   string
	TargetName string
	// TargetPath is set when the call spelled out a multi-segment path.
	TargetPath string
	Kind       CallableKind
}

type callable struct {
	entityID      string
	qualifiedName string
}

// Builder accumulates entities, relationships and deferred call
// observations for one extraction run. Finish resolves the deferred calls
// against the completed name index and returns the snapshot; a Builder must
// not be used after Finish.
type Builder struct {
	snapshot      *semantic.WorkspaceSnapshot
	entities      map[string]semantic.Entity
	relationships map[semantic.RelationshipKey]semantic.Relationship
	callables     map[string][]callable
	traits        map[string][]string
	observations  []CallObservation
	finished      bool
}

// NewBuilder creates a builder seeded with the workspace root entity.
func NewBuilder(workspaceName string, provenance semantic.SnapshotProvenance) *Builder {
	if workspaceName == "" {
		workspaceName = "workspace"
	}
	b := &Builder{
		snapshot:      semantic.NewSnapshot(semantic.SnapshotWorking, provenance),
		entities:      make(map[string]semantic.Entity),
		relationships: make(map[semantic.RelationshipKey]semantic.Relationship),
		callables:     make(map[string][]callable),
		traits:        make(map[string][]string),
	}
	b.AddEntity(semantic.Entity{
		ID:   semantic.WorkspaceEntityID,
		Kind: semantic.KindWorkspace,
		Name: workspaceName,
	})
	return b
}

// AddEntity inserts e unless an entity with the same id exists. Callable
// and trait entities are indexed by bare name either way.
func (b *Builder) AddEntity(e semantic.Entity) {
	if e.Kind.Callable() {
		b.recordCallable(e.Name, e.ID, e.QualifiedNameOrEmpty())
	}
	if e.Kind == semantic.KindTrait {
		b.recordTrait(e.Name, e.ID)
	}
	if _, ok := b.entities[e.ID]; ok {
		return
	}
	b.entities[e.ID] = e
}

// HasEntity reports whether id was already inserted.
func (b *Builder) HasEntity(id string) bool {
	_, ok := b.entities[id]
	return ok
}

// AddRelationship inserts r unless an identical relationship, compared by
// its full key, was already inserted.
func (b *Builder) AddRelationship(r semantic.Relationship) {
	key := r.Key()
	if _, ok := b.relationships[key]; ok {
		return
	}
	b.relationships[key] = r
}

// Observe inserts a structural relationship with observed certainty and
// syntax-tree provenance.
func (b *Builder) Observe(source, target string, kind semantic.RelationshipKind, detail string) {
	prov := semantic.Provenance{Source: semantic.SourceSyntaxTree}
	if detail != "" {
		prov.Detail = semantic.Ptr(detail)
	}
	b.AddRelationship(semantic.Relationship{
		Source:     source,
		Target:     target,
		Kind:       kind,
		Certainty:  semantic.ObservedCertainty(),
		Provenance: prov,
	})
}

// Define records that container declares entity.
func (b *Builder) Define(container, entity string) {
	b.Observe(container, entity, semantic.RelDefines, "")
}

// EnsureMacro returns the id of the macro entity named name in file,
// creating it on first use.
func (b *Builder) EnsureMacro(filePath, name string) string {
	id := semantic.MakeEntityID("macro", filePath, name)
	b.AddEntity(semantic.Entity{
		ID:            id,
		Kind:          semantic.KindMacro,
		Name:          name,
		QualifiedName: semantic.Ptr(name),
		Location:      &semantic.Location{Path: filePath},
	})
	return id
}

// EnsureTrait returns the first trait entity recorded under name, or a
// placeholder for a trait defined outside the workspace.
func (b *Builder) EnsureTrait(name string) string {
	if ids := b.traits[name]; len(ids) > 0 {
		return ids[0]
	}
	id := semantic.ExternalTraitID(name)
	b.AddEntity(semantic.Entity{
		ID:            id,
		Kind:          semantic.KindTrait,
		Name:          name,
		QualifiedName: semantic.Ptr(name),
	})
	return id
}

// Defer records a call observation for resolution in Finish.
func (b *Builder) Defer(obs CallObservation) {
	b.observations = append(b.observations, obs)
}

// Warn records a warning diagnostic for path and marks the snapshot partial.
func (b *Builder) Warn(code, message, path string) {
	b.snapshot.Completeness = semantic.Partial
	d := semantic.Diagnostic{
		Severity: semantic.SeverityWarning,
		Message:  message,
		Location: &semantic.Location{Path: path},
	}
	if code != "" {
		d.Code = semantic.Ptr(code)
	}
	b.snapshot.Diagnostics = append(b.snapshot.Diagnostics, d)
}

func (b *Builder) recordCallable(name, id, qualifiedName string) {
	for _, c := range b.callables[name] {
		if c.entityID == id {
			return
		}
	}
	b.callables[name] = append(b.callables[name], callable{entityID: id, qualifiedName: qualifiedName})
}

func (b *Builder) recordTrait(name, id string) {
	if slices.Contains(b.traits[name], id) {
		return
	}
	b.traits[name] = append(b.traits[name], id)
}

// Finish resolves deferred calls and returns the sorted snapshot.
func (b *Builder) Finish() *semantic.WorkspaceSnapshot {
	if b.finished {
		panic("extract: Builder.Finish called twice")
	}
	b.finished = true
	b.resolveCalls()

	s := b.snapshot
	s.Entities = make([]semantic.Entity, 0, len(b.entities))
	for _, id := range slices.Sorted(maps.Keys(b.entities)) {
		s.Entities = append(s.Entities, b.entities[id])
	}
	s.Relationships = slices.Collect(maps.Values(b.relationships))
	s.Sort()
	return s
}

// resolveCalls emits a Calls edge for every observation that resolves to
// exactly one callable. Ambiguous and unknown targets are dropped.
func (b *Builder) resolveCalls() {
	for _, obs := range b.observations {
		candidates := b.candidatesFor(obs)
		if len(candidates) != 1 {
			continue
		}
		b.AddRelationship(semantic.Relationship{
			Source:    obs.CallerID,
			Target:    candidates[0],
			Kind:      semantic.RelCalls,
			Certainty: semantic.InferredCertainty(callConfidence(obs)),
			Provenance: semantic.Provenance{
				Source: semantic.SourceHeuristic,
				Detail: semantic.Ptr(fmt.Sprintf("resolved unique callable named %s", obs.TargetName)),
			},
		})
	}
}

func (b *Builder) candidatesFor(obs CallObservation) []string {
	named := b.callables[obs.TargetName]
	if obs.TargetPath != "" {
		want := TrimPathPrefixes(obs.TargetPath)
		var exact []string
		for _, c := range named {
			if c.qualifiedName == want || strings.HasSuffix(c.qualifiedName, "::"+want) {
				exact = append(exact, c.entityID)
			}
		}
		if len(exact) > 0 {
			return exact
		}
	}
	ids := make([]string, 0, len(named))
	for _, c := range named {
		ids = append(ids, c.entityID)
	}
	return ids
}

func callConfidence(obs CallObservation) semantic.Confidence {
	explicit := obs.TargetPath != ""
	switch obs.Kind {
	case CallMethod:
		if explicit {
			return confidenceMethodPath
		}
		return confidenceMethodBare
	default:
		if explicit {
			return confidenceFunctionPath
		}
		return confidenceFunctionBare
	}
}
