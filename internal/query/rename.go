package query

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jward/atlas/internal/agent"
	"github.com/jward/atlas/internal/extract"
	"github.com/jward/atlas/internal/semantic"
)

var (
	explicitPathConfidence = semantic.MustConfidence(90)
	localityConfidence     = semantic.MustConfidence(55)
)

const (
	reasonDefinition   = "rename target definition"
	reasonExplicitPath = "explicit path uniquely identifies the target"
	reasonLocality     = "locality breaks the tie, but the syntax has no explicit path"
	reasonOnlyMethod   = "the only method with this name, but the receiver type is not checked"

	conflictExplicitPath = "explicit path matches more than one rename candidate"
	conflictTiedRank     = "top-ranked candidates are tied on syntax-only evidence"
	conflictMethod       = "method receiver types are unavailable in syntax-only ranking"
)

// renameCandidate is a same-named callable with its derived module path.
type renameCandidate struct {
	entity *semantic.Entity
	// path is the qualified name without crate/self/super prefixes.
	path    string
	modules []string
}

func newRenameCandidate(e *semantic.Entity) renameCandidate {
	var path string
	if e.QualifiedName != nil {
		path = extract.TrimPathPrefixes(*e.QualifiedName)
	} else {
		path = extract.QualifiedName(extract.ModulePathForFile(e.Path()), e.Name)
	}
	segments := strings.Split(path, "::")
	return renameCandidate{entity: e, path: path, modules: segments[:len(segments)-1]}
}

func callableClass(kind semantic.EntityKind) extract.CallableKind {
	if kind == semantic.KindMethod {
		return extract.CallMethod
	}
	return extract.CallFunction
}

type renamePlan struct {
	target     *semantic.Entity
	newName    string
	class      extract.CallableKind
	candidates []renameCandidate
	result     agent.RenamePlanningResult
}

// RenamePlanning previews the edits needed to rename a callable. Every
// source file is re-parsed and no file is written.
func (s *Service) RenamePlanning(ctx context.Context, req agent.RenamePlanningRequest) agent.Response[agent.RenamePlanningResult] {
	target := s.resolve(req.Entity)
	if target == nil {
		return notFound[agent.RenamePlanningResult](req.Entity)
	}
	newName := strings.TrimSpace(req.NewName)
	if newName == "" {
		return agent.Failure[agent.RenamePlanningResult](agent.CodeInvalidRequest, "new_name must not be blank", false)
	}

	plan := &renamePlan{
		target:  target,
		newName: newName,
		class:   callableClass(target.Kind),
		result: agent.RenamePlanningResult{
			HighConfidenceEdits: make([]agent.RenameEdit, 0),
			LowConfidenceEdits:  make([]agent.RenameEdit, 0),
			Conflicts:           make([]agent.RenameConflict, 0),
		},
	}

	if target.Location != nil {
		plan.result.HighConfidenceEdits = append(plan.result.HighConfidenceEdits, agent.RenameEdit{
			Location:    *target.Location,
			Replacement: newName,
			Reason:      semantic.Ptr(reasonDefinition),
			Certainty:   semantic.ObservedCertainty(),
			Provenance:  semantic.Provenance{Source: semantic.SourceSyntaxTree},
		})
	}
	if !target.Kind.Callable() {
		plan.sort()
		return agent.Success(plan.result)
	}
	if s.root == "" {
		return agent.Failure[agent.RenamePlanningResult](agent.CodeInternal,
			"rename planning requires a workspace root", false)
	}

	for _, e := range s.byID {
		if e.Name == target.Name && e.Kind.Callable() && callableClass(e.Kind) == plan.class {
			plan.candidates = append(plan.candidates, newRenameCandidate(e))
		}
	}

	files, skipped, err := extract.ListSourceFiles(s.root)
	if err != nil {
		return agent.Failure[agent.RenamePlanningResult](agent.CodeInternal,
			fmt.Sprintf("failed to list workspace source files: %v", err), true)
	}
	for _, sp := range skipped {
		plan.result.Conflicts = append(plan.result.Conflicts, agent.RenameConflict{
			Location: &semantic.Location{Path: sp.Path},
			Message:  fmt.Sprintf("failed to parse rename preview candidates from %s: %v", sp.Path, sp.Err),
		})
	}

	start := time.Now()
	for _, rel := range files {
		if ctx.Err() != nil {
			budget, _ := agent.BudgetFrom(ctx)
			plan.sort()
			return agent.TimedOut(agent.NewTimeout(budget, time.Since(start)), &plan.result)
		}
		if err := plan.scanFile(ctx, s.root, rel); err != nil {
			plan.result.Conflicts = append(plan.result.Conflicts, agent.RenameConflict{
				Location: &semantic.Location{Path: rel},
				Message:  fmt.Sprintf("failed to parse rename preview candidates from %s: %v", rel, err),
			})
		}
	}

	plan.sort()
	s.logger.Debug("planned rename",
		"target", target.ID,
		"files", len(files),
		"high", len(plan.result.HighConfidenceEdits),
		"low", len(plan.result.LowConfidenceEdits),
		"conflicts", len(plan.result.Conflicts),
	)
	return agent.Success(plan.result)
}

func (p *renamePlan) scanFile(ctx context.Context, root, rel string) error {
	src, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}
	tree, err := extract.ParseRust(ctx, src)
	if tree != nil {
		defer tree.Close()
	}
	if err != nil {
		return err
	}

	for _, site := range extract.FileCallSites(tree.RootNode(), src, rel) {
		if site.Name != p.target.Name || site.Kind != p.class {
			continue
		}
		loc := semantic.Location{Path: rel, Span: semantic.Ptr(site.NameSpan)}
		switch {
		case site.Kind == extract.CallMethod:
			p.classifyMethod(loc)
		case site.Explicit:
			p.classifyExplicit(site, loc)
		default:
			p.classifyBare(site, rel, loc)
		}
	}
	return nil
}

func (p *renamePlan) classifyMethod(loc semantic.Location) {
	if len(p.candidates) > 1 {
		p.conflict(loc, conflictMethod)
		return
	}
	if len(p.candidates) == 1 && p.candidates[0].entity.ID == p.target.ID {
		p.lowEdit(loc, reasonOnlyMethod)
	}
}

func (p *renamePlan) classifyExplicit(site extract.ScopedCallSite, loc semantic.Location) {
	written := extract.TrimPathPrefixes(site.Path)
	var matches []renameCandidate
	for _, c := range p.candidates {
		if c.path == written {
			matches = append(matches, c)
		}
	}
	switch {
	case len(matches) == 1 && matches[0].entity.ID == p.target.ID:
		p.result.HighConfidenceEdits = append(p.result.HighConfidenceEdits, agent.RenameEdit{
			Location:    loc,
			Replacement: p.newName,
			Reason:      semantic.Ptr(reasonExplicitPath),
			Certainty:   semantic.InferredCertainty(explicitPathConfidence),
			Provenance:  semantic.Provenance{Source: semantic.SourceSymbolResolution},
		})
	case len(matches) > 1 && slices.ContainsFunc(matches, p.isTarget):
		p.conflict(loc, conflictExplicitPath)
	}
}

type locality struct {
	sameFile    bool
	sharedDepth int
}

func (l locality) compare(o locality) int {
	if c := cmp.Compare(boolRank(l.sameFile), boolRank(o.sameFile)); c != 0 {
		return c
	}
	return cmp.Compare(l.sharedDepth, o.sharedDepth)
}

func sharedPrefix(a, b []string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func (p *renamePlan) classifyBare(site extract.ScopedCallSite, rel string, loc semantic.Location) {
	if len(p.candidates) == 0 {
		return
	}
	var best locality
	var top []renameCandidate
	for i, c := range p.candidates {
		rank := locality{
			sameFile:    c.entity.Path() == rel,
			sharedDepth: sharedPrefix(c.modules, site.ModulePath),
		}
		switch c := rank.compare(best); {
		case i == 0 || c > 0:
			best = rank
			top = []renameCandidate{p.candidates[i]}
		case c == 0:
			top = append(top, p.candidates[i])
		}
	}

	switch {
	case len(top) == 1 && p.isTarget(top[0]):
		p.lowEdit(loc, reasonLocality)
	case len(top) > 1 && slices.ContainsFunc(top, p.isTarget):
		p.conflict(loc, conflictTiedRank)
	}
}

func (p *renamePlan) isTarget(c renameCandidate) bool {
	return c.entity.ID == p.target.ID
}

func (p *renamePlan) lowEdit(loc semantic.Location, reason string) {
	p.result.LowConfidenceEdits = append(p.result.LowConfidenceEdits, agent.RenameEdit{
		Location:    loc,
		Replacement: p.newName,
		Reason:      semantic.Ptr(reason),
		Certainty:   semantic.InferredCertainty(localityConfidence),
		Provenance:  semantic.Provenance{Source: semantic.SourceHeuristic},
	})
}

func (p *renamePlan) conflict(loc semantic.Location, message string) {
	p.result.Conflicts = append(p.result.Conflicts, agent.RenameConflict{
		Location: &loc,
		Message:  message,
	})
}

func compareLocation(a, b *semantic.Location) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if c := strings.Compare(a.Path, b.Path); c != 0 {
		return c
	}
	switch {
	case a.Span == nil && b.Span == nil:
		return 0
	case a.Span == nil:
		return -1
	case b.Span == nil:
		return 1
	}
	return a.Span.Compare(*b.Span)
}

func compareEdits(a, b agent.RenameEdit) int {
	if c := compareLocation(&a.Location, &b.Location); c != 0 {
		return c
	}
	if c := compareOptional(a.Reason, b.Reason); c != 0 {
		return c
	}
	return strings.Compare(a.Replacement, b.Replacement)
}

func (p *renamePlan) sort() {
	slices.SortFunc(p.result.HighConfidenceEdits, compareEdits)
	slices.SortFunc(p.result.LowConfidenceEdits, compareEdits)
	slices.SortFunc(p.result.Conflicts, func(a, b agent.RenameConflict) int {
		if c := compareLocation(a.Location, b.Location); c != 0 {
			return c
		}
		return strings.Compare(a.Message, b.Message)
	})
}
