package query

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/jward/atlas/internal/agent"
	"github.com/jward/atlas/internal/semantic"
)

// conceptPreviewLimit bounds the related entities attached to each match.
const conceptPreviewLimit = 2

type matchScore struct {
	exactName          bool
	exactQualifiedName bool
	namePrefix         bool
	nameContains       bool
	qnContains         bool
	pathContains       bool
	tokenMatches       int
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// compare orders higher scores first.
func (m matchScore) compare(o matchScore) int {
	for _, pair := range [][2]bool{
		{m.exactName, o.exactName},
		{m.exactQualifiedName, o.exactQualifiedName},
		{m.namePrefix, o.namePrefix},
		{m.nameContains, o.nameContains},
		{m.qnContains, o.qnContains},
		{m.pathContains, o.pathContains},
	} {
		if c := cmp.Compare(boolRank(pair[1]), boolRank(pair[0])); c != 0 {
			return c
		}
	}
	return cmp.Compare(o.tokenMatches, m.tokenMatches)
}

type rankedMatch struct {
	score  matchScore
	entity *semantic.Entity
}

// queryTokens splits on every non-alphanumeric ASCII character.
func queryTokens(q string) []string {
	return strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})
}

// ConceptDiscovery ranks entities against a free-form query.
func (s *Service) ConceptDiscovery(_ context.Context, req agent.ConceptDiscoveryRequest) agent.Response[agent.ConceptDiscoveryResult] {
	q := strings.TrimSpace(req.Query)
	result := agent.ConceptDiscoveryResult{Matches: make([]agent.ConceptMatch, 0)}
	if q == "" || req.Limit == 0 {
		return agent.Success(result)
	}

	needle := strings.ToLower(q)
	tokens := queryTokens(q)
	var ranked []rankedMatch
	for _, e := range s.byID {
		if score, ok := scoreEntity(e, needle, tokens); ok {
			ranked = append(ranked, rankedMatch{score: score, entity: e})
		}
	}

	slices.SortFunc(ranked, func(a, b rankedMatch) int {
		if c := a.score.compare(b.score); c != 0 {
			return c
		}
		if c := strings.Compare(a.entity.Name, b.entity.Name); c != 0 {
			return c
		}
		if c := compareOptional(a.entity.QualifiedName, b.entity.QualifiedName); c != 0 {
			return c
		}
		return strings.Compare(a.entity.ID, b.entity.ID)
	})
	if len(ranked) > int(req.Limit) {
		ranked = ranked[:req.Limit]
	}

	for _, m := range ranked {
		result.Matches = append(result.Matches, agent.ConceptMatch{
			Entity:          *m.entity,
			Summary:         fmt.Sprintf("Matched %q in %s.", q, strings.Join(matchedFields(m.score), ", ")),
			RelatedEntities: s.relatedEntities(m.entity, conceptPreviewLimit),
		})
	}
	return agent.Success(result)
}

func compareOptional(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return strings.Compare(*a, *b)
}

func scoreEntity(e *semantic.Entity, needle string, tokens []string) (matchScore, bool) {
	name := strings.ToLower(e.Name)
	qn := strings.ToLower(e.QualifiedNameOrEmpty())
	path := strings.ToLower(e.Path())
	combined := strings.Join([]string{name, qn, path, e.Kind.Label()}, " ")

	score := matchScore{
		exactName:          name == needle,
		exactQualifiedName: e.QualifiedName != nil && qn == needle,
		namePrefix:         strings.HasPrefix(name, needle),
		nameContains:       strings.Contains(name, needle),
		qnContains:         e.QualifiedName != nil && strings.Contains(qn, needle),
		pathContains:       e.Location != nil && strings.Contains(path, needle),
	}
	for _, tok := range tokens {
		if strings.Contains(combined, tok) {
			score.tokenMatches++
		}
	}

	matches := score.nameContains || score.qnContains || score.pathContains ||
		(len(tokens) > 0 && score.tokenMatches == len(tokens))
	return score, matches
}

func matchedFields(score matchScore) []string {
	var fields []string
	if score.nameContains {
		fields = append(fields, "name")
	}
	if score.qnContains {
		fields = append(fields, "qualified name")
	}
	if score.pathContains {
		fields = append(fields, "path")
	}
	if len(fields) == 0 && score.tokenMatches > 0 {
		fields = append(fields, "entity metadata")
	}
	return fields
}
