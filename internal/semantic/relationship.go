package semantic

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RelationshipKind is the closed set of directed edge categories.
type RelationshipKind string

const (
	RelCalls      RelationshipKind = "calls"
	RelContains   RelationshipKind = "contains"
	RelDefines    RelationshipKind = "defines"
	RelImplements RelationshipKind = "implements"
	RelImports    RelationshipKind = "imports"
	RelReferences RelationshipKind = "references"
)

// Verb is the present-tense verb used in relationship summaries.
func (k RelationshipKind) Verb() string {
	switch k {
	case RelCalls:
		return "calls"
	case RelContains:
		return "contains"
	case RelDefines:
		return "defines"
	case RelImplements:
		return "implements"
	case RelImports:
		return "imports"
	case RelReferences:
		return "references"
	}
	return string(k)
}

// Rank is the fixed ordering position of the kind.
func (k RelationshipKind) Rank() int {
	switch k {
	case RelCalls:
		return 0
	case RelContains:
		return 1
	case RelDefines:
		return 2
	case RelImplements:
		return 3
	case RelImports:
		return 4
	case RelReferences:
		return 5
	}
	return 6
}

func (k *RelationshipKind) UnmarshalText(b []byte) error {
	v := RelationshipKind(b)
	if v.Rank() > 5 {
		return fmt.Errorf("unknown relationship kind %q", string(b))
	}
	*k = v
	return nil
}

// Confidence is a score in the closed range 0..=100.
type Confidence uint8

// MaxConfidence is the confidence carried by every observed relationship.
const MaxConfidence Confidence = 100

// InvalidConfidenceError reports a score outside 0..=100.
type InvalidConfidenceError struct {
	Value int
}

func (e *InvalidConfidenceError) Error() string {
	return fmt.Sprintf("confidence score must be between 0 and 100, got %d", e.Value)
}

// NewConfidence validates v and returns it as a Confidence.
func NewConfidence(v int) (Confidence, error) {
	if v < 0 || v > int(MaxConfidence) {
		return 0, &InvalidConfidenceError{Value: v}
	}
	return Confidence(v), nil
}

// MustConfidence is NewConfidence for compile-time constants.
func MustConfidence(v int) Confidence {
	c, err := NewConfidence(v)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Confidence) UnmarshalJSON(b []byte) error {
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("confidence: %w", err)
	}
	parsed, err := NewConfidence(v)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// CertaintyKind separates directly observed facts from inferred ones.
type CertaintyKind string

const (
	Observed CertaintyKind = "observed"
	Inferred CertaintyKind = "inferred"
)

func (k *CertaintyKind) UnmarshalText(b []byte) error {
	v := CertaintyKind(b)
	if v != Observed && v != Inferred {
		return fmt.Errorf("unknown certainty kind %q", string(b))
	}
	*k = v
	return nil
}

// Certainty tags a relationship with how it was established.
// Observed certainty always carries MaxConfidence.
type Certainty struct {
	Kind       CertaintyKind `json:"kind"`
	Confidence Confidence    `json:"confidence"`
}

// ObservedCertainty returns the certainty of a fact read directly from syntax.
func ObservedCertainty() Certainty {
	return Certainty{Kind: Observed, Confidence: MaxConfidence}
}

// InferredCertainty returns an inferred certainty with the given confidence.
func InferredCertainty(c Confidence) Certainty {
	return Certainty{Kind: Inferred, Confidence: c}
}

func (c *Certainty) UnmarshalJSON(b []byte) error {
	type raw Certainty
	var r raw
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	if r.Kind == Observed && r.Confidence != MaxConfidence {
		return fmt.Errorf("observed certainty must carry confidence 100, got %d", r.Confidence)
	}
	*c = Certainty(r)
	return nil
}

// Compare orders observed before inferred, then higher confidence first.
func (c Certainty) Compare(other Certainty) int {
	if c.Kind != other.Kind {
		if c.Kind == Observed {
			return -1
		}
		return 1
	}
	switch {
	case c.Confidence > other.Confidence:
		return -1
	case c.Confidence < other.Confidence:
		return 1
	}
	return 0
}

// ProvenanceSource names the evidence behind a relationship.
type ProvenanceSource string

const (
	SourceSyntaxTree       ProvenanceSource = "syntax-tree"
	SourceSymbolResolution ProvenanceSource = "symbol-resolution"
	SourceHeuristic        ProvenanceSource = "heuristic"
	SourceWorkingTree      ProvenanceSource = "working-tree"
)

// Rank is the fixed ordering position of the source.
func (s ProvenanceSource) Rank() int {
	switch s {
	case SourceSyntaxTree:
		return 0
	case SourceSymbolResolution:
		return 1
	case SourceHeuristic:
		return 2
	case SourceWorkingTree:
		return 3
	}
	return 4
}

func (s *ProvenanceSource) UnmarshalText(b []byte) error {
	v := ProvenanceSource(b)
	if v.Rank() > 3 {
		return fmt.Errorf("unknown provenance source %q", string(b))
	}
	*s = v
	return nil
}

// Provenance is an evidence source plus optional free-text detail.
type Provenance struct {
	Source ProvenanceSource `json:"source"`
	Detail *string          `json:"detail"`
}

// DetailText returns the detail, or "" when absent.
func (p Provenance) DetailText() string {
	if p.Detail == nil {
		return ""
	}
	return *p.Detail
}

// compareDetail orders an absent detail before any present one.
func compareDetail(a, b *string) int {
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

// CompareDetail orders provenance details with absent first.
func (p Provenance) CompareDetail(other Provenance) int {
	return compareDetail(p.Detail, other.Detail)
}

// Relationship is a directed edge of the semantic graph.
type Relationship struct {
	Source     string           `json:"source"`
	Target     string           `json:"target"`
	Kind       RelationshipKind `json:"kind"`
	Certainty  Certainty        `json:"certainty"`
	Provenance Provenance       `json:"provenance"`
}

// RelationshipKey is the full deduplication tuple of a relationship.
type RelationshipKey struct {
	Source           string
	Target           string
	Kind             RelationshipKind
	CertaintyKind    CertaintyKind
	Confidence       Confidence
	ProvenanceSource ProvenanceSource
	HasDetail        bool
	Detail           string
}

// Key returns the deduplication key of r.
func (r *Relationship) Key() RelationshipKey {
	return RelationshipKey{
		Source:           r.Source,
		Target:           r.Target,
		Kind:             r.Kind,
		CertaintyKind:    r.Certainty.Kind,
		Confidence:       r.Certainty.Confidence,
		ProvenanceSource: r.Provenance.Source,
		HasDetail:        r.Provenance.Detail != nil,
		Detail:           r.Provenance.DetailText(),
	}
}

// Compare orders keys field by field; labels compare lexically.
func (k RelationshipKey) Compare(other RelationshipKey) int {
	if c := strings.Compare(k.Source, other.Source); c != 0 {
		return c
	}
	if c := strings.Compare(k.Target, other.Target); c != 0 {
		return c
	}
	if c := strings.Compare(string(k.Kind), string(other.Kind)); c != 0 {
		return c
	}
	if c := strings.Compare(string(k.CertaintyKind), string(other.CertaintyKind)); c != 0 {
		return c
	}
	if k.Confidence != other.Confidence {
		if k.Confidence < other.Confidence {
			return -1
		}
		return 1
	}
	if c := strings.Compare(string(k.ProvenanceSource), string(other.ProvenanceSource)); c != 0 {
		return c
	}
	if k.HasDetail != other.HasDetail {
		if !k.HasDetail {
			return -1
		}
		return 1
	}
	return strings.Compare(k.Detail, other.Detail)
}
