// Package agent defines the capability protocol spoken between a host (CLI,
// editor, agent) and the query service: tagged requests, the shared
// success/timeout/error response envelope, and a budgeted dispatcher.
package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jward/atlas/internal/semantic"
)

// Capability names one of the six query capabilities.
type Capability string

const (
	CapabilityConceptDiscovery Capability = "concept-discovery"
	CapabilityEntityBriefing   Capability = "entity-briefing"
	CapabilityBlastRadius      Capability = "blast-radius-estimation"
	CapabilityDeltaImpactScan  Capability = "delta-impact-scan"
	CapabilityRenamePlanning   Capability = "rename-planning"
	CapabilityStructuralQuery  Capability = "structural-query"
)

// Capabilities lists every capability in protocol order.
var Capabilities = []Capability{
	CapabilityConceptDiscovery,
	CapabilityEntityBriefing,
	CapabilityBlastRadius,
	CapabilityDeltaImpactScan,
	CapabilityRenamePlanning,
	CapabilityStructuralQuery,
}

// Request is one capability invocation. Params stays raw until the
// dispatcher knows which parameter type to decode.
type Request struct {
	Capability Capability      `json:"capability"`
	Params     json.RawMessage `json:"params"`
}

// NewRequest encodes params into a Request for capability.
func NewRequest(capability Capability, params any) (Request, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Request{}, fmt.Errorf("encode %s params: %w", capability, err)
	}
	return Request{Capability: capability, Params: raw}, nil
}

// Reply pairs a response envelope with the capability that produced it.
type Reply struct {
	Capability Capability `json:"capability"`
	Response   any        `json:"response"`
}

// Status is the discriminator of the response envelope.
type Status string

const (
	StatusSuccess Status = "success"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// ErrorCode is a stable machine-readable failure category.
type ErrorCode string

const (
	CodeInvalidRequest       ErrorCode = "invalid-request"
	CodeSnapshotUnavailable  ErrorCode = "snapshot-unavailable"
	CodeSnapshotIncompatible ErrorCode = "snapshot-incompatible"
	CodeUnsupportedQuery     ErrorCode = "unsupported-query"
	CodeInternal             ErrorCode = "internal"
)

// Error is the failure payload of the envelope. It is a protocol value and
// deliberately not a Go error.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// Timeout records the budget a response ran out of.
type Timeout struct {
	LimitMS   uint64 `json:"limit_ms"`
	ElapsedMS uint64 `json:"elapsed_ms"`
}

// NewTimeout converts durations to the wire representation.
func NewTimeout(limit, elapsed time.Duration) Timeout {
	return Timeout{LimitMS: uint64(limit.Milliseconds()), ElapsedMS: uint64(elapsed.Milliseconds())}
}

// Response is the envelope shared by every capability. Exactly one of the
// payload groups is meaningful, selected by Status.
type Response[T any] struct {
	Status        Status
	Result        *T
	Timeout       *Timeout
	PartialResult *T
	Error         *Error
}

// Success wraps a finished result.
func Success[T any](result T) Response[T] {
	return Response[T]{Status: StatusSuccess, Result: &result}
}

// TimedOut wraps whatever was gathered before the budget expired.
func TimedOut[T any](timeout Timeout, partial *T) Response[T] {
	return Response[T]{Status: StatusTimeout, Timeout: &timeout, PartialResult: partial}
}

// Failure wraps a protocol error.
func Failure[T any](code ErrorCode, message string, retryable bool) Response[T] {
	return Response[T]{Status: StatusError, Error: &Error{Code: code, Message: message, Retryable: retryable}}
}

// FailureFrom wraps an existing protocol error.
func FailureFrom[T any](e Error) Response[T] {
	return Response[T]{Status: StatusError, Error: &e}
}

type successWire[T any] struct {
	Status Status `json:"status"`
	Result *T     `json:"result"`
}

type timeoutWire[T any] struct {
	Status        Status   `json:"status"`
	Timeout       *Timeout `json:"timeout"`
	PartialResult *T       `json:"partial_result"`
}

type errorWire struct {
	Status Status `json:"status"`
	Error  *Error `json:"error"`
}

func (r Response[T]) MarshalJSON() ([]byte, error) {
	switch r.Status {
	case StatusSuccess:
		return json.Marshal(successWire[T]{Status: r.Status, Result: r.Result})
	case StatusTimeout:
		return json.Marshal(timeoutWire[T]{Status: r.Status, Timeout: r.Timeout, PartialResult: r.PartialResult})
	case StatusError:
		return json.Marshal(errorWire{Status: r.Status, Error: r.Error})
	}
	return nil, fmt.Errorf("unknown response status %q", r.Status)
}

func (r *Response[T]) UnmarshalJSON(b []byte) error {
	var head struct {
		Status Status `json:"status"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	switch head.Status {
	case StatusSuccess:
		var w successWire[T]
		if err := json.Unmarshal(b, &w); err != nil {
			return err
		}
		*r = Response[T]{Status: w.Status, Result: w.Result}
	case StatusTimeout:
		var w timeoutWire[T]
		if err := json.Unmarshal(b, &w); err != nil {
			return err
		}
		*r = Response[T]{Status: w.Status, Timeout: w.Timeout, PartialResult: w.PartialResult}
	case StatusError:
		var w errorWire
		if err := json.Unmarshal(b, &w); err != nil {
			return err
		}
		*r = Response[T]{Status: w.Status, Error: w.Error}
	default:
		return fmt.Errorf("unknown response status %q", head.Status)
	}
	return nil
}

// SelectorKind discriminates entity selectors.
type SelectorKind string

const (
	SelectByID            SelectorKind = "id"
	SelectByQualifiedName SelectorKind = "qualified-name"
)

// Selector picks one focal entity by id or by qualified name.
type Selector struct {
	Kind          SelectorKind
	ID            string
	QualifiedName string
}

// ByID selects an entity by its snapshot id.
func ByID(id string) Selector {
	return Selector{Kind: SelectByID, ID: id}
}

// ByQualifiedName selects the first entity, in id order, with this
// qualified name.
func ByQualifiedName(qn string) Selector {
	return Selector{Kind: SelectByQualifiedName, QualifiedName: qn}
}

// Value returns the id or qualified name the selector carries.
func (s Selector) Value() string {
	if s.Kind == SelectByQualifiedName {
		return s.QualifiedName
	}
	return s.ID
}

func (s Selector) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case SelectByID:
		return json.Marshal(struct {
			Kind SelectorKind `json:"kind"`
			ID   string       `json:"id"`
		}{s.Kind, s.ID})
	case SelectByQualifiedName:
		return json.Marshal(struct {
			Kind          SelectorKind `json:"kind"`
			QualifiedName string       `json:"qualified_name"`
		}{s.Kind, s.QualifiedName})
	}
	return nil, fmt.Errorf("unknown selector kind %q", s.Kind)
}

func (s *Selector) UnmarshalJSON(b []byte) error {
	var w struct {
		Kind          SelectorKind `json:"kind"`
		ID            *string      `json:"id"`
		QualifiedName *string      `json:"qualified_name"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	switch w.Kind {
	case SelectByID:
		if w.ID == nil {
			return fmt.Errorf("selector of kind id is missing field `id`")
		}
		*s = ByID(*w.ID)
	case SelectByQualifiedName:
		if w.QualifiedName == nil {
			return fmt.Errorf("selector of kind qualified-name is missing field `qualified_name`")
		}
		*s = ByQualifiedName(*w.QualifiedName)
	default:
		return fmt.Errorf("unknown selector kind %q", w.Kind)
	}
	return nil
}

// DeltaScope selects which working-tree changes a delta scan inspects.
type DeltaScope string

const (
	ScopeStaged   DeltaScope = "staged"
	ScopeUnstaged DeltaScope = "unstaged"
	ScopeAll      DeltaScope = "all"
)

func (s *DeltaScope) UnmarshalText(b []byte) error {
	v := DeltaScope(b)
	switch v {
	case ScopeStaged, ScopeUnstaged, ScopeAll:
		*s = v
		return nil
	}
	return fmt.Errorf("unknown delta scope %q", string(b))
}

// Dialect names a structural query language. Unknown dialects decode
// successfully and are rejected by the service as unsupported.
type Dialect string

const (
	DialectPattern Dialect = "pattern"
	DialectGraph   Dialect = "graph"
)

// Direction of a relationship relative to the focal entity.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// =============================================================================
// Request parameters
// =============================================================================

type ConceptDiscoveryRequest struct {
	Query string `json:"query"`
	Limit uint32 `json:"limit"`
}

type EntityBriefingRequest struct {
	Entity            Selector `json:"entity"`
	RelationshipLimit uint32   `json:"relationship_limit"`
}

type BlastRadiusRequest struct {
	Entity   Selector `json:"entity"`
	MaxDepth uint32   `json:"max_depth"`
}

type DeltaImpactScanRequest struct {
	Scope DeltaScope `json:"scope"`
}

type RenamePlanningRequest struct {
	Entity  Selector `json:"entity"`
	NewName string   `json:"new_name"`
}

type StructuralQueryRequest struct {
	Dialect Dialect `json:"dialect"`
	Query   string  `json:"query"`
	Limit   uint32  `json:"limit"`
}

// =============================================================================
// Results
// =============================================================================

// RelatedEntity is a neighbor of a focal entity plus the connecting evidence.
type RelatedEntity struct {
	Direction        Direction                 `json:"direction"`
	RelationshipKind semantic.RelationshipKind `json:"relationship_kind"`
	Entity           semantic.Entity           `json:"entity"`
	Summary          *string                   `json:"summary"`
	Certainty        semantic.Certainty        `json:"certainty"`
	Provenance       semantic.Provenance       `json:"provenance"`
}

type ConceptMatch struct {
	Entity          semantic.Entity `json:"entity"`
	Summary         string          `json:"summary"`
	RelatedEntities []RelatedEntity `json:"related_entities"`
}

type ConceptDiscoveryResult struct {
	Matches []ConceptMatch `json:"matches"`
}

type EntityBriefingResult struct {
	Entity          semantic.Entity `json:"entity"`
	Summary         string          `json:"summary"`
	RelatedEntities []RelatedEntity `json:"related_entities"`
}

// ImpactTarget is one entity affected by a change to the focal entity.
type ImpactTarget struct {
	Entity     semantic.Entity     `json:"entity"`
	Depth      uint32              `json:"depth"`
	Reason     *string             `json:"reason"`
	Certainty  semantic.Certainty  `json:"certainty"`
	Provenance semantic.Provenance `json:"provenance"`
}

// UnresolvedReference describes an inbound edge whose source is missing
// from the snapshot.
type UnresolvedReference struct {
	Description string              `json:"description"`
	Certainty   semantic.Certainty  `json:"certainty"`
	Provenance  semantic.Provenance `json:"provenance"`
}

type BlastRadiusResult struct {
	DirectImpacts        []ImpactTarget        `json:"direct_impacts"`
	IndirectImpacts      []ImpactTarget        `json:"indirect_impacts"`
	UnresolvedReferences []UnresolvedReference `json:"unresolved_references"`
}

type FileImpact struct {
	Path             string         `json:"path"`
	ImpactedEntities []ImpactTarget `json:"impacted_entities"`
}

type DeltaImpactScanResult struct {
	Completeness semantic.Completeness `json:"completeness"`
	FileImpacts  []FileImpact          `json:"file_impacts"`
}

type RenameEdit struct {
	Location    semantic.Location   `json:"location"`
	Replacement string              `json:"replacement"`
	Reason      *string             `json:"reason"`
	Certainty   semantic.Certainty  `json:"certainty"`
	Provenance  semantic.Provenance `json:"provenance"`
}

type RenameConflict struct {
	Location *semantic.Location `json:"location"`
	Message  string             `json:"message"`
}

type RenamePlanningResult struct {
	HighConfidenceEdits []RenameEdit     `json:"high_confidence_edits"`
	LowConfidenceEdits  []RenameEdit     `json:"low_confidence_edits"`
	Conflicts           []RenameConflict `json:"conflicts"`
}

type StructuralQueryMatch struct {
	Entity     semantic.Entity     `json:"entity"`
	Summary    string              `json:"summary"`
	Certainty  semantic.Certainty  `json:"certainty"`
	Provenance semantic.Provenance `json:"provenance"`
}

type StructuralQueryResult struct {
	Matches []StructuralQueryMatch `json:"matches"`
}
