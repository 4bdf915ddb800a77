package semantic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// SnapshotKind distinguishes locally built snapshots from shipped seeds.
type SnapshotKind string

const (
	SnapshotWorking SnapshotKind = "working"
	SnapshotSeed    SnapshotKind = "seed"
)

func (k *SnapshotKind) UnmarshalText(b []byte) error {
	v := SnapshotKind(b)
	if v != SnapshotWorking && v != SnapshotSeed {
		return fmt.Errorf("unknown snapshot kind %q", string(b))
	}
	*k = v
	return nil
}

// Freshness relates a snapshot's captured state to the live workspace.
type Freshness string

const (
	FreshnessExact        Freshness = "exact"
	FreshnessDrifted      Freshness = "drifted"
	FreshnessOutdated     Freshness = "outdated"
	FreshnessIncompatible Freshness = "incompatible"
)

func (f *Freshness) UnmarshalText(b []byte) error {
	v := Freshness(b)
	switch v {
	case FreshnessExact, FreshnessDrifted, FreshnessOutdated, FreshnessIncompatible:
		*f = v
		return nil
	}
	return fmt.Errorf("unknown snapshot freshness %q", string(b))
}

// Completeness records whether every input was covered.
type Completeness string

const (
	Complete Completeness = "complete"
	Partial  Completeness = "partial"
)

func (c *Completeness) UnmarshalText(b []byte) error {
	v := Completeness(b)
	if v != Complete && v != Partial {
		return fmt.Errorf("unknown completeness %q", string(b))
	}
	*c = v
	return nil
}

// Provenance of a whole snapshot: the VCS revision it was built from and
// whether the working tree had uncommitted changes at the time.
type SnapshotProvenance struct {
	Revision              *string `json:"revision"`
	HasUncommittedChanges bool    `json:"has_uncommitted_changes"`
}

// RevisionText returns the revision, or "" when absent.
func (p SnapshotProvenance) RevisionText() string {
	if p.Revision == nil {
		return ""
	}
	return *p.Revision
}

// Severity of a snapshot diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

func (s *Severity) UnmarshalText(b []byte) error {
	v := Severity(b)
	if v != SeverityError && v != SeverityWarning {
		return fmt.Errorf("unknown diagnostic severity %q", string(b))
	}
	*s = v
	return nil
}

// Diagnostic records a non-fatal problem met during extraction.
type Diagnostic struct {
	Code     *string   `json:"code"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Location *Location `json:"location"`
}

// Path returns the diagnostic location path, or "".
func (d *Diagnostic) Path() string {
	if d.Location == nil {
		return ""
	}
	return d.Location.Path
}

// WorkspaceSnapshot is one complete, immutable extraction result.
type WorkspaceSnapshot struct {
	SchemaVersion SchemaVersion      `json:"schema_version"`
	Kind          SnapshotKind       `json:"kind"`
	Freshness     Freshness          `json:"freshness"`
	Provenance    SnapshotProvenance `json:"provenance"`
	Completeness  Completeness       `json:"completeness"`
	Entities      []Entity           `json:"entities"`
	Relationships []Relationship     `json:"relationships"`
	Diagnostics   []Diagnostic       `json:"diagnostics"`
}

// NewSnapshot returns an empty, complete, exact snapshot stamped with the
// current schema version.
func NewSnapshot(kind SnapshotKind, provenance SnapshotProvenance) *WorkspaceSnapshot {
	return &WorkspaceSnapshot{
		SchemaVersion: CurrentSchemaVersion,
		Kind:          kind,
		Freshness:     FreshnessExact,
		Provenance:    provenance,
		Completeness:  Complete,
		Entities:      []Entity{},
		Relationships: []Relationship{},
		Diagnostics:   []Diagnostic{},
	}
}

// SchemaCompatibility classifies the snapshot's schema for this build.
func (s *WorkspaceSnapshot) SchemaCompatibility() Compatibility {
	return s.SchemaVersion.Compatibility()
}

// Sort puts every collection into its canonical order: entities by id,
// relationships by dedup key, diagnostics by (path, message).
func (s *WorkspaceSnapshot) Sort() {
	slices.SortFunc(s.Entities, func(a, b Entity) int {
		return strings.Compare(a.ID, b.ID)
	})
	slices.SortFunc(s.Relationships, func(a, b Relationship) int {
		return a.Key().Compare(b.Key())
	})
	slices.SortStableFunc(s.Diagnostics, func(a, b Diagnostic) int {
		if c := strings.Compare(a.Path(), b.Path()); c != 0 {
			return c
		}
		return strings.Compare(a.Message, b.Message)
	})
}

// Marshal encodes the snapshot as indented JSON terminated by a newline.
func (s *WorkspaceSnapshot) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}
