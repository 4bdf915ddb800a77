// Package semantic defines the typed graph model shared by extraction,
// storage and queries: entities, relationships, certainty, provenance and the
// versioned snapshot document that owns them.
package semantic

import (
	"fmt"
	"strings"
)

// SchemaVersion identifies the layout of a persisted snapshot document.
// Versions are totally ordered by (major, minor).
type SchemaVersion struct {
	Major uint16 `json:"major"`
	Minor uint16 `json:"minor"`
}

var (
	// CurrentSchemaVersion is the only version this build writes.
	CurrentSchemaVersion = SchemaVersion{Major: 1, Minor: 1}
	// MinimumReadableSchemaVersion is the oldest version this build reads.
	MinimumReadableSchemaVersion = SchemaVersion{Major: 1, Minor: 0}
)

func (v SchemaVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compare returns -1, 0 or 1 depending on whether v sorts before, equal to,
// or after other.
func (v SchemaVersion) Compare(other SchemaVersion) int {
	switch {
	case v.Major < other.Major:
		return -1
	case v.Major > other.Major:
		return 1
	case v.Minor < other.Minor:
		return -1
	case v.Minor > other.Minor:
		return 1
	}
	return 0
}

// Compatibility classifies a schema version against a readable window.
type Compatibility string

const (
	CompatibilityCurrent    Compatibility = "current"
	CompatibilityCompatible Compatibility = "compatible"
	CompatibilityTooOld     Compatibility = "too-old"
	CompatibilityTooNew     Compatibility = "too-new"
)

// Readable reports whether a document with this classification can be loaded.
func (c Compatibility) Readable() bool {
	switch c {
	case CompatibilityCurrent, CompatibilityCompatible:
		return true
	case CompatibilityTooOld, CompatibilityTooNew:
		return false
	}
	return false
}

// Phrase renders the classification for operator-facing messages
// ("too old", "too new").
func (c Compatibility) Phrase() string {
	return strings.ReplaceAll(string(c), "-", " ")
}

func (c *Compatibility) UnmarshalText(b []byte) error {
	v := Compatibility(b)
	switch v {
	case CompatibilityCurrent, CompatibilityCompatible, CompatibilityTooOld, CompatibilityTooNew:
		*c = v
		return nil
	}
	return fmt.Errorf("unknown schema compatibility %q", string(b))
}

// CompatibilityWithin classifies v against the closed window [minimum, current].
// A different major version than current is never readable.
func (v SchemaVersion) CompatibilityWithin(minimum, current SchemaVersion) Compatibility {
	if v.Major != current.Major {
		if v.Major < current.Major {
			return CompatibilityTooOld
		}
		return CompatibilityTooNew
	}
	if v.Minor > current.Minor {
		return CompatibilityTooNew
	}
	if v.Compare(minimum) < 0 {
		return CompatibilityTooOld
	}
	if v == current {
		return CompatibilityCurrent
	}
	return CompatibilityCompatible
}

// Compatibility classifies v against this build's readable window.
func (v SchemaVersion) Compatibility() Compatibility {
	return v.CompatibilityWithin(MinimumReadableSchemaVersion, CurrentSchemaVersion)
}
