package snapshot

import (
	"fmt"

	"github.com/jward/atlas/internal/semantic"
)

// RecoveryKind names why no snapshot was loaded.
type RecoveryKind string

const (
	RecoveryMissing            RecoveryKind = "missing"
	RecoveryIncompatibleSchema RecoveryKind = "incompatible-schema"
	RecoveryCorrupt            RecoveryKind = "corrupt"
)

// Recovery is a typed, non-error outcome of Load.
type Recovery struct {
	Kind RecoveryKind
	Path string

	// IncompatibleSchema
	Found         semantic.SchemaVersion
	Compatibility semantic.Compatibility

	// Corrupt; Line and Column are 1-based.
	Detail string
	Line   int
	Column int
}

// LogMessage returns the operator-facing warning for the recovery, or false
// for a missing snapshot, which is expected on first run.
func (r *Recovery) LogMessage() (string, bool) {
	switch r.Kind {
	case RecoveryIncompatibleSchema:
		return fmt.Sprintf(
			"Ignoring incompatible workspace snapshot at %s: %s. Supported snapshot schemas for this build are %s through %s. Rebuild the snapshot with the current build.",
			r.Path, incompatibleGuidance(r.Found, r.Compatibility),
			semantic.MinimumReadableSchemaVersion, semantic.CurrentSchemaVersion,
		), true
	case RecoveryCorrupt:
		return fmt.Sprintf(
			"Ignoring corrupt workspace snapshot at %s (line %d, column %d): %s. Rebuild the snapshot to recover.",
			r.Path, r.Line, r.Column, r.Detail,
		), true
	}
	return "", false
}

func incompatibleGuidance(found semantic.SchemaVersion, compat semantic.Compatibility) string {
	switch compat {
	case semantic.CompatibilityTooOld, semantic.CompatibilityTooNew:
		return fmt.Sprintf("found schema %s which is %s to read", found, compat.Phrase())
	}
	return fmt.Sprintf("found schema %s with unexpected compatibility state", found)
}
