package snapshot

import (
	"fmt"

	"github.com/jward/atlas/internal/semantic"
)

// GuidanceLevel says how strongly a rebuild is advised.
type GuidanceLevel string

const (
	GuidanceNone        GuidanceLevel = "none"
	GuidanceRecommended GuidanceLevel = "recommended"
	GuidanceRequired    GuidanceLevel = "required"
)

// Guidance is the rebuild advice attached to a freshness evaluation.
type Guidance struct {
	Level   GuidanceLevel `json:"level"`
	Message string        `json:"message,omitempty"`
}

// FreshnessStatus is the result of comparing a snapshot to the live
// workspace.
type FreshnessStatus struct {
	Freshness semantic.Freshness `json:"freshness"`
	Guidance  Guidance           `json:"guidance"`
}

// Evaluate compares the provenance captured in snap with a freshly
// captured workspace provenance. An unreadable schema short-circuits to
// incompatible before revisions are looked at.
func Evaluate(snap *semantic.WorkspaceSnapshot, workspace semantic.SnapshotProvenance) FreshnessStatus {
	if !snap.SchemaCompatibility().Readable() {
		return FreshnessStatus{
			Freshness: semantic.FreshnessIncompatible,
			Guidance: Guidance{
				Level:   GuidanceRequired,
				Message: fmt.Sprintf("Rebuild required: snapshot schema %s is not readable by this build.", snap.SchemaVersion),
			},
		}
	}

	captured := snap.Provenance
	var freshness semantic.Freshness
	switch {
	case captured.Revision != nil && workspace.Revision != nil:
		if *captured.Revision != *workspace.Revision {
			freshness = semantic.FreshnessOutdated
		} else {
			freshness = dirtiness(captured, workspace)
		}
	case captured.Revision == nil && workspace.Revision == nil:
		freshness = dirtiness(captured, workspace)
	default:
		freshness = semantic.FreshnessIncompatible
	}
	return FreshnessStatus{Freshness: freshness, Guidance: guidanceFor(captured, workspace, freshness)}
}

func dirtiness(captured, workspace semantic.SnapshotProvenance) semantic.Freshness {
	switch {
	case workspace.HasUncommittedChanges:
		return semantic.FreshnessDrifted
	case captured.HasUncommittedChanges:
		return semantic.FreshnessOutdated
	}
	return semantic.FreshnessExact
}

func guidanceFor(captured, workspace semantic.SnapshotProvenance, f semantic.Freshness) Guidance {
	switch f {
	case semantic.FreshnessDrifted:
		return Guidance{Level: GuidanceRecommended, Message: "Rebuild recommended: workspace has uncommitted changes."}
	case semantic.FreshnessOutdated:
		if captured.Revision != nil && workspace.Revision != nil && *captured.Revision != *workspace.Revision {
			return Guidance{Level: GuidanceRequired, Message: fmt.Sprintf(
				"Rebuild required: snapshot was built from revision %s, current workspace is at %s.",
				*captured.Revision, *workspace.Revision)}
		}
		return Guidance{Level: GuidanceRequired, Message: "Rebuild required: snapshot no longer matches the current workspace state."}
	case semantic.FreshnessIncompatible:
		return Guidance{Level: GuidanceRequired, Message: "Rebuild required: snapshot provenance cannot be compared to this workspace."}
	}
	return Guidance{Level: GuidanceNone}
}
