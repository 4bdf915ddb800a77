package snapshot

import (
	"fmt"
	"log/slog"

	"github.com/jward/atlas/internal/logging"
	"github.com/jward/atlas/internal/semantic"
)

// LogComponent tags every startup warning.
const LogComponent = "atlas.snapshot"

// State is the host-visible readiness of the semantic map.
type State string

const (
	StateReady    State = "ready"
	StateDegraded State = "degraded"
)

// DegradedReason explains a degraded startup.
type DegradedReason string

const (
	ReasonPartialSnapshot    DegradedReason = "partial-snapshot"
	ReasonSnapshotRecovery   DegradedReason = "snapshot-recovery"
	ReasonStorageUnavailable DegradedReason = "storage-unavailable"
)

// StartupStatus is reported to the host once per startup. Snapshot is set
// whenever a readable snapshot was loaded, including partial ones.
type StartupStatus struct {
	State    State                       `json:"state"`
	Reason   DegradedReason              `json:"reason,omitempty"`
	Message  string                      `json:"message,omitempty"`
	Snapshot *semantic.WorkspaceSnapshot `json:"-"`
	Recovery *Recovery                   `json:"-"`
}

// Startup loads the workspace's snapshot and classifies the outcome. It
// never fails: every problem becomes a degraded status and a warning.
func (s *Store) Startup(workspace string) StartupStatus {
	log := logging.Component(s.logger, LogComponent)

	res, err := s.Load(workspace)
	if err != nil {
		return StorageUnavailable(s.logger, workspace, err)
	}
	if res.Recovery != nil {
		msg, ok := res.Recovery.LogMessage()
		if !ok {
			return StartupStatus{State: StateReady, Recovery: res.Recovery}
		}
		log.Warn(msg, "path", res.Recovery.Path, "recovery", string(res.Recovery.Kind))
		return StartupStatus{State: StateDegraded, Reason: ReasonSnapshotRecovery, Message: msg, Recovery: res.Recovery}
	}

	snap := res.Snapshot
	if snap.Completeness == semantic.Partial {
		suffix := "s"
		if len(snap.Diagnostics) == 1 {
			suffix = ""
		}
		msg := fmt.Sprintf("Loaded partial workspace snapshot for %s with %d diagnostic%s.", workspace, len(snap.Diagnostics), suffix)
		log.Warn(msg, "diagnostics", len(snap.Diagnostics))
		return StartupStatus{State: StateDegraded, Reason: ReasonPartialSnapshot, Message: msg, Snapshot: snap}
	}
	return StartupStatus{State: StateReady, Snapshot: snap}
}

// StorageUnavailable builds and logs the degraded status used when the
// snapshot store could not be opened or read.
func StorageUnavailable(logger *slog.Logger, workspace string, err error) StartupStatus {
	msg := fmt.Sprintf("Atlas snapshot storage unavailable for %s: %v", workspace, err)
	logging.Component(logger, LogComponent).Warn(msg)
	return StartupStatus{State: StateDegraded, Reason: ReasonStorageUnavailable, Message: msg}
}
