package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/jward/atlas/internal/gitdiff"
	"github.com/jward/atlas/internal/semantic"
)

// CaptureProvenance records the workspace's current revision and whether it
// has uncommitted changes. A directory outside any git repository yields
// the zero provenance; an unborn HEAD yields a nil revision.
func CaptureProvenance(ctx context.Context, root string) (semantic.SnapshotProvenance, error) {
	if _, err := gitdiff.Run(ctx, root, "rev-parse", "--is-inside-work-tree"); err != nil {
		if errors.Is(err, exec.ErrNotFound) || ctx.Err() != nil {
			return semantic.SnapshotProvenance{}, fmt.Errorf("capture provenance: %w", err)
		}
		return semantic.SnapshotProvenance{}, nil
	}

	var prov semantic.SnapshotProvenance
	if out, err := gitdiff.Run(ctx, root, "rev-parse", "--verify", "-q", "HEAD"); err == nil {
		if rev := strings.TrimSpace(string(out)); rev != "" {
			prov.Revision = &rev
		}
	}

	status, err := gitdiff.Run(ctx, root, "status", "--porcelain", "--untracked-files=all")
	if err != nil {
		return semantic.SnapshotProvenance{}, fmt.Errorf("capture provenance: %w", err)
	}
	prov.HasUncommittedChanges = len(strings.TrimSpace(string(status))) > 0
	return prov, nil
}
