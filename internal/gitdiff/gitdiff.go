// Package gitdiff collects working-tree changes from git and normalizes them
// into per-file Change records.
package gitdiff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

// Scope selects which side of the index is diffed.
type Scope string

const (
	ScopeStaged   Scope = "staged"
	ScopeUnstaged Scope = "unstaged"
	ScopeAll      Scope = "all"
)

// ChangeKind classifies one changed file.
type ChangeKind string

const (
	Added    ChangeKind = "added"
	Deleted  ChangeKind = "deleted"
	Modified ChangeKind = "modified"
	Renamed  ChangeKind = "renamed"
)

// priority decides which record survives when staged and unstaged diffs
// both report the same path.
func (k ChangeKind) priority() int {
	switch k {
	case Renamed:
		return 2
	case Added, Deleted:
		return 1
	}
	return 0
}

// Change is one changed file, with paths relative to the collected root.
// OldPath is set only for renames.
type Change struct {
	Kind    ChangeKind
	Path    string
	OldPath string
}

// ErrNotRepository is returned when the root is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) { c.logger = l }
}

// Collector shells out to git. The zero value is not usable; call New.
type Collector struct {
	logger *slog.Logger
}

// New creates a Collector.
func New(opts ...Option) *Collector {
	c := &Collector{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect returns the changes under root for scope, deduplicated by path
// and sorted by path.
func (c *Collector) Collect(ctx context.Context, root string, scope Scope) ([]Change, error) {
	if _, err := Run(ctx, root, "rev-parse", "--is-inside-work-tree"); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, root)
	}

	var changes []Change
	if scope == ScopeUnstaged || scope == ScopeAll {
		out, err := Run(ctx, root, "diff", "--no-color", "--no-ext-diff", "--relative", "-M100%")
		if err != nil {
			return nil, fmt.Errorf("collect unstaged diff: %w", err)
		}
		parsed, err := Parse(out)
		if err != nil {
			return nil, err
		}
		changes = append(changes, parsed...)

		untracked, err := Run(ctx, root, "ls-files", "--others", "--exclude-standard")
		if err != nil {
			return nil, fmt.Errorf("list untracked files: %w", err)
		}
		for _, line := range strings.Split(string(untracked), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				changes = append(changes, Change{Kind: Added, Path: line})
			}
		}
	}
	if scope == ScopeStaged || scope == ScopeAll {
		out, err := Run(ctx, root, "diff", "--cached", "--no-color", "--no-ext-diff", "--relative", "-M100%")
		if err != nil {
			return nil, fmt.Errorf("collect staged diff: %w", err)
		}
		parsed, err := Parse(out)
		if err != nil {
			return nil, err
		}
		changes = append(changes, parsed...)
	}

	merged := Merge(changes)
	c.logger.Debug("collected working tree changes", "root", root, "scope", scope, "files", len(merged))
	return merged, nil
}

// Parse converts unified diff output into changes.
func Parse(out []byte) ([]Change, error) {
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, nil
	}
	fileDiffs, err := godiff.ParseMultiFileDiff(out)
	if err != nil {
		return nil, fmt.Errorf("failed to parse diff: %w", err)
	}

	changes := make([]Change, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		orig := cleanPath(fd.OrigName)
		updated := cleanPath(fd.NewName)
		switch {
		case orig == "" && updated == "":
			continue
		case orig == "":
			changes = append(changes, Change{Kind: Added, Path: updated})
		case updated == "":
			changes = append(changes, Change{Kind: Deleted, Path: orig})
		case orig != updated:
			changes = append(changes, Change{Kind: Renamed, Path: updated, OldPath: orig})
		default:
			changes = append(changes, Change{Kind: Modified, Path: updated})
		}
	}
	return changes, nil
}

// Merge keeps one change per path, preferring renames over additions and
// deletions over modifications. The first record wins a tie.
func Merge(changes []Change) []Change {
	byPath := make(map[string]Change, len(changes))
	for _, ch := range changes {
		if existing, ok := byPath[ch.Path]; ok && ch.Kind.priority() <= existing.Kind.priority() {
			continue
		}
		byPath[ch.Path] = ch
	}

	merged := make([]Change, 0, len(byPath))
	for _, ch := range byPath {
		merged = append(merged, ch)
	}
	slices.SortFunc(merged, func(a, b Change) int {
		return strings.Compare(a.Path, b.Path)
	})
	return merged
}

// cleanPath strips the a/ and b/ prefixes git adds and maps /dev/null to "".
func cleanPath(path string) string {
	if path == "" || path == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(path, "a/") || strings.HasPrefix(path, "b/") {
		return path[2:]
	}
	return path
}

// Run executes git in dir and returns stdout. A non-zero exit is reported
// with git's stderr.
func Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	full := append([]string{"-c", "core.quotepath=off"}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}
