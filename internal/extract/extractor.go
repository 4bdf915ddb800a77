// Package extract derives a semantic snapshot from the Rust sources of a
// workspace. Files are parsed with tree-sitter, visited in sorted order, and
// call sites are resolved in one pass after every file has been seen.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/atlas/internal/semantic"
)

// skipDirs are never descended into when discovering source files.
var skipDirs = map[string]bool{
	"node_modules": true,
	"target":       true,
	"vendor":       true,
}

// ProvenanceFunc captures the VCS provenance of a workspace root.
type ProvenanceFunc func(ctx context.Context, root string) semantic.SnapshotProvenance

// Option configures an Extractor.
type Option func(*Extractor)

// WithParallel enables the worker-pool parse phase.
func WithParallel(enabled bool) Option {
	return func(e *Extractor) { e.parallel = enabled }
}

// WithWorkers bounds the parse worker pool. Zero or less means NumCPU.
func WithWorkers(n int) Option {
	return func(e *Extractor) { e.workers = n }
}

// WithLogger sets the logger used for progress messages.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// WithProvenanceFunc sets how snapshot provenance is captured.
func WithProvenanceFunc(fn ProvenanceFunc) Option {
	return func(e *Extractor) { e.provenance = fn }
}

// Extractor builds WorkspaceSnapshots from Rust workspaces.
type Extractor struct {
	parallel   bool
	workers    int
	logger     *slog.Logger
	provenance ProvenanceFunc
}

// New creates an Extractor. Parsing is serial unless WithParallel is given.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// parsedFile is the outcome of the read/parse phase for one file.
type parsedFile struct {
	relPath  string
	src      []byte
	tree     *sitter.Tree
	readErr  error
	parseErr error
}

// Extract builds a finished snapshot of the workspace rooted at root. Only a
// workspace root that cannot be resolved is an error; unreadable or
// unparsable files degrade the snapshot to partial.
func (e *Extractor) Extract(ctx context.Context, root string) (*semantic.WorkspaceSnapshot, error) {
	canonical, err := canonicalRoot(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace root %s: %w", root, err)
	}

	relPaths, skipped, err := ListSourceFiles(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace root %s: %w", root, err)
	}

	var prov semantic.SnapshotProvenance
	if e.provenance != nil {
		prov = e.provenance(ctx, canonical)
	}

	parsed := e.parseAll(ctx, canonical, relPaths)

	b := NewBuilder(filepath.Base(canonical), prov)
	for _, sp := range skipped {
		b.Warn("read-dir", fmt.Sprintf("failed to read workspace path: %v", sp.Err), sp.Path)
	}
	for _, pf := range parsed {
		addFile(b, pf.relPath)
		switch {
		case pf.readErr != nil:
			b.Warn("read-file", fmt.Sprintf("failed to read Rust source file: %v", pf.readErr), pf.relPath)
		case pf.parseErr != nil:
			b.Warn("parse-file", fmt.Sprintf("failed to parse Rust source file: %v", pf.parseErr), pf.relPath)
		default:
			visitFile(b, pf.relPath, pf.tree.RootNode(), pf.src)
		}
		if pf.tree != nil {
			pf.tree.Close()
		}
	}

	snap := b.Finish()
	e.logger.Debug("extracted workspace",
		"root", canonical,
		"files", len(relPaths),
		"entities", len(snap.Entities),
		"relationships", len(snap.Relationships),
		"completeness", snap.Completeness,
	)
	return snap, nil
}

func canonicalRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory")
	}
	return resolved, nil
}

// parseAll reads and parses every file. Results keep the order of relPaths.
func (e *Extractor) parseAll(ctx context.Context, root string, relPaths []string) []parsedFile {
	results := make([]parsedFile, len(relPaths))
	if !e.parallel || len(relPaths) < 2 {
		for i, rel := range relPaths {
			results[i] = parseOne(ctx, root, rel)
		}
		return results
	}

	numWorkers := e.workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	numWorkers = max(1, min(numWorkers, len(relPaths)))

	workCh := make(chan int, len(relPaths))
	for i := range relPaths {
		workCh <- i
	}
	close(workCh)

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workCh {
				results[i] = parseOne(ctx, root, relPaths[i])
			}
		}()
	}
	wg.Wait()
	return results
}

func parseOne(ctx context.Context, root, relPath string) parsedFile {
	pf := parsedFile{relPath: relPath}
	src, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(relPath)))
	if err != nil {
		pf.readErr = err
		return pf
	}
	pf.src = src
	tree, err := ParseRust(ctx, src)
	if err != nil {
		pf.parseErr = err
		if tree != nil {
			tree.Close()
		}
		return pf
	}
	pf.tree = tree
	return pf
}

// SkippedPath is a workspace path the source listing could not visit.
type SkippedPath struct {
	Path string
	Err  error
}

// ListSourceFiles returns the workspace-relative, slash-separated paths of
// every Rust source file under root, sorted. Inside a git repository the
// listing honours .gitignore; otherwise the directory tree is walked, and
// entries below root that cannot be read are reported as skipped rather
// than failing the listing.
func ListSourceFiles(root string) ([]string, []SkippedPath, error) {
	paths, err := gitListFiles(root)
	var skipped []SkippedPath
	if err != nil {
		paths, skipped, err = walkSourceFiles(os.DirFS(root))
		if err != nil {
			return nil, nil, err
		}
	}
	slices.Sort(paths)
	return slices.Compact(paths), skipped, nil
}

func gitListFiles(root string) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || skippedPath(line) {
			continue
		}
		if _, ok := LanguageForFile(line); !ok {
			continue
		}
		// Tracked files deleted from the working tree are still listed.
		if _, err := os.Lstat(filepath.Join(root, filepath.FromSlash(line))); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		paths = append(paths, line)
	}
	return paths, nil
}

func walkSourceFiles(fsys fs.FS) ([]string, []SkippedPath, error) {
	var paths []string
	var skipped []SkippedPath
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == "." {
				return err
			}
			skipped = append(skipped, SkippedPath{Path: p, Err: err})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != "." && skippedDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if _, ok := LanguageForFile(p); !ok {
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, skipped, nil
}

func skippedDir(name string) bool {
	return strings.HasPrefix(name, ".") || skipDirs[name]
}

func skippedPath(rel string) bool {
	segments := strings.Split(rel, "/")
	for _, dir := range segments[:len(segments)-1] {
		if skippedDir(dir) {
			return true
		}
	}
	return false
}
