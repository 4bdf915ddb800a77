// Package runtime evaluates pattern structural queries. A pattern is a
// Risor expression run once per snapshot entity; entities whose pattern
// result is truthy match.
package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/atlas/internal/query"
	"github.com/jward/atlas/internal/semantic"
	"github.com/jward/atlas/internal/store"
)

// ScriptPrefix marks a pattern that names a script file instead of
// holding the expression inline ("@large_structs").
const ScriptPrefix = "@"

// Runtime embeds a Risor VM and exposes graph and syntax host functions to
// pattern expressions.
type Runtime struct {
	root       string
	scriptsDir string
	fsys       fs.FS
	sql        *store.Backend
	logger     *slog.Logger
}

var _ query.StructuralBackend = (*Runtime)(nil)

// Option configures a Runtime.
type Option func(*Runtime)

// WithWorkspaceRoot sets the directory that entity paths are relative to.
// Without it the syntax host functions report an error.
func WithWorkspaceRoot(dir string) Option {
	return func(r *Runtime) { r.root = dir }
}

// WithScriptsDir loads named patterns and Risor imports from dir.
func WithScriptsDir(dir string) Option {
	return func(r *Runtime) { r.scriptsDir = dir }
}

// WithScriptsFS loads named patterns and Risor imports from an fs.FS
// instead of from disk.
func WithScriptsFS(fsys fs.FS) Option {
	return func(r *Runtime) { r.fsys = fsys }
}

// WithSQL exposes the sql host function, backed by b.
func WithSQL(b *store.Backend) Option {
	return func(r *Runtime) { r.sql = b }
}

// WithLogger routes the log global to l.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// New creates a Runtime.
func New(opts ...Option) *Runtime {
	r := &Runtime{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Evaluate runs pattern against every entity of snap in id order and
// returns the ids of matching entities, at most limit of them when limit is
// positive. When ctx ends mid-run the matches so far are returned with the
// context's error.
func (r *Runtime) Evaluate(ctx context.Context, snap *semantic.WorkspaceSnapshot, pattern string, limit int) ([]string, error) {
	src, label, err := r.resolvePattern(pattern)
	if err != nil {
		return nil, err
	}

	graph := query.New(snap)
	sources := newSourceStore(r.root)
	defer sources.Close()
	base := r.buildGlobals(snap, graph, sources)

	matched := []string{}
	for _, e := range graph.Entities() {
		if err := ctx.Err(); err != nil {
			return matched, err
		}
		globals := maps.Clone(base)
		globals["entity"] = entityObject(e)
		globals["inbound"] = object.NewInt(int64(len(graph.Inbound(e.ID))))
		globals["outbound"] = object.NewInt(int64(len(graph.Outbound(e.ID))))

		result, err := r.eval(ctx, src, label, globals)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return matched, ctxErr
			}
			return nil, fmt.Errorf("entity %s: %w", e.ID, err)
		}
		if !result.IsTruthy() {
			continue
		}
		matched = append(matched, e.ID)
		if limit > 0 && len(matched) >= limit {
			break
		}
	}
	return matched, nil
}

// RunSource executes Risor source once with the standard globals for snap
// plus any extra globals, and returns the script's result.
func (r *Runtime) RunSource(ctx context.Context, snap *semantic.WorkspaceSnapshot, source string, extra map[string]any) (object.Object, error) {
	sources := newSourceStore(r.root)
	defer sources.Close()
	globals := r.buildGlobals(snap, query.New(snap), sources)
	maps.Copy(globals, extra)
	return r.eval(ctx, source, "<inline>", globals)
}

func (r *Runtime) resolvePattern(pattern string) (src, label string, err error) {
	name, ok := strings.CutPrefix(strings.TrimSpace(pattern), ScriptPrefix)
	if !ok {
		return pattern, "<pattern>", nil
	}
	src, err = r.LoadScript(ScriptPath(name))
	if err != nil {
		return "", "", err
	}
	return src, name, nil
}

func (r *Runtime) eval(ctx context.Context, source, label string, globals map[string]any) (object.Object, error) {
	opts := make([]risor.Option, 0, len(globals)+1)
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	result, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", label, err)
	}
	return result, nil
}

// buildImporter returns nil when neither an fs.FS nor a scripts directory
// is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file from the configured fs.FS, or from disk
// relative to the scripts directory.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}
	if r.scriptsDir == "" && !filepath.IsAbs(path) {
		return "", fmt.Errorf("loading script %s: no scripts directory configured", path)
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// ScriptPath returns the file name of a named pattern script.
func ScriptPath(name string) string {
	return name + ".risor"
}

// buildGlobals constructs the globals shared by every entity evaluation.
func (r *Runtime) buildGlobals(snap *semantic.WorkspaceSnapshot, graph *query.Service, sources *sourceStore) map[string]any {
	globals := map[string]any{
		"lookup":       makeLookupFn(graph),
		"neighbors":    makeNeighborsFn(graph),
		"edges":        makeEdgesFn(graph),
		"source_text":  makeSourceTextFn(graph, sources),
		"syntax_count": makeSyntaxCountFn(graph, sources),
		"log":          mustProxy(&logObject{logger: r.logger.With("component", "atlas.pattern")}),
	}
	if r.sql != nil {
		globals["sql"] = makeSQLFn(r.sql, snap)
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
