package atlas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/jward/atlas/internal/agent"
	"github.com/jward/atlas/internal/config"
	"github.com/jward/atlas/internal/extract"
	"github.com/jward/atlas/internal/gitdiff"
	"github.com/jward/atlas/internal/logging"
	"github.com/jward/atlas/internal/query"
	"github.com/jward/atlas/internal/runtime"
	"github.com/jward/atlas/internal/semantic"
	"github.com/jward/atlas/internal/snapshot"
	"github.com/jward/atlas/internal/store"
)

// ErrNoSnapshot is returned by operations that need a loaded snapshot
// before one was indexed or found on disk.
var ErrNoSnapshot = errors.New("atlas: no workspace snapshot is loaded")

// Engine owns one workspace: it indexes it into a snapshot, persists the
// snapshot, and answers agent requests against whichever snapshot is
// current.
type Engine struct {
	root   string
	cfg    *config.Config
	logger *slog.Logger

	snapshots *snapshot.Store
	// storeErr is set when the snapshot store could not be opened. The
	// engine still indexes and queries in memory.
	storeErr error

	extractor  *extract.Extractor
	collector  query.Collector
	graph      *store.Backend
	patterns   *runtime.Runtime
	scriptsDir string
	scriptsFS  fs.FS
	dispatcher *agent.Dispatcher

	mu       sync.RWMutex
	service  *query.Service
	recovery *snapshot.Recovery
	started  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the root logger. Each subsystem logs under its own
// component name.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSnapshotStore uses s instead of the store under the configured cache
// directory.
func WithSnapshotStore(s *snapshot.Store) Option {
	return func(e *Engine) { e.snapshots = s }
}

// WithCollector replaces the git-backed collector used by delta impact
// scans.
func WithCollector(c query.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// WithScriptsDir sets where named pattern scripts are loaded from. The
// default is <workspace>/.atlas/patterns.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) { e.scriptsDir = dir }
}

// WithScriptsFS loads named pattern scripts from fsys instead of disk.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) { e.scriptsFS = fsys }
}

// New creates an Engine for the workspace rooted at root. No snapshot is
// loaded until Index or Startup runs; the first agent request triggers
// Startup when neither has.
func New(root string, opts ...Option) (*Engine, error) {
	canonical, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("atlas: resolve workspace root %s: %w", root, err)
	}
	if resolved, err := filepath.EvalSymlinks(canonical); err == nil {
		canonical = resolved
	}

	e := &Engine{root: canonical}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg == nil {
		e.cfg = config.DefaultConfig()
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("atlas: %w", err)
	}
	if e.logger == nil {
		e.logger = logging.Discard()
	}
	if e.scriptsDir == "" {
		e.scriptsDir = filepath.Join(canonical, ".atlas", "patterns")
	}

	if e.snapshots == nil {
		e.snapshots, e.storeErr = snapshot.OpenLocal(e.cfg.CacheDir, snapshot.WithLogger(e.logger))
	}
	if e.collector == nil {
		e.collector = gitdiff.New(gitdiff.WithLogger(logging.Component(e.logger, "atlas.gitdiff")))
	}

	e.extractor = extract.New(
		extract.WithParallel(e.cfg.Index.Parallel),
		extract.WithWorkers(e.cfg.Index.Workers),
		extract.WithLogger(logging.Component(e.logger, "atlas.extract")),
		extract.WithProvenanceFunc(e.captureProvenance),
	)
	e.graph = store.NewBackend()

	rtOpts := []runtime.Option{
		runtime.WithWorkspaceRoot(canonical),
		runtime.WithSQL(e.graph),
		runtime.WithLogger(e.logger),
	}
	if e.scriptsFS != nil {
		rtOpts = append(rtOpts, runtime.WithScriptsFS(e.scriptsFS))
	} else {
		rtOpts = append(rtOpts, runtime.WithScriptsDir(e.scriptsDir))
	}
	e.patterns = runtime.New(rtOpts...)

	e.dispatcher = agent.NewDispatcher(e.Service,
		agent.WithDispatchBudget(e.cfg.Query.Budget()),
		agent.WithDispatchLogger(logging.Component(e.logger, "atlas.agent")),
	)
	return e, nil
}

// Close releases the in-memory graph database.
func (e *Engine) Close() error {
	return e.graph.Close()
}

// Root returns the canonical workspace root.
func (e *Engine) Root() string {
	return e.root
}

// Config returns the effective configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// SnapshotPath returns where the workspace's snapshot is persisted, or ""
// when the store is unavailable.
func (e *Engine) SnapshotPath() string {
	if e.storeErr != nil {
		return ""
	}
	return e.snapshots.PathFor(e.root)
}

// IndexResult describes a completed Index.
type IndexResult struct {
	Snapshot *semantic.WorkspaceSnapshot
	Save     snapshot.SaveResult
}

// Index extracts a fresh snapshot, makes it current and persists it. A
// snapshot that was extracted but could not be written stays current for
// this Engine and the write failure is returned.
func (e *Engine) Index(ctx context.Context) (*IndexResult, error) {
	snap, err := e.extractor.Extract(ctx, e.root)
	if err != nil {
		return nil, fmt.Errorf("atlas: index %s: %w", e.root, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("atlas: index %s: %w", e.root, err)
	}
	e.install(snap)

	result := &IndexResult{Snapshot: snap}
	if e.storeErr != nil {
		return result, fmt.Errorf("atlas: persist snapshot: %w", e.storeErr)
	}
	saved, err := e.snapshots.Save(e.root, snap)
	if err != nil {
		return result, fmt.Errorf("atlas: persist snapshot: %w", err)
	}
	result.Save = saved

	e.logger.Info("indexed workspace",
		"root", e.root,
		"entities", len(snap.Entities),
		"relationships", len(snap.Relationships),
		"completeness", snap.Completeness,
		"path", saved.Path,
		"written", saved.Written,
	)
	return result, nil
}

// Startup loads the persisted snapshot and reports the host-visible
// status. A loaded snapshot becomes current; otherwise the current
// snapshot, if any, is kept.
func (e *Engine) Startup() snapshot.StartupStatus {
	var status snapshot.StartupStatus
	if e.storeErr != nil {
		status = snapshot.StorageUnavailable(e.logger, e.root, e.storeErr)
	} else {
		status = e.snapshots.Startup(e.root)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = true
	e.recovery = status.Recovery
	if status.Snapshot != nil {
		e.service = e.newService(status.Snapshot)
	}
	return status
}

// Snapshot returns the current snapshot, or nil.
func (e *Engine) Snapshot() *semantic.WorkspaceSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.service == nil {
		return nil
	}
	return e.service.Snapshot()
}

// Freshness compares the current snapshot's provenance with the live
// workspace.
func (e *Engine) Freshness(ctx context.Context) (snapshot.FreshnessStatus, error) {
	snap := e.Snapshot()
	if snap == nil {
		return snapshot.FreshnessStatus{}, ErrNoSnapshot
	}
	prov, err := snapshot.CaptureProvenance(ctx, e.root)
	if err != nil {
		return snapshot.FreshnessStatus{}, fmt.Errorf("atlas: %w", err)
	}
	return snapshot.Evaluate(snap, prov), nil
}

// Service returns the query service for the current snapshot. It is the
// agent.Source behind Handle and Serve.
func (e *Engine) Service(context.Context) (agent.Service, *agent.Error) {
	e.mu.RLock()
	started := e.started || e.service != nil
	e.mu.RUnlock()
	if !started {
		e.Startup()
	}

	e.mu.RLock()
	svc, rec := e.service, e.recovery
	e.mu.RUnlock()
	if svc != nil {
		return svc, nil
	}

	switch {
	case e.storeErr != nil:
		return nil, &agent.Error{
			Code:      agent.CodeSnapshotUnavailable,
			Message:   fmt.Sprintf("snapshot storage is unavailable: %v", e.storeErr),
			Retryable: false,
		}
	case rec != nil && rec.Kind == snapshot.RecoveryIncompatibleSchema:
		msg, _ := rec.LogMessage()
		return nil, &agent.Error{Code: agent.CodeSnapshotIncompatible, Message: msg, Retryable: false}
	}
	return nil, &agent.Error{
		Code:      agent.CodeSnapshotUnavailable,
		Message:   fmt.Sprintf("no workspace snapshot is loaded for %s; run `atlas index` to build one", e.root),
		Retryable: true,
	}
}

// Handle answers one agent request within the configured budget.
func (e *Engine) Handle(ctx context.Context, req agent.Request) agent.Reply {
	return e.dispatcher.Dispatch(ctx, req)
}

// Serve answers line-delimited JSON requests from r until it is exhausted
// or ctx ends.
func (e *Engine) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	return e.dispatcher.Serve(ctx, r, w)
}

func (e *Engine) install(snap *semantic.WorkspaceSnapshot) {
	svc := e.newService(snap)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.service, e.recovery = svc, nil
	e.started = true
}

func (e *Engine) newService(snap *semantic.WorkspaceSnapshot) *query.Service {
	return query.New(snap,
		query.WithWorkspaceRoot(e.root),
		query.WithCollector(e.collector),
		query.WithBackend(agent.DialectPattern, e.patterns),
		query.WithBackend(agent.DialectGraph, e.graph),
		query.WithLogger(logging.Component(e.logger, "atlas.query")),
	)
}

// captureProvenance never fails extraction: a workspace whose provenance
// cannot be read is indexed with none.
func (e *Engine) captureProvenance(ctx context.Context, root string) semantic.SnapshotProvenance {
	prov, err := snapshot.CaptureProvenance(ctx, root)
	if err != nil {
		e.logger.Warn("failed to capture workspace provenance", "root", root, "error", err)
	}
	return prov
}
