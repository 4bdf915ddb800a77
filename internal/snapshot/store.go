// Package snapshot persists WorkspaceSnapshots under a per-user cache
// directory and classifies what it finds on disk at startup.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/zeebo/xxh3"

	"github.com/jward/atlas/internal/semantic"
)

// FileName is the name of the snapshot document inside a workspace
// directory.
const FileName = "workspace_snapshot.json"

// Storage abstracts the filesystem calls the store makes.
type Storage interface {
	MkdirAll(path string) error
	WriteFile(path string, data []byte) error
	ReadFile(path string) ([]byte, error)
}

// OSStorage is the Storage backed by the local filesystem.
type OSStorage struct{}

func (OSStorage) MkdirAll(path string) error { return os.MkdirAll(path, 0o755) }

func (OSStorage) WriteFile(path string, data []byte) error { return os.WriteFile(path, data, 0o644) }

func (OSStorage) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

// Option configures a Store.
type Option func(*Store)

// WithStorage replaces the filesystem implementation.
func WithStorage(s Storage) Option {
	return func(st *Store) { st.storage = s }
}

// WithLogger sets the logger used for startup warnings.
func WithLogger(l *slog.Logger) Option {
	return func(st *Store) { st.logger = l }
}

// Store reads and writes one snapshot file per workspace below root.
type Store struct {
	root    string
	storage Storage
	logger  *slog.Logger
}

// New creates a Store rooted at dir.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		root:    dir,
		storage: OSStorage{},
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenLocal creates a Store under <cacheDir>/atlas/snapshots.
func OpenLocal(cacheDir string, opts ...Option) (*Store, error) {
	if cacheDir == "" {
		return nil, errors.New("can't get cache directory")
	}
	return New(filepath.Join(cacheDir, "atlas", "snapshots"), opts...), nil
}

// Root returns the directory holding every workspace's snapshot.
func (s *Store) Root() string {
	return s.root
}

// PathFor returns the snapshot path for a workspace root. The workspace
// path is query-escaped into a single directory name.
func (s *Store) PathFor(workspace string) string {
	if abs, err := filepath.Abs(workspace); err == nil {
		workspace = abs
	}
	return filepath.Join(s.root, url.QueryEscape(workspace), FileName)
}

// SaveResult describes a completed Save.
type SaveResult struct {
	Path   string
	Digest uint64
	// Written is false when the file on disk already held identical bytes.
	Written bool
}

// Save writes snap as indented JSON. Only the current schema version is
// accepted; nothing is written for any other.
func (s *Store) Save(workspace string, snap *semantic.WorkspaceSnapshot) (SaveResult, error) {
	if snap.SchemaVersion != semantic.CurrentSchemaVersion {
		return SaveResult{}, fmt.Errorf("refusing to persist snapshot schema %s; expected %s",
			snap.SchemaVersion, semantic.CurrentSchemaVersion)
	}

	path := s.PathFor(workspace)
	data, err := snap.Marshal()
	if err != nil {
		return SaveResult{}, fmt.Errorf("failed to serialize snapshot %s: %w", path, err)
	}
	result := SaveResult{Path: path, Digest: xxh3.Hash(data)}

	if existing, err := s.storage.ReadFile(path); err == nil && xxh3.Hash(existing) == result.Digest && bytes.Equal(existing, data) {
		return result, nil
	}

	dir := filepath.Dir(path)
	if err := s.storage.MkdirAll(dir); err != nil {
		return SaveResult{}, fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}
	if err := s.storage.WriteFile(path, data); err != nil {
		return SaveResult{}, fmt.Errorf("failed to create snapshot file %s: %w", path, err)
	}
	result.Written = true
	return result, nil
}

// LoadResult holds either a loaded snapshot or the recovery state that
// explains why none was loaded.
type LoadResult struct {
	Snapshot *semantic.WorkspaceSnapshot
	Recovery *Recovery
}

// Load reads the workspace's snapshot. Missing, corrupt and
// schema-incompatible files are recovery states, not errors; only an
// unreadable file is an error.
func (s *Store) Load(workspace string) (LoadResult, error) {
	path := s.PathFor(workspace)
	data, err := s.storage.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return LoadResult{Recovery: &Recovery{Kind: RecoveryMissing, Path: path}}, nil
	}
	if err != nil {
		return LoadResult{}, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}

	version, err := readSchemaVersion(data)
	if err != nil {
		return LoadResult{Recovery: corrupt(path, data, err)}, nil
	}
	if compat := version.Compatibility(); !compat.Readable() {
		return LoadResult{Recovery: &Recovery{
			Kind:          RecoveryIncompatibleSchema,
			Path:          path,
			Found:         version,
			Compatibility: compat,
		}}, nil
	}

	var snap semantic.WorkspaceSnapshot
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&snap); err != nil {
		var offset int64
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			offset = typeErr.Offset
		}
		return LoadResult{Recovery: corruptAt(path, data, err, offset)}, nil
	}
	end := dec.InputOffset()
	if tok, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = fmt.Errorf("trailing characters after snapshot object: %v", tok)
		}
		return LoadResult{Recovery: corruptAt(path, data, err, end+int64(leadingSpace(data[end:])))}, nil
	}
	if err := checkRequiredMembers(data); err != nil {
		return LoadResult{Recovery: corruptAt(path, data, err, end)}, nil
	}
	return LoadResult{Snapshot: &snap}, nil
}

// requiredMembers are the top-level snapshot members every readable schema
// carries. A null value counts as missing.
var requiredMembers = []string{
	"kind", "freshness", "provenance", "completeness",
	"entities", "relationships", "diagnostics",
}

func checkRequiredMembers(data []byte) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	for _, name := range requiredMembers {
		raw, ok := members[name]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return fmt.Errorf("missing field `%s`", name)
		}
	}
	return nil
}

func leadingSpace(b []byte) int {
	return len(b) - len(bytes.TrimLeft(b, " \t\r\n"))
}

// headerError carries the input offset of a header decoding failure.
type headerError struct {
	err    error
	offset int64
}

func (e *headerError) Error() string { return e.err.Error() }
func (e *headerError) Unwrap() error { return e.err }

// readSchemaVersion streams the top-level object only as far as its
// schema_version member, so the rest of the document is never decoded.
func readSchemaVersion(data []byte) (semantic.SchemaVersion, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	fail := func(err error) (semantic.SchemaVersion, error) {
		return semantic.SchemaVersion{}, &headerError{err: err, offset: dec.InputOffset()}
	}

	tok, err := dec.Token()
	if err != nil {
		return fail(err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fail(fmt.Errorf("invalid type: expected a snapshot object"))
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fail(err)
		}
		key, _ := tok.(string)
		if key != "schema_version" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return fail(err)
			}
			continue
		}
		var v semantic.SchemaVersion
		if err := dec.Decode(&v); err != nil {
			return fail(err)
		}
		return v, nil
	}
	return fail(errors.New("missing field `schema_version`"))
}

func corrupt(path string, data []byte, err error) *Recovery {
	var he *headerError
	if errors.As(err, &he) {
		return corruptAt(path, data, he.err, he.offset)
	}
	return corruptAt(path, data, err, 0)
}

// corruptAt builds a Corrupt recovery positioned at offset, or at the end
// of data when the document was truncated.
func corruptAt(path string, data []byte, err error, offset int64) *Recovery {
	var syntaxErr *json.SyntaxError
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF):
		offset = int64(len(data))
	case errors.As(err, &syntaxErr) && syntaxErr.Offset > offset:
		offset = syntaxErr.Offset
	}
	line, column := position(data, offset)
	return &Recovery{
		Kind:   RecoveryCorrupt,
		Path:   path,
		Detail: err.Error(),
		Line:   line,
		Column: column,
	}
}

// position converts a byte offset to a 1-based line and column.
func position(data []byte, offset int64) (line, column int) {
	offset = min(max(offset, 0), int64(len(data)))
	before := data[:offset]
	line = bytes.Count(before, []byte("\n")) + 1
	column = int(offset) - (bytes.LastIndexByte(before, '\n') + 1)
	if column == 0 {
		column = 1
	}
	return line, column
}
