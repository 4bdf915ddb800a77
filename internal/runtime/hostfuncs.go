package runtime

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/atlas/internal/extract"
	"github.com/jward/atlas/internal/query"
	"github.com/jward/atlas/internal/semantic"
)

// sourceFile is one workspace file read during an evaluation, parsed on
// first use by a syntax host function.
type sourceFile struct {
	src  []byte
	tree *sitter.Tree
	err  error
}

// sourceStore caches files by workspace-relative path for the lifetime of
// one Evaluate call.
type sourceStore struct {
	root  string
	mu    sync.Mutex
	files map[string]*sourceFile
}

func newSourceStore(root string) *sourceStore {
	return &sourceStore{root: root, files: make(map[string]*sourceFile)}
}

// Close releases every parsed tree.
func (s *sourceStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f.tree != nil {
			f.tree.Close()
		}
	}
}

func (s *sourceStore) read(rel string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.fileLocked(rel)
	if err != nil {
		return nil, err
	}
	return f.src, nil
}

func (s *sourceStore) parse(ctx context.Context, rel string) (*sourceFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.fileLocked(rel)
	if err != nil {
		return nil, err
	}
	if f.tree == nil && f.err == nil {
		lang, ok := extract.LanguageForFile(rel)
		if !ok {
			f.err = fmt.Errorf("no grammar for %s", rel)
		} else if lang != "rust" {
			f.err = fmt.Errorf("unsupported language %q", lang)
		} else {
			// A tree with syntax errors is still queryable.
			tree, err := extract.ParseRust(ctx, f.src)
			if tree == nil {
				f.err = err
			}
			f.tree = tree
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f, nil
}

func (s *sourceStore) fileLocked(rel string) (*sourceFile, error) {
	if f, ok := s.files[rel]; ok {
		return f, nil
	}
	if s.root == "" {
		return nil, fmt.Errorf("no workspace root configured")
	}
	src, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}
	f := &sourceFile{src: src}
	s.files[rel] = f
	return f, nil
}

// byteRange converts a span to byte offsets within src.
func byteRange(src []byte, span semantic.Span) (int, int) {
	offset := func(p semantic.Point) int {
		pos := 0
		for range p.Line {
			i := bytes.IndexByte(src[pos:], '\n')
			if i < 0 {
				return len(src)
			}
			pos += i + 1
		}
		return min(pos+int(p.Column), len(src))
	}
	return offset(span.Start), offset(span.End)
}

func within(n *sitter.Node, span semantic.Span) bool {
	start, end := n.StartPoint(), n.EndPoint()
	return comparePoint(start, span.Start) >= 0 && comparePoint(end, span.End) <= 0
}

func comparePoint(p sitter.Point, q semantic.Point) int {
	switch {
	case p.Row < q.Line:
		return -1
	case p.Row > q.Line:
		return 1
	case p.Column < q.Column:
		return -1
	case p.Column > q.Column:
		return 1
	}
	return 0
}

// entityLocation validates the id argument of a syntax host function and
// returns the entity's path and span.
func entityLocation(name string, graph *query.Service, arg object.Object) (string, semantic.Span, *object.Error) {
	id, err := toString(arg)
	if err != nil {
		return "", semantic.Span{}, object.Errorf("%s: id %v", name, err)
	}
	e := graph.Entity(id)
	if e == nil {
		return "", semantic.Span{}, object.Errorf("%s: unknown entity %q", name, id)
	}
	if e.Location == nil || e.Location.Span == nil {
		return "", semantic.Span{}, object.Errorf("%s: entity %q has no source span", name, id)
	}
	return e.Location.Path, *e.Location.Span, nil
}

// makeSourceTextFn creates the "source_text" host function.
//
// source_text(id) → string
func makeSourceTextFn(graph *query.Service, sources *sourceStore) *object.Builtin {
	return object.NewBuiltin("source_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("source_text", 1, len(args))
		}
		path, span, errObj := entityLocation("source_text", graph, args[0])
		if errObj != nil {
			return errObj
		}
		src, err := sources.read(path)
		if err != nil {
			return object.Errorf("source_text: %v", err)
		}
		start, end := byteRange(src, span)
		return object.NewString(string(src[start:end]))
	})
}

// makeSyntaxCountFn creates the "syntax_count" host function. It runs a
// tree-sitter query over the entity's file and counts the matches whose
// captures all fall inside the entity's span.
//
// syntax_count(id, pattern) → int
func makeSyntaxCountFn(graph *query.Service, sources *sourceStore) *object.Builtin {
	return object.NewBuiltin("syntax_count", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("syntax_count", 2, len(args))
		}
		path, span, errObj := entityLocation("syntax_count", graph, args[0])
		if errObj != nil {
			return errObj
		}
		pattern, err := toString(args[1])
		if err != nil {
			return object.Errorf("syntax_count: pattern %v", err)
		}

		f, err := sources.parse(ctx, path)
		if err != nil {
			return object.Errorf("syntax_count: %v", err)
		}
		lang, _ := extract.GrammarForLanguage("rust")
		q, err := sitter.NewQuery([]byte(pattern), lang)
		if err != nil {
			return object.Errorf("syntax_count: invalid pattern: %v", err)
		}
		defer q.Close()

		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, f.tree.RootNode())

		var count int64
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, f.src)
			if len(match.Captures) == 0 {
				continue
			}
			inside := true
			for _, c := range match.Captures {
				if !within(c.Node, span) {
					inside = false
					break
				}
			}
			if inside {
				count++
			}
		}
		return object.NewInt(count)
	})
}

// logObject provides log.info/warn/error methods for Risor scripts.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Debug(msg string) { l.logger.Debug(msg) }

func (l *logObject) Info(msg string) { l.logger.Info(msg) }

func (l *logObject) Warn(msg string) { l.logger.Warn(msg) }

func (l *logObject) Error(msg string) { l.logger.Error(msg) }
