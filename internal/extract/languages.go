package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// extToLanguage maps file extensions to canonical language names.
var extToLanguage = map[string]string{
	".rs": "rust",
}

// langToGrammar is lazily initialized on first call via sync.Once.
var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"rust": rust.GetLanguage(),
		}
	})
}

// LanguageForFile returns the canonical language name for a file path based
// on its extension. Returns ("", false) if the extension is not recognized.
func LanguageForFile(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := extToLanguage[ext]
	return lang, ok
}

// GrammarForLanguage returns the tree-sitter Language for a canonical
// language name.
func GrammarForLanguage(lang string) (*sitter.Language, bool) {
	initGrammars()
	l, ok := langToGrammar[lang]
	return l, ok
}

// SyntaxError reports the first error node of a parsed tree.
type SyntaxError struct {
	Line   uint32
	Column uint32
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at line %d, column %d", e.Line+1, e.Column+1)
}

// ParseRust parses Rust source. A tree containing error or missing nodes is
// returned together with a *SyntaxError so callers may still inspect it; the
// caller owns the tree and must Close it.
func ParseRust(ctx context.Context, src []byte) (*sitter.Tree, error) {
	lang, _ := GrammarForLanguage("rust")
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	root := tree.RootNode()
	if root.HasError() {
		if pt, ok := firstSyntaxError(root); ok {
			return tree, &SyntaxError{Line: pt.Row, Column: pt.Column}
		}
		pt := root.StartPoint()
		return tree, &SyntaxError{Line: pt.Row, Column: pt.Column}
	}
	return tree, nil
}

// firstSyntaxError finds the first ERROR or MISSING node in document order.
func firstSyntaxError(n *sitter.Node) (sitter.Point, bool) {
	if n.IsError() || n.IsMissing() {
		return n.StartPoint(), true
	}
	if !n.HasError() {
		return sitter.Point{}, false
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		if pt, ok := firstSyntaxError(child); ok {
			return pt, true
		}
	}
	return sitter.Point{}, false
}
