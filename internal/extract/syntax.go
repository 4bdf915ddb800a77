package extract

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/atlas/internal/semantic"
)

// builtinAttributes never produce macro references.
var builtinAttributes = map[string]bool{
	"allow":    true,
	"cfg":      true,
	"cfg_attr": true,
	"deny":     true,
	"doc":      true,
	"inline":   true,
	"must_use": true,
	"path":     true,
	"repr":     true,
	"warn":     true,
}

// ModulePathForFile derives the module path of a workspace-relative Rust
// file: a leading src, tests or examples directory is dropped and the file
// stem is appended unless it is lib, main or mod.
func ModulePathForFile(relPath string) []string {
	segments := strings.Split(path.Clean(relPath), "/")
	if len(segments) > 0 {
		switch segments[0] {
		case "src", "tests", "examples":
			segments = segments[1:]
		}
	}
	if len(segments) == 0 {
		return nil
	}
	last := segments[len(segments)-1]
	segments = segments[:len(segments)-1]
	stem := strings.TrimSuffix(last, path.Ext(last))
	switch stem {
	case "lib", "main", "mod":
	default:
		segments = append(segments, stem)
	}
	return segments
}

// QualifiedName joins a module path and an item name with "::".
func QualifiedName(modulePath []string, name string) string {
	if len(modulePath) == 0 {
		return name
	}
	return strings.Join(modulePath, "::") + "::" + name
}

// TrimPathPrefixes strips leading crate, self and super segments so a
// source path can be compared with extracted qualified names.
func TrimPathPrefixes(p string) string {
	for {
		switch {
		case strings.HasPrefix(p, "crate::"):
			p = strings.TrimPrefix(p, "crate::")
		case strings.HasPrefix(p, "self::"):
			p = strings.TrimPrefix(p, "self::")
		case strings.HasPrefix(p, "super::"):
			p = strings.TrimPrefix(p, "super::")
		default:
			return p
		}
	}
}

func text(n *sitter.Node, src []byte) string {
	return n.Content(src)
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// pathLabel renders a path-like node as "a::b::c", dropping generic
// arguments.
func pathLabel(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "scoped_identifier", "scoped_type_identifier":
		name := n.ChildByFieldName("name")
		prefix := pathLabel(n.ChildByFieldName("path"), src)
		if prefix == "" {
			return text(name, src)
		}
		return prefix + "::" + text(name, src)
	case "generic_type":
		return pathLabel(n.ChildByFieldName("type"), src)
	case "generic_function":
		return pathLabel(n.ChildByFieldName("function"), src)
	}
	return compact(text(n, src))
}

// typeLabel names the self type of an impl block.
func typeLabel(n *sitter.Node, src []byte) string {
	if n == nil {
		return "unknown-type"
	}
	switch n.Type() {
	case "type_identifier", "scoped_type_identifier", "generic_type", "primitive_type":
		return pathLabel(n, src)
	case "reference_type":
		return typeLabel(n.ChildByFieldName("type"), src)
	}
	return "unknown-type"
}

// attributePath returns the path label and the argument token tree of an
// outer attribute item.
func attributePath(item *sitter.Node, src []byte) (string, *sitter.Node) {
	var attr *sitter.Node
	for i := 0; i < int(item.NamedChildCount()); i++ {
		if c := item.NamedChild(i); c.Type() == "attribute" {
			attr = c
			break
		}
	}
	if attr == nil || attr.NamedChildCount() == 0 {
		return "", nil
	}
	args := attr.ChildByFieldName("arguments")
	if args == nil {
		for i := 0; i < int(attr.NamedChildCount()); i++ {
			if c := attr.NamedChild(i); c.Type() == "token_tree" {
				args = c
			}
		}
	}
	return pathLabel(attr.NamedChild(0), src), args
}

func hasAttribute(attrs []*sitter.Node, src []byte, name string) bool {
	for _, a := range attrs {
		if label, _ := attributePath(a, src); label == name {
			return true
		}
	}
	return false
}

// parseDeriveArgs splits the argument list of a derive attribute into paths.
func parseDeriveArgs(tokens string) ([]string, error) {
	inner := strings.TrimSpace(tokens)
	if !strings.HasPrefix(inner, "(") || !strings.HasSuffix(inner, ")") {
		return nil, fmt.Errorf("expected parenthesized list, found `%s`", inner)
	}
	inner = inner[1 : len(inner)-1]
	var paths []string
	for _, part := range strings.Split(inner, ",") {
		p := compact(part)
		if p == "" {
			continue
		}
		if !validPath(p) {
			return nil, fmt.Errorf("expected path, found `%s`", strings.TrimSpace(part))
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func validPath(p string) bool {
	for _, seg := range strings.Split(strings.TrimPrefix(p, "::"), "::") {
		if seg == "" {
			return false
		}
		for i, r := range seg {
			if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
				continue
			}
			return false
		}
	}
	return true
}

func joinUsePath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return prefix + "::" + segment
}

// collectUsePaths flattens a use tree into full import paths.
func collectUsePaths(n *sitter.Node, src []byte, prefix string, out map[string]struct{}) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "use_list":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			collectUsePaths(n.NamedChild(i), src, prefix, out)
		}
	case "scoped_use_list":
		next := prefix
		if p := n.ChildByFieldName("path"); p != nil {
			next = joinUsePath(prefix, pathLabel(p, src))
		}
		collectUsePaths(n.ChildByFieldName("list"), src, next, out)
	case "use_as_clause":
		out[joinUsePath(prefix, pathLabel(n.ChildByFieldName("path"), src))] = struct{}{}
	case "use_wildcard":
		next := prefix
		if n.NamedChildCount() > 0 {
			next = joinUsePath(prefix, pathLabel(n.NamedChild(0), src))
		}
		out[joinUsePath(next, "*")] = struct{}{}
	case "line_comment", "block_comment", "attribute_item":
	default:
		out[joinUsePath(prefix, pathLabel(n, src))] = struct{}{}
	}
}

func spanOf(n *sitter.Node) *semantic.Span {
	if n == nil {
		return nil
	}
	start, end := n.StartPoint(), n.EndPoint()
	return &semantic.Span{
		Start: semantic.Point{Line: start.Row, Column: start.Column},
		End:   semantic.Point{Line: end.Row, Column: end.Column},
	}
}

// CallableKind separates free-function calls from method calls.
type CallableKind int

const (
	CallFunction CallableKind = iota
	CallMethod
)

func (k CallableKind) String() string {
	if k == CallMethod {
		return "method"
	}
	return "function"
}

// CallSite is one syntactic call found in a function body.
type CallSite struct {
	Name string
	// Path is the full written path for path calls ("crate::ui::render"),
	// empty for method-call syntax.
	Path     string
	Explicit bool
	Kind     CallableKind
	NameSpan semantic.Span
}

// classifyCall inspects the callee of a call_expression.
func classifyCall(callee *sitter.Node, src []byte) (CallSite, bool) {
	if callee == nil {
		return CallSite{}, false
	}
	switch callee.Type() {
	case "identifier":
		name := text(callee, src)
		return CallSite{Name: name, Path: name, Kind: CallFunction, NameSpan: *spanOf(callee)}, true
	case "scoped_identifier":
		nameNode := callee.ChildByFieldName("name")
		if nameNode == nil {
			return CallSite{}, false
		}
		label := pathLabel(callee, src)
		segments := strings.Split(label, "::")
		site := CallSite{
			Name:     text(nameNode, src),
			Path:     label,
			Explicit: len(segments) > 1,
			Kind:     CallFunction,
			NameSpan: *spanOf(nameNode),
		}
		if len(segments) > 1 {
			qualifier := segments[len(segments)-2]
			if r := []rune(qualifier); len(r) > 0 && unicode.IsUpper(r[0]) {
				site.Kind = CallMethod
			}
		}
		return site, true
	case "field_expression":
		field := callee.ChildByFieldName("field")
		if field == nil {
			return CallSite{}, false
		}
		return CallSite{Name: text(field, src), Kind: CallMethod, NameSpan: *spanOf(field)}, true
	case "generic_function":
		return classifyCall(callee.ChildByFieldName("function"), src)
	}
	return CallSite{}, false
}

// CollectCalls returns every call site below n in document order.
func CollectCalls(n *sitter.Node, src []byte) []CallSite {
	var sites []CallSite
	var walk func(*sitter.Node)
	walk = func(cur *sitter.Node) {
		if cur.Type() == "call_expression" {
			if site, ok := classifyCall(cur.ChildByFieldName("function"), src); ok {
				sites = append(sites, site)
			}
		}
		for i := 0; i < int(cur.NamedChildCount()); i++ {
			walk(cur.NamedChild(i))
		}
	}
	if n != nil {
		walk(n)
	}
	return sites
}

// ScopedCallSite is a call site together with the module path that
// encloses it, including inline modules.
type ScopedCallSite struct {
	CallSite
	ModulePath []string
}

// FileCallSites returns every call site of a parsed file in document order.
func FileCallSites(root *sitter.Node, src []byte, relPath string) []ScopedCallSite {
	var sites []ScopedCallSite
	var walk func(*sitter.Node, []string)
	walk = func(cur *sitter.Node, modulePath []string) {
		switch cur.Type() {
		case "mod_item":
			body := cur.ChildByFieldName("body")
			if body == nil {
				return
			}
			nested := append(append([]string(nil), modulePath...), text(cur.ChildByFieldName("name"), src))
			walk(body, nested)
			return
		case "call_expression":
			if site, ok := classifyCall(cur.ChildByFieldName("function"), src); ok {
				sites = append(sites, ScopedCallSite{CallSite: site, ModulePath: modulePath})
			}
		}
		for i := 0; i < int(cur.NamedChildCount()); i++ {
			walk(cur.NamedChild(i), modulePath)
		}
	}
	walk(root, ModulePathForFile(relPath))
	return sites
}
