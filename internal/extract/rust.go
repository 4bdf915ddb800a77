package extract

import (
	"fmt"
	"path"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/atlas/internal/semantic"
)

// scope is the immutable context of a declaration visit. Nested visits
// receive a modified copy.
type scope struct {
	filePath   string
	modulePath []string
	container  string
}

func (s scope) nested(name, container string) scope {
	modulePath := make([]string, len(s.modulePath), len(s.modulePath)+1)
	copy(modulePath, s.modulePath)
	return scope{
		filePath:   s.filePath,
		modulePath: append(modulePath, name),
		container:  container,
	}
}

func (s scope) qualify(name string) string {
	return QualifiedName(s.modulePath, name)
}

// fileVisitor walks the items of one parsed Rust file into a Builder.
type fileVisitor struct {
	b   *Builder
	src []byte
}

// visitFile emits the file's items below the File entity.
func visitFile(b *Builder, relPath string, root *sitter.Node, src []byte) {
	v := &fileVisitor{b: b, src: src}
	v.visitItems(root, scope{
		filePath:   relPath,
		modulePath: ModulePathForFile(relPath),
		container:  semantic.FileEntityID(relPath),
	})
}

// addFile inserts the File entity for relPath and its workspace edge.
func addFile(b *Builder, relPath string) {
	id := semantic.FileEntityID(relPath)
	b.AddEntity(semantic.Entity{
		ID:            id,
		Kind:          semantic.KindFile,
		Name:          path.Base(relPath),
		QualifiedName: semantic.Ptr(relPath),
		Location:      &semantic.Location{Path: relPath},
	})
	b.Observe(semantic.WorkspaceEntityID, id, semantic.RelContains, "")
}

// visitItems walks the direct children of a source_file or declaration_list,
// attaching preceding outer attributes to the item they decorate.
func (v *fileVisitor) visitItems(list *sitter.Node, sc scope) {
	if list == nil {
		return
	}
	var attrs []*sitter.Node
	for i := 0; i < int(list.NamedChildCount()); i++ {
		child := list.NamedChild(i)
		switch child.Type() {
		case "attribute_item":
			attrs = append(attrs, child)
			continue
		case "line_comment", "block_comment", "inner_attribute_item":
			continue
		}
		v.visitItem(child, attrs, sc)
		attrs = nil
	}
}

func (v *fileVisitor) visitItem(n *sitter.Node, attrs []*sitter.Node, sc scope) {
	switch n.Type() {
	case "mod_item":
		v.visitModule(n, attrs, sc)
	case "struct_item":
		v.visitNamed(n, attrs, sc, semantic.KindStruct, "struct")
	case "enum_item":
		v.visitNamed(n, attrs, sc, semantic.KindEnum, "enum")
	case "function_item":
		v.visitFunction(n, attrs, sc)
	case "impl_item":
		v.visitImpl(n, attrs, sc)
	case "trait_item":
		v.visitTrait(n, attrs, sc)
	case "use_declaration":
		v.visitUse(n, sc)
	case "macro_definition":
		if name := n.ChildByFieldName("name"); name != nil {
			v.b.Define(sc.container, v.b.EnsureMacro(sc.filePath, text(name, v.src)))
		}
	case "macro_invocation":
		v.visitItemMacro(n, sc)
	case "expression_statement":
		if n.NamedChildCount() > 0 && n.NamedChild(0).Type() == "macro_invocation" {
			v.visitItemMacro(n.NamedChild(0), sc)
		}
	}
}

func (v *fileVisitor) location(sc scope, n *sitter.Node) *semantic.Location {
	return &semantic.Location{Path: sc.filePath, Span: spanOf(n)}
}

// declare inserts an entity named by nameNode, defines it from the scope's
// container and records its attribute references.
func (v *fileVisitor) declare(sc scope, kind semantic.EntityKind, prefix, qualifiedName string, nameNode *sitter.Node, attrs []*sitter.Node) string {
	id := semantic.MakeEntityID(prefix, sc.filePath, qualifiedName)
	v.b.AddEntity(semantic.Entity{
		ID:            id,
		Kind:          kind,
		Name:          text(nameNode, v.src),
		QualifiedName: semantic.Ptr(qualifiedName),
		Location:      v.location(sc, nameNode),
	})
	v.b.Define(sc.container, id)
	v.recordAttributes(id, sc.filePath, attrs)
	return id
}

func (v *fileVisitor) visitNamed(n *sitter.Node, attrs []*sitter.Node, sc scope, kind semantic.EntityKind, prefix string) {
	name := n.ChildByFieldName("name")
	if name == nil {
		return
	}
	v.declare(sc, kind, prefix, sc.qualify(text(name, v.src)), name, attrs)
}

func (v *fileVisitor) visitModule(n *sitter.Node, attrs []*sitter.Node, sc scope) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := text(nameNode, v.src)
	id := v.declare(sc, semantic.KindModule, "module", sc.qualify(name), nameNode, attrs)
	if body := n.ChildByFieldName("body"); body != nil {
		v.visitItems(body, sc.nested(name, id))
	}
}

func (v *fileVisitor) visitFunction(n *sitter.Node, attrs []*sitter.Node, sc scope) {
	name := n.ChildByFieldName("name")
	if name == nil {
		return
	}
	kind := semantic.KindFunction
	if hasAttribute(attrs, v.src, "test") {
		kind = semantic.KindTest
	}
	id := v.declare(sc, kind, "function", sc.qualify(text(name, v.src)), name, attrs)
	v.deferCalls(id, n.ChildByFieldName("body"))
}

func (v *fileVisitor) visitImpl(n *sitter.Node, attrs []*sitter.Node, sc scope) {
	typeNode := n.ChildByFieldName("type")
	selfType := typeLabel(typeNode, v.src)
	implName := selfType
	traitNode := n.ChildByFieldName("trait")
	var traitName string
	if traitNode != nil {
		traitName = pathLabel(traitNode, v.src)
		implName = fmt.Sprintf("%s as %s", selfType, traitName)
	}

	implQN := sc.qualify(implName)
	implID := semantic.MakeEntityID("impl", sc.filePath, implQN)
	v.b.AddEntity(semantic.Entity{
		ID:            implID,
		Kind:          semantic.KindImplBlock,
		Name:          "impl",
		QualifiedName: semantic.Ptr(implQN),
		Location:      v.location(sc, typeNode),
	})
	v.b.Define(sc.container, implID)
	v.recordAttributes(implID, sc.filePath, attrs)

	if traitName != "" {
		v.b.Observe(implID, v.b.EnsureTrait(traitName), semantic.RelImplements, "explicit trait impl")
	}

	methodScope := scope{filePath: sc.filePath, modulePath: sc.modulePath, container: implID}
	v.visitMethods(n.ChildByFieldName("body"), methodScope, implQN, false)
}

func (v *fileVisitor) visitTrait(n *sitter.Node, attrs []*sitter.Node, sc scope) {
	name := n.ChildByFieldName("name")
	if name == nil {
		return
	}
	traitQN := sc.qualify(text(name, v.src))
	id := v.declare(sc, semantic.KindTrait, "trait", traitQN, name, attrs)

	methodScope := scope{filePath: sc.filePath, modulePath: sc.modulePath, container: id}
	v.visitMethods(n.ChildByFieldName("body"), methodScope, traitQN, true)
}

// visitMethods declares the functions of an impl or trait body as methods
// qualified under owner. Signature-only trait items are declared without
// call collection.
func (v *fileVisitor) visitMethods(body *sitter.Node, sc scope, owner string, allowSignatures bool) {
	if body == nil {
		return
	}
	var attrs []*sitter.Node
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		switch child.Type() {
		case "attribute_item":
			attrs = append(attrs, child)
			continue
		case "function_item":
		case "function_signature_item":
			if !allowSignatures {
				attrs = nil
				continue
			}
		default:
			if child.Type() != "line_comment" && child.Type() != "block_comment" {
				attrs = nil
			}
			continue
		}
		name := child.ChildByFieldName("name")
		if name == nil {
			attrs = nil
			continue
		}
		qn := owner + "::" + text(name, v.src)
		id := v.declare(sc, semantic.KindMethod, "method", qn, name, attrs)
		v.deferCalls(id, child.ChildByFieldName("body"))
		attrs = nil
	}
}

func (v *fileVisitor) visitUse(n *sitter.Node, sc scope) {
	paths := make(map[string]struct{})
	collectUsePaths(n.ChildByFieldName("argument"), v.src, "", paths)
	for p := range paths {
		id := semantic.MakeEntityID("import", sc.filePath, p)
		v.b.AddEntity(semantic.Entity{
			ID:            id,
			Kind:          semantic.KindImport,
			Name:          p,
			QualifiedName: semantic.Ptr(p),
			Location:      v.location(sc, n),
		})
		v.b.Observe(sc.container, id, semantic.RelImports, "")
	}
}

func (v *fileVisitor) visitItemMacro(n *sitter.Node, sc scope) {
	macro := n.ChildByFieldName("macro")
	if macro == nil {
		return
	}
	name := pathLabel(macro, v.src)
	v.b.Observe(sc.container, v.b.EnsureMacro(sc.filePath, name), semantic.RelReferences, "item macro invocation")
}

// recordAttributes links owner to the macros its attributes attach.
func (v *fileVisitor) recordAttributes(owner, filePath string, attrs []*sitter.Node) {
	for _, item := range attrs {
		label, args := attributePath(item, v.src)
		if label == "" || label == "test" || builtinAttributes[label] {
			continue
		}
		if label != "derive" {
			v.b.Observe(owner, v.b.EnsureMacro(filePath, label), semantic.RelReferences, "attribute macro attachment")
			continue
		}
		tokens := ""
		if args != nil {
			tokens = text(args, v.src)
		}
		paths, err := parseDeriveArgs(tokens)
		if err != nil {
			v.b.Warn("derive-parse", fmt.Sprintf("failed to parse derive arguments: %v", err), filePath)
			continue
		}
		for _, p := range paths {
			v.b.Observe(owner, v.b.EnsureMacro(filePath, p), semantic.RelReferences, "derive macro attachment")
		}
	}
}

func (v *fileVisitor) deferCalls(caller string, body *sitter.Node) {
	for _, site := range CollectCalls(body, v.src) {
		obs := CallObservation{CallerID: caller, TargetName: site.Name, Kind: site.Kind}
		if site.Explicit {
			obs.TargetPath = site.Path
		}
		v.b.Defer(obs)
	}
}
