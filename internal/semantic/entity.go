package semantic

import "fmt"

// EntityKind is the closed set of entity categories in the graph.
type EntityKind string

const (
	KindEnum      EntityKind = "enum"
	KindFile      EntityKind = "file"
	KindFunction  EntityKind = "function"
	KindImplBlock EntityKind = "impl-block"
	KindImport    EntityKind = "import"
	KindMacro     EntityKind = "macro"
	KindMethod    EntityKind = "method"
	KindModule    EntityKind = "module"
	KindPackage   EntityKind = "package"
	KindStruct    EntityKind = "struct"
	KindTest      EntityKind = "test"
	KindTrait     EntityKind = "trait"
	KindWorkspace EntityKind = "workspace"
)

// EntityKinds lists every kind in declaration order.
var EntityKinds = []EntityKind{
	KindEnum, KindFile, KindFunction, KindImplBlock, KindImport, KindMacro, KindMethod,
	KindModule, KindPackage, KindStruct, KindTest, KindTrait, KindWorkspace,
}

// Label is the human-readable name used in summaries and search.
func (k EntityKind) Label() string {
	switch k {
	case KindEnum:
		return "enum"
	case KindFile:
		return "file"
	case KindFunction:
		return "function"
	case KindImplBlock:
		return "impl block"
	case KindImport:
		return "import"
	case KindMacro:
		return "macro"
	case KindMethod:
		return "method"
	case KindModule:
		return "module"
	case KindPackage:
		return "package"
	case KindStruct:
		return "struct"
	case KindTest:
		return "test"
	case KindTrait:
		return "trait"
	case KindWorkspace:
		return "workspace"
	}
	return string(k)
}

// Callable reports whether entities of this kind can be the target of a call.
func (k EntityKind) Callable() bool {
	return k == KindFunction || k == KindMethod || k == KindTest
}

func (k EntityKind) valid() bool {
	for _, known := range EntityKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k *EntityKind) UnmarshalText(b []byte) error {
	v := EntityKind(b)
	if !v.valid() {
		return fmt.Errorf("unknown entity kind %q", string(b))
	}
	*k = v
	return nil
}

// WorkspaceEntityID is the id of the single workspace root entity.
const WorkspaceEntityID = "workspace"

// MakeEntityID derives a stable entity id from its kind prefix, the
// workspace-relative file path and its qualified name.
func MakeEntityID(prefix, filePath, qualifiedName string) string {
	return prefix + ":" + filePath + ":" + qualifiedName
}

// FileEntityID returns the id of the File entity for a relative path.
func FileEntityID(relPath string) string {
	return "file:" + relPath
}

// ExternalTraitID returns the placeholder id for a trait that is not
// defined anywhere in the workspace.
func ExternalTraitID(name string) string {
	return "trait:external:" + name
}

// Point is a 0-based line/column position.
type Point struct {
	Line   uint32 `json:"line"`
	Column uint32 `json:"column"`
}

// Span is a half-open source range.
type Span struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

// Compare orders spans by start then end position.
func (s Span) Compare(other Span) int {
	if c := comparePoint(s.Start, other.Start); c != 0 {
		return c
	}
	return comparePoint(s.End, other.End)
}

func comparePoint(a, b Point) int {
	switch {
	case a.Line < b.Line:
		return -1
	case a.Line > b.Line:
		return 1
	case a.Column < b.Column:
		return -1
	case a.Column > b.Column:
		return 1
	}
	return 0
}

// Location places an entity in a workspace-relative file.
type Location struct {
	Path string `json:"path"`
	Span *Span  `json:"span"`
}

// Entity is a node of the semantic graph.
type Entity struct {
	ID            string     `json:"id"`
	Kind          EntityKind `json:"kind"`
	Name          string     `json:"name"`
	QualifiedName *string    `json:"qualified_name"`
	Location      *Location  `json:"location"`
}

// QualifiedNameOrEmpty returns the qualified name, or "" when absent.
func (e *Entity) QualifiedNameOrEmpty() string {
	if e.QualifiedName == nil {
		return ""
	}
	return *e.QualifiedName
}

// Path returns the location path, or "" when the entity has no location.
func (e *Entity) Path() string {
	if e.Location == nil {
		return ""
	}
	return e.Location.Path
}

// Ptr returns a pointer to v. Used for the optional fields of the model.
func Ptr[T any](v T) *T { return &v }
