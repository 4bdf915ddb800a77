package runtime

import (
	"context"
	"fmt"

	"github.com/risor-io/risor/object"

	"github.com/jward/atlas/internal/query"
	"github.com/jward/atlas/internal/semantic"
	"github.com/jward/atlas/internal/store"
)

// Graph host functions expose the indexed snapshot to patterns. Risor
// cannot walk Go structs directly, so entities and relationships are
// converted to maps of primitive values.

func entityObject(e *semantic.Entity) *object.Map {
	m := map[string]object.Object{
		"id":             object.NewString(e.ID),
		"kind":           object.NewString(string(e.Kind)),
		"name":           object.NewString(e.Name),
		"qualified_name": object.Nil,
		"path":           object.Nil,
		"start_line":     object.Nil,
		"end_line":       object.Nil,
	}
	if e.QualifiedName != nil {
		m["qualified_name"] = object.NewString(*e.QualifiedName)
	}
	if e.Location != nil {
		m["path"] = object.NewString(e.Location.Path)
		if sp := e.Location.Span; sp != nil {
			m["start_line"] = object.NewInt(int64(sp.Start.Line))
			m["end_line"] = object.NewInt(int64(sp.End.Line))
		}
	}
	return object.NewMap(m)
}

func edgeObject(direction string, r *semantic.Relationship) *object.Map {
	other := r.Target
	if direction == "inbound" {
		other = r.Source
	}
	return object.NewMap(map[string]object.Object{
		"direction":  object.NewString(direction),
		"kind":       object.NewString(string(r.Kind)),
		"other":      object.NewString(other),
		"certainty":  object.NewString(string(r.Certainty.Kind)),
		"confidence": object.NewInt(int64(r.Certainty.Confidence)),
		"source":     object.NewString(string(r.Provenance.Source)),
	})
}

// directions validates a direction argument: inbound, outbound or both.
func directions(name string, arg object.Object) (inbound, outbound bool, err error) {
	dir, err := toString(arg)
	if err != nil {
		return false, false, fmt.Errorf("%s: direction %v", name, err)
	}
	switch dir {
	case "inbound":
		return true, false, nil
	case "outbound":
		return false, true, nil
	case "both":
		return true, true, nil
	}
	return false, false, fmt.Errorf("%s: unknown direction %q", name, dir)
}

// makeLookupFn creates "lookup".
//
// lookup(id) → entity map or nil
func makeLookupFn(graph *query.Service) *object.Builtin {
	return object.NewBuiltin("lookup", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("lookup", 1, len(args))
		}
		id, err := toString(args[0])
		if err != nil {
			return object.Errorf("lookup: %v", err)
		}
		e := graph.Entity(id)
		if e == nil {
			return object.Nil
		}
		return entityObject(e)
	})
}

// makeNeighborsFn creates "neighbors". Ids are listed in relationship
// order and may include ids with no entity.
//
// neighbors(id, direction) → []string
func makeNeighborsFn(graph *query.Service) *object.Builtin {
	return object.NewBuiltin("neighbors", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("neighbors", 2, len(args))
		}
		id, err := toString(args[0])
		if err != nil {
			return object.Errorf("neighbors: %v", err)
		}
		in, out, err := directions("neighbors", args[1])
		if err != nil {
			return object.Errorf("%v", err)
		}

		seen := map[string]bool{}
		results := []object.Object{}
		add := func(other string) {
			if !seen[other] {
				seen[other] = true
				results = append(results, object.NewString(other))
			}
		}
		if in {
			for _, r := range graph.Inbound(id) {
				add(r.Source)
			}
		}
		if out {
			for _, r := range graph.Outbound(id) {
				add(r.Target)
			}
		}
		return object.NewList(results)
	})
}

// makeEdgesFn creates "edges".
//
// edges(id, direction) → []map
func makeEdgesFn(graph *query.Service) *object.Builtin {
	return object.NewBuiltin("edges", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("edges", 2, len(args))
		}
		id, err := toString(args[0])
		if err != nil {
			return object.Errorf("edges: %v", err)
		}
		in, out, err := directions("edges", args[1])
		if err != nil {
			return object.Errorf("%v", err)
		}

		results := []object.Object{}
		if in {
			for _, r := range graph.Inbound(id) {
				results = append(results, edgeObject("inbound", r))
			}
		}
		if out {
			for _, r := range graph.Outbound(id) {
				results = append(results, edgeObject("outbound", r))
			}
		}
		return object.NewList(results)
	})
}

// makeSQLFn creates "sql", which runs a read-only query against the
// snapshot's SQLite graph.
//
// sql(query, args...) → []map
func makeSQLFn(backend *store.Backend, snap *semantic.WorkspaceSnapshot) *object.Builtin {
	return object.NewBuiltin("sql", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 {
			return object.Errorf("sql: expected at least 1 argument (query), got %d", len(args))
		}
		q, err := toString(args[0])
		if err != nil {
			return object.Errorf("sql: %v", err)
		}

		var queryArgs []any
		for _, arg := range args[1:] {
			switch v := arg.(type) {
			case *object.Int:
				queryArgs = append(queryArgs, v.Value())
			case *object.Float:
				queryArgs = append(queryArgs, v.Value())
			case *object.String:
				queryArgs = append(queryArgs, v.Value())
			case *object.Bool:
				queryArgs = append(queryArgs, v.Value())
			case *object.NilType:
				queryArgs = append(queryArgs, nil)
			default:
				queryArgs = append(queryArgs, fmt.Sprintf("%v", arg))
			}
		}

		s, err := backend.Store(ctx, snap)
		if err != nil {
			return object.Errorf("sql: %v", err)
		}
		cols, rows, err := s.Select(ctx, q, queryArgs...)
		if err != nil {
			return object.Errorf("sql: %v", err)
		}

		results := make([]object.Object, 0, len(rows))
		for _, values := range rows {
			row := make(map[string]object.Object, len(cols))
			for i, col := range cols {
				row[col] = sqlValueToObject(values[i])
			}
			results = append(results, object.NewMap(row))
		}
		return object.NewList(results)
	})
}

// sqlValueToObject converts a database value to a Risor object.
func sqlValueToObject(v any) object.Object {
	if v == nil {
		return object.Nil
	}
	switch val := v.(type) {
	case int64:
		return object.NewInt(val)
	case float64:
		return object.NewFloat(val)
	case string:
		return object.NewString(val)
	case bool:
		return object.NewBool(val)
	case []byte:
		return object.NewString(string(val))
	default:
		return object.NewString(fmt.Sprintf("%v", val))
	}
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}
