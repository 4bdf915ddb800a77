package query

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/atlas/internal/agent"
	"github.com/jward/atlas/internal/semantic"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func readFiles(t *testing.T, root string, rels ...string) map[string]string {
	t.Helper()
	out := make(map[string]string, len(rels))
	for _, rel := range rels {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		require.NoError(t, err)
		out[rel] = string(data)
	}
	return out
}

func callable(id string, kind semantic.EntityKind, name, qn, path string, start, end semantic.Point) semantic.Entity {
	return semantic.Entity{
		ID:            id,
		Kind:          kind,
		Name:          name,
		QualifiedName: semantic.Ptr(qn),
		Location: &semantic.Location{
			Path: path,
			Span: &semantic.Span{Start: start, End: end},
		},
	}
}

func pt(line, col uint32) semantic.Point {
	return semantic.Point{Line: line, Column: col}
}

func editPaths(edits []agent.RenameEdit) []string {
	out := make([]string, 0, len(edits))
	for _, e := range edits {
		out = append(out, e.Location.Path)
	}
	return out
}

func functionRenameSnapshot() []semantic.Entity {
	return []semantic.Entity{
		callable("function:src/ui/render.rs:render", semantic.KindFunction, "render", "crate::ui::render", "src/ui/render.rs", pt(0, 7), pt(0, 13)),
		callable("function:src/graphics/render.rs:render", semantic.KindFunction, "render", "crate::graphics::render", "src/graphics/render.rs", pt(0, 7), pt(0, 13)),
		callable("function:src/ui/controller.rs:refresh", semantic.KindFunction, "refresh", "crate::ui::controller::refresh", "src/ui/controller.rs", pt(0, 7), pt(2, 1)),
		callable("function:src/app.rs:refresh", semantic.KindFunction, "refresh", "crate::app::refresh", "src/app.rs", pt(0, 7), pt(2, 1)),
	}
}

func TestRenamePlanning_SplitsEditsByConfidence(t *testing.T) {
	t.Parallel()
	files := map[string]string{
		"src/ui/render.rs":       "pub fn render() {}\n",
		"src/graphics/render.rs": "pub fn render() {}\n",
		"src/ui/controller.rs":   "pub fn refresh() {\n    crate::ui::render();\n    render();\n}\n",
		"src/app.rs":             "pub fn refresh() {\n    render();\n}\n",
	}
	root := writeFiles(t, files)
	s := newTestService(t, functionRenameSnapshot(), nil, WithWorkspaceRoot(root))

	resp := s.RenamePlanning(context.Background(), agent.RenamePlanningRequest{
		Entity:  agent.ByQualifiedName("crate::ui::render"),
		NewName: "draw",
	})
	require.Equal(t, agent.StatusSuccess, resp.Status)
	result := resp.Result

	require.Len(t, result.HighConfidenceEdits, 2)
	assert.Equal(t, []string{"src/ui/controller.rs", "src/ui/render.rs"}, editPaths(result.HighConfidenceEdits))
	explicit := result.HighConfidenceEdits[0]
	assert.Equal(t, reasonExplicitPath, *explicit.Reason)
	assert.Equal(t, "draw", explicit.Replacement)
	assert.Equal(t, &semantic.Span{Start: pt(1, 15), End: pt(1, 21)}, explicit.Location.Span)
	assert.Equal(t, semantic.InferredCertainty(explicitPathConfidence), explicit.Certainty)
	definition := result.HighConfidenceEdits[1]
	assert.Equal(t, reasonDefinition, *definition.Reason)
	assert.Equal(t, semantic.ObservedCertainty(), definition.Certainty)

	require.Len(t, result.LowConfidenceEdits, 1)
	assert.Equal(t, "src/ui/controller.rs", result.LowConfidenceEdits[0].Location.Path)
	assert.Equal(t, reasonLocality, *result.LowConfidenceEdits[0].Reason)
	assert.Equal(t, semantic.SourceHeuristic, result.LowConfidenceEdits[0].Provenance.Source)

	require.Len(t, result.Conflicts, 1)
	require.NotNil(t, result.Conflicts[0].Location)
	assert.Equal(t, "src/app.rs", result.Conflicts[0].Location.Path)
	assert.Equal(t, "top-ranked candidates are tied on syntax-only evidence", result.Conflicts[0].Message)

	assert.Equal(t, files, readFiles(t, root, "src/ui/render.rs", "src/graphics/render.rs", "src/ui/controller.rs", "src/app.rs"))
}

func TestRenamePlanning_SameNameMethodsConflict(t *testing.T) {
	t.Parallel()
	root := writeFiles(t, map[string]string{
		"src/ui/widget.rs":     "pub struct Widget;\nimpl Widget {\n    pub fn render(&self) {}\n}\n",
		"src/ui/overlay.rs":    "pub struct Overlay;\nimpl Overlay {\n    pub fn render(&self) {}\n}\n",
		"src/ui/controller.rs": "pub fn refresh(widget: &crate::ui::Widget, overlay: &crate::ui::Overlay) {\n    widget.render();\n    overlay.render();\n}\n",
	})
	s := newTestService(t, []semantic.Entity{
		callable("method:src/ui/widget.rs:Widget::render", semantic.KindMethod, "render", "crate::ui::Widget::render", "src/ui/widget.rs", pt(2, 11), pt(2, 17)),
		callable("method:src/ui/overlay.rs:Overlay::render", semantic.KindMethod, "render", "crate::ui::Overlay::render", "src/ui/overlay.rs", pt(2, 11), pt(2, 17)),
	}, nil, WithWorkspaceRoot(root))

	resp := s.RenamePlanning(context.Background(), agent.RenamePlanningRequest{
		Entity:  agent.ByQualifiedName("crate::ui::Widget::render"),
		NewName: "draw",
	})
	require.Equal(t, agent.StatusSuccess, resp.Status)
	result := resp.Result

	assert.Equal(t, []string{"src/ui/widget.rs"}, editPaths(result.HighConfidenceEdits))
	assert.Empty(t, result.LowConfidenceEdits)
	require.Len(t, result.Conflicts, 2)
	for _, c := range result.Conflicts {
		require.NotNil(t, c.Location)
		assert.Equal(t, "src/ui/controller.rs", c.Location.Path)
		assert.Equal(t, "method receiver types are unavailable in syntax-only ranking", c.Message)
	}
	// Sorted by span: widget.render() precedes overlay.render().
	assert.Equal(t, uint32(1), result.Conflicts[0].Location.Span.Start.Line)
	assert.Equal(t, uint32(2), result.Conflicts[1].Location.Span.Start.Line)
}

func TestRenamePlanning_SingleMethodIsLowConfidence(t *testing.T) {
	t.Parallel()
	root := writeFiles(t, map[string]string{
		"src/ui/widget.rs": "pub struct Widget;\nimpl Widget {\n    pub fn render(&self) {}\n    pub fn show(&self) {\n        self.render();\n    }\n}\n",
	})
	s := newTestService(t, []semantic.Entity{
		callable("method:src/ui/widget.rs:Widget::render", semantic.KindMethod, "render", "crate::ui::Widget::render", "src/ui/widget.rs", pt(2, 11), pt(2, 17)),
	}, nil, WithWorkspaceRoot(root))

	resp := s.RenamePlanning(context.Background(), agent.RenamePlanningRequest{
		Entity:  agent.ByID("method:src/ui/widget.rs:Widget::render"),
		NewName: "draw",
	})
	require.Equal(t, agent.StatusSuccess, resp.Status)
	assert.Len(t, resp.Result.HighConfidenceEdits, 1)
	require.Len(t, resp.Result.LowConfidenceEdits, 1)
	assert.Equal(t, uint32(4), resp.Result.LowConfidenceEdits[0].Location.Span.Start.Line)
	assert.Empty(t, resp.Result.Conflicts)
}

func TestRenamePlanning_ParseFailureBecomesConflict(t *testing.T) {
	t.Parallel()
	root := writeFiles(t, map[string]string{
		"src/ui/render.rs":       "pub fn render() {}\n",
		"src/graphics/render.rs": "pub fn render() {}\n",
		"src/broken.rs":          "pub fn refresh( {\n    render();\n}\n",
	})
	entities := functionRenameSnapshot()[:2]
	s := newTestService(t, entities, nil, WithWorkspaceRoot(root))

	resp := s.RenamePlanning(context.Background(), agent.RenamePlanningRequest{
		Entity:  agent.ByQualifiedName("crate::ui::render"),
		NewName: "draw",
	})
	require.Equal(t, agent.StatusSuccess, resp.Status)
	result := resp.Result

	assert.Equal(t, []string{"src/ui/render.rs"}, editPaths(result.HighConfidenceEdits))
	assert.Empty(t, result.LowConfidenceEdits)
	require.Len(t, result.Conflicts, 1)
	require.NotNil(t, result.Conflicts[0].Location)
	assert.Equal(t, "src/broken.rs", result.Conflicts[0].Location.Path)
	assert.Nil(t, result.Conflicts[0].Location.Span)
	assert.Contains(t, result.Conflicts[0].Message, "failed to parse rename preview candidates from src/broken.rs")
}

func TestRenamePlanning_InvalidRequests(t *testing.T) {
	t.Parallel()
	s := newTestService(t, functionRenameSnapshot(), nil, WithWorkspaceRoot(t.TempDir()))

	resp := s.RenamePlanning(context.Background(), agent.RenamePlanningRequest{
		Entity: agent.ByQualifiedName("crate::ui::render"), NewName: "  ",
	})
	require.Equal(t, agent.StatusError, resp.Status)
	assert.Equal(t, agent.CodeInvalidRequest, resp.Error.Code)

	resp = s.RenamePlanning(context.Background(), agent.RenamePlanningRequest{
		Entity: agent.ByID("missing"), NewName: "draw",
	})
	require.Equal(t, agent.StatusError, resp.Status)
	assert.Equal(t, "entity `missing` was not found in the current snapshot", resp.Error.Message)
}

func TestRenamePlanning_NonCallableStopsAtDefinition(t *testing.T) {
	t.Parallel()
	s := newTestService(t, []semantic.Entity{
		callable("struct:src/ui/widget.rs:ui::widget::Widget", semantic.KindStruct, "Widget", "ui::widget::Widget", "src/ui/widget.rs", pt(0, 11), pt(0, 17)),
	}, nil)

	resp := s.RenamePlanning(context.Background(), agent.RenamePlanningRequest{
		Entity: agent.ByQualifiedName("ui::widget::Widget"), NewName: "Gadget",
	})
	require.Equal(t, agent.StatusSuccess, resp.Status)
	assert.Len(t, resp.Result.HighConfidenceEdits, 1)
	assert.Empty(t, resp.Result.LowConfidenceEdits)
	assert.Empty(t, resp.Result.Conflicts)
}

func TestRenamePlanning_PathOnlyLocationStillEditsDefinition(t *testing.T) {
	t.Parallel()
	s := newTestService(t, []semantic.Entity{{
		ID:            "struct:src/a.rs:a::Foo",
		Kind:          semantic.KindStruct,
		Name:          "Foo",
		QualifiedName: semantic.Ptr("a::Foo"),
		Location:      &semantic.Location{Path: "src/a.rs"},
	}}, nil)

	resp := s.RenamePlanning(context.Background(), agent.RenamePlanningRequest{
		Entity: agent.ByID("struct:src/a.rs:a::Foo"), NewName: "Bar",
	})
	require.Equal(t, agent.StatusSuccess, resp.Status)
	require.Len(t, resp.Result.HighConfidenceEdits, 1)
	edit := resp.Result.HighConfidenceEdits[0]
	assert.Equal(t, "src/a.rs", edit.Location.Path)
	assert.Nil(t, edit.Location.Span)
	assert.Equal(t, "Bar", edit.Replacement)
	assert.Equal(t, "rename target definition", *edit.Reason)
}
