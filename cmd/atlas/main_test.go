package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/atlas/internal/agent"
	"github.com/jward/atlas/internal/semantic"
)

func TestResolveTargetDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := filepath.Join(dir, "lib.rs")
	require.NoError(t, os.WriteFile(file, []byte("fn a() {}"), 0o644))

	got, err := resolveTargetDir([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = resolveTargetDir([]string{file})
	assert.ErrorContains(t, err, "not a directory")

	_, err = resolveTargetDir([]string{filepath.Join(dir, "missing")})
	assert.ErrorContains(t, err, "directory not found")
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.ErrorContains(t, validateFormat("yaml"), `invalid format "yaml"`)
}

func TestLimitOr(t *testing.T) {
	t.Parallel()
	cmd := &cobra.Command{Use: "x"}
	var n int
	cmd.Flags().IntVar(&n, "limit", 0, "")

	assert.Equal(t, uint32(7), limitOr(cmd, "limit", n, 7))

	require.NoError(t, cmd.Flags().Set("limit", "3"))
	assert.Equal(t, uint32(3), limitOr(cmd, "limit", n, 7))

	require.NoError(t, cmd.Flags().Set("limit", "-2"))
	assert.Equal(t, uint32(0), limitOr(cmd, "limit", n, 7))
}

// =============================================================================
// Conversions
// =============================================================================

func TestEntityToCLI(t *testing.T) {
	t.Parallel()
	e := semantic.Entity{
		ID:            "function:src/lib.rs:render",
		Kind:          semantic.KindFunction,
		Name:          "render",
		QualifiedName: semantic.Ptr("render"),
		Location: &semantic.Location{
			Path: "src/lib.rs",
			Span: &semantic.Span{Start: semantic.Point{Line: 3, Column: 1}, End: semantic.Point{Line: 5, Column: 2}},
		},
	}

	assert.Equal(t, CLIEntity{
		ID: e.ID, Kind: "function", Name: "render", QualifiedName: "render",
		File: "src/lib.rs", StartLine: 3, StartCol: 1, EndLine: 5, EndCol: 2,
	}, entityToCLI(e))

	bare := entityToCLI(semantic.Entity{ID: "file:src/lib.rs", Kind: semantic.KindFile, Name: "lib.rs"})
	assert.Empty(t, bare.File)
	assert.Empty(t, bare.QualifiedName)
}

func TestBlastToCLI(t *testing.T) {
	t.Parallel()
	got := blastToCLI(agent.BlastRadiusResult{
		DirectImpacts: []agent.ImpactTarget{{
			Entity:    semantic.Entity{ID: "function:src/lib.rs:draw", Kind: semantic.KindFunction, Name: "draw"},
			Depth:     1,
			Reason:    semantic.Ptr("draw calls render."),
			Certainty: semantic.ObservedCertainty(),
		}},
		IndirectImpacts:      []agent.ImpactTarget{},
		UnresolvedReferences: []agent.UnresolvedReference{{Description: "missing caller"}},
	})

	require.Len(t, got.Direct, 1)
	assert.Equal(t, "draw calls render.", got.Direct[0].Reason)
	assert.Equal(t, int(semantic.MaxConfidence), got.Direct[0].Confidence)
	assert.Empty(t, got.Indirect)
	assert.Equal(t, []string{"missing caller"}, got.Unresolved)
}

// =============================================================================
// Text output
// =============================================================================

func TestOutputResultText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		result   CLIResult
		contains []string
	}{
		{
			name: "structural matches",
			result: CLIResult{Command: "structural", Results: []CLIMatch{
				{Entity: CLIEntity{ID: "function:src/lib.rs:render", Kind: "function", Name: "render", File: "src/lib.rs", StartLine: 1}, Summary: "Function render matched the pattern query."},
			}},
			contains: []string{"ID", "SUMMARY", "function:src/lib.rs:render", "matched the pattern query."},
		},
		{
			name: "briefing",
			result: CLIResult{Command: "brief", Results: CLIBriefing{
				Entity:  CLIEntity{ID: "function:src/lib.rs:render", File: "src/lib.rs", StartLine: 1},
				Summary: "Function render in src/lib.rs.",
				Related: []CLIRelated{{Direction: "inbound", Relationship: "calls", Entity: CLIEntity{ID: "function:src/lib.rs:draw"}, Certainty: "observed", Confidence: 100}},
			}},
			contains: []string{"Entity: function:src/lib.rs:render", "Location: src/lib.rs:1", "inbound", "function:src/lib.rs:draw", "observed (100)"},
		},
		{
			name:     "status without snapshot",
			result:   CLIResult{Command: "status", Results: CLIStatus{Root: "/ws", State: "ready", Package: "core"}},
			contains: []string{"Root: /ws", "Package: core", "State: ready"},
		},
		{
			name:     "partial result",
			result:   CLIResult{Command: "blast", Results: CLIBlast{}, Timeout: &CLITimeout{LimitMS: 10, ElapsedMS: 12}},
			contains: []string{"Direct impacts: 0", "Timed out after 12ms (budget 10ms)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			require.NoError(t, outputResultText(&buf, tt.result))
			for _, want := range tt.contains {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestOutputResultText_UnsupportedType(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := outputResultText(&buf, CLIResult{Results: 42})
	assert.ErrorContains(t, err, "unsupported result type")
}
