package cargo

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestReadManifest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestFile), `
[package]
name = "render-core"
version = "0.3.1"
edition = "2021"

[dependencies]
serde = { version = "1", features = ["derive"] }
`)

	m, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "render-core", m.Name())
	assert.Equal(t, "2021", m.Package.Edition)
	assert.False(t, m.IsWorkspace())
}

func TestReadManifest_VirtualWorkspace(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestFile), `
[workspace]
members = ["crates/*"]
exclude = ["crates/legacy"]
`)

	m, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Empty(t, m.Name())
	require.True(t, m.IsWorkspace())
	assert.Equal(t, []string{"crates/*"}, m.Workspace.Members)
	assert.Equal(t, []string{"crates/legacy"}, m.Workspace.Exclude)
}

func TestReadManifest_Errors(t *testing.T) {
	t.Parallel()

	_, err := ReadManifest(t.TempDir())
	assert.ErrorIs(t, err, fs.ErrNotExist)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestFile), "[package\nname = ")
	_, err = ReadManifest(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

// =============================================================================
// FindWorkspaceRoot
// =============================================================================

func TestFindWorkspaceRoot(t *testing.T) {
	t.Parallel()

	t.Run("workspace manifest above a member", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		writeFile(t, filepath.Join(root, ManifestFile), "[workspace]\nmembers = [\"crates/ui\"]\n")
		writeFile(t, filepath.Join(root, "crates", "ui", ManifestFile), "[package]\nname = \"ui\"\n")
		src := filepath.Join(root, "crates", "ui", "src")
		require.NoError(t, os.MkdirAll(src, 0o755))

		assert.Equal(t, root, FindWorkspaceRoot(src))
	})

	t.Run("single package", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
		pkg := filepath.Join(root, "tool")
		writeFile(t, filepath.Join(pkg, ManifestFile), "[package]\nname = \"tool\"\n")

		assert.Equal(t, pkg, FindWorkspaceRoot(filepath.Join(pkg, "src")))
	})

	t.Run("git root without manifest", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
		deep := filepath.Join(root, "a", "b")
		require.NoError(t, os.MkdirAll(deep, 0o755))

		assert.Equal(t, root, FindWorkspaceRoot(deep))
	})

	t.Run("walk stops at git root", func(t *testing.T) {
		t.Parallel()
		outer := t.TempDir()
		writeFile(t, filepath.Join(outer, ManifestFile), "[workspace]\n")
		repo := filepath.Join(outer, "repo")
		require.NoError(t, os.MkdirAll(filepath.Join(repo, ".git"), 0o755))

		assert.Equal(t, repo, FindWorkspaceRoot(repo))
	})
}
