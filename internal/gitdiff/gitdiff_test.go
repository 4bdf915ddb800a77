package gitdiff

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modifiedAndNew = `diff --git a/src/lib.rs b/src/lib.rs
index 3b18e51..a4f3c2d 100644
--- a/src/lib.rs
+++ b/src/lib.rs
@@ -1 +1 @@
-pub fn render_panel() -> u8 { 1 }
+pub fn render_panel() -> u8 { 2 }
diff --git a/src/new.rs b/src/new.rs
new file mode 100644
index 0000000..e69de29
--- /dev/null
+++ b/src/new.rs
@@ -0,0 +1 @@
+pub fn fresh() {}
diff --git a/src/old.rs b/src/old.rs
deleted file mode 100644
index e69de29..0000000
--- a/src/old.rs
+++ /dev/null
@@ -1 +0,0 @@
-pub fn stale() {}
`

const pureRename = `diff --git a/src/before.rs b/src/after.rs
similarity index 100%
rename from src/before.rs
rename to src/after.rs
`

func TestParse_ClassifiesChanges(t *testing.T) {
	t.Parallel()

	changes, err := Parse([]byte(modifiedAndNew))
	require.NoError(t, err)
	assert.Equal(t, []Change{
		{Kind: Modified, Path: "src/lib.rs"},
		{Kind: Added, Path: "src/new.rs"},
		{Kind: Deleted, Path: "src/old.rs"},
	}, changes)
}

func TestParse_PureRename(t *testing.T) {
	t.Parallel()

	changes, err := Parse([]byte(pureRename))
	require.NoError(t, err)
	assert.Equal(t, []Change{{Kind: Renamed, Path: "src/after.rs", OldPath: "src/before.rs"}}, changes)
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	changes, err := Parse([]byte("\n"))
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestMerge_PrefersHigherPriority(t *testing.T) {
	t.Parallel()

	merged := Merge([]Change{
		{Kind: Modified, Path: "b.rs"},
		{Kind: Added, Path: "b.rs"},
		{Kind: Modified, Path: "a.rs"},
		{Kind: Renamed, Path: "a.rs", OldPath: "z.rs"},
		{Kind: Modified, Path: "a.rs"},
	})
	assert.Equal(t, []Change{
		{Kind: Renamed, Path: "a.rs", OldPath: "z.rs"},
		{Kind: Added, Path: "b.rs"},
	}, merged)
}

// =============================================================================
// Collect (requires git)
// =============================================================================

type gitRepo struct {
	t   *testing.T
	dir string
}

func newGitRepo(t *testing.T) *gitRepo {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	r := &gitRepo{t: t, dir: t.TempDir()}
	r.git("init", "-q")
	r.git("config", "user.email", "test@example.com")
	r.git("config", "user.name", "Test")
	r.git("config", "commit.gpgsign", "false")
	r.write("src/lib.rs", "pub fn render_panel() -> u8 { 1 }\n")
	r.write("src/staged.rs", "pub fn staged_only() -> u8 { 5 }\n")
	r.git("add", ".")
	r.git("commit", "-q", "-m", "initial")
	return r
}

func (r *gitRepo) git(args ...string) {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.dir
	out, err := cmd.CombinedOutput()
	require.NoError(r.t, err, string(out))
}

func (r *gitRepo) write(rel, content string) {
	r.t.Helper()
	path := filepath.Join(r.dir, rel)
	require.NoError(r.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(r.t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCollect_Scopes(t *testing.T) {
	t.Parallel()
	r := newGitRepo(t)
	r.write("src/staged.rs", "pub fn staged_only() -> u8 { 9 }\n")
	r.git("add", "src/staged.rs")
	r.write("src/lib.rs", "pub fn render_panel() -> u8 { 2 }\n")
	r.write("src/untracked.rs", "pub fn fresh() {}\n")

	c := New()
	ctx := context.Background()

	unstaged, err := c.Collect(ctx, r.dir, ScopeUnstaged)
	require.NoError(t, err)
	assert.Equal(t, []Change{
		{Kind: Modified, Path: "src/lib.rs"},
		{Kind: Added, Path: "src/untracked.rs"},
	}, unstaged)

	staged, err := c.Collect(ctx, r.dir, ScopeStaged)
	require.NoError(t, err)
	assert.Equal(t, []Change{{Kind: Modified, Path: "src/staged.rs"}}, staged)

	all, err := c.Collect(ctx, r.dir, ScopeAll)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCollect_StagedRename(t *testing.T) {
	t.Parallel()
	r := newGitRepo(t)
	r.git("mv", "src/staged.rs", "src/moved.rs")

	changes, err := New().Collect(context.Background(), r.dir, ScopeStaged)
	require.NoError(t, err)
	assert.Equal(t, []Change{{Kind: Renamed, Path: "src/moved.rs", OldPath: "src/staged.rs"}}, changes)
}

func TestCollect_NotARepository(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	_, err := New().Collect(context.Background(), t.TempDir(), ScopeAll)
	require.ErrorIs(t, err, ErrNotRepository)
}
