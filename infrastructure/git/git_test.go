package git

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/diffsum/domain/change"
)

func commitFiles(t *testing.T, repoPath string, repo *gogit.Repository, files map[string]string, message string) {
	t.Helper()

	wt, err := repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		full := filepath.Join(repoPath, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
		_, err = wt.Add(name)
		require.NoError(t, err)
	}

	_, err = wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test Author", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

func setupTestRepo(t *testing.T) string {
	t.Helper()
	repoPath := filepath.Join(t.TempDir(), "test-repo")

	repo, err := gogit.PlainInit(repoPath, false)
	require.NoError(t, err)

	commitFiles(t, repoPath, repo, map[string]string{"README.md": "# Test\n"}, "Initial commit")
	commitFiles(t, repoPath, repo, map[string]string{
		"README.md":     "# Test\n\nMore docs.\n",
		"src/parser.go": "package src\n\nfunc Parse() {}\n",
	}, "Add parser")

	return repoPath
}

func TestOpenCommit_HeadChanges(t *testing.T) {
	ctx := context.Background()
	repoPath := setupTestRepo(t)

	p, err := OpenCommit(ctx, repoPath, "", slog.Default())
	require.NoError(t, err)

	assert.Equal(t, []string{"README.md", "src/parser.go"}, p.Paths())
	assert.Len(t, p.Commit(), 40)
	assert.Equal(t, "master", p.Branch())

	diff, err := p.Diff(ctx, "src/parser.go")
	require.NoError(t, err)
	assert.Contains(t, diff, "+func Parse() {}")

	units, err := change.CollectUnits(ctx, p, p.Paths())
	require.NoError(t, err)
	stats := change.CountStats(units)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 5, stats.Additions)
	assert.Equal(t, 0, stats.Deletions)
}

func TestOpenCommit_RootCommit(t *testing.T) {
	ctx := context.Background()
	repoPath := setupTestRepo(t)

	p, err := OpenCommit(ctx, repoPath, "HEAD~1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md"}, p.Paths())
}

func TestOpenCommit_MissingPath(t *testing.T) {
	ctx := context.Background()
	p, err := OpenCommit(ctx, setupTestRepo(t), "HEAD", nil)
	require.NoError(t, err)

	_, err = p.Diff(ctx, "nope.go")
	assert.ErrorIs(t, err, change.ErrNotFound)
}

func TestOpenCommit_EmptyRepository(t *testing.T) {
	repoPath := filepath.Join(t.TempDir(), "empty")
	_, err := gogit.PlainInit(repoPath, false)
	require.NoError(t, err)

	_, err = OpenCommit(context.Background(), repoPath, "", nil)
	assert.ErrorIs(t, err, ErrNoCommits)
}

func TestOpenCommit_NotARepository(t *testing.T) {
	_, err := OpenCommit(context.Background(), t.TempDir(), "", nil)
	assert.Error(t, err)
}

func TestParsePatch(t *testing.T) {
	text := "diff --git a/a.txt b/a.txt\n--- a/a.txt\n+++ b/a.txt\n@@ -1 +1 @@\n-old\n+new\n" +
		"diff --git a/dir/b.txt b/dir/b.txt\nnew file mode 100644\n--- /dev/null\n+++ b/dir/b.txt\n@@ -0,0 +1 @@\n+hello\n"

	p := ParsePatch(text)
	assert.Equal(t, []string{"a.txt", "dir/b.txt"}, p.Paths())

	diff, err := p.Diff(context.Background(), "dir/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "diff --git a/dir/b.txt b/dir/b.txt\nnew file mode 100644\n--- /dev/null\n+++ b/dir/b.txt\n@@ -0,0 +1 @@\n+hello", diff)

	_, err = p.Diff(context.Background(), "c.txt")
	assert.ErrorIs(t, err, change.ErrNotFound)
}

func TestParsePatch_DropsPreamble(t *testing.T) {
	text := "From 1234abcd Mon Sep 17 00:00:00 2001\n" +
		"From: Dev <dev@example.com>\n" +
		"Subject: [PATCH] replace old\n" +
		"\n" +
		"---\n" +
		" a.txt | 2 +-\n" +
		"\n" +
		"diff --git a/a.txt b/a.txt\n--- a/a.txt\n+++ b/a.txt\n@@ -1 +1 @@\n-old\n+new\n"

	p := ParsePatch(text)
	assert.Equal(t, []string{"a.txt"}, p.Paths())

	diff, err := p.Diff(context.Background(), "a.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(diff, "diff --git a/a.txt b/a.txt"))
	assert.NotContains(t, diff, "Subject:")

	_, err = p.Diff(context.Background(), "patch")
	assert.ErrorIs(t, err, change.ErrNotFound)
}

func TestParsePatch_NoHeaders(t *testing.T) {
	p := ParsePatch("-a\n+b\n")
	assert.Equal(t, []string{"patch"}, p.Paths())

	assert.Empty(t, ParsePatch("  \n").Paths())
}

func TestUnits_FromCommitAndPatch(t *testing.T) {
	repoPath := setupTestRepo(t)
	commit, err := OpenCommit(context.Background(), repoPath, "", slog.Default())
	require.NoError(t, err)

	units, err := Units(context.Background(), commit)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "README.md", units[0].Path())
	assert.Contains(t, units[1].Diff(), "+func Parse() {}")

	units, err = Units(context.Background(), ParsePatch("-a\n+b\n"))
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "-a\n+b", units[0].Diff())
}
