// Package git reads per-file diffs from git repositories and patch files.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/helixml/diffsum/domain/change"
)

// ErrNoCommits indicates the repository has no commit to diff.
var ErrNoCommits = errors.New("repository has no commits")

// CommitDiffProvider serves the per-file patches of one commit against its
// first parent. A root commit is diffed against the empty tree.
type CommitDiffProvider struct {
	repoPath string
	commit   string
	branch   string
	paths    []string
	patches  map[string]string
}

// OpenCommit reads the changes of revision rev (default HEAD) in the
// repository containing repoPath.
func OpenCommit(ctx context.Context, repoPath, rev string, logger *slog.Logger) (*CommitDiffProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if rev == "" {
		rev = "HEAD"
	}

	repo, err := gogit.PlainOpenWithOptions(repoPath, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoCommits, rev)
		}
		return nil, fmt.Errorf("resolve %s: %w", rev, err)
	}

	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("get commit: %w", err)
	}

	parentTree := &object.Tree{}
	if len(commit.ParentHashes) > 0 {
		parent, err := repo.CommitObject(commit.ParentHashes[0])
		if err != nil {
			return nil, fmt.Errorf("get parent commit: %w", err)
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return nil, fmt.Errorf("get parent tree: %w", err)
		}
	}

	commitTree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("get commit tree: %w", err)
	}

	changes, err := object.DiffTreeWithOptions(ctx, parentTree, commitTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, fmt.Errorf("compute diff: %w", err)
	}

	p := &CommitDiffProvider{
		repoPath: repoPath,
		commit:   commit.Hash.String(),
		branch:   headBranch(repo),
		patches:  make(map[string]string, len(changes)),
	}

	for _, c := range changes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := c.To.Name
		if path == "" {
			path = c.From.Name
		}

		patch, err := c.PatchContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("patch %s: %w", path, err)
		}

		p.paths = append(p.paths, path)
		p.patches[path] = patch.String()
	}

	logger.Debug("read commit diff",
		slog.String("commit", p.commit),
		slog.Int("files", len(p.paths)),
	)

	return p, nil
}

func headBranch(repo *gogit.Repository) string {
	head, err := repo.Head()
	if err != nil || !head.Name().IsBranch() {
		return ""
	}
	return head.Name().Short()
}

// Diff implements change.DiffProvider.
func (p *CommitDiffProvider) Diff(_ context.Context, path string) (string, error) {
	patch, ok := p.patches[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", change.ErrNotFound, path)
	}
	return patch, nil
}

// Paths returns the changed paths in tree order.
func (p *CommitDiffProvider) Paths() []string {
	paths := make([]string, len(p.paths))
	copy(paths, p.paths)
	return paths
}

// Commit returns the resolved commit SHA.
func (p *CommitDiffProvider) Commit() string { return p.commit }

// Branch returns the checked out branch, or "" when HEAD is detached.
func (p *CommitDiffProvider) Branch() string { return p.branch }

// RepoPath returns the repository path the provider was opened with.
func (p *CommitDiffProvider) RepoPath() string { return p.repoPath }

var _ change.DiffProvider = (*CommitDiffProvider)(nil)
