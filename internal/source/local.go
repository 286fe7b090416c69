package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// LocalGitSource reads a repository from a local git checkout. It serves
// both ports so the CLI can index a working tree without any credentials.
type LocalGitSource struct {
	path string
	repo *git.Repository
}

// NewLocalGitSource opens the git repository at path.
func NewLocalGitSource(path string) (*LocalGitSource, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("opening git repository at %s: %w", path, err)
	}
	return &LocalGitSource{path: path, repo: repo}, nil
}

// GetByID returns metadata derived from the checkout. The ID argument is
// ignored beyond echoing; a local source maps to exactly one repository.
func (l *LocalGitSource) GetByID(_ context.Context, id string) (*Repository, error) {
	name := filepath.Base(l.path)
	branch := "main"
	if head, err := l.repo.Head(); err == nil && head.Name().IsBranch() {
		branch = head.Name().Short()
	}

	repo := &Repository{
		ID:            id,
		Name:          name,
		Owner:         "local",
		CloneURL:      l.path,
		DefaultBranch: branch,
	}
	if commit, err := l.headCommit(branch); err == nil {
		repo.CreatedAt = commit.Author.When
		repo.UpdatedAt = commit.Author.When
	}
	return repo, nil
}

func (l *LocalGitSource) headCommit(branch string) (*object.Commit, error) {
	ref, err := l.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		// Fall back to HEAD for detached checkouts.
		head, headErr := l.repo.Head()
		if headErr != nil {
			return nil, fmt.Errorf("resolving branch %s: %w", branch, err)
		}
		ref = head
	}
	return l.repo.CommitObject(ref.Hash())
}

// GetFileTree lists every file in the commit tree at the branch.
func (l *LocalGitSource) GetFileTree(_ context.Context, _ *Repository, branch string) ([]TreeEntry, error) {
	commit, err := l.headCommit(branch)
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading commit tree: %w", err)
	}

	var entries []TreeEntry
	err = tree.Files().ForEach(func(f *object.File) error {
		entries = append(entries, TreeEntry{Path: f.Name, Size: int(f.Size)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking tree: %w", err)
	}
	return entries, nil
}

// GetFileContent returns one file's content at the branch.
func (l *LocalGitSource) GetFileContent(_ context.Context, _ *Repository, branch, path string) (string, error) {
	commit, err := l.headCommit(branch)
	if err != nil {
		return "", err
	}
	file, err := commit.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return file.Contents()
}

var (
	_ ContentProvider = (*LocalGitSource)(nil)
	_ MetadataStore   = (*LocalGitSource)(nil)
)
