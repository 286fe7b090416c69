// Package source provides access to repository metadata and file content.
// Implementations exist for GitHub and for local git working trees.
package source

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRepositoryNotFound indicates an unknown repository ID.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrFileNotFound indicates a path absent from the repository tree.
	ErrFileNotFound = errors.New("file not found")
)

// Repository is the metadata needed to index a repository.
type Repository struct {
	// ID is "owner/name".
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Owner         string    `json:"owner"`
	Description   string    `json:"description,omitempty"`
	CloneURL      string    `json:"cloneUrl"`
	DefaultBranch string    `json:"defaultBranch"`
	IsPrivate     bool      `json:"isPrivate"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TreeEntry is one file in a repository tree listing.
type TreeEntry struct {
	Path string
	Size int
}

// ContentProvider lists and fetches repository file content at a branch.
type ContentProvider interface {
	// GetFileTree returns every file in the repository at the branch.
	GetFileTree(ctx context.Context, repo *Repository, branch string) ([]TreeEntry, error)

	// GetFileContent returns the content of one file.
	GetFileContent(ctx context.Context, repo *Repository, branch, path string) (string, error)
}

// MetadataStore resolves repository IDs to metadata.
type MetadataStore interface {
	GetByID(ctx context.Context, id string) (*Repository, error)
}
