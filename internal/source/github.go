package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// GitHubSource serves both the ContentProvider and MetadataStore ports from
// the GitHub API. An empty token gives unauthenticated access to public
// repositories at a much lower rate limit.
type GitHubSource struct {
	client *github.Client
	logger *zap.Logger
}

// NewGitHubSource creates a GitHub-backed source.
func NewGitHubSource(ctx context.Context, token string, logger *zap.Logger) *GitHubSource {
	httpClient := oauth2.NewClient(ctx, nil)
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, ts)
	}
	return &GitHubSource{
		client: github.NewClient(httpClient),
		logger: logger,
	}
}

// splitID parses "owner/name".
func splitID(id string) (owner, name string, err error) {
	parts := strings.SplitN(id, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: repository id %q is not owner/name", ErrRepositoryNotFound, id)
	}
	return parts[0], parts[1], nil
}

// GetByID fetches repository metadata.
func (g *GitHubSource) GetByID(ctx context.Context, id string) (*Repository, error) {
	owner, name, err := splitID(id)
	if err != nil {
		return nil, err
	}
	repo, resp, err := g.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, id)
		}
		return nil, fmt.Errorf("fetching repository %s: %w", id, err)
	}
	return &Repository{
		ID:            id,
		Name:          repo.GetName(),
		Owner:         owner,
		Description:   repo.GetDescription(),
		CloneURL:      repo.GetCloneURL(),
		DefaultBranch: repo.GetDefaultBranch(),
		IsPrivate:     repo.GetPrivate(),
		CreatedAt:     repo.GetCreatedAt().Time,
		UpdatedAt:     repo.GetUpdatedAt().Time,
	}, nil
}

// GetFileTree lists every blob in the repository tree at the branch.
func (g *GitHubSource) GetFileTree(ctx context.Context, repo *Repository, branch string) ([]TreeEntry, error) {
	owner, name, err := splitID(repo.ID)
	if err != nil {
		return nil, err
	}
	tree, _, err := g.client.Git.GetTree(ctx, owner, name, branch, true)
	if err != nil {
		return nil, fmt.Errorf("fetching tree for %s@%s: %w", repo.ID, branch, err)
	}
	if tree.GetTruncated() {
		g.logger.Warn("github tree listing truncated",
			zap.String("repository_id", repo.ID),
			zap.String("branch", branch),
		)
	}

	entries := make([]TreeEntry, 0, len(tree.Entries))
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		entries = append(entries, TreeEntry{
			Path: entry.GetPath(),
			Size: entry.GetSize(),
		})
	}
	return entries, nil
}

// GetFileContent fetches one file's decoded content at the branch.
func (g *GitHubSource) GetFileContent(ctx context.Context, repo *Repository, branch, path string) (string, error) {
	owner, name, err := splitID(repo.ID)
	if err != nil {
		return "", err
	}
	file, _, resp, err := g.client.Repositories.GetContents(ctx, owner, name, path,
		&github.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return "", fmt.Errorf("%w: %s in %s@%s", ErrFileNotFound, path, repo.ID, branch)
		}
		return "", fmt.Errorf("fetching %s from %s@%s: %w", path, repo.ID, branch, err)
	}
	if file == nil {
		return "", fmt.Errorf("%w: %s is a directory", ErrFileNotFound, path)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decoding %s from %s: %w", path, repo.ID, err)
	}
	return content, nil
}

var (
	_ ContentProvider = (*GitHubSource)(nil)
	_ MetadataStore   = (*GitHubSource)(nil)
)
