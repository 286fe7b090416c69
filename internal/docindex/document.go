// Package docindex defines the searchable document model and the document
// index port, with Qdrant (gRPC) and chromem-go (embedded) implementations.
package docindex

import (
	"fmt"
	"time"
)

// Metadata carries repository-derived facts and free-form custom fields.
type Metadata struct {
	RepositoryName  string `json:"repositoryName"`
	RepositoryOwner string `json:"repositoryOwner"`
	RepositoryURL   string `json:"repositoryUrl"`

	// CodeSymbols holds extracted symbols in "type:name" form.
	CodeSymbols []string `json:"codeSymbols,omitempty"`

	Custom map[string]string `json:"custom,omitempty"`
}

// Document is the unit of indexing and search. Instances are immutable once
// produced; reindexing supersedes them via upsert keyed by ID.
type Document struct {
	// ID is the stable document key used for upserts.
	ID string `json:"documentId"`

	// RepositoryID identifies the owning repository.
	RepositoryID string `json:"repositoryId"`

	FilePath      string `json:"filePath"`
	FileName      string `json:"fileName"`
	FileExtension string `json:"fileExtension"`
	BranchName    string `json:"branchName"`

	// Content is the preprocessed text, including the synthetic header.
	Content string `json:"content"`

	// ContentVector is the embedding. Its length must equal the index's
	// configured dimensionality or the document is invalid.
	ContentVector []float32 `json:"contentVector"`

	Language     string    `json:"language"`
	LineCount    int       `json:"lineCount"`
	SizeInBytes  int       `json:"sizeInBytes"`
	LastModified time.Time `json:"lastModified"`

	Metadata Metadata `json:"metadata"`
}

// Validate checks the invariants a document must satisfy before indexing.
func (d *Document) Validate(dimension int) error {
	if d.ID == "" {
		return fmt.Errorf("%w: missing document id", ErrInvalidDocument)
	}
	if d.RepositoryID == "" {
		return fmt.Errorf("%w: missing repository id", ErrInvalidDocument)
	}
	if len(d.ContentVector) != dimension {
		return fmt.Errorf("%w: vector dimension %d, index requires %d",
			ErrInvalidDocument, len(d.ContentVector), dimension)
	}
	return nil
}

// fieldValue returns a document field by its index schema name. Unknown
// fields return the empty string.
func (d *Document) fieldValue(field string) string {
	switch field {
	case "documentId":
		return d.ID
	case "repositoryId":
		return d.RepositoryID
	case "filePath":
		return d.FilePath
	case "fileName":
		return d.FileName
	case "fileExtension":
		return d.FileExtension
	case "branchName":
		return d.BranchName
	case "language":
		return d.Language
	case "repositoryName":
		return d.Metadata.RepositoryName
	case "repositoryOwner":
		return d.Metadata.RepositoryOwner
	case "repositoryUrl":
		return d.Metadata.RepositoryURL
	case "lineCount":
		return fmt.Sprintf("%d", d.LineCount)
	case "sizeInBytes":
		return fmt.Sprintf("%d", d.SizeInBytes)
	case "lastModified":
		return d.LastModified.UTC().Format(time.RFC3339)
	default:
		if v, ok := d.Metadata.Custom[field]; ok {
			return v
		}
		return ""
	}
}
