package model

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentFormat tags the source format a document was derived from.
type DocumentFormat string

const (
	FormatPDF      DocumentFormat = "pdf"
	FormatMarkdown DocumentFormat = "markdown"
)

// FormatForPath derives the document format from a file extension.
func FormatForPath(path string) (DocumentFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return FormatPDF, nil
	case ".md", ".markdown", ".txt":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported document format %v", filepath.Ext(path))
	}
}

// Document represents a source document. Content is transient: it is
// consumed by the ingestion pipeline and never stored in the database.
// Documents are immutable once chunked; re-ingestion replaces by RID.
type Document struct {
	ID        int64          `json:"id"`
	RID       uuid.UUID      `json:"rid"`
	Title     string         `json:"title"`
	Source    string         `json:"source,omitempty"`
	Format    DocumentFormat `json:"format"`
	Content   string         `json:"content,omitempty" db:"-"`
	Metadata  Metadata       `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Ingestion-completeness flags kept in document metadata. The two write
// paths (vector index, fact graph) are independent; a partial ingest is a
// recoverable state, not a corruption, and these flags expose it.
const (
	MetaVectorIndexed = "vector_indexed"
	MetaGraphLoaded   = "graph_loaded"
)

// DocumentRID derives the stable document identifier from the source
// path. Re-ingesting the same source always addresses the same document,
// which is what makes replace-by-id and chunk-id idempotence work.
func DocumentRID(source string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("fusionrag:"+source))
}

// NewDocument creates a document from raw content. The title defaults to
// the source file name without extension.
func NewDocument(source, content string, metadata Metadata) *Document {
	filename := filepath.Base(source)
	title := strings.TrimSuffix(filename, filepath.Ext(filename))
	if title == "" {
		title = filename
	}
	if metadata == nil {
		metadata = Metadata{}
	}

	// Sources with unknown extensions are treated as markup-derived text.
	format, err := FormatForPath(source)
	if err != nil {
		format = FormatMarkdown
	}

	return &Document{
		RID:      DocumentRID(source),
		Title:    title,
		Source:   source,
		Format:   format,
		Content:  content,
		Metadata: metadata,
	}
}
