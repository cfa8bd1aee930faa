package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Document is a logical unit pulled from a source: a message, a page, a file.
// The ID is source-qualified (e.g. "slack:C042:1700000000.000100") and stable
// across re-fetches; a re-fetch with the same ID supersedes the previous
// version.
type Document struct {
	ID         string          `json:"id" db:"id"`
	CCPID      uuid.UUID       `json:"ccp_id" db:"ccp_id"`
	SourceType string          `json:"source_type" db:"source_type"`
	Title      string          `json:"title" db:"title"`
	Link       string          `json:"link,omitempty" db:"link"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
	Metadata   json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// DocumentChunk is a contiguous slice of a document's text. The ID is a pure
// function of (document id, chunk index), so re-chunking an unchanged
// document produces identical rows.
type DocumentChunk struct {
	ID         uuid.UUID `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	Content    string    `json:"content" db:"content"`
	TokenCount int       `json:"token_count" db:"token_count"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// AccessControlEntry maps a document to the principals and groups permitted
// to view it. Recomputed on every re-index of the owning document; stale
// entries are overwritten, never merged.
type AccessControlEntry struct {
	DocumentID string    `json:"document_id" db:"document_id"`
	Principals []string  `json:"principals" db:"principals"`
	Groups     []string  `json:"groups" db:"groups"`
	IsPublic   bool      `json:"is_public" db:"is_public"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Permits reports whether the given principal (with group memberships) may
// view the document.
func (a *AccessControlEntry) Permits(principal string, groups []string) bool {
	if a.IsPublic {
		return true
	}
	for _, p := range a.Principals {
		if p == principal {
			return true
		}
	}
	for _, g := range a.Groups {
		for _, mg := range groups {
			if g == mg {
				return true
			}
		}
	}
	return false
}

// Tag is a (key, value) facet attached to documents for filtering.
type Tag struct {
	Key   string `json:"key" db:"tag_key"`
	Value string `json:"value" db:"tag_value"`
}
