package models

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingModel identifies one embedding model version. At most one row is
// primary (serves live vector search) and at most one is secondary (receiving
// backfill writes mid-migration) at any time.
type EmbeddingModel struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Provider       string    `json:"provider" db:"provider"`
	Dim            int       `json:"dim" db:"dim"`
	Status         string    `json:"status" db:"status"`
	BackfillCursor string    `json:"backfill_cursor" db:"backfill_cursor"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

const (
	ModelStatusPrimary   = "primary"
	ModelStatusSecondary = "secondary"
	ModelStatusRetired   = "retired"
)
