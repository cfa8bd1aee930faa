package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ConnectorCredentialPair is one configured source instance: a source type
// plus its connection config and a reference to stored credentials.
type ConnectorCredentialPair struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	SourceType      string          `json:"source_type" db:"source_type"`
	Config          json.RawMessage `json:"config" db:"config"`
	CredentialRef   string          `json:"credential_ref,omitempty" db:"credential_ref"`
	Status          string          `json:"status" db:"status"`
	Cursor          string          `json:"cursor" db:"cursor"`
	RefreshInterval int             `json:"refresh_interval_secs" db:"refresh_interval_secs"`
	LastRunAt       *time.Time      `json:"last_run_at,omitempty" db:"last_run_at"`
	DocsIndexed     int64           `json:"docs_indexed" db:"docs_indexed"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

const (
	CCPStatusActive   = "active"
	CCPStatusPaused   = "paused"
	CCPStatusError    = "error"
	CCPStatusDeleting = "deleting"
)

// HasSuccessfulRun reports whether the pair has ever completed an index run.
func (c *ConnectorCredentialPair) HasSuccessfulRun() bool {
	return c.LastRunAt != nil
}

// IndexAttempt is one execution of a CCP against the pipeline. Rows are
// immutable once the status is terminal.
type IndexAttempt struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	CCPID         uuid.UUID  `json:"ccp_id" db:"ccp_id"`
	Status        string     `json:"status" db:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	DocsProcessed int        `json:"docs_processed" db:"docs_processed"`
	ErrorDetail   string     `json:"error_detail,omitempty" db:"error_detail"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

const (
	AttemptStatusScheduled  = "scheduled"
	AttemptStatusInProgress = "in_progress"
	AttemptStatusSuccess    = "success"
	AttemptStatusFailed     = "failed"
)

func (a *IndexAttempt) Terminal() bool {
	return a.Status == AttemptStatusSuccess || a.Status == AttemptStatusFailed
}
