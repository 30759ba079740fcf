package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is one row of the dedupe ledger. Rows are inserted before
// an event is processed and marked afterwards, never deleted.
type WebhookEvent struct {
	UUID      uuid.UUID      `db:"uuid"`
	EventID   string         `db:"event_id"`
	EventType string         `db:"event_type"`
	Processed bool           `db:"processed"`
	Error     sql.NullString `db:"error"`
	CreatedAt time.Time      `db:"created_at"`
}
