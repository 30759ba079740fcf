// Package webhooks makes inbound Stripe and Clerk webhook processing
// idempotent and applies the per-event business effects.
package webhooks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const pqUniqueViolation = "23505"

// Dedupe is the write-once idempotency ledger over the webhook_events
// table. Providers deliver at least once; the unique constraint on
// event_id is the actual concurrency guard.
type Dedupe struct {
	DB     *sql.DB
	Logger *zap.Logger
}

func NewDedupe(db *sql.DB, logger *zap.Logger) *Dedupe {
	return &Dedupe{DB: db, Logger: logger}
}

// Begin records the event before any business logic runs. It returns
// proceed=false when the event id was seen before, including when a
// concurrent duplicate wins the insert race.
func (d *Dedupe) Begin(ctx context.Context, eventID, eventType string) (bool, error) {
	var exists bool
	err := d.DB.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM webhook_events WHERE event_id = $1)
	`, eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up webhook event: %w", err)
	}
	if exists {
		d.Logger.Debug("duplicate webhook event", zap.String("event_id", eventID))
		return false, nil
	}

	_, err = d.DB.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type, processed)
		VALUES ($1, $2, false)
	`, eventID, eventType)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			// Lost the insert race to a concurrent delivery.
			d.Logger.Debug("concurrent duplicate webhook event", zap.String("event_id", eventID))
			return false, nil
		}
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}

	return true, nil
}

// Commit marks the event processed. Call only after the business effects
// are durably applied.
func (d *Dedupe) Commit(ctx context.Context, eventID string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE webhook_events SET processed = true WHERE event_id = $1
	`, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	return nil
}

// Fail records the error text for observability. The row stays
// unprocessed; the handler still acknowledges the delivery so the
// provider does not redeliver an event that cannot succeed.
func (d *Dedupe) Fail(ctx context.Context, eventID, errMsg string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE webhook_events SET processed = false, error = $1 WHERE event_id = $2
	`, errMsg, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark webhook event failed: %w", err)
	}
	return nil
}
