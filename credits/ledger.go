// Package credits meters AI generations against each user's monthly quota.
package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrExhausted is returned when a user has no generation credits left in
// the current period. It is an expected outcome, not an infrastructure
// failure, and callers must branch on it explicitly.
var ErrExhausted = errors.New("generation credits exhausted")

type Ledger struct {
	DB     *sql.DB
	Logger *zap.Logger
}

func NewLedger(db *sql.DB, logger *zap.Logger) *Ledger {
	return &Ledger{DB: db, Logger: logger}
}

// TryReserve atomically consumes one generation credit for the user.
//
// The read-check-increment runs in a single serializable transaction with
// the user row locked, so two concurrent requests can never both observe
// headroom when only one unit remains. The transaction commits before any
// oracle call begins; a reservation is never held across slow I/O.
//
// There is no refund path: if the oracle call or the record write fails
// after a successful reservation, the credit stays consumed.
func (l *Ledger) TryReserve(ctx context.Context, userUUID uuid.UUID) error {
	tx, err := l.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin reservation transaction: %w", err)
	}
	defer tx.Rollback()

	var used, limit int
	var lastReset sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT generations_used, generations_limit, last_reset_date
		FROM users
		WHERE uuid = $1
		FOR UPDATE
	`, userUUID).Scan(&used, &limit, &lastReset)
	if err != nil {
		return fmt.Errorf("failed to load user credits: %w", err)
	}

	now := time.Now().UTC()
	reset := shouldReset(now, lastReset)
	if reset {
		used = 0
	}

	if used >= limit {
		l.Logger.Info("generation credits exhausted",
			zap.String("user_uuid", userUUID.String()),
			zap.Int("limit", limit))
		return ErrExhausted
	}

	if reset {
		_, err = tx.ExecContext(ctx, `
			UPDATE users
			SET generations_used = $1, last_reset_date = $2, updated_at = now()
			WHERE uuid = $3
		`, used+1, now, userUUID)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE users
			SET generations_used = $1, updated_at = now()
			WHERE uuid = $2
		`, used+1, userUUID)
	}
	if err != nil {
		return fmt.Errorf("failed to update user credits: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reservation: %w", err)
	}

	return nil
}

// shouldReset reports whether the counter belongs to an earlier calendar
// month than now. A user who has never reserved resets on first use.
func shouldReset(now time.Time, lastReset sql.NullTime) bool {
	if !lastReset.Valid {
		return true
	}
	last := lastReset.Time.UTC()
	return last.Year() != now.Year() || last.Month() != now.Month()
}
