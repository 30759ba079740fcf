package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	selectCredits = "SELECT generations_used, generations_limit, last_reset_date"
	updateCredits = "UPDATE users"
)

func newTestLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLedger(db, zap.NewNop()), mock
}

func creditRows(used, limit int, lastReset interface{}) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"generations_used", "generations_limit", "last_reset_date"}).
		AddRow(used, limit, lastReset)
}

func TestTryReserveSuccess(t *testing.T) {
	ledger, mock := newTestLedger(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(selectCredits).
		WithArgs(userID).
		WillReturnRows(creditRows(2, 5, time.Now().UTC()))
	mock.ExpectExec(updateCredits).
		WithArgs(3, userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := ledger.TryReserve(context.Background(), userID)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTryReserveExhausted(t *testing.T) {
	ledger, mock := newTestLedger(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(selectCredits).
		WithArgs(userID).
		WillReturnRows(creditRows(5, 5, time.Now().UTC()))
	mock.ExpectRollback()

	err := ledger.TryReserve(context.Background(), userID)
	require.ErrorIs(t, err, ErrExhausted)
	require.NoError(t, mock.ExpectationsWereMet())
}

// A user with limit N gets exactly N reservations and the (N+1)th is
// rejected, with no missed or double charge.
func TestTryReserveExactExhaustion(t *testing.T) {
	ledger, mock := newTestLedger(t)
	userID := uuid.New()
	const limit = 3
	now := time.Now().UTC()

	for used := 0; used < limit; used++ {
		mock.ExpectBegin()
		mock.ExpectQuery(selectCredits).
			WithArgs(userID).
			WillReturnRows(creditRows(used, limit, now))
		mock.ExpectExec(updateCredits).
			WithArgs(used+1, userID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}
	mock.ExpectBegin()
	mock.ExpectQuery(selectCredits).
		WithArgs(userID).
		WillReturnRows(creditRows(limit, limit, now))
	mock.ExpectRollback()

	for i := 0; i < limit; i++ {
		require.NoError(t, ledger.TryReserve(context.Background(), userID), "reservation %d", i+1)
	}
	require.ErrorIs(t, ledger.TryReserve(context.Background(), userID), ErrExhausted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTryReserveMonthlyReset(t *testing.T) {
	ledger, mock := newTestLedger(t)
	userID := uuid.New()
	lastMonth := time.Now().UTC().AddDate(0, -1, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(selectCredits).
		WithArgs(userID).
		WillReturnRows(creditRows(5, 5, lastMonth))
	// Counter was exhausted last month; the lazy reset frees it up and
	// stamps a new reset date.
	mock.ExpectExec(updateCredits).
		WithArgs(1, sqlmock.AnyArg(), userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := ledger.TryReserve(context.Background(), userID)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTryReserveNeverResetUser(t *testing.T) {
	ledger, mock := newTestLedger(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(selectCredits).
		WithArgs(userID).
		WillReturnRows(creditRows(0, 5, nil))
	mock.ExpectExec(updateCredits).
		WithArgs(1, sqlmock.AnyArg(), userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, ledger.TryReserve(context.Background(), userID))
	require.NoError(t, mock.ExpectationsWereMet())
}

// Infrastructure failures must stay distinguishable from exhaustion.
func TestTryReserveTransientFailure(t *testing.T) {
	ledger, mock := newTestLedger(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(selectCredits).
		WithArgs(userID).
		WillReturnError(fmt.Errorf("connection reset"))
	mock.ExpectRollback()

	err := ledger.TryReserve(context.Background(), userID)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrExhausted))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestShouldReset(t *testing.T) {
	now := time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		lastReset sql.NullTime
		want      bool
	}{
		{"never reset", sql.NullTime{}, true},
		{"same month", sql.NullTime{Valid: true, Time: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)}, false},
		{"same day", sql.NullTime{Valid: true, Time: now}, false},
		{"previous month", sql.NullTime{Valid: true, Time: time.Date(2025, time.February, 28, 23, 59, 0, 0, time.UTC)}, true},
		{"same month last year", sql.NullTime{Valid: true, Time: time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldReset(now, tt.lastReset))
		})
	}
}
