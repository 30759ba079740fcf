package webhooks

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

func newTestStripeProcessor(t *testing.T) (*StripeProcessor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStripeProcessor(db, zap.NewNop(), 5, 50), mock
}

func stripeEvent(id, eventType, raw string) stripe.Event {
	return stripe.Event{
		ID:   id,
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: json.RawMessage(raw)},
	}
}

func TestApplyUnknownEventType(t *testing.T) {
	p, mock := newTestStripeProcessor(t)

	err := p.Apply(context.Background(), stripeEvent("evt_1", "charge.refunded", `{}`))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionCreatedUpgradesUser(t *testing.T) {
	p, mock := newTestStripeProcessor(t)

	raw := `{
		"id": "sub_x",
		"customer": {"id": "cus_1"},
		"status": "active",
		"cancel_at_period_end": false,
		"items": {"data": [{"price": {"id": "price_pro"}, "current_period_end": 1767225600}]}
	}`

	mock.ExpectQuery("SELECT uuid FROM users WHERE stripe_customer_id").
		WithArgs("cus_1").
		WillReturnRows(sqlmock.NewRows([]string{"uuid"}).AddRow("user-uuid-1"))
	mock.ExpectExec("INSERT INTO subscriptions").
		WithArgs("sub_x", "user-uuid-1", "active", "price_pro", sqlmock.AnyArg(), false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET generations_limit").
		WithArgs(50, "user-uuid-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := p.Apply(context.Background(), stripeEvent("evt_2", "customer.subscription.created", raw))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionDeletedDowngradesUser(t *testing.T) {
	p, mock := newTestStripeProcessor(t)

	raw := `{"id": "sub_x", "customer": {"id": "cus_1"}, "status": "canceled"}`

	mock.ExpectQuery("SELECT uuid FROM users WHERE stripe_customer_id").
		WithArgs("cus_1").
		WillReturnRows(sqlmock.NewRows([]string{"uuid"}).AddRow("user-uuid-1"))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM subscriptions").
		WithArgs("sub_x").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET generations_limit").
		WithArgs(5, "user-uuid-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := p.Apply(context.Background(), stripeEvent("evt_3", "customer.subscription.deleted", raw))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// An event for a customer we don't know is a data-integrity gap:
// acknowledged, not retried, no writes.
func TestSubscriptionEventUnknownCustomerIsNoOp(t *testing.T) {
	p, mock := newTestStripeProcessor(t)

	raw := `{"id": "sub_x", "customer": {"id": "cus_missing"}, "status": "active"}`

	mock.ExpectQuery("SELECT uuid FROM users WHERE stripe_customer_id").
		WithArgs("cus_missing").
		WillReturnError(sql.ErrNoRows)

	err := p.Apply(context.Background(), stripeEvent("evt_4", "customer.subscription.created", raw))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutCompletedLinksCustomer(t *testing.T) {
	p, mock := newTestStripeProcessor(t)

	raw := `{"id": "cs_1", "customer": {"id": "cus_1"}, "metadata": {"userID": "user-uuid-1"}}`

	mock.ExpectExec("UPDATE users SET stripe_customer_id").
		WithArgs("cus_1", "user-uuid-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := p.Apply(context.Background(), stripeEvent("evt_5", "checkout.session.completed", raw))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
