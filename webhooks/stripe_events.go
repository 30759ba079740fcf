package webhooks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

// StripeProcessor applies the business effects of Stripe events:
// subscription rows mirror the provider state and the user's generation
// limit follows the plan. Subscription writes are plain upserts,
// last-writer-wins.
type StripeProcessor struct {
	DB        *sql.DB
	Logger    *zap.Logger
	FreeLimit int
	ProLimit  int
}

func NewStripeProcessor(db *sql.DB, logger *zap.Logger, freeLimit, proLimit int) *StripeProcessor {
	return &StripeProcessor{DB: db, Logger: logger, FreeLimit: freeLimit, ProLimit: proLimit}
}

// Apply dispatches one verified, deduplicated event. Unknown event types
// are acknowledged as a no-op. A missing user is logged and swallowed:
// redelivery cannot repair a data-integrity gap.
func (p *StripeProcessor) Apply(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return p.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.created", "customer.subscription.updated":
		return p.handleSubscriptionChanged(ctx, event)
	case "customer.subscription.deleted":
		return p.handleSubscriptionDeleted(ctx, event)
	case "invoice.payment_failed":
		return p.handleInvoicePaymentFailed(ctx, event)
	default:
		p.Logger.Debug("ignoring stripe event", zap.String("type", string(event.Type)))
		return nil
	}
}

func (p *StripeProcessor) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("failed to parse checkout.session.completed: %w", err)
	}

	userID := sess.Metadata["userID"]
	if userID == "" {
		p.Logger.Warn("checkout session missing userID metadata", zap.String("event_id", event.ID))
		return nil
	}

	customerID := ""
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}

	res, err := p.DB.ExecContext(ctx, `
		UPDATE users SET stripe_customer_id = $1, updated_at = now() WHERE uuid = $2
	`, customerID, userID)
	if err != nil {
		return fmt.Errorf("failed to link stripe customer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		p.Logger.Warn("checkout completed for unknown user",
			zap.String("user_uuid", userID), zap.String("event_id", event.ID))
	}
	return nil
}

func (p *StripeProcessor) handleSubscriptionChanged(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to parse subscription event: %w", err)
	}

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}

	userUUID, err := p.lookupUserByCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if userUUID == "" {
		p.Logger.Warn("subscription event for unknown customer",
			zap.String("customer_id", customerID), zap.String("event_id", event.ID))
		return nil
	}

	var priceID string
	var periodEnd sql.NullTime
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			priceID = item.Price.ID
		}
		if item.CurrentPeriodEnd > 0 {
			periodEnd = sql.NullTime{Valid: true, Time: time.Unix(item.CurrentPeriodEnd, 0).UTC()}
		}
	}

	_, err = p.DB.ExecContext(ctx, `
		INSERT INTO subscriptions (stripe_id, user_uuid, status, price_id, current_period_end, cancel_at_period_end)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (stripe_id)
		DO UPDATE SET
			status = EXCLUDED.status,
			price_id = EXCLUDED.price_id,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			updated_at = now()
	`, sub.ID, userUUID, string(sub.Status), priceID, periodEnd, sub.CancelAtPeriodEnd)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}

	if sub.Status == stripe.SubscriptionStatusActive || sub.Status == stripe.SubscriptionStatusTrialing {
		if err := p.setGenerationsLimit(ctx, userUUID, p.ProLimit); err != nil {
			return err
		}
	}
	return nil
}

func (p *StripeProcessor) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to parse subscription.deleted: %w", err)
	}

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}

	userUUID, err := p.lookupUserByCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if userUUID == "" {
		p.Logger.Warn("subscription.deleted for unknown customer",
			zap.String("customer_id", customerID), zap.String("event_id", event.ID))
		return nil
	}

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM subscriptions WHERE stripe_id = $1
	`, sub.ID); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET generations_limit = $1, updated_at = now() WHERE uuid = $2
	`, p.FreeLimit, userUUID); err != nil {
		return fmt.Errorf("failed to downgrade user: %w", err)
	}

	return tx.Commit()
}

func (p *StripeProcessor) handleInvoicePaymentFailed(ctx context.Context, event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("failed to parse invoice.payment_failed: %w", err)
	}

	customerID := ""
	if inv.Customer != nil {
		customerID = inv.Customer.ID
	}

	userUUID, err := p.lookupUserByCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if userUUID == "" {
		p.Logger.Warn("payment failure for unknown customer",
			zap.String("customer_id", customerID), zap.String("event_id", event.ID))
		return nil
	}

	_, err = p.DB.ExecContext(ctx, `
		UPDATE subscriptions SET status = 'past_due', updated_at = now() WHERE user_uuid = $1
	`, userUUID)
	if err != nil {
		return fmt.Errorf("failed to flag past_due subscription: %w", err)
	}

	p.Logger.Warn("invoice payment failed", zap.String("user_uuid", userUUID))
	return nil
}

func (p *StripeProcessor) lookupUserByCustomer(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", nil
	}
	var userUUID string
	err := p.DB.QueryRowContext(ctx, `
		SELECT uuid FROM users WHERE stripe_customer_id = $1
	`, customerID).Scan(&userUUID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up user by customer: %w", err)
	}
	return userUUID, nil
}

func (p *StripeProcessor) setGenerationsLimit(ctx context.Context, userUUID string, limit int) error {
	_, err := p.DB.ExecContext(ctx, `
		UPDATE users SET generations_limit = $1, updated_at = now() WHERE uuid = $2
	`, limit, userUUID)
	if err != nil {
		return fmt.Errorf("failed to set generations limit: %w", err)
	}
	return nil
}
