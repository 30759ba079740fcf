package handlers

import (
	"database/sql"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"go.uber.org/zap"

	"github.com/tonoapp/tono-server/config"
	"github.com/tonoapp/tono-server/models"
	"github.com/tonoapp/tono-server/utils"
)

type Stripe struct {
	DB     *sql.DB
	Cfg    *config.Config
	Logger *zap.Logger
}

// CreateCheckoutSession starts a subscription checkout for the pro plan
// and returns the hosted checkout URL.
func (s *Stripe) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, s.DB)
	if !ok {
		return
	}

	customerID, err := s.ensureCustomer(r, user)
	if err != nil {
		utils.RespondInternal(w, err, "Unable to prepare billing")
		return
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(customerID),
		SuccessURL: stripe.String(s.Cfg.FrontendURL + "/billing/success"),
		CancelURL:  stripe.String(s.Cfg.FrontendURL + "/billing/cancel"),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.Cfg.StripePriceIDPro),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"userID": user.UUID.String(),
			},
		},
	}
	params.AddMetadata("userID", user.UUID.String())

	result, err := session.New(params)
	if err != nil {
		utils.RespondInternal(w, err, "Unable to create checkout session")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, map[string]string{"checkout_url": result.URL})
}

// CancelSubscription flags the user's subscription to cancel at period
// end; the definitive state change arrives later via webhook.
func (s *Stripe) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, s.DB)
	if !ok {
		return
	}

	var stripeID string
	err := s.DB.QueryRowContext(r.Context(), `
		SELECT stripe_id FROM subscriptions
		WHERE user_uuid = $1 AND status IN ('active', 'trialing', 'past_due')
		ORDER BY created_at DESC
		LIMIT 1
	`, user.UUID).Scan(&stripeID)
	if err == sql.ErrNoRows {
		utils.RespondError(w, http.StatusNotFound, "Subscription not found")
		return
	}
	if err != nil {
		utils.RespondInternal(w, err, "Failed to fetch subscription")
		return
	}

	_, err = subscription.Update(stripeID, &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	if err != nil {
		utils.RespondInternal(w, err, "Failed to cancel subscription")
		return
	}

	if _, err := s.DB.ExecContext(r.Context(), `
		UPDATE subscriptions SET cancel_at_period_end = true, updated_at = now()
		WHERE stripe_id = $1
	`, stripeID); err != nil {
		utils.RespondInternal(w, err, "Failed to update subscription")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, map[string]string{"status": "cancel_at_period_end"})
}

// GetSubscription returns the user's mirrored subscription, if any.
func (s *Stripe) GetSubscription(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, s.DB)
	if !ok {
		return
	}

	var sub models.Subscription
	err := s.DB.QueryRowContext(r.Context(), `
		SELECT uuid, stripe_id, user_uuid, status, price_id, current_period_end, cancel_at_period_end, created_at, updated_at
		FROM subscriptions
		WHERE user_uuid = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, user.UUID).Scan(&sub.UUID, &sub.StripeID, &sub.UserUUID, &sub.Status,
		&sub.PriceID, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		utils.RespondError(w, http.StatusNotFound, "Subscription not found")
		return
	}
	if err != nil {
		utils.RespondInternal(w, err, "Failed to fetch subscription")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, sub)
}

func (s *Stripe) ensureCustomer(r *http.Request, user models.User) (string, error) {
	if user.StripeCustomerID.Valid && user.StripeCustomerID.String != "" {
		return user.StripeCustomerID.String, nil
	}

	params := &stripe.CustomerParams{Email: stripe.String(user.Email)}
	params.AddMetadata("userID", user.UUID.String())

	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}

	if _, err := s.DB.ExecContext(r.Context(), `
		UPDATE users SET stripe_customer_id = $1, updated_at = now() WHERE uuid = $2
	`, cust.ID, user.UUID); err != nil {
		return "", err
	}

	return cust.ID, nil
}
