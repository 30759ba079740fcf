package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v82/webhook"
	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap"

	"github.com/tonoapp/tono-server/utils"
	"github.com/tonoapp/tono-server/webhooks"
)

const maxWebhookBodyBytes = int64(65536)

// WebhookHandler terminates the signed webhook endpoints. Signature
// failures are the only case that returns non-2xx: the provider should
// retry those and nothing else.
type WebhookHandler struct {
	Dedupe       *webhooks.Dedupe
	Stripe       *webhooks.StripeProcessor
	Clerk        *webhooks.ClerkProcessor
	StripeSecret string
	ClerkWebhook *svix.Webhook
	Logger       *zap.Logger
}

func (h *WebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "Failed to read request body")
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		r.Header.Get("Stripe-Signature"),
		h.StripeSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		h.Logger.Warn("stripe webhook signature failed", zap.Error(err))
		utils.RespondError(w, http.StatusBadRequest, "Signature verification failed")
		return
	}

	h.process(w, r, event.ID, string(event.Type), func() error {
		return h.Stripe.Apply(r.Context(), event)
	})
}

func (h *WebhookHandler) HandleClerk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "Failed to read request body")
		return
	}

	msgID := r.Header.Get("svix-id")
	if err := h.ClerkWebhook.Verify(payload, r.Header); err != nil {
		h.Logger.Warn("clerk webhook signature failed", zap.Error(err))
		utils.RespondError(w, http.StatusBadRequest, "Signature verification failed")
		return
	}

	var event webhooks.ClerkEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	// Clerk carries no event id in the body; the svix message id is the
	// dedupe key.
	h.process(w, r, msgID, event.Type, func() error {
		return h.Clerk.Apply(r.Context(), event)
	})
}

// process runs one verified event through the dedupe ledger. Business
// failures are recorded and still acknowledged; redelivery cannot fix
// them.
func (h *WebhookHandler) process(w http.ResponseWriter, r *http.Request, eventID, eventType string, apply func() error) {
	proceed, err := h.Dedupe.Begin(r.Context(), eventID, eventType)
	if err != nil {
		utils.RespondInternal(w, err, "Failed to record webhook event")
		return
	}
	if !proceed {
		utils.RespondSuccess(w, http.StatusOK, map[string]string{"status": "already_processed"})
		return
	}

	if err := apply(); err != nil {
		h.Logger.Error("webhook processing failed",
			zap.String("event_id", eventID),
			zap.String("event_type", eventType),
			zap.Error(err))
		if ferr := h.Dedupe.Fail(r.Context(), eventID, err.Error()); ferr != nil {
			h.Logger.Error("failed to record webhook failure", zap.Error(ferr))
		}
		utils.RespondSuccess(w, http.StatusOK, map[string]string{"status": "failed"})
		return
	}

	if err := h.Dedupe.Commit(r.Context(), eventID); err != nil {
		h.Logger.Error("failed to mark webhook processed", zap.Error(err))
	}

	utils.RespondSuccess(w, http.StatusOK, map[string]string{"status": "processed"})
}
