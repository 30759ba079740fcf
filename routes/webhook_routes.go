package routes

import (
	"net/http"

	"github.com/tonoapp/tono-server/handlers"
)

// Webhook endpoints are unauthenticated; signature verification happens
// inside the handlers.
func WebhookRoutes(mux *http.ServeMux, wh *handlers.WebhookHandler) {
	mux.HandleFunc("POST /webhooks/stripe", wh.HandleStripe)
	mux.HandleFunc("POST /webhooks/clerk", wh.HandleClerk)
}
