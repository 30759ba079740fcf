package routes

import (
	"net/http"

	"github.com/tonoapp/tono-server/handlers"
	middleware "github.com/tonoapp/tono-server/middlewares"
)

func StripeRoutes(mux *http.ServeMux, s *handlers.Stripe, auth *middleware.Auth) {
	mux.Handle("POST /api/stripe/create-session", auth.Middleware(http.HandlerFunc(s.CreateCheckoutSession)))
	mux.Handle("POST /api/stripe/cancel-subscription", auth.Middleware(http.HandlerFunc(s.CancelSubscription)))
	mux.Handle("GET /api/stripe/subscription", auth.Middleware(http.HandlerFunc(s.GetSubscription)))
}
