package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"github.com/tonoapp/tono-server/config"
	middleware "github.com/tonoapp/tono-server/middlewares"
)

// fakeStripeBackend points the stripe client at a local server for the
// duration of the test and restores the global backend and key after.
func fakeStripeBackend(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	prevBackend := stripe.GetBackend(stripe.APIBackend)
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL: stripe.String(srv.URL),
	}))
	t.Cleanup(func() { stripe.SetBackend(stripe.APIBackend, prevBackend) })

	prevKey := stripe.Key
	stripe.Key = "sk_test_wired_once"
	t.Cleanup(func() { stripe.Key = prevKey })
}

func TestCreateCheckoutSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fakeStripeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/customers":
			fmt.Fprint(w, `{"id":"cus_test_1","object":"customer"}`)
		case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout/sessions":
			fmt.Fprint(w, `{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	userID := uuid.New()
	mock.ExpectQuery("SELECT uuid, clerk_id, email").
		WithArgs("user_clerk_1").
		WillReturnRows(userRows(userID))
	mock.ExpectExec("UPDATE users SET stripe_customer_id").
		WithArgs("cus_test_1", userID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	h := &Stripe{
		DB: db,
		Cfg: &config.Config{
			StripeKey:        "sk_live_from_config",
			StripePriceIDPro: "price_pro_1",
			FrontendURL:      "http://localhost:3000",
		},
		Logger: zap.NewNop(),
	}

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/create-session", strings.NewReader("{}"))
	req = req.WithContext(context.WithValue(req.Context(), middleware.ClerkIDContextKey, "user_clerk_1"))
	rec := httptest.NewRecorder()

	h.CreateCheckoutSession(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://checkout.stripe.com/c/pay/cs_test_1")
	// The API key is wired once at startup; request handling must not
	// reassign the package-level key from config.
	assert.Equal(t, "sk_test_wired_once", stripe.Key)
	require.NoError(t, mock.ExpectationsWereMet())
}
