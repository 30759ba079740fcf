package handlers

import (
	"context"
	"database/sql"
	"net/http"

	middleware "github.com/tonoapp/tono-server/middlewares"
	"github.com/tonoapp/tono-server/models"
	"github.com/tonoapp/tono-server/utils"
)

// currentUser resolves the authenticated Clerk id in the request context
// to a user row. Responds on failure and returns ok=false.
func currentUser(w http.ResponseWriter, r *http.Request, db *sql.DB) (models.User, bool) {
	clerkID, ok := middleware.ClerkIDFromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: User ID not provided")
		return models.User{}, false
	}

	user, err := getUserByClerkID(r.Context(), db, clerkID)
	if err == sql.ErrNoRows {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: Unknown user")
		return models.User{}, false
	}
	if err != nil {
		utils.RespondInternal(w, err, "Failed to load user")
		return models.User{}, false
	}

	return user, true
}

func getUserByClerkID(ctx context.Context, db *sql.DB, clerkID string) (models.User, error) {
	var user models.User
	err := db.QueryRowContext(ctx, `
		SELECT uuid, clerk_id, email, generations_used, generations_limit,
		       stripe_customer_id, last_reset_date, created_at, updated_at
		FROM users
		WHERE clerk_id = $1
	`, clerkID).Scan(
		&user.UUID, &user.ClerkID, &user.Email, &user.GenerationsUsed,
		&user.GenerationsLimit, &user.StripeCustomerID, &user.LastResetDate,
		&user.CreatedAt, &user.UpdatedAt,
	)
	return user, err
}
