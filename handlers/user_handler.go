package handlers

import (
	"database/sql"
	"net/http"

	"go.uber.org/zap"

	"github.com/tonoapp/tono-server/models"
	"github.com/tonoapp/tono-server/utils"
)

type UserHandler struct {
	DB     *sql.DB
	Logger *zap.Logger
}

// GetMe returns the authenticated user's profile, including credit usage
// and the current plan.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.DB)
	if !ok {
		return
	}

	var hasActiveSub bool
	err := h.DB.QueryRowContext(r.Context(), `
		SELECT EXISTS (
			SELECT 1 FROM subscriptions
			WHERE user_uuid = $1 AND status IN ('active', 'trialing')
		)
	`, user.UUID).Scan(&hasActiveSub)
	if err != nil {
		utils.RespondInternal(w, err, "Failed to load subscription")
		return
	}

	plan := "free"
	if hasActiveSub {
		plan = "pro"
	}

	utils.RespondSuccess(w, http.StatusOK, models.UserProfile{
		UUID:             user.UUID,
		Email:            user.Email,
		Plan:             plan,
		GenerationsUsed:  user.GenerationsUsed,
		GenerationsLimit: user.GenerationsLimit,
		CreatedAt:        user.CreatedAt,
	})
}
