package handlers

import (
	"database/sql"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/tonoapp/tono-server/utils"
)

type Health struct {
	DB    *sql.DB
	Redis *redis.Client
}

func (h *Health) Check(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.PingContext(r.Context()); err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	if err := h.Redis.Ping(r.Context()).Err(); err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "redis unreachable")
		return
	}
	utils.RespondSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}
