package routes

import (
	"net/http"

	"github.com/tonoapp/tono-server/handlers"
	middleware "github.com/tonoapp/tono-server/middlewares"
)

func UserRoutes(mux *http.ServeMux, uh *handlers.UserHandler, auth *middleware.Auth) {
	mux.Handle("GET /api/users/me", auth.Middleware(http.HandlerFunc(uh.GetMe)))
}
