package routes

import (
	"net/http"

	"github.com/tonoapp/tono-server/handlers"
	middleware "github.com/tonoapp/tono-server/middlewares"
)

func ToneRoutes(mux *http.ServeMux, th *handlers.ToneHandler, auth *middleware.Auth) {
	mux.Handle("POST /api/tones", auth.Middleware(http.HandlerFunc(th.CreateTone)))
	mux.Handle("GET /api/tones", auth.Middleware(http.HandlerFunc(th.ListTones)))
	mux.Handle("GET /api/tones/{id}", auth.Middleware(http.HandlerFunc(th.GetTone)))
	mux.Handle("PUT /api/tones/{id}", auth.Middleware(http.HandlerFunc(th.UpdateTone)))
	mux.Handle("DELETE /api/tones/{id}", auth.Middleware(http.HandlerFunc(th.DeleteTone)))
	mux.Handle("POST /api/tones/{id}/regenerate", auth.Middleware(http.HandlerFunc(th.RegenerateTone)))
}
