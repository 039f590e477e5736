package api

import (
	"net/http"

	"collab-relay/internal/metrics"
	"collab-relay/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

func SetupRoutes(h *Handler, allowedOrigins []string, log *zap.Logger) http.Handler {
	r := mux.NewRouter()
	recovery := middleware.ErrorRecoveryMiddleware(log)

	// Untraced: an upgrade would keep its HTTP span open for the socket's
	// lifetime. Each relayed event starts its own root span instead.
	r.Handle("/ws", recovery(http.HandlerFunc(h.HandleWebSocket))).Methods("GET")

	traced := r.NewRoute().Subrouter()
	// Tracing first so recovered panics still end up on a span
	traced.Use(middleware.TracingMiddleware(log))
	traced.Use(recovery)

	api := traced.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.Health).Methods("GET")
	api.HandleFunc("/rooms", h.ListRooms).Methods("GET")
	api.HandleFunc("/rooms/{id}/members", h.GetRoomMembers).Methods("GET")
	api.HandleFunc("/rooms/{id}/activity", h.GetRoomActivity).Methods("GET")

	traced.Handle("/metrics", metrics.Handler()).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	})

	return c.Handler(r)
}
