package api

import (
	"net/http"
)

// HandleWebSocket hands the upgrade to the connection gateway
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.ServeHTTP(w, r)
}
