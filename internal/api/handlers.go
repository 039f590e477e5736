package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"collab-relay/internal/middleware"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handler serves the HTTP side of the relay
type Handler struct {
	rooms     RoomDirectory
	activity  ActivityReader // nil when the activity log is disabled
	wsHandler http.Handler
	log       *zap.Logger
}

func NewHandler(rooms RoomDirectory, activity ActivityReader, wsHandler http.Handler, log *zap.Logger) *Handler {
	return &Handler{
		rooms:     rooms,
		activity:  activity,
		wsHandler: wsHandler,
		log:       log,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rooms": h.rooms.Rooms(),
	})
}

func (h *Handler) GetRoomMembers(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	writeJSON(w, http.StatusOK, h.rooms.RoomMembers(id))
}

func (h *Handler) GetRoomActivity(w http.ResponseWriter, r *http.Request) {
	if h.activity == nil {
		http.Error(w, "activity log is disabled", http.StatusNotFound)
		return
	}

	id := mux.Vars(r)["id"]

	limit := 0 // repository default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	entries, err := h.activity.ListByRoom(r.Context(), id, limit)
	if err != nil {
		middleware.AddSpanError(r.Context(), err)
		h.log.Error("failed to list activity",
			zap.String("room", id),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err),
		)
		http.Error(w, "failed to load activity", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"roomId":  id,
		"entries": entries,
		"count":   len(entries),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
