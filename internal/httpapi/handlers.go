package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/soullock/tracker-server/internal/store"
	"github.com/soullock/tracker-server/pkg/document"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// CreateRoom allocates a short room id and persists an empty document.
func CreateRoom(st store.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := store.NewRoomID()
		state := document.NewInitialState(time.Now())

		if err := st.CreateRoom(r.Context(), roomID, state); err != nil {
			log.Error("failed to create room", zap.String("room", roomID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "internal_server_error",
				"message": "Something went wrong.",
			})
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"roomId": roomID})
	}
}

// GetRoom reports whether a room exists; it never returns the document
// itself, that only travels over the realtime channel.
func GetRoom(st store.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")

		_, err := st.GetRoom(r.Context(), roomID)
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error":   "room_not_found",
				"message": "The requested room does not exist.",
			})
			return
		}
		if err != nil {
			log.Error("failed to fetch room", zap.String("room", roomID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "internal_server_error",
				"message": "Something went wrong.",
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"roomId":   roomID,
			"hasState": true,
		})
	}
}

func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
