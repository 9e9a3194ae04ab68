package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/soullock/tracker-server/internal/hub"
	"github.com/soullock/tracker-server/internal/store"
	"github.com/soullock/tracker-server/internal/ws"
)

func SetupRoutes(h *hub.Hub, st store.Store, log *zap.Logger, originPatterns []string) http.Handler {
	r := chi.NewRouter()

	r.Post("/rooms", CreateRoom(st, log))
	r.Get("/rooms/{roomId}", GetRoom(st, log))
	r.Get("/health", Health)
	r.Get("/ws", ws.Handler(h, st, log, originPatterns))
	return r
}
