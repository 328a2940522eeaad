package http

import (
	"net/http"

	"github.com/viaforteexpress/campaign-engine/internal/service/progress"
)

// WebsocketHandler exposes the progress hub's observer endpoint
type WebsocketHandler struct {
	hub *progress.Hub
}

func NewWebsocketHandler(hub *progress.Hub) *WebsocketHandler {
	return &WebsocketHandler{hub: hub}
}

func (h *WebsocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.handleConnect)
}

func (h *WebsocketHandler) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.hub.ServeWS(w, r)
}
