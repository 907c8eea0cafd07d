package handlers

import (
	"net/http"

	"vendfleet-backend/internal/realtime"
)

type RealtimeHandler struct {
	hub *realtime.Hub
}

func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// MaterialRequestEvents upgrades to a websocket that receives the caller's
// organization events.
func (h *RealtimeHandler) MaterialRequestEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrUnauthorized(w, r)
	if !ok {
		return
	}
	h.hub.Serve(w, r, actor.OrganizationID)
}
