package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/roommatch/internal/api/response"
	"github.com/mcoot/roommatch/internal/model"
	"github.com/mcoot/roommatch/internal/services/matchmaking"
)

// PlayerHandler handles player endpoints
type PlayerHandler struct {
	service *matchmaking.Service
}

// NewPlayerHandler creates a new player handler
func NewPlayerHandler(service *matchmaking.Service) *PlayerHandler {
	return &PlayerHandler{service: service}
}

// CurrentRoom handles GET /api/v1/players/{player_id}/room
func (h *PlayerHandler) CurrentRoom(w http.ResponseWriter, r *http.Request) {
	playerID := model.PlayerID(mux.Vars(r)["player_id"])

	room, err := h.service.CurrentRoom(r.Context(), playerID)
	if err != nil {
		WriteError(w, err)
		return
	}

	status, err := h.service.GetRoomStatus(r.Context(), room.ID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RoomStatusFromModel(status))
}
