package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/roommatch/internal/api/request"
	"github.com/mcoot/roommatch/internal/api/response"
	"github.com/mcoot/roommatch/internal/model"
	"github.com/mcoot/roommatch/internal/services/matchmaking"
)

// RoomHandler handles room endpoints
type RoomHandler struct {
	service *matchmaking.Service
	logger  *slog.Logger
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(service *matchmaking.Service, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{
		service: service,
		logger:  logger.With(slog.String("component", "room_handler")),
	}
}

// Join handles POST /api/v1/rooms/join
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req request.JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("Invalid request body"))
		return
	}
	req.Normalize()
	if req.DisplayName == "" || req.PlayerID == "" {
		WriteError(w, NewInvalidRequestError("display_name and player_id are required"))
		return
	}

	res, err := h.service.Join(r.Context(), req.DisplayName, model.PlayerID(req.PlayerID))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.JoinResponseFromResult(res))
}

// Leave handles POST /api/v1/rooms/leave
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	var req request.LeaveRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		WriteError(w, NewInvalidRequestError("player_id is required"))
		return
	}

	if err := h.service.Leave(r.Context(), model.PlayerID(req.PlayerID)); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// Status handles GET /api/v1/rooms/{room_id}
func (h *RoomHandler) Status(w http.ResponseWriter, r *http.Request) {
	roomID := model.RoomID(mux.Vars(r)["room_id"])

	status, err := h.service.GetRoomStatus(r.Context(), roomID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RoomStatusFromModel(status))
}

// Start handles POST /api/v1/rooms/{room_id}/start
func (h *RoomHandler) Start(w http.ResponseWriter, r *http.Request) {
	roomID := model.RoomID(mux.Vars(r)["room_id"])

	res, err := h.service.StartGame(r.Context(), roomID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.StartResponseFromResult(res))
}
