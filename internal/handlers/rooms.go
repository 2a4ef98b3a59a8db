package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"chess-arena/internal/game"
	"chess-arena/internal/matchmaking"
	"chess-arena/internal/presence"
	"chess-arena/internal/registry"
	"chess-arena/internal/room"

	"github.com/gorilla/mux"
)

// StatusHandler serves read-only views of the registry and the queue
type StatusHandler struct {
	registry *registry.Registry
	queue    *matchmaking.Queue
	presence presence.Tracker
	hub      *Hub
}

func NewStatusHandler(reg *registry.Registry, queue *matchmaking.Queue, tracker presence.Tracker, hub *Hub) *StatusHandler {
	return &StatusHandler{registry: reg, queue: queue, presence: tracker, hub: hub}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

type RoomListResponse struct {
	Stats registry.Stats `json:"stats"`
	Rooms []room.Summary `json:"rooms"`
}

type ReplayResponse struct {
	GameID    string   `json:"gameId"`
	Moves     []string `json:"moves"`
	Positions []string `json:"positions"`
}

type QueueStatusResponse struct {
	Waiting map[game.TimeCategory]int `json:"waiting"`
	Online  int                       `json:"online"`
}

func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, HealthResponse{Status: "ok", Connections: h.hub.Count()})
}

// ListRooms returns registry stats and every room, optionally filtered by ?status=
func (h *StatusHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	filter := room.Status(r.URL.Query().Get("status"))
	switch filter {
	case "", room.StatusWaiting, room.StatusPlaying, room.StatusFinished:
	default:
		respondWithError(w, http.StatusBadRequest, "status must be waiting, playing or finished")
		return
	}

	rooms := make([]room.Summary, 0)
	for _, s := range h.registry.Summaries() {
		if filter == "" || s.Status == filter {
			rooms = append(rooms, s)
		}
	}
	respondWithJSON(w, http.StatusOK, RoomListResponse{Stats: h.registry.Stats(), Rooms: rooms})
}

func (h *StatusHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	rm := h.registry.Get(mux.Vars(r)["gameId"])
	if rm == nil {
		respondWithError(w, http.StatusNotFound, "Game not found")
		return
	}
	respondWithJSON(w, http.StatusOK, rm.Summary())
}

// GetReplay rebuilds every position of a room's game from its move list
func (h *StatusHandler) GetReplay(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["gameId"]
	rm := h.registry.Get(gameID)
	if rm == nil {
		respondWithError(w, http.StatusNotFound, "Game not found")
		return
	}

	moves := rm.Summary().SAN()
	positions, err := game.ReplayFEN(moves)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to replay game: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, ReplayResponse{GameID: gameID, Moves: moves, Positions: positions})
}

func (h *StatusHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	online, err := h.presence.Count(ctx)
	if err != nil {
		respondWithError(w, http.StatusServiceUnavailable, "Presence store unavailable")
		return
	}
	respondWithJSON(w, http.StatusOK, QueueStatusResponse{Waiting: h.queue.Sizes(), Online: online})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
