package handlers

import (
	"net/http"

	"chess-arena/internal/middleware"

	"github.com/gorilla/mux"
)

type RouterOptions struct {
	WebSocket *WebSocketHandler
	Status    *StatusHandler
	// Auth attaches identities from upgrade-request tokens; optional
	Auth        *middleware.AuthMiddleware
	RateLimiter *middleware.Limiter
	// UpgradeRate defaults to middleware.UpgradeLimit
	UpgradeRate middleware.Limit
	HSTS        bool
}

// NewRouter wires the websocket endpoint and the status API
func NewRouter(opts RouterOptions) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.SecurityHeaders(opts.HSTS))

	var ws http.Handler = http.HandlerFunc(opts.WebSocket.HandleWebSocket)
	if opts.Auth != nil {
		ws = opts.Auth.OptionalIdentity(ws)
	}
	if opts.RateLimiter != nil {
		if opts.UpgradeRate.Requests == 0 {
			opts.UpgradeRate = middleware.UpgradeLimit
		}
		ws = opts.RateLimiter.PerIP(opts.UpgradeRate)(ws)
	}
	router.Handle("/ws", ws).Methods("GET")

	router.HandleFunc("/health", opts.Status.Health).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	if opts.RateLimiter != nil {
		api.Use(opts.RateLimiter.PerIP(middleware.StatusLimit))
	}
	api.HandleFunc("/rooms", opts.Status.ListRooms).Methods("GET")
	api.HandleFunc("/rooms/{gameId}", opts.Status.GetRoom).Methods("GET")
	api.HandleFunc("/rooms/{gameId}/replay", opts.Status.GetReplay).Methods("GET")
	api.HandleFunc("/queue", opts.Status.QueueStatus).Methods("GET")

	return router
}
