package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"chess-arena/internal/auth"
	"chess-arena/internal/game"
	"chess-arena/internal/matchmaking"
	"chess-arena/internal/middleware"
	"chess-arena/internal/obslog"
	"chess-arena/internal/presence"
	"chess-arena/internal/protocol"
	"chess-arena/internal/registry"
	"chess-arena/internal/room"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const presenceTimeout = 3 * time.Second

type WebSocketOptions struct {
	Auth           *auth.Authenticator
	Presence       presence.Tracker
	Queue          *matchmaking.Queue
	Registry       *registry.Registry
	Logger         *zap.Logger
	AllowedOrigins []string
}

// WebSocketHandler upgrades connections and dispatches their messages to
// the queue and the room registry.
type WebSocketHandler struct {
	auth     *auth.Authenticator
	presence presence.Tracker
	queue    *matchmaking.Queue
	registry *registry.Registry
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWebSocketHandler(opts WebSocketOptions) *WebSocketHandler {
	if opts.Logger == nil {
		opts.Logger = obslog.L()
	}
	if opts.Presence == nil {
		opts.Presence = presence.NewLocal()
	}
	return &WebSocketHandler{
		auth:     opts.Auth,
		presence: opts.Presence,
		queue:    opts.Queue,
		registry: opts.Registry,
		hub:      NewHub(),
		upgrader: newUpgrader(opts.AllowedOrigins),
		logger:   opts.Logger.Named("ws"),
	}
}

// Hub returns the connected-client index
func (h *WebSocketHandler) Hub() *Hub { return h.hub }

func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws_upgrade_failed", zap.String("ip", middleware.ClientIP(r)), zap.Error(err))
		return
	}

	c := newClient(h.hub, conn, h.logger)
	c.logger.Debug("ws_connected", zap.String("ip", middleware.ClientIP(r)))
	go c.writePump()

	// a token on the upgrade request identifies the connection up front
	if id, ok := middleware.IdentityFrom(r.Context()); ok {
		h.accept(c, h.auth.Admit(id))
	}

	go c.readPump(
		func(data []byte) { h.handleMessage(c, data) },
		func() { h.refreshPresence(c) },
		func() { h.disconnected(c) },
	)
}

func (h *WebSocketHandler) handleMessage(c *Client, data []byte) {
	in, err := protocol.Decode(data)
	if err != nil {
		c.Send(protocol.NewError(registry.CodeInvalidMessage, err.Error()))
		return
	}

	if in.Type == protocol.TypeIdentify {
		h.identify(c, in)
		return
	}
	id, ok := c.Identity()
	if !ok {
		c.Send(protocol.NewError(registry.CodeNotAuthenticated, "identify before sending "+string(in.Type)))
		return
	}

	switch in.Type {
	case protocol.TypeFindMatch:
		h.findMatch(c, id, in)
	case protocol.TypeCancelMatch:
		h.queue.Cancel(id.PlayerID)
		c.Send(protocol.New(protocol.TypeMatchCancelled))
	case protocol.TypeJoinRoom:
		h.dispatch(c, in, registry.JoinEvent{
			GameID: in.GameID,
			User:   room.User{PlayerID: id.PlayerID, DisplayName: id.DisplayName},
			Conn:   c,
		})
	case protocol.TypeMakeMove:
		mv, err := in.Move()
		if err != nil {
			c.Send(protocol.NewError(registry.CodeInvalidMessage, err.Error()))
			return
		}
		h.dispatch(c, in, registry.MoveEvent{GameID: in.GameID, PlayerID: id.PlayerID, Move: mv})
	case protocol.TypeResign:
		h.dispatch(c, in, registry.ResignEvent{GameID: in.GameID, PlayerID: id.PlayerID})
	case protocol.TypeOfferDraw:
		h.dispatch(c, in, registry.DrawOfferEvent{GameID: in.GameID, PlayerID: id.PlayerID})
	case protocol.TypeRespondDraw:
		h.dispatch(c, in, registry.DrawResponseEvent{GameID: in.GameID, PlayerID: id.PlayerID, Accept: in.Accept})
	}
}

func (h *WebSocketHandler) identify(c *Client, in *protocol.Inbound) {
	if _, ok := c.Identity(); ok {
		c.Send(protocol.NewError(registry.CodeInvalidMessage, "connection is already identified"))
		return
	}
	id, err := h.auth.Identify(in.Token, in.PlayerID, in.DisplayName)
	if err != nil {
		msg := protocol.New(protocol.TypeIdentityRejected)
		msg.Code = registry.CodeNotAuthenticated
		msg.Reason = err.Error()
		c.Send(msg)
		c.logger.Info("identity_rejected", zap.Error(err))
		return
	}
	h.accept(c, id)
}

func (h *WebSocketHandler) accept(c *Client, id auth.Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	if err := h.presence.Acquire(ctx, id.PlayerID, c.sessionID); err != nil {
		msg := protocol.New(protocol.TypeIdentityRejected)
		if errors.Is(err, presence.ErrAlreadyOnline) {
			msg.Code = registry.CodeDuplicateIdentity
			msg.Reason = fmt.Sprintf("%s is already connected", id.PlayerID)
		} else {
			c.logger.Error("presence_acquire_failed", zap.String("player_id", id.PlayerID), zap.Error(err))
			msg.Reason = "presence store unavailable"
		}
		c.Send(msg)
		return
	}

	c.setIdentity(id)
	h.hub.Register(c)

	msg := protocol.New(protocol.TypeIdentityAccepted)
	msg.PlayerID = id.PlayerID
	msg.DisplayName = id.DisplayName
	// a returning player is pointed back at the game they are seated in
	if gameID, ok := h.registry.ActiveGame(id.PlayerID); ok {
		msg.GameID = gameID
	}
	c.Send(msg)
	c.logger.Info("identity_accepted", zap.Bool("guest", id.Guest))
}

func (h *WebSocketHandler) findMatch(c *Client, id auth.Identity, in *protocol.Inbound) {
	if gameID, ok := h.registry.ActiveGame(id.PlayerID); ok {
		msg := protocol.NewError(registry.CodeAlreadyInGame, "finish or rejoin your current game first")
		msg.GameID = gameID
		c.Send(msg)
		return
	}
	tc, err := in.RequestedTimeControl()
	if err != nil {
		c.Send(protocol.NewError(registry.CodeInvalidTimeCategory, err.Error()))
		return
	}

	rating := id.RatingFor(tc.Category)
	if id.Guest && in.Rating != nil && *in.Rating > 0 {
		rating = *in.Rating
	}

	match, err := h.queue.EnqueueOrMatch(matchmaking.Entry{
		PlayerID:    id.PlayerID,
		DisplayName: id.DisplayName,
		Rating:      rating,
		TimeControl: tc,
	})
	switch {
	case errors.Is(err, matchmaking.ErrInvalidTimeCategory):
		c.Send(protocol.NewError(registry.CodeInvalidTimeCategory, err.Error()))
		return
	case errors.Is(err, matchmaking.ErrAlreadyQueued):
		// answer with the queue the player is actually in
		if queued, ok := h.queue.Entry(id.PlayerID); ok {
			tc = queued.TimeControl
		}
	case err != nil:
		c.Send(protocol.NewError(registry.CodeInvalidMessage, err.Error()))
		return
	}
	if match != nil {
		h.NotifyMatch(*match)
		return
	}

	msg := protocol.New(protocol.TypeMatchWaiting)
	msg.TimeCategory = string(tc.Category)
	msg.TimeControl = &tc
	c.Send(msg)
}

// NotifyMatch opens the room for m and tells both players where to join.
// It is also the queue's notifier for matches made by the background sweep.
func (h *WebSocketHandler) NotifyMatch(m matchmaking.Match) {
	h.registry.CreateRoom(m)
	tc := m.TimeControl

	for _, seat := range []struct {
		self, opp matchmaking.Entry
		color     game.Color
	}{
		{m.White, m.Black, game.White},
		{m.Black, m.White, game.Black},
	} {
		msg := protocol.New(protocol.TypeMatchFound)
		msg.GameID = m.GameID
		msg.Color = seat.color.String()
		msg.TimeControl = &tc
		msg.TimeCategory = string(tc.Category)
		msg.Opponent = &protocol.PlayerSummary{
			PlayerID:    seat.opp.PlayerID,
			DisplayName: seat.opp.DisplayName,
			Rating:      seat.opp.Rating,
			Color:       seat.color.Opposite().String(),
		}
		if err := h.hub.SendTo(seat.self.PlayerID, msg); err != nil {
			h.logger.Warn("match_notify_failed",
				zap.String("game_id", m.GameID),
				zap.String("player_id", seat.self.PlayerID),
				zap.Error(err))
		}
	}
}

func (h *WebSocketHandler) dispatch(c *Client, in *protocol.Inbound, ev registry.Event) {
	err := h.registry.Dispatch(ev)
	if err == nil {
		return
	}

	var perr *registry.ProtocolError
	switch {
	case errors.As(err, &perr):
		msg := protocol.NewError(perr.Code, perr.Message)
		msg.GameID = in.GameID
		c.Send(msg)
	case in.Type == protocol.TypeMakeMove:
		c.Send(protocol.MoveRejected(in.GameID, err.Error()))
	default:
		msg := protocol.NewError(registry.CodeActionRejected, err.Error())
		msg.GameID = in.GameID
		c.Send(msg)
	}
}

func (h *WebSocketHandler) refreshPresence(c *Client) {
	id, ok := c.Identity()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := h.presence.Refresh(ctx, id.PlayerID, c.sessionID); err != nil {
		c.logger.Warn("presence_refresh_failed", zap.Error(err))
	}
}

func (h *WebSocketHandler) disconnected(c *Client) {
	id, ok := c.Identity()
	if !ok {
		c.logger.Debug("ws_closed")
		return
	}
	if h.queue.Cancel(id.PlayerID) {
		c.logger.Debug("queue_left_on_disconnect")
	}
	h.registry.Dispatch(registry.DisconnectEvent{PlayerID: id.PlayerID, Conn: c})

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := h.presence.Release(ctx, id.PlayerID, c.sessionID); err != nil {
		c.logger.Warn("presence_release_failed", zap.Error(err))
	}
	h.hub.Unregister(c)
	c.logger.Info("ws_closed")
}
