// Package room runs one game between two matched players. A Room owns its
// board, clock and occupants; every method takes the room's lock, so callers
// may use a Room from any goroutine.
package room

import (
	"errors"
	"sync"
	"time"

	"chess-arena/internal/game"
	"chess-arena/internal/obslog"
	"chess-arena/internal/protocol"
	"chess-arena/internal/timing"

	"go.uber.org/zap"
)

// DefaultGracePeriod is how long a disconnected player may take to come back
const DefaultGracePeriod = 5 * time.Minute

var (
	ErrNotYourTurn      = errors.New("not your turn")
	ErrGameNotActive    = errors.New("game is not active")
	ErrNotAPlayer       = errors.New("not a player in this game")
	ErrAlreadyConnected = errors.New("already connected to this game")
	ErrNoDrawOffer      = errors.New("no draw offer to respond to")
)

// Status is the room life cycle: waiting, then playing, then finished
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Role tells how a user was admitted
type Role string

const (
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
)

// Conn is the outbound half of a client connection. Send must not block.
type Conn interface {
	Send(msg *protocol.Message) error
}

// Seat is an original player's identity fixed when the room is created
type Seat struct {
	PlayerID    string     `json:"playerId"`
	DisplayName string     `json:"displayName"`
	Rating      int        `json:"rating"`
	Color       game.Color `json:"-"`
}

// User is whoever asks to enter the room
type User struct {
	PlayerID    string
	DisplayName string
}

// Player is a seated original player
type Player struct {
	Seat
	Connected bool
	JoinedAt  time.Time

	conn  Conn
	grace timing.Stopper
}

type Spectator struct {
	PlayerID    string
	DisplayName string
	JoinedAt    time.Time

	conn Conn
}

// Config tunes timers and hooks. Zero values get defaults.
type Config struct {
	// GracePeriod is also the time both players have to show up
	GracePeriod time.Duration
	// ForfeitOnAbandon ends the game once a grace period runs out
	ForfeitOnAbandon bool
	Scheduler        timing.Scheduler
	Logger           *zap.Logger
	// OnFinish runs with the room locked; it must not call back into the room
	OnFinish func(Summary)
}

type Room struct {
	mu sync.Mutex

	id         string
	control    game.TimeControl
	seats      [2]Seat
	players    []*Player
	spectators []*Spectator

	board   game.Board
	clock   *game.Clock
	status  Status
	history []protocol.MoveRecord

	drawOffer    game.Color
	hasDrawOffer bool

	result string
	winner string
	cause  string

	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time
	turnStart time.Time
	joinTimer timing.Stopper

	cfg    Config
	logger *zap.Logger
}

// New creates a waiting room for the two matched players
func New(id string, tc game.TimeControl, white, black Seat, cfg Config) *Room {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = timing.System
	}
	if cfg.Logger == nil {
		cfg.Logger = obslog.L()
	}
	white.Color = game.White
	black.Color = game.Black

	r := &Room{
		id:      id,
		control: tc,
		seats:   [2]Seat{white, black},
		board:   game.NewBoard(),
		status:  StatusWaiting,
		cfg:     cfg,
		logger:  cfg.Logger.Named("room").With(zap.String("game_id", id)),
	}
	r.clock = game.NewClock(tc, cfg.Scheduler, r.flagFell)
	r.createdAt = cfg.Scheduler.Now()
	r.joinTimer = cfg.Scheduler.AfterFunc(cfg.GracePeriod, r.joinExpired)
	return r
}

func (r *Room) ID() string { return r.id }

func (r *Room) TimeControl() game.TimeControl { return r.control }

// Status returns the current life-cycle state
func (r *Room) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// IsOriginalPlayer reports whether playerID holds one of the two seats
func (r *Room) IsOriginalPlayer(playerID string) bool {
	_, ok := r.seatOf(playerID)
	return ok
}

// AddUser admits an original player, reconnects a returning one, or adds a spectator
func (r *Room) AddUser(u User, conn Conn) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seat, ok := r.seatOf(u.PlayerID); ok {
		if p := r.playerLocked(u.PlayerID); p != nil {
			if p.Connected {
				return RolePlayer, ErrAlreadyConnected
			}
			r.reconnectLocked(p, conn)
			return RolePlayer, nil
		}

		if seat.DisplayName == "" {
			seat.DisplayName = u.DisplayName
		}
		p := &Player{Seat: seat, Connected: true, JoinedAt: r.cfg.Scheduler.Now(), conn: conn}
		r.players = append(r.players, p)
		r.send(conn, r.joinedAsPlayerLocked(p))

		msg := protocol.New(protocol.TypePlayerJoined)
		msg.GameID = r.id
		msg.PlayerID = p.PlayerID
		msg.DisplayName = p.DisplayName
		msg.Color = p.Color.String()
		r.broadcastLocked(msg, p.PlayerID)

		r.logger.Info("player_joined", zap.String("player_id", p.PlayerID), zap.String("color", p.Color.String()))
		r.maybeStartLocked()
		return RolePlayer, nil
	}

	if r.spectatorLocked(u.PlayerID) != nil {
		return RoleSpectator, ErrAlreadyConnected
	}
	s := &Spectator{PlayerID: u.PlayerID, DisplayName: u.DisplayName, JoinedAt: r.cfg.Scheduler.Now(), conn: conn}
	r.spectators = append(r.spectators, s)

	joined := protocol.New(protocol.TypeJoinedAsSpectator)
	joined.GameID = r.id
	joined.State = r.stateLocked()
	joined.Players = r.playerSummariesLocked()
	joined.TimeControl = &r.control
	joined.SpectatorCount = len(r.spectators)
	r.send(conn, joined)

	notice := protocol.New(protocol.TypeSpectatorJoined)
	notice.GameID = r.id
	notice.SpectatorCount = len(r.spectators)
	r.broadcastLocked(notice, s.PlayerID)

	r.logger.Debug("spectator_joined", zap.String("player_id", s.PlayerID), zap.Int("spectators", len(r.spectators)))
	return RoleSpectator, nil
}

func (r *Room) reconnectLocked(p *Player, conn Conn) {
	if p.grace != nil {
		p.grace.Stop()
		p.grace = nil
	}
	p.conn = conn
	p.Connected = true
	r.send(conn, r.joinedAsPlayerLocked(p))

	msg := protocol.New(protocol.TypePeerReconnected)
	msg.GameID = r.id
	msg.PlayerID = p.PlayerID
	r.broadcastLocked(msg, p.PlayerID)

	r.logger.Info("player_reconnected", zap.String("player_id", p.PlayerID))
	r.maybeStartLocked()
}

func (r *Room) maybeStartLocked() {
	if r.status != StatusWaiting || len(r.players) != 2 {
		return
	}
	for _, p := range r.players {
		if !p.Connected {
			return
		}
	}
	if r.joinTimer != nil {
		r.joinTimer.Stop()
		r.joinTimer = nil
	}
	r.status = StatusPlaying
	r.startedAt = r.cfg.Scheduler.Now()
	r.turnStart = r.startedAt
	r.clock.Start(r.board.Active)

	msg := protocol.New(protocol.TypeGameStarted)
	msg.GameID = r.id
	msg.Players = r.playerSummariesLocked()
	msg.TimeControl = &r.control
	msg.State = r.stateLocked()
	r.broadcastLocked(msg, "")

	r.logger.Info("game_started",
		zap.String("white", r.seats[game.White].PlayerID),
		zap.String("black", r.seats[game.Black].PlayerID),
		zap.String("time_control", r.control.String()))
}

// MakeMove validates and plays a move for playerID, then broadcasts the new state
func (r *Room) MakeMove(playerID string, m game.Move) (*protocol.MoveRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.playerLocked(playerID)
	if p == nil {
		return nil, ErrNotAPlayer
	}
	if r.status != StatusPlaying {
		return nil, ErrGameNotActive
	}
	if p.Color != r.board.Active {
		return nil, ErrNotYourTurn
	}
	// flagFell may still be waiting for the lock
	if r.clock.Flagged(p.Color) {
		r.flagLocked(p.Color)
		return nil, ErrGameNotActive
	}
	if err := r.board.ValidateMove(m); err != nil {
		return nil, err
	}
	if r.clock.Switch(p.Color) {
		r.flagLocked(p.Color)
		return nil, ErrGameNotActive
	}

	now := r.cfg.Scheduler.Now()
	rec := protocol.MoveRecord{
		Ply:       len(r.history) + 1,
		Color:     p.Color.String(),
		From:      m.From.String(),
		To:        m.To.String(),
		SAN:       r.board.SAN(m),
		ElapsedMs: now.Sub(r.turnStart).Milliseconds(),
	}
	if piece, _ := r.board.PieceAt(m.From); piece.Type == game.Pawn && (m.To.Row() == 0 || m.To.Row() == 7) {
		promo := m.Promotion
		if promo == game.NoPieceType {
			promo = game.Queen
		}
		rec.Promotion = string(promo.Letter())
	}
	r.board.ApplyMove(m)
	rec.FEN = r.board.FEN()
	r.turnStart = now
	r.history = append(r.history, rec)
	r.hasDrawOffer = false

	msg := protocol.New(protocol.TypeMoveApplied)
	msg.GameID = r.id
	msg.Move = &rec
	msg.State = r.stateLocked()
	r.broadcastLocked(msg, "")

	switch r.board.Status() {
	case game.StatusCheckmate:
		r.finishLocked(decisive(p.Color), protocol.CauseCheckmate)
	case game.StatusStalemate:
		r.finishLocked(protocol.ResultDraw, protocol.CauseStalemate)
	case game.StatusInsufficientMaterial:
		r.finishLocked(protocol.ResultDraw, protocol.CauseInsufficientMaterial)
	}
	return &rec, nil
}

// Resign ends the game in the opponent's favour
func (r *Room) Resign(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.activePlayerLocked(playerID)
	if err != nil {
		return err
	}
	r.finishLocked(decisive(p.Color.Opposite()), protocol.CauseResignation)
	return nil
}

// OfferDraw records an offer, or accepts the opponent's standing one.
// Any move withdraws pending offers.
func (r *Room) OfferDraw(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.activePlayerLocked(playerID)
	if err != nil {
		return err
	}
	if r.hasDrawOffer && r.drawOffer != p.Color {
		r.finishLocked(protocol.ResultDraw, protocol.CauseAgreement)
		return nil
	}
	r.drawOffer = p.Color
	r.hasDrawOffer = true

	msg := protocol.New(protocol.TypeDrawOffered)
	msg.GameID = r.id
	msg.By = p.Color.String()
	r.broadcastLocked(msg, "")
	return nil
}

// RespondDraw accepts or declines the opponent's offer
func (r *Room) RespondDraw(playerID string, accept bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.activePlayerLocked(playerID)
	if err != nil {
		return err
	}
	if !r.hasDrawOffer || r.drawOffer == p.Color {
		return ErrNoDrawOffer
	}
	if accept {
		r.finishLocked(protocol.ResultDraw, protocol.CauseAgreement)
		return nil
	}
	r.hasDrawOffer = false

	msg := protocol.New(protocol.TypeDrawDeclined)
	msg.GameID = r.id
	msg.By = p.Color.String()
	r.broadcastLocked(msg, "")
	return nil
}

// Disconnect detaches playerID. A nil conn matches any connection; otherwise
// only the given connection is detached, so a stale socket closing after a
// reconnect is ignored. Spectators leave at once; players get a grace period.
func (r *Room) Disconnect(playerID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.spectators {
		if s.PlayerID == playerID && (conn == nil || s.conn == conn) {
			r.spectators = append(r.spectators[:i:i], r.spectators[i+1:]...)
			r.logger.Debug("spectator_left", zap.String("player_id", playerID))
			return true
		}
	}

	p := r.playerLocked(playerID)
	if p == nil || !p.Connected || (conn != nil && p.conn != conn) {
		return false
	}
	p.Connected = false
	p.conn = nil

	msg := protocol.New(protocol.TypePeerDisconnected)
	msg.GameID = r.id
	msg.PlayerID = playerID
	r.broadcastLocked(msg, playerID)

	if r.status != StatusFinished {
		p.grace = r.cfg.Scheduler.AfterFunc(r.cfg.GracePeriod, func() { r.graceExpired(playerID) })
	}
	r.logger.Info("player_disconnected", zap.String("player_id", playerID), zap.String("status", string(r.status)))
	return true
}

func (r *Room) graceExpired(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.playerLocked(playerID)
	if p == nil || p.Connected || r.status == StatusFinished {
		return
	}
	p.grace = nil

	msg := protocol.New(protocol.TypePlayerAbandoned)
	msg.GameID = r.id
	msg.PlayerID = playerID
	r.broadcastLocked(msg, playerID)
	r.logger.Warn("player_abandoned", zap.String("player_id", playerID))

	if !r.cfg.ForfeitOnAbandon {
		return
	}
	if r.status == StatusPlaying {
		r.finishLocked(decisive(p.Color.Opposite()), protocol.CauseAbandoned)
	} else {
		r.finishLocked(protocol.ResultAborted, protocol.CauseAbandoned)
	}
}

func (r *Room) joinExpired() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joinTimer = nil
	if r.status != StatusWaiting {
		return
	}
	r.logger.Warn("game_not_started", zap.Int("players", len(r.players)))
	r.finishLocked(protocol.ResultAborted, protocol.CauseAbandoned)
}

func (r *Room) flagFell(c game.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flagLocked(c)
}

func (r *Room) flagLocked(c game.Color) {
	if r.status != StatusPlaying {
		return
	}
	r.logger.Info("flag_fell", zap.String("color", c.String()))
	r.finishLocked(decisive(c.Opposite()), protocol.CauseTimeout)
}

func (r *Room) finishLocked(result, cause string) {
	if r.status == StatusFinished {
		return
	}
	r.status = StatusFinished
	r.result = result
	r.cause = cause
	switch result {
	case protocol.ResultWhiteWins:
		r.winner = game.White.String()
	case protocol.ResultBlackWins:
		r.winner = game.Black.String()
	}
	r.endedAt = r.cfg.Scheduler.Now()
	r.hasDrawOffer = false
	r.clock.Stop()
	if r.joinTimer != nil {
		r.joinTimer.Stop()
		r.joinTimer = nil
	}
	for _, p := range r.players {
		if p.grace != nil {
			p.grace.Stop()
			p.grace = nil
		}
	}

	msg := protocol.New(protocol.TypeGameOver)
	msg.GameID = r.id
	msg.Result = r.result
	msg.Winner = r.winner
	msg.Cause = r.cause
	msg.State = r.stateLocked()
	r.broadcastLocked(msg, "")

	r.logger.Info("game_finished",
		zap.String("result", r.result),
		zap.String("cause", r.cause),
		zap.Int("plies", len(r.history)))

	if r.cfg.OnFinish != nil {
		r.cfg.OnFinish(r.summaryLocked())
	}
}

func decisive(winner game.Color) string {
	if winner == game.White {
		return protocol.ResultWhiteWins
	}
	return protocol.ResultBlackWins
}

func (r *Room) activePlayerLocked(playerID string) (*Player, error) {
	p := r.playerLocked(playerID)
	if p == nil {
		return nil, ErrNotAPlayer
	}
	if r.status != StatusPlaying {
		return nil, ErrGameNotActive
	}
	return p, nil
}

func (r *Room) seatOf(playerID string) (Seat, bool) {
	for _, s := range r.seats {
		if s.PlayerID == playerID {
			return s, true
		}
	}
	return Seat{}, false
}

func (r *Room) playerLocked(playerID string) *Player {
	for _, p := range r.players {
		if p.PlayerID == playerID {
			return p
		}
	}
	return nil
}

func (r *Room) spectatorLocked(playerID string) *Spectator {
	for _, s := range r.spectators {
		if s.PlayerID == playerID {
			return s
		}
	}
	return nil
}

func (r *Room) joinedAsPlayerLocked(p *Player) *protocol.Message {
	msg := protocol.New(protocol.TypeJoinedAsPlayer)
	msg.GameID = r.id
	msg.Color = p.Color.String()
	msg.Players = r.playerSummariesLocked()
	msg.TimeControl = &r.control
	msg.State = r.stateLocked()
	msg.SpectatorCount = len(r.spectators)
	return msg
}

// send delivers to one connection; failures are logged and otherwise ignored
func (r *Room) send(conn Conn, msg *protocol.Message) {
	if conn == nil {
		return
	}
	if err := conn.Send(msg); err != nil {
		r.logger.Warn("send_failed", zap.String("type", string(msg.Type)), zap.Error(err))
	}
}

func (r *Room) broadcastLocked(msg *protocol.Message, exceptID string) {
	for _, p := range r.players {
		if p.Connected && p.PlayerID != exceptID {
			r.send(p.conn, msg)
		}
	}
	for _, s := range r.spectators {
		if s.PlayerID != exceptID {
			r.send(s.conn, msg)
		}
	}
}
