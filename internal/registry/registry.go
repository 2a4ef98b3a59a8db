// Package registry owns every live room and routes client events to them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"chess-arena/internal/matchmaking"
	"chess-arena/internal/obslog"
	"chess-arena/internal/room"
	"chess-arena/internal/timing"

	"go.uber.org/zap"
)

// DefaultRetention keeps finished rooms queryable for late final-position requests
const DefaultRetention = 60 * time.Second

const archiveTimeout = 10 * time.Second

// Archiver persists finished games
type Archiver interface {
	SaveGame(ctx context.Context, s room.Summary) error
}

type Config struct {
	Retention time.Duration
	// Room is the template for every room; Scheduler, Logger and OnFinish are set here
	Room      room.Config
	Scheduler timing.Scheduler
	Logger    *zap.Logger
	Archiver  Archiver
}

// Registry never calls into a room while holding its own lock; rooms call
// back into the registry from OnFinish with the room lock held.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]*room.Room
	playerRooms map[string]string
	spectating  map[string]map[string]struct{}
	cleanups    map[string]timing.Stopper

	cfg      Config
	logger   *zap.Logger
	archives sync.WaitGroup
}

func New(cfg Config) *Registry {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = timing.System
	}
	if cfg.Logger == nil {
		cfg.Logger = obslog.L()
	}
	return &Registry{
		rooms:       make(map[string]*room.Room),
		playerRooms: make(map[string]string),
		spectating:  make(map[string]map[string]struct{}),
		cleanups:    make(map[string]timing.Stopper),
		cfg:         cfg,
		logger:      cfg.Logger.Named("registry"),
	}
}

// CreateRoom builds the room for a match and maps both players to it
func (r *Registry) CreateRoom(m matchmaking.Match) *room.Room {
	rc := r.cfg.Room
	rc.Scheduler = r.cfg.Scheduler
	rc.Logger = r.cfg.Logger
	rc.OnFinish = r.roomFinished

	rm := room.New(m.GameID, m.TimeControl,
		room.Seat{PlayerID: m.White.PlayerID, DisplayName: m.White.DisplayName, Rating: m.White.Rating},
		room.Seat{PlayerID: m.Black.PlayerID, DisplayName: m.Black.DisplayName, Rating: m.Black.Rating},
		rc)

	r.mu.Lock()
	r.rooms[m.GameID] = rm
	r.playerRooms[m.White.PlayerID] = m.GameID
	r.playerRooms[m.Black.PlayerID] = m.GameID
	r.mu.Unlock()

	r.logger.Info("room_created",
		zap.String("game_id", m.GameID),
		zap.String("white", m.White.PlayerID),
		zap.String("black", m.Black.PlayerID),
		zap.String("time_control", m.TimeControl.String()))
	return rm
}

// Get returns the room for gameID, or nil
func (r *Registry) Get(gameID string) *room.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[gameID]
}

// GameOf returns the game a player was last matched into, if it is still registered
func (r *Registry) GameOf(playerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.playerRooms[playerID]
	return id, ok
}

// ActiveGame returns the unfinished game playerID is seated in
func (r *Registry) ActiveGame(playerID string) (string, bool) {
	id, ok := r.GameOf(playerID)
	if !ok {
		return "", false
	}
	rm := r.Get(id)
	if rm == nil || rm.Status() == room.StatusFinished {
		return "", false
	}
	return id, true
}

// Dispatch routes one event to its room
func (r *Registry) Dispatch(ev Event) error {
	switch ev := ev.(type) {
	case JoinEvent:
		return r.join(ev)
	case MoveEvent:
		rm, err := r.lookup(ev.GameID)
		if err != nil {
			return err
		}
		_, err = rm.MakeMove(ev.PlayerID, ev.Move)
		return err
	case ResignEvent:
		rm, err := r.lookup(ev.GameID)
		if err != nil {
			return err
		}
		return rm.Resign(ev.PlayerID)
	case DrawOfferEvent:
		rm, err := r.lookup(ev.GameID)
		if err != nil {
			return err
		}
		return rm.OfferDraw(ev.PlayerID)
	case DrawResponseEvent:
		rm, err := r.lookup(ev.GameID)
		if err != nil {
			return err
		}
		return rm.RespondDraw(ev.PlayerID, ev.Accept)
	case DisconnectEvent:
		r.disconnect(ev)
		return nil
	default:
		return &ProtocolError{Code: CodeInvalidMessage, Message: fmt.Sprintf("unsupported event %T", ev)}
	}
}

func (r *Registry) lookup(gameID string) (*room.Room, error) {
	rm := r.Get(gameID)
	if rm == nil {
		return nil, gameNotFound(gameID)
	}
	return rm, nil
}

func (r *Registry) join(ev JoinEvent) error {
	rm, err := r.lookup(ev.GameID)
	if err != nil {
		return err
	}
	role, err := rm.AddUser(ev.User, ev.Conn)
	if errors.Is(err, room.ErrAlreadyConnected) {
		return &ProtocolError{Code: CodeDuplicateIdentity, Message: fmt.Sprintf("%s is already connected to game %s", ev.User.PlayerID, ev.GameID)}
	}
	if err != nil {
		return err
	}
	if role == room.RoleSpectator {
		r.mu.Lock()
		games := r.spectating[ev.User.PlayerID]
		if games == nil {
			games = make(map[string]struct{})
			r.spectating[ev.User.PlayerID] = games
		}
		games[ev.GameID] = struct{}{}
		r.mu.Unlock()
	}
	return nil
}

func (r *Registry) disconnect(ev DisconnectEvent) {
	r.mu.RLock()
	var seated *room.Room
	if id, ok := r.playerRooms[ev.PlayerID]; ok {
		seated = r.rooms[id]
	}
	watched := make(map[string]*room.Room)
	for id := range r.spectating[ev.PlayerID] {
		if rm := r.rooms[id]; rm != nil {
			watched[id] = rm
		}
	}
	r.mu.RUnlock()

	if seated != nil {
		seated.Disconnect(ev.PlayerID, ev.Conn)
	}
	var left []string
	for id, rm := range watched {
		if rm.Disconnect(ev.PlayerID, ev.Conn) {
			left = append(left, id)
		}
	}
	if len(left) == 0 {
		return
	}
	r.mu.Lock()
	for _, id := range left {
		delete(r.spectating[ev.PlayerID], id)
	}
	if len(r.spectating[ev.PlayerID]) == 0 {
		delete(r.spectating, ev.PlayerID)
	}
	r.mu.Unlock()
}

// roomFinished runs under the finished room's lock
func (r *Registry) roomFinished(s room.Summary) {
	r.mu.Lock()
	if _, ok := r.cleanups[s.GameID]; !ok {
		id := s.GameID
		r.cleanups[id] = r.cfg.Scheduler.AfterFunc(r.cfg.Retention, func() { r.remove(id) })
	}
	r.mu.Unlock()

	if r.cfg.Archiver == nil {
		return
	}
	r.archives.Add(1)
	go func() {
		defer r.archives.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := r.cfg.Archiver.SaveGame(ctx, s); err != nil {
			r.logger.Warn("archive_failed", zap.String("game_id", s.GameID), zap.Error(err))
			return
		}
		r.logger.Debug("game_archived", zap.String("game_id", s.GameID))
	}()
}

func (r *Registry) remove(gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, gameID)
	delete(r.cleanups, gameID)
	for pid, gid := range r.playerRooms {
		if gid == gameID {
			delete(r.playerRooms, pid)
		}
	}
	for pid, games := range r.spectating {
		delete(games, gameID)
		if len(games) == 0 {
			delete(r.spectating, pid)
		}
	}
	r.logger.Debug("room_removed", zap.String("game_id", gameID))
}

// Summaries snapshots every registered room, newest first
func (r *Registry) Summaries() []room.Summary {
	r.mu.RLock()
	rooms := make([]*room.Room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.RUnlock()

	out := make([]room.Summary, 0, len(rooms))
	for _, rm := range rooms {
		out = append(out, rm.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Stats counts rooms by status
type Stats struct {
	Rooms      int `json:"rooms"`
	Waiting    int `json:"waiting"`
	Playing    int `json:"playing"`
	Finished   int `json:"finished"`
	Spectators int `json:"spectators"`
}

func (r *Registry) Stats() Stats {
	var st Stats
	for _, s := range r.Summaries() {
		st.Rooms++
		st.Spectators += s.SpectatorCount
		switch s.Status {
		case room.StatusWaiting:
			st.Waiting++
		case room.StatusPlaying:
			st.Playing++
		case room.StatusFinished:
			st.Finished++
		}
	}
	return st
}

// Close cancels pending cleanups and waits for in-flight archive writes
func (r *Registry) Close() {
	r.mu.Lock()
	for id, t := range r.cleanups {
		t.Stop()
		delete(r.cleanups, id)
	}
	r.mu.Unlock()
	r.archives.Wait()
}
