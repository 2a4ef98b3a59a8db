package room

import (
	"time"

	"chess-arena/internal/game"
	"chess-arena/internal/protocol"
)

// Summary is a point-in-time copy of a room, safe to hand to other goroutines
type Summary struct {
	GameID         string                   `json:"gameId"`
	Status         Status                   `json:"status"`
	TimeControl    game.TimeControl         `json:"timeControl"`
	White          Seat                     `json:"white"`
	Black          Seat                     `json:"black"`
	Players        []protocol.PlayerSummary `json:"players"`
	SpectatorCount int                      `json:"spectatorCount"`
	FEN            string                   `json:"fen"`
	Moves          []protocol.MoveRecord    `json:"moves"`
	Result         string                   `json:"result,omitempty"`
	Winner         string                   `json:"winner,omitempty"`
	Cause          string                   `json:"cause,omitempty"`
	CreatedAt      time.Time                `json:"createdAt"`
	StartedAt      *time.Time               `json:"startedAt,omitempty"`
	EndedAt        *time.Time               `json:"endedAt,omitempty"`
}

// SAN lists the recorded moves in standard notation
func (s Summary) SAN() []string {
	out := make([]string, len(s.Moves))
	for i, m := range s.Moves {
		out[i] = m.SAN
	}
	return out
}

// Summary snapshots the room
func (r *Room) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summaryLocked()
}

// State returns the same game view that is broadcast to occupants
func (r *Room) State() *protocol.GameState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

// Board returns a copy of the live position
func (r *Room) Board() game.Board {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.board.Clone()
}

// Player returns a copy of a seated player's record
func (r *Room) Player(playerID string) (Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.playerLocked(playerID)
	if p == nil {
		return Player{}, false
	}
	cp := *p
	cp.conn, cp.grace = nil, nil
	return cp, true
}

// SpectatorCount returns how many spectators are attached
func (r *Room) SpectatorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spectators)
}

func (r *Room) summaryLocked() Summary {
	s := Summary{
		GameID:         r.id,
		Status:         r.status,
		TimeControl:    r.control,
		White:          r.seats[game.White],
		Black:          r.seats[game.Black],
		Players:        r.playerSummariesLocked(),
		SpectatorCount: len(r.spectators),
		FEN:            r.board.FEN(),
		Moves:          append([]protocol.MoveRecord(nil), r.history...),
		Result:         r.result,
		Winner:         r.winner,
		Cause:          r.cause,
		CreatedAt:      r.createdAt,
	}
	if !r.startedAt.IsZero() {
		t := r.startedAt
		s.StartedAt = &t
	}
	if !r.endedAt.IsZero() {
		t := r.endedAt
		s.EndedAt = &t
	}
	return s
}

func (r *Room) stateLocked() *protocol.GameState {
	white, black := r.clock.Remaining()
	st := &protocol.GameState{
		Status:      string(r.status),
		FEN:         r.board.FEN(),
		ActiveColor: r.board.Active.String(),
		InCheck:     r.board.IsInCheck(r.board.Active),
		Moves:       make([]string, len(r.history)),
		WhiteTimeMs: white,
		BlackTimeMs: black,
		Result:      r.result,
		Winner:      r.winner,
		Cause:       r.cause,
	}
	for i, m := range r.history {
		st.Moves[i] = m.SAN
	}
	if n := len(r.history); n > 0 {
		last := r.history[n-1]
		st.LastMove = &last
	}
	if r.hasDrawOffer {
		st.DrawOffer = r.drawOffer.String()
	}
	return st
}

// playerSummariesLocked lists registered players white first
func (r *Room) playerSummariesLocked() []protocol.PlayerSummary {
	out := make([]protocol.PlayerSummary, 0, 2)
	for _, seat := range r.seats {
		p := r.playerLocked(seat.PlayerID)
		if p == nil {
			continue
		}
		out = append(out, protocol.PlayerSummary{
			PlayerID:    p.PlayerID,
			DisplayName: p.DisplayName,
			Rating:      p.Rating,
			Color:       p.Color.String(),
			Connected:   p.Connected,
		})
	}
	return out
}
