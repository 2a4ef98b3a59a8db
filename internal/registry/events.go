package registry

import (
	"chess-arena/internal/game"
	"chess-arena/internal/room"
)

// Event is one inbound request routed to a room. The set is closed.
type Event interface {
	event()
}

type JoinEvent struct {
	GameID string
	User   room.User
	Conn   room.Conn
}

type MoveEvent struct {
	GameID   string
	PlayerID string
	Move     game.Move
}

type ResignEvent struct {
	GameID   string
	PlayerID string
}

type DrawOfferEvent struct {
	GameID   string
	PlayerID string
}

type DrawResponseEvent struct {
	GameID   string
	PlayerID string
	Accept   bool
}

// DisconnectEvent is routed through the player's rooms rather than a gameId
type DisconnectEvent struct {
	PlayerID string
	Conn     room.Conn
}

func (JoinEvent) event()         {}
func (MoveEvent) event()         {}
func (ResignEvent) event()       {}
func (DrawOfferEvent) event()    {}
func (DrawResponseEvent) event() {}
func (DisconnectEvent) event()   {}
