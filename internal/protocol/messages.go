// Package protocol defines the JSON messages exchanged with websocket clients.
package protocol

import (
	"time"

	"chess-arena/internal/game"
)

// Type discriminates every message on the wire
type Type string

// Client to server
const (
	TypeIdentify    Type = "identify"
	TypeFindMatch   Type = "find_match"
	TypeCancelMatch Type = "cancel_match"
	TypeJoinRoom    Type = "join_room"
	TypeMakeMove    Type = "make_move"
	TypeResign      Type = "resign"
	TypeOfferDraw   Type = "offer_draw"
	TypeRespondDraw Type = "respond_draw"
)

// Server to client
const (
	TypeIdentityAccepted  Type = "identity_accepted"
	TypeIdentityRejected  Type = "identity_rejected"
	TypeMatchWaiting      Type = "match_waiting"
	TypeMatchCancelled    Type = "match_cancelled"
	TypeMatchFound        Type = "match_found"
	TypeJoinedAsPlayer    Type = "joined_as_player"
	TypeJoinedAsSpectator Type = "joined_as_spectator"
	TypePlayerJoined      Type = "player_joined"
	TypeSpectatorJoined   Type = "spectator_joined"
	TypeGameStarted       Type = "game_started"
	TypeMoveApplied       Type = "move_applied"
	TypeMoveRejected      Type = "move_rejected"
	TypeGameOver          Type = "game_over"
	TypePeerDisconnected  Type = "peer_disconnected"
	TypePeerReconnected   Type = "peer_reconnected"
	TypePlayerAbandoned   Type = "player_abandoned"
	TypeDrawOffered       Type = "draw_offered"
	TypeDrawDeclined      Type = "draw_declined"
	TypeError             Type = "error"
)

// Result values carried by game_over
const (
	ResultWhiteWins = "white_wins"
	ResultBlackWins = "black_wins"
	ResultDraw      = "draw"
	ResultAborted   = "aborted"
)

// Cause values carried by game_over
const (
	CauseCheckmate            = "checkmate"
	CauseStalemate            = "stalemate"
	CauseInsufficientMaterial = "insufficient_material"
	CauseResignation          = "resignation"
	CauseTimeout              = "timeout"
	CauseAgreement            = "agreement"
	CauseAbandoned            = "abandoned"
)

// PlayerSummary describes a seated player to the other occupants
type PlayerSummary struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Rating      int    `json:"rating"`
	Color       string `json:"color,omitempty"`
	Connected   bool   `json:"connected"`
}

// MoveRecord describes one accepted move
type MoveRecord struct {
	Ply       int    `json:"ply"`
	Color     string `json:"color"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	SAN       string `json:"san"`
	FEN       string `json:"fen"`
	ElapsedMs int64  `json:"elapsedMs,omitempty"`
}

// GameState is the full view of a room's game sent on join, start and every move
type GameState struct {
	Status      string      `json:"status"`
	FEN         string      `json:"fen"`
	ActiveColor string      `json:"activeColor"`
	InCheck     bool        `json:"inCheck"`
	Moves       []string    `json:"moves"`
	LastMove    *MoveRecord `json:"lastMove,omitempty"`
	WhiteTimeMs int64       `json:"whiteTimeMs"`
	BlackTimeMs int64       `json:"blackTimeMs"`
	DrawOffer   string      `json:"drawOffer,omitempty"`
	Result      string      `json:"result,omitempty"`
	Winner      string      `json:"winner,omitempty"`
	Cause       string      `json:"cause,omitempty"`
}

// Message is the outbound envelope. Only the fields relevant to Type are set.
type Message struct {
	Type           Type              `json:"type"`
	GameID         string            `json:"gameId,omitempty"`
	PlayerID       string            `json:"playerId,omitempty"`
	DisplayName    string            `json:"displayName,omitempty"`
	Color          string            `json:"color,omitempty"`
	By             string            `json:"by,omitempty"`
	Opponent       *PlayerSummary    `json:"opponent,omitempty"`
	Players        []PlayerSummary   `json:"players,omitempty"`
	TimeControl    *game.TimeControl `json:"timeControl,omitempty"`
	TimeCategory   string            `json:"timeCategory,omitempty"`
	State          *GameState        `json:"state,omitempty"`
	Move           *MoveRecord       `json:"move,omitempty"`
	Result         string            `json:"result,omitempty"`
	Winner         string            `json:"winner,omitempty"`
	Cause          string            `json:"cause,omitempty"`
	SpectatorCount int               `json:"spectatorCount,omitempty"`
	Code           string            `json:"code,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	Timestamp      int64             `json:"timestamp"`
}

// New creates a message of type t stamped with the current time
func New(t Type) *Message {
	return &Message{Type: t, Timestamp: time.Now().UnixMilli()}
}

// NewError builds an error message with a machine-readable code
func NewError(code, reason string) *Message {
	m := New(TypeError)
	m.Code = code
	m.Reason = reason
	return m
}

// MoveRejected builds the reply to a refused make_move
func MoveRejected(gameID, reason string) *Message {
	m := New(TypeMoveRejected)
	m.GameID = gameID
	m.Reason = reason
	return m
}
