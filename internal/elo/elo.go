// Package elo estimates the rating change a finished game implies. The
// arena does not own ratings; the deltas are archived for the service
// that issues identity tokens.
package elo

import (
	"math"

	"chess-arena/internal/protocol"
)

const (
	// DefaultK is the provisional K-factor; the arena does not know how many games a player has
	DefaultK = 32

	MinRating = 100
	MaxRating = 3000
)

// Score is a game outcome from one player's side
type Score float64

const (
	Loss Score = 0
	Draw Score = 0.5
	Win  Score = 1
)

// Expected is the expected score against opp: 1 / (1 + 10^((opp-rating)/400))
func Expected(rating, opp int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(opp-rating)/400.0))
}

// NewRating applies one result with factor k, clamped to [MinRating, MaxRating]
func NewRating(rating, opp int, s Score, k int) int {
	next := rating + int(math.Round(float64(k)*(float64(s)-Expected(rating, opp))))
	if next < MinRating {
		next = MinRating
	}
	if next > MaxRating {
		next = MaxRating
	}
	return next
}

// Scores maps a game_over result to both sides' scores. Aborted and
// unfinished games are unrated.
func Scores(result string) (white, black Score, rated bool) {
	switch result {
	case protocol.ResultWhiteWins:
		return Win, Loss, true
	case protocol.ResultBlackWins:
		return Loss, Win, true
	case protocol.ResultDraw:
		return Draw, Draw, true
	}
	return 0, 0, false
}

// Changes returns the rating deltas for white and black
func Changes(whiteRating, blackRating int, result string, k int) (int, int) {
	ws, bs, rated := Scores(result)
	if !rated || whiteRating <= 0 || blackRating <= 0 {
		return 0, 0
	}
	return NewRating(whiteRating, blackRating, ws, k) - whiteRating,
		NewRating(blackRating, whiteRating, bs, k) - blackRating
}
