// Package archive stores finished games. Rooms live in memory only; the
// archive is write-once history for later analysis.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chess-arena/internal/elo"
	"chess-arena/internal/game"
	"chess-arena/internal/protocol"
	"chess-arena/internal/room"
)

// Store persists finished games
type Store interface {
	SaveGame(ctx context.Context, s room.Summary) error
	Close(ctx context.Context) error
}

// Record is the stored form of one finished game
type Record struct {
	GameID      string           `json:"gameId" bson:"gameId"`
	WhiteID     string           `json:"whiteId" bson:"whiteId"`
	WhiteName   string           `json:"whiteName" bson:"whiteName"`
	WhiteRating int              `json:"whiteRating" bson:"whiteRating"`
	BlackID     string           `json:"blackId" bson:"blackId"`
	BlackName   string           `json:"blackName" bson:"blackName"`
	BlackRating int              `json:"blackRating" bson:"blackRating"`
	// provisional deltas for whoever owns the ratings
	WhiteDelta  int              `json:"whiteRatingDelta" bson:"whiteRatingDelta"`
	BlackDelta  int              `json:"blackRatingDelta" bson:"blackRatingDelta"`
	TimeControl game.TimeControl `json:"timeControl" bson:"timeControl"`
	Result      string           `json:"result" bson:"result"`
	Winner      string           `json:"winner,omitempty" bson:"winner,omitempty"`
	Cause       string           `json:"cause" bson:"cause"`
	MovesSAN    []string         `json:"movesSan" bson:"movesSan"`
	MovesUCI    []string         `json:"movesUci" bson:"movesUci"`
	FinalFEN    string           `json:"finalFen" bson:"finalFen"`
	PGN         string           `json:"pgn" bson:"pgn"`
	CreatedAt   time.Time        `json:"createdAt" bson:"createdAt"`
	StartedAt   *time.Time       `json:"startedAt,omitempty" bson:"startedAt,omitempty"`
	EndedAt     time.Time        `json:"endedAt" bson:"endedAt"`
	DurationMs  int64            `json:"durationMs" bson:"durationMs"`
}

// NewRecord flattens a room summary
func NewRecord(s room.Summary) Record {
	r := Record{
		GameID:      s.GameID,
		WhiteID:     s.White.PlayerID,
		WhiteName:   s.White.DisplayName,
		WhiteRating: s.White.Rating,
		BlackID:     s.Black.PlayerID,
		BlackName:   s.Black.DisplayName,
		BlackRating: s.Black.Rating,
		TimeControl: s.TimeControl,
		Result:      s.Result,
		Winner:      s.Winner,
		Cause:       s.Cause,
		MovesSAN:    s.SAN(),
		MovesUCI:    make([]string, len(s.Moves)),
		FinalFEN:    s.FEN,
		CreatedAt:   s.CreatedAt,
		StartedAt:   s.StartedAt,
	}
	r.WhiteDelta, r.BlackDelta = elo.Changes(r.WhiteRating, r.BlackRating, r.Result, elo.DefaultK)
	for i, m := range s.Moves {
		r.MovesUCI[i] = m.From + m.To + m.Promotion
	}
	r.EndedAt = s.CreatedAt
	if s.EndedAt != nil {
		r.EndedAt = *s.EndedAt
	}
	if s.StartedAt != nil {
		r.DurationMs = r.EndedAt.Sub(*s.StartedAt).Milliseconds()
	}
	if r.DurationMs < 0 {
		r.DurationMs = 0
	}
	r.PGN = BuildPGN(r)
	return r
}

func pgnResult(result string) string {
	switch result {
	case protocol.ResultWhiteWins:
		return "1-0"
	case protocol.ResultBlackWins:
		return "0-1"
	case protocol.ResultDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// BuildPGN renders the seven-tag roster plus time control and termination
func BuildPGN(r Record) string {
	var b strings.Builder
	date := r.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	res := pgnResult(r.Result)

	fmt.Fprintf(&b, "[Event \"Arena %s\"]\n", sanitizePGN(r.TimeControl.Category.DisplayName()))
	b.WriteString("[Site \"chess-arena\"]\n")
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	b.WriteString("[Round \"-\"]\n")
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(r.WhiteName))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(r.BlackName))
	fmt.Fprintf(&b, "[Result \"%s\"]\n", res)
	if r.WhiteRating > 0 {
		fmt.Fprintf(&b, "[WhiteElo \"%d\"]\n", r.WhiteRating)
	}
	if r.BlackRating > 0 {
		fmt.Fprintf(&b, "[BlackElo \"%d\"]\n", r.BlackRating)
	}
	if r.TimeControl.IsUnlimited() {
		b.WriteString("[TimeControl \"-\"]\n")
	} else {
		fmt.Fprintf(&b, "[TimeControl \"%d+%d\"]\n", r.TimeControl.BaseTimeMs/1000, r.TimeControl.IncrementMs/1000)
	}
	if r.Cause != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(r.Cause))
	}
	b.WriteString("\n")

	for i, san := range r.MovesSAN {
		if i%2 == 0 {
			fmt.Fprintf(&b, "%d. ", i/2+1)
		}
		b.WriteString(san)
		b.WriteString(" ")
	}
	b.WriteString(res)
	b.WriteString("\n")
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", "")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}

// Nop discards every game
type Nop struct{}

func (Nop) SaveGame(context.Context, room.Summary) error { return nil }
func (Nop) Close(context.Context) error                  { return nil }

// Config selects and addresses the archive backend
type Config struct {
	Driver   string `yaml:"driver"`
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// Open connects the configured backend. An empty driver or "none" gives Nop.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none":
		return Nop{}, nil
	case "mongodb", "mongo":
		return NewMongoStore(ctx, cfg.URI, cfg.Database)
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, cfg.URI)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}
