package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"chess-arena/internal/game"
)

// FormatError reports an inbound message that could not be understood
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "invalid message: " + e.Reason
}

// Inbound is any client request. Fields not used by Type are ignored.
type Inbound struct {
	Type         Type              `json:"type"`
	Token        string            `json:"token,omitempty"`
	PlayerID     string            `json:"playerId,omitempty"`
	DisplayName  string            `json:"displayName,omitempty"`
	TimeCategory string            `json:"timeCategory,omitempty"`
	TimeControl  *game.TimeControl `json:"timeControl,omitempty"`
	Rating       *int              `json:"rating,omitempty"`
	GameID       string            `json:"gameId,omitempty"`
	From         string            `json:"from,omitempty"`
	To           string            `json:"to,omitempty"`
	Promotion    string            `json:"promotion,omitempty"`
	Accept       bool              `json:"accept,omitempty"`
}

// Decode parses and checks one client frame
func Decode(data []byte) (*Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, &FormatError{Reason: "malformed JSON"}
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	return &in, nil
}

func (in *Inbound) validate() error {
	switch in.Type {
	case "":
		return &FormatError{Reason: "missing type"}
	case TypeIdentify:
		if in.Token == "" && in.PlayerID == "" {
			return &FormatError{Reason: "identify requires a token or playerId"}
		}
	case TypeFindMatch:
		if in.TimeCategory == "" && in.TimeControl == nil {
			in.TimeCategory = string(game.DefaultTimeControl.Category)
		}
	case TypeCancelMatch:
	case TypeJoinRoom, TypeResign, TypeOfferDraw, TypeRespondDraw:
		if in.GameID == "" {
			return &FormatError{Reason: fmt.Sprintf("%s requires gameId", in.Type)}
		}
	case TypeMakeMove:
		if in.GameID == "" || in.From == "" || in.To == "" {
			return &FormatError{Reason: "make_move requires gameId, from and to"}
		}
	default:
		return &FormatError{Reason: fmt.Sprintf("unknown message type %q", in.Type)}
	}
	return nil
}

// Move converts the from/to/promotion fields of a make_move request
func (in *Inbound) Move() (game.Move, error) {
	from, err := game.ParseSquare(strings.ToLower(in.From))
	if err != nil {
		return game.Move{}, &FormatError{Reason: err.Error()}
	}
	to, err := game.ParseSquare(strings.ToLower(in.To))
	if err != nil {
		return game.Move{}, &FormatError{Reason: err.Error()}
	}
	promo, err := game.ParsePromotion(strings.ToLower(in.Promotion))
	if err != nil {
		return game.Move{}, &FormatError{Reason: err.Error()}
	}
	return game.Move{From: from, To: to, Promotion: promo}, nil
}

// RequestedTimeControl resolves the category or explicit control of a find_match.
// An explicit control wins over the category name.
func (in *Inbound) RequestedTimeControl() (game.TimeControl, error) {
	if in.TimeControl != nil {
		tc := *in.TimeControl
		if tc.Category == "" {
			tc.Category = game.TimeCategory(in.TimeCategory)
		}
		return tc, tc.Validate()
	}
	tc, ok := game.GetTimeControl(game.TimeCategory(in.TimeCategory))
	if !ok {
		return game.TimeControl{}, fmt.Errorf("unknown time category %q", in.TimeCategory)
	}
	return tc, nil
}
