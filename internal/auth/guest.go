package auth

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxPlayerIDLength    = 64
	maxDisplayNameLength = 32
)

var (
	ErrTokenRequired   = errors.New("an identity token is required")
	ErrInvalidPlayerID = errors.New("player id must be 1-64 letters, digits, '-' or '_'")
)

var adjectives = []string{
	"Swift", "Brave", "Clever", "Noble", "Silent", "Golden", "Crimson", "Azure",
	"Cosmic", "Ancient", "Fierce", "Gentle", "Bold", "Wise", "Quick", "Keen",
	"Storm", "Frost", "Iron", "Stone", "Lunar", "Solar", "Grand", "Prime",
}

var nouns = []string{
	"Knight", "Bishop", "Rook", "Queen", "King", "Pawn", "Gambit", "Fianchetto",
	"Castle", "Tower", "Crown", "Sentinel", "Tempo", "Zugzwang", "Endgame", "Opening",
}

// GuestName returns a random display name such as "QuickRook512"
func GuestName() string {
	return fmt.Sprintf("%s%s%d", adjectives[rand.Intn(len(adjectives))], nouns[rand.Intn(len(nouns))], rand.Intn(1000))
}

// Authenticator turns an identify request into an Identity. With required set,
// only signed tokens are accepted; otherwise a bare player id is trusted as a guest.
type Authenticator struct {
	tokens   *TokenService
	required bool
}

func NewAuthenticator(tokens *TokenService, required bool) *Authenticator {
	return &Authenticator{tokens: tokens, required: required}
}

func (a *Authenticator) Identify(token, playerID, displayName string) (Identity, error) {
	if token != "" {
		if a.tokens == nil {
			return Identity{}, ErrInvalidToken
		}
		id, err := a.tokens.Verify(token)
		if err != nil {
			return Identity{}, err
		}
		return a.Admit(id), nil
	}
	if a.required {
		return Identity{}, ErrTokenRequired
	}
	if !validPlayerID(playerID) {
		return Identity{}, ErrInvalidPlayerID
	}
	return Identity{PlayerID: playerID, DisplayName: cleanDisplayName(displayName), Guest: true}, nil
}

// Admit applies the display-name rules to an identity verified elsewhere,
// such as a token on the upgrade request
func (a *Authenticator) Admit(id Identity) Identity {
	id.DisplayName = cleanDisplayName(id.DisplayName)
	return id
}

func validPlayerID(id string) bool {
	if id == "" || len(id) > maxPlayerIDLength {
		return false
	}
	for _, r := range id {
		if !(r == '-' || r == '_' || r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))) {
			return false
		}
	}
	return true
}

// cleanDisplayName trims control characters and length, falling back to a generated name
func cleanDisplayName(name string) string {
	name = strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name))
	if name == "" {
		return GuestName()
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		name = string([]rune(name)[:maxDisplayNameLength])
	}
	return name
}
