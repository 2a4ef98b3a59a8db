// Package auth verifies the identity tokens clients present when they connect.
// Tokens are issued elsewhere; Issue exists for tooling and tests.
package auth

import (
	"errors"
	"time"

	"chess-arena/internal/game"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultRating is assumed for categories a token carries no rating for
const DefaultRating = 1200

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrMissingID    = errors.New("token has no player id")
)

// Identity is who a connection plays as
type Identity struct {
	PlayerID    string         `json:"playerId"`
	DisplayName string         `json:"displayName"`
	Ratings     map[string]int `json:"ratings,omitempty"`
	Guest       bool           `json:"guest,omitempty"`
}

// RatingFor returns the rating used for matchmaking in a category
func (id Identity) RatingFor(cat game.TimeCategory) int {
	if r, ok := id.Ratings[string(cat)]; ok && r > 0 {
		return r
	}
	return DefaultRating
}

type IdentityClaims struct {
	PlayerID    string         `json:"playerId"`
	DisplayName string         `json:"displayName"`
	Ratings     map[string]int `json:"ratings,omitempty"`
	jwt.RegisteredClaims
}

type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret, issuer string) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    30 * 24 * time.Hour,
		now:    time.Now,
	}
}

// Issue signs an identity token
func (s *TokenService) Issue(id Identity) (string, error) {
	if id.PlayerID == "" {
		return "", ErrMissingID
	}
	now := s.now()
	claims := IdentityClaims{
		PlayerID:    id.PlayerID,
		DisplayName: id.DisplayName,
		Ratings:     id.Ratings,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   id.PlayerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify validates a token and returns the identity it carries
func (s *TokenService) Verify(tokenString string) (Identity, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.now)}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.PlayerID == "" {
		return Identity{}, ErrMissingID
	}

	return Identity{
		PlayerID:    claims.PlayerID,
		DisplayName: claims.DisplayName,
		Ratings:     claims.Ratings,
	}, nil
}

// SetTTL changes the lifetime of issued tokens
func (s *TokenService) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		s.ttl = ttl
	}
}
