package game

import (
	"errors"
	"fmt"
)

// Color is the side a piece belongs to
type Color uint8

const (
	White Color = iota
	Black
)

// Opposite returns the other color
func (c Color) Opposite() Color { return c ^ 1 }

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

// ParseColor accepts "white" or "black"
func ParseColor(s string) (Color, error) {
	switch s {
	case "white":
		return White, nil
	case "black":
		return Black, nil
	}
	return White, fmt.Errorf("invalid color: %q", s)
}

// PieceType identifies the kind of piece. NoPieceType is the zero value.
type PieceType uint8

const (
	NoPieceType PieceType = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

const pieceLetters = " pnbrqk"

// Letter returns the lowercase letter used in position text and move notation
func (t PieceType) Letter() byte {
	if t > King {
		return ' '
	}
	return pieceLetters[t]
}

func (t PieceType) String() string {
	switch t {
	case Pawn:
		return "pawn"
	case Knight:
		return "knight"
	case Bishop:
		return "bishop"
	case Rook:
		return "rook"
	case Queen:
		return "queen"
	case King:
		return "king"
	}
	return "none"
}

// PieceTypeFromLetter maps a letter in either case to its piece type
func PieceTypeFromLetter(c byte) PieceType {
	if c >= 'A' && c <= 'Z' {
		c += 'a' - 'A'
	}
	for t := Pawn; t <= King; t++ {
		if pieceLetters[t] == c {
			return t
		}
	}
	return NoPieceType
}

// Piece is a typed, colored piece
type Piece struct {
	Type  PieceType
	Color Color
}

// Letter returns the piece letter, uppercase for white
func (p Piece) Letter() byte {
	l := p.Type.Letter()
	if p.Color == White {
		return l - ('a' - 'A')
	}
	return l
}

func pieceFromLetter(c byte) (Piece, bool) {
	t := PieceTypeFromLetter(c)
	if t == NoPieceType {
		return Piece{}, false
	}
	color := Black
	if c >= 'A' && c <= 'Z' {
		color = White
	}
	return Piece{Type: t, Color: color}, true
}

var (
	ErrOverlappingPieces = errors.New("square occupied by more than one piece")
	ErrKingCount         = errors.New("each color must have exactly one king")
)

// Position holds twelve occupancy sets, one per (color, piece type).
// It is a plain value: assigning a Position copies every set.
type Position struct {
	sets [2][6]Bitboard
}

// Pieces returns the occupancy set for one color and type
func (p *Position) Pieces(c Color, t PieceType) Bitboard {
	if t == NoPieceType || t > King {
		return 0
	}
	return p.sets[c][t-1]
}

// ByColor returns every square occupied by color c
func (p *Position) ByColor(c Color) Bitboard {
	var b Bitboard
	for _, s := range p.sets[c] {
		b |= s
	}
	return b
}

// Occupied returns the union of all twelve sets
func (p *Position) Occupied() Bitboard {
	return p.ByColor(White) | p.ByColor(Black)
}

// PieceAt scans the twelve sets for the piece on sq
func (p *Position) PieceAt(sq Square) (Piece, bool) {
	if !sq.Valid() {
		return Piece{}, false
	}
	for c := White; c <= Black; c++ {
		for i, s := range p.sets[c] {
			if s.Has(sq) {
				return Piece{Type: PieceType(i + 1), Color: c}, true
			}
		}
	}
	return Piece{}, false
}

// Put places piece on sq, clearing whatever was there
func (p *Position) Put(sq Square, piece Piece) {
	if piece.Type == NoPieceType || piece.Type > King {
		return
	}
	p.Remove(sq)
	p.sets[piece.Color][piece.Type-1].Add(sq)
}

// Remove clears sq in every set
func (p *Position) Remove(sq Square) {
	for c := range p.sets {
		for i := range p.sets[c] {
			p.sets[c][i].Remove(sq)
		}
	}
}

// KingSquare returns the square of color c's king, or NoSquare
func (p *Position) KingSquare(c Color) Square {
	k := p.sets[c][King-1]
	return k.PopLSB()
}

// Validate checks that the sets are pairwise disjoint and that each color has one king
func (p *Position) Validate() error {
	var seen Bitboard
	for c := range p.sets {
		for _, s := range p.sets[c] {
			if seen&s != 0 {
				return ErrOverlappingPieces
			}
			seen |= s
		}
	}
	if p.Pieces(White, King).Count() != 1 || p.Pieces(Black, King).Count() != 1 {
		return ErrKingCount
	}
	return nil
}

// CastlingRights is a 4-flag set: king/queen side for each color
type CastlingRights uint8

const (
	WhiteKingSide CastlingRights = 1 << iota
	WhiteQueenSide
	BlackKingSide
	BlackQueenSide

	NoCastling  CastlingRights = 0
	AllCastling                = WhiteKingSide | WhiteQueenSide | BlackKingSide | BlackQueenSide
)

// CastleSide selects the king-side or queen-side rook
type CastleSide uint8

const (
	KingSide CastleSide = iota
	QueenSide
)

func castleFlag(side CastleSide, c Color) CastlingRights {
	switch {
	case c == White && side == KingSide:
		return WhiteKingSide
	case c == White:
		return WhiteQueenSide
	case side == KingSide:
		return BlackKingSide
	}
	return BlackQueenSide
}

// Board is a Position plus the auxiliary state needed to generate moves:
// active color, castling rights, en-passant target and the move clocks.
// Copying a Board yields a fully independent game state.
type Board struct {
	Position
	Active    Color
	Castling  CastlingRights
	EnPassant Square
	HalfMove  int
	FullMove  int
}

// NewBoard returns the standard initial layout
func NewBoard() Board {
	b, err := ParseFEN(StartFEN)
	if err != nil {
		panic(err)
	}
	return b
}

// Clone returns an independent copy of the board
func (b *Board) Clone() Board {
	return *b
}
