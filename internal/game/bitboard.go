package game

import (
	"fmt"
	"math/bits"
)

// Bitboard is a 64-bit occupancy set. Bit n is set when square n is occupied.
type Bitboard uint64

// Has reports whether sq is in the set
func (b Bitboard) Has(sq Square) bool {
	return b&sq.bit() != 0
}

// Add puts sq into the set
func (b *Bitboard) Add(sq Square) {
	*b |= sq.bit()
}

// Remove takes sq out of the set
func (b *Bitboard) Remove(sq Square) {
	*b &^= sq.bit()
}

// Count returns the number of squares in the set
func (b Bitboard) Count() int {
	return bits.OnesCount64(uint64(b))
}

// PopLSB removes and returns the lowest square in the set.
// The result is NoSquare for an empty set.
func (b *Bitboard) PopLSB() Square {
	if *b == 0 {
		return NoSquare
	}
	sq := Square(bits.TrailingZeros64(uint64(*b)))
	*b &= *b - 1
	return sq
}

// Squares lists the squares in the set in ascending index order
func (b Bitboard) Squares() []Square {
	out := make([]Square, 0, b.Count())
	for b != 0 {
		out = append(out, b.PopLSB())
	}
	return out
}

// Square is a board index 0-63, row-major from white's back rank: a1=0, h1=7, a8=56.
type Square int8

// NoSquare marks an absent square (no en-passant target, empty set)
const NoSquare Square = -1

// NewSquare builds a square from a row (rank 1 = 0) and column (file a = 0)
func NewSquare(row, col int) Square {
	if row < 0 || row > 7 || col < 0 || col > 7 {
		return NoSquare
	}
	return Square(row*8 + col)
}

// ParseSquare converts algebraic notation (e.g. "e4") to a Square
func ParseSquare(s string) (Square, error) {
	if len(s) != 2 {
		return NoSquare, fmt.Errorf("invalid square: %q", s)
	}
	col := int(s[0]) - 'a'
	row := int(s[1]) - '1'
	if col < 0 || col > 7 || row < 0 || row > 7 {
		return NoSquare, fmt.Errorf("invalid square: %q", s)
	}
	return NewSquare(row, col), nil
}

// Valid reports whether the square lies on the board
func (s Square) Valid() bool { return s >= 0 && s < 64 }

// Row returns 0 for rank 1 through 7 for rank 8
func (s Square) Row() int { return int(s) / 8 }

// Col returns 0 for file a through 7 for file h
func (s Square) Col() int { return int(s) % 8 }

func (s Square) bit() Bitboard {
	if !s.Valid() {
		return 0
	}
	return Bitboard(1) << uint(s)
}

// Offset steps dr rows and dc columns away. ok is false when the step leaves the board.
func (s Square) Offset(dr, dc int) (Square, bool) {
	row, col := s.Row()+dr, s.Col()+dc
	if row < 0 || row > 7 || col < 0 || col > 7 {
		return NoSquare, false
	}
	return NewSquare(row, col), true
}

// String returns algebraic notation, or "-" for NoSquare
func (s Square) String() string {
	if !s.Valid() {
		return "-"
	}
	return string([]byte{byte('a' + s.Col()), byte('1' + s.Row())})
}
