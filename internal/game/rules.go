package game

import (
	"fmt"
	"slices"
	"strings"
)

// Move is a from/to pair. Promotion names the piece a pawn reaching the last
// rank becomes; NoPieceType means queen.
type Move struct {
	From      Square
	To        Square
	Promotion PieceType
}

// ParseMove reads coordinate notation such as "e2e4" or "e7e8n"
func ParseMove(s string) (Move, error) {
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("invalid move: %q", s)
	}
	from, err := ParseSquare(s[0:2])
	if err != nil {
		return Move{}, err
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return Move{}, err
	}
	m := Move{From: from, To: to}
	if len(s) == 5 {
		if m.Promotion, err = ParsePromotion(s[4:]); err != nil {
			return Move{}, err
		}
	}
	return m, nil
}

// ParsePromotion reads a promotion letter. Empty input means queen.
func ParsePromotion(s string) (PieceType, error) {
	if s == "" {
		return NoPieceType, nil
	}
	if len(s) == 1 {
		switch t := PieceTypeFromLetter(s[0]); t {
		case Knight, Bishop, Rook, Queen:
			return t, nil
		}
	}
	return NoPieceType, fmt.Errorf("invalid promotion piece: %q", s)
}

func (m Move) String() string {
	s := m.From.String() + m.To.String()
	if m.Promotion != NoPieceType {
		s += string(m.Promotion.Letter())
	}
	return s
}

// IllegalMoveError is returned when a move is not in the legal move list
type IllegalMoveError struct {
	Move   Move
	Reason string
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("illegal move %s: %s", e.Move, e.Reason)
}

// LegalMoves filters PseudoMoves by playing each candidate on a copy of the
// board and dropping those that leave the mover's king attacked.
func (b *Board) LegalMoves(from Square) []Square {
	piece, ok := b.PieceAt(from)
	if !ok {
		return nil
	}
	var legal []Square
	for _, to := range b.PseudoMoves(from) {
		scratch := b.Clone()
		scratch.ApplyMove(Move{From: from, To: to})
		if !scratch.IsInCheck(piece.Color) {
			legal = append(legal, to)
		}
	}
	return legal
}

// AllLegalMoves lists every legal move of color c, squares scanned in index order
func (b *Board) AllLegalMoves(c Color) []Move {
	var moves []Move
	own := b.ByColor(c)
	for own != 0 {
		from := own.PopLSB()
		for _, to := range b.LegalMoves(from) {
			moves = append(moves, Move{From: from, To: to})
		}
	}
	return moves
}

// HasLegalMoves reports whether color c has at least one legal move
func (b *Board) HasLegalMoves(c Color) bool {
	own := b.ByColor(c)
	for own != 0 {
		if len(b.LegalMoves(own.PopLSB())) > 0 {
			return true
		}
	}
	return false
}

// ValidateMove checks that m is legal for the side to move
func (b *Board) ValidateMove(m Move) error {
	piece, ok := b.PieceAt(m.From)
	if !ok {
		return &IllegalMoveError{Move: m, Reason: "no piece on " + m.From.String()}
	}
	if piece.Color != b.Active {
		return &IllegalMoveError{Move: m, Reason: "piece belongs to " + piece.Color.String()}
	}
	if !slices.Contains(b.LegalMoves(m.From), m.To) {
		return &IllegalMoveError{Move: m, Reason: "destination not reachable"}
	}
	if m.Promotion != NoPieceType && (piece.Type != Pawn || m.To.Row() != backRow(piece.Color.Opposite())) {
		return &IllegalMoveError{Move: m, Reason: "promotion only applies to a pawn reaching the last rank"}
	}
	return nil
}

// ApplyMove plays m in place, including captures, en passant, castling rook
// relocation and promotion, then updates castling rights, en-passant target,
// clocks and the active color. A move from an empty square is a no-op;
// callers validate with LegalMoves first.
func (b *Board) ApplyMove(m Move) {
	piece, ok := b.PieceAt(m.From)
	if !ok {
		return
	}
	c := piece.Color
	_, captured := b.PieceAt(m.To)

	if piece.Type == Pawn && m.From.Col() != m.To.Col() && !captured {
		if victim := b.enPassantVictim(m.To, c); victim != NoSquare {
			b.Remove(victim)
			captured = true
		}
	}

	b.Remove(m.From)
	b.Put(m.To, piece)

	switch piece.Type {
	case Pawn:
		if m.To.Row() == backRow(c.Opposite()) {
			promo := m.Promotion
			if promo < Knight || promo > Queen {
				promo = Queen
			}
			b.Put(m.To, Piece{Type: promo, Color: c})
		}
	case King:
		switch m.To.Col() - m.From.Col() {
		case 2:
			b.Remove(m.From + 3)
			b.Put(m.From+1, Piece{Type: Rook, Color: c})
		case -2:
			b.Remove(m.From - 4)
			b.Put(m.From-1, Piece{Type: Rook, Color: c})
		}
		b.Castling &^= castleFlag(KingSide, c) | castleFlag(QueenSide, c)
	}

	b.Castling &^= cornerRight(m.From) | cornerRight(m.To)

	b.EnPassant = NoSquare
	if piece.Type == Pawn && (m.To.Row()-m.From.Row() == 2 || m.From.Row()-m.To.Row() == 2) {
		b.EnPassant = NewSquare((m.From.Row()+m.To.Row())/2, m.From.Col())
	}

	if piece.Type == Pawn || captured {
		b.HalfMove = 0
	} else {
		b.HalfMove++
	}
	if c == Black {
		b.FullMove++
	}
	b.Active = c.Opposite()
}

// cornerRight is the castling right lost when a piece leaves or lands on sq
func cornerRight(sq Square) CastlingRights {
	switch sq {
	case NewSquare(0, 7):
		return WhiteKingSide
	case NewSquare(0, 0):
		return WhiteQueenSide
	case NewSquare(7, 7):
		return BlackKingSide
	case NewSquare(7, 0):
		return BlackQueenSide
	}
	return NoCastling
}

// Status is the terminal state of a position, if any
type Status string

const (
	StatusOngoing              Status = "ongoing"
	StatusCheckmate            Status = "checkmate"
	StatusStalemate            Status = "stalemate"
	StatusInsufficientMaterial Status = "insufficient_material"
)

// Status derives whether the side to move is mated, stalemated, or the game is dead
func (b *Board) Status() Status {
	if !b.HasLegalMoves(b.Active) {
		if b.IsInCheck(b.Active) {
			return StatusCheckmate
		}
		return StatusStalemate
	}
	if IsInsufficientMaterial(b) {
		return StatusInsufficientMaterial
	}
	return StatusOngoing
}

// String renders the board as an 8x8 grid, rank 8 first. Handy in test failures.
func (b *Board) String() string {
	var sb strings.Builder
	for row := 7; row >= 0; row-- {
		for col := 0; col < 8; col++ {
			if p, ok := b.PieceAt(NewSquare(row, col)); ok {
				sb.WriteByte(p.Letter())
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
