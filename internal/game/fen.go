package game

import (
	"fmt"
	"strconv"
	"strings"
)

// StartFEN is the standard initial position
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// FormatError reports a malformed field in position text
type FormatError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid position text: %s", e.Reason)
	}
	return fmt.Sprintf("invalid position %s %q: %s", e.Field, e.Value, e.Reason)
}

// ParseFEN decodes the 6-field position text. Only canonical text is accepted
// so that FEN() reproduces the input byte for byte, and each side must have
// exactly one king.
func ParseFEN(text string) (Board, error) {
	fields := strings.Split(text, " ")
	if len(fields) != 6 {
		return Board{}, &FormatError{Reason: fmt.Sprintf("expected 6 space-separated fields, got %d", len(fields))}
	}

	var b Board
	if err := parsePlacement(&b.Position, fields[0]); err != nil {
		return Board{}, err
	}
	if err := b.Position.Validate(); err != nil {
		return Board{}, &FormatError{Field: "placement", Value: fields[0], Reason: err.Error()}
	}

	switch fields[1] {
	case "w":
		b.Active = White
	case "b":
		b.Active = Black
	default:
		return Board{}, &FormatError{Field: "active color", Value: fields[1], Reason: "must be w or b"}
	}

	castling, err := parseCastling(fields[2])
	if err != nil {
		return Board{}, err
	}
	b.Castling = castling

	b.EnPassant = NoSquare
	if fields[3] != "-" {
		sq, err := ParseSquare(fields[3])
		if err != nil || (sq.Row() != 2 && sq.Row() != 5) {
			return Board{}, &FormatError{Field: "en passant", Value: fields[3], Reason: "must be - or a square on rank 3 or 6"}
		}
		b.EnPassant = sq
	}

	if b.HalfMove, err = parseCounter("halfmove clock", fields[4], 0); err != nil {
		return Board{}, err
	}
	if b.FullMove, err = parseCounter("fullmove number", fields[5], 1); err != nil {
		return Board{}, err
	}
	return b, nil
}

func parsePlacement(p *Position, field string) error {
	ranks := strings.Split(field, "/")
	if len(ranks) != 8 {
		return &FormatError{Field: "placement", Value: field, Reason: "expected 8 ranks"}
	}
	for i, rank := range ranks {
		row := 7 - i
		col := 0
		prevDigit := false
		for j := 0; j < len(rank); j++ {
			c := rank[j]
			if c >= '1' && c <= '8' {
				if prevDigit {
					return &FormatError{Field: "placement", Value: rank, Reason: "adjacent empty-square digits"}
				}
				col += int(c - '0')
				prevDigit = true
			} else {
				piece, ok := pieceFromLetter(c)
				if !ok {
					return &FormatError{Field: "placement", Value: rank, Reason: fmt.Sprintf("unknown piece letter %q", c)}
				}
				if col < 8 {
					p.Put(NewSquare(row, col), piece)
				}
				col++
				prevDigit = false
			}
			if col > 8 {
				return &FormatError{Field: "placement", Value: rank, Reason: "rank longer than 8 squares"}
			}
		}
		if col != 8 {
			return &FormatError{Field: "placement", Value: rank, Reason: "rank shorter than 8 squares"}
		}
	}
	return nil
}

// castlingOrder is the canonical letter order
var castlingOrder = [4]struct {
	letter byte
	flag   CastlingRights
}{
	{'K', WhiteKingSide},
	{'Q', WhiteQueenSide},
	{'k', BlackKingSide},
	{'q', BlackQueenSide},
}

func parseCastling(field string) (CastlingRights, error) {
	if field == "-" {
		return NoCastling, nil
	}
	if field == "" || len(field) > 4 {
		return NoCastling, &FormatError{Field: "castling", Value: field, Reason: "must be - or a subset of KQkq"}
	}
	var rights CastlingRights
	next := 0
	for i := 0; i < len(field); i++ {
		found := false
		for next < len(castlingOrder) {
			entry := castlingOrder[next]
			next++
			if entry.letter == field[i] {
				rights |= entry.flag
				found = true
				break
			}
		}
		if !found {
			return NoCastling, &FormatError{Field: "castling", Value: field, Reason: "letters must come from KQkq in that order"}
		}
	}
	return rights, nil
}

func parseCounter(name, field string, min int) (int, error) {
	if field == "" || (len(field) > 1 && field[0] == '0') {
		return 0, &FormatError{Field: name, Value: field, Reason: "not a canonical integer"}
	}
	for i := 0; i < len(field); i++ {
		if field[i] < '0' || field[i] > '9' {
			return 0, &FormatError{Field: name, Value: field, Reason: "not a canonical integer"}
		}
	}
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, &FormatError{Field: name, Value: field, Reason: err.Error()}
	}
	if n < min {
		return 0, &FormatError{Field: name, Value: field, Reason: fmt.Sprintf("must be at least %d", min)}
	}
	return n, nil
}

// FEN serializes the board as 6-field position text
func (b *Board) FEN() string {
	var sb strings.Builder
	for row := 7; row >= 0; row-- {
		empty := 0
		for col := 0; col < 8; col++ {
			piece, ok := b.PieceAt(NewSquare(row, col))
			if !ok {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteByte(piece.Letter())
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if row > 0 {
			sb.WriteByte('/')
		}
	}

	if b.Active == White {
		sb.WriteString(" w ")
	} else {
		sb.WriteString(" b ")
	}

	if b.Castling == NoCastling {
		sb.WriteByte('-')
	} else {
		for _, entry := range castlingOrder {
			if b.Castling&entry.flag != 0 {
				sb.WriteByte(entry.letter)
			}
		}
	}

	sb.WriteByte(' ')
	sb.WriteString(b.EnPassant.String())
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(b.HalfMove))
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(b.FullMove))
	return sb.String()
}
