package game

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrUnknownMove   = errors.New("no piece can make this move")
	ErrAmbiguousMove = errors.New("move matches more than one piece")
)

// sanPattern captures piece letter, origin file, origin rank, capture mark,
// destination and promotion piece
var sanPattern = regexp.MustCompile(`^([KQRBN])?([a-h])?([1-8])?(x)?([a-h][1-8])(?:=?([QRBNqrbn]))?[+#]?[!?]*$`)

// ResolveSAN finds the legal move of the side to move described by token.
// Origin hints narrow the candidates; a token that still fits more than one
// piece is rejected with ErrAmbiguousMove instead of guessing.
func (b *Board) ResolveSAN(token string) (Move, error) {
	switch trimSuffix(token) {
	case "O-O", "0-0":
		return b.resolveCastle(token, KingSide)
	case "O-O-O", "0-0-0":
		return b.resolveCastle(token, QueenSide)
	}

	parts := sanPattern.FindStringSubmatch(token)
	if parts == nil {
		return Move{}, &FormatError{Field: "move", Value: token, Reason: "not algebraic notation"}
	}

	pieceType := Pawn
	if parts[1] != "" {
		pieceType = PieceTypeFromLetter(parts[1][0])
	}
	fileHint, rankHint := -1, -1
	if parts[2] != "" {
		fileHint = int(parts[2][0] - 'a')
	}
	if parts[3] != "" {
		rankHint = int(parts[3][0] - '1')
	}
	to, _ := ParseSquare(parts[5])
	promo := NoPieceType
	if parts[6] != "" {
		promo = PieceTypeFromLetter(parts[6][0])
		if pieceType != Pawn {
			return Move{}, &FormatError{Field: "move", Value: token, Reason: "only pawns promote"}
		}
	}

	var found []Move
	candidates := b.Pieces(b.Active, pieceType)
	for candidates != 0 {
		from := candidates.PopLSB()
		if fileHint >= 0 && from.Col() != fileHint {
			continue
		}
		if rankHint >= 0 && from.Row() != rankHint {
			continue
		}
		for _, dest := range b.LegalMoves(from) {
			if dest == to {
				found = append(found, Move{From: from, To: to, Promotion: promo})
				break
			}
		}
	}

	switch len(found) {
	case 0:
		return Move{}, fmt.Errorf("%s: %w", token, ErrUnknownMove)
	case 1:
		return found[0], nil
	}
	return Move{}, fmt.Errorf("%s: %w", token, ErrAmbiguousMove)
}

func (b *Board) resolveCastle(token string, side CastleSide) (Move, error) {
	home := kingHome(b.Active)
	to := home + 2
	if side == QueenSide {
		to = home - 2
	}
	for _, dest := range b.LegalMoves(home) {
		if dest == to && b.Pieces(b.Active, King).Has(home) {
			return Move{From: home, To: to}, nil
		}
	}
	return Move{}, fmt.Errorf("%s: %w", token, ErrUnknownMove)
}

func trimSuffix(token string) string {
	for len(token) > 0 {
		switch token[len(token)-1] {
		case '+', '#', '!', '?':
			token = token[:len(token)-1]
		default:
			return token
		}
	}
	return token
}

// Replay plays tokens from start and returns every resulting board,
// starting with start itself.
func Replay(start Board, tokens []string) ([]Board, error) {
	boards := make([]Board, 0, len(tokens)+1)
	boards = append(boards, start)
	cur := start
	for i, token := range tokens {
		m, err := cur.ResolveSAN(token)
		if err != nil {
			return boards, fmt.Errorf("replay ply %d: %w", i+1, err)
		}
		cur.ApplyMove(m)
		boards = append(boards, cur)
	}
	return boards, nil
}

// ReplayFEN is Replay from StartFEN, returning position text for each board
func ReplayFEN(tokens []string) ([]string, error) {
	boards, err := Replay(NewBoard(), tokens)
	fens := make([]string, len(boards))
	for i := range boards {
		fens[i] = boards[i].FEN()
	}
	return fens, err
}
