package game

// Direction tables as (row, col) steps
var (
	knightSteps = [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps   = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	rookRays    = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	bishopRays  = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// forward is the row direction pawns of color c advance in
func forward(c Color) int {
	if c == White {
		return 1
	}
	return -1
}

func pawnStartRow(c Color) int {
	if c == White {
		return 1
	}
	return 6
}

func backRow(c Color) int {
	if c == White {
		return 0
	}
	return 7
}

// kingHome is e1 or e8
func kingHome(c Color) Square {
	return NewSquare(backRow(c), 4)
}

// PseudoMoves returns the destinations the piece on from can reach by movement
// geometry alone, without regard to leaving its own king in check.
func (b *Board) PseudoMoves(from Square) []Square {
	piece, ok := b.PieceAt(from)
	if !ok {
		return nil
	}
	own := b.ByColor(piece.Color)
	occupied := b.Occupied()

	switch piece.Type {
	case Pawn:
		return b.pawnMoves(from, piece.Color, occupied)
	case Knight:
		return stepMoves(from, knightSteps[:], own)
	case Bishop:
		return rayMoves(from, bishopRays[:], own, occupied)
	case Rook:
		return rayMoves(from, rookRays[:], own, occupied)
	case Queen:
		moves := rayMoves(from, rookRays[:], own, occupied)
		return append(moves, rayMoves(from, bishopRays[:], own, occupied)...)
	case King:
		moves := stepMoves(from, kingSteps[:], own)
		if from == kingHome(piece.Color) {
			if b.CanCastle(KingSide, piece.Color) {
				moves = append(moves, from+2)
			}
			if b.CanCastle(QueenSide, piece.Color) {
				moves = append(moves, from-2)
			}
		}
		return moves
	}
	return nil
}

func (b *Board) pawnMoves(from Square, c Color, occupied Bitboard) []Square {
	var moves []Square
	dir := forward(c)
	enemy := b.ByColor(c.Opposite())

	if one, ok := from.Offset(dir, 0); ok && !occupied.Has(one) {
		moves = append(moves, one)
		if from.Row() == pawnStartRow(c) {
			if two, ok := from.Offset(2*dir, 0); ok && !occupied.Has(two) {
				moves = append(moves, two)
			}
		}
	}

	for _, dc := range [2]int{-1, 1} {
		to, ok := from.Offset(dir, dc)
		if !ok {
			continue
		}
		if enemy.Has(to) {
			moves = append(moves, to)
		} else if to == b.EnPassant && b.enPassantVictim(to, c) != NoSquare {
			moves = append(moves, to)
		}
	}
	return moves
}

// enPassantVictim returns the square of the enemy pawn an en-passant capture
// onto target by color c would remove, or NoSquare when there is none.
func (b *Board) enPassantVictim(target Square, c Color) Square {
	victim, ok := target.Offset(-forward(c), 0)
	if !ok || b.Occupied().Has(target) {
		return NoSquare
	}
	if !b.Pieces(c.Opposite(), Pawn).Has(victim) {
		return NoSquare
	}
	return victim
}

func stepMoves(from Square, steps [][2]int, own Bitboard) []Square {
	var moves []Square
	for _, s := range steps {
		if to, ok := from.Offset(s[0], s[1]); ok && !own.Has(to) {
			moves = append(moves, to)
		}
	}
	return moves
}

func rayMoves(from Square, rays [][2]int, own, occupied Bitboard) []Square {
	var moves []Square
	for _, r := range rays {
		to := from
		for {
			next, ok := to.Offset(r[0], r[1])
			if !ok || own.Has(next) {
				break
			}
			moves = append(moves, next)
			if occupied.Has(next) {
				break
			}
			to = next
		}
	}
	return moves
}

// IsAttacked reports whether any piece of color by attacks sq
func (b *Board) IsAttacked(sq Square, by Color) bool {
	// a pawn of color by attacks sq from one row behind sq in its own direction
	pawns := b.Pieces(by, Pawn)
	for _, dc := range [2]int{-1, 1} {
		if from, ok := sq.Offset(-forward(by), dc); ok && pawns.Has(from) {
			return true
		}
	}

	knights := b.Pieces(by, Knight)
	for _, s := range knightSteps {
		if from, ok := sq.Offset(s[0], s[1]); ok && knights.Has(from) {
			return true
		}
	}

	kings := b.Pieces(by, King)
	for _, s := range kingSteps {
		if from, ok := sq.Offset(s[0], s[1]); ok && kings.Has(from) {
			return true
		}
	}

	queens := b.Pieces(by, Queen)
	occupied := b.Occupied()
	if b.rayHits(sq, rookRays[:], b.Pieces(by, Rook)|queens, occupied) {
		return true
	}
	return b.rayHits(sq, bishopRays[:], b.Pieces(by, Bishop)|queens, occupied)
}

// rayHits walks each ray from sq to the first occupied square and tests it against attackers
func (b *Board) rayHits(sq Square, rays [][2]int, attackers, occupied Bitboard) bool {
	for _, r := range rays {
		cur := sq
		for {
			next, ok := cur.Offset(r[0], r[1])
			if !ok {
				break
			}
			if occupied.Has(next) {
				if attackers.Has(next) {
					return true
				}
				break
			}
			cur = next
		}
	}
	return false
}

// IsInCheck reports whether color c's king is attacked
func (b *Board) IsInCheck(c Color) bool {
	king := b.KingSquare(c)
	if king == NoSquare {
		return false
	}
	return b.IsAttacked(king, c.Opposite())
}

// CanCastle checks the castling preconditions for one side: the rights flag,
// king and rook on their original squares, empty squares between them, king
// not in check, and no attacked square on the king's path.
func (b *Board) CanCastle(side CastleSide, c Color) bool {
	if b.Castling&castleFlag(side, c) == 0 {
		return false
	}
	home := kingHome(c)
	if !b.Pieces(c, King).Has(home) {
		return false
	}

	var corner Square
	var between, path []Square
	if side == KingSide {
		corner = home + 3
		between = []Square{home + 1, home + 2}
		path = []Square{home + 1, home + 2}
	} else {
		corner = home - 4
		between = []Square{home - 1, home - 2, home - 3}
		path = []Square{home - 1, home - 2}
	}
	if !b.Pieces(c, Rook).Has(corner) {
		return false
	}

	occupied := b.Occupied()
	for _, sq := range between {
		if occupied.Has(sq) {
			return false
		}
	}

	enemy := c.Opposite()
	if b.IsAttacked(home, enemy) {
		return false
	}
	for _, sq := range path {
		if b.IsAttacked(sq, enemy) {
			return false
		}
	}
	return true
}
