package game

// DrawReason represents the reason for a draw
type DrawReason string

const (
	DrawByAgreement            DrawReason = "agreement"
	DrawByStalemate            DrawReason = "stalemate"
	DrawByInsufficientMaterial DrawReason = "insufficient_material"
)

// lightSquares has a bit set for every light square (h1 is light)
const lightSquares Bitboard = 0x55AA55AA55AA55AA

// IsInsufficientMaterial checks if neither player can checkmate (FIDE rules)
// Returns true for:
// - King vs King
// - King + Bishop vs King
// - King + Knight vs King
// - King + Bishop vs King + Bishop (same color squares)
func IsInsufficientMaterial(b *Board) bool {
	for c := White; c <= Black; c++ {
		if b.Pieces(c, Pawn)|b.Pieces(c, Rook)|b.Pieces(c, Queen) != 0 {
			return false
		}
	}

	whiteMinors := b.Pieces(White, Knight) | b.Pieces(White, Bishop)
	blackMinors := b.Pieces(Black, Knight) | b.Pieces(Black, Bishop)

	switch {
	case whiteMinors == 0 && blackMinors == 0:
		return true
	case whiteMinors == 0 && blackMinors.Count() == 1:
		return true
	case blackMinors == 0 && whiteMinors.Count() == 1:
		return true
	}

	wb, bb := b.Pieces(White, Bishop), b.Pieces(Black, Bishop)
	if wb.Count() == 1 && bb.Count() == 1 && whiteMinors == wb && blackMinors == bb {
		return (wb&lightSquares != 0) == (bb&lightSquares != 0)
	}
	return false
}
