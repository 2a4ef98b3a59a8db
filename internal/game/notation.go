package game

import "strings"

// SAN generates standard algebraic notation for a legal move, before it is played.
// Origin file/rank hints are added whenever another piece of the same type could
// reach the same square, and the promotion piece is always written out.
func (b *Board) SAN(m Move) string {
	piece, ok := b.PieceAt(m.From)
	if !ok {
		return m.String()
	}

	var notation strings.Builder

	if piece.Type == King && (m.To.Col()-m.From.Col() == 2 || m.From.Col()-m.To.Col() == 2) {
		if m.To.Col() == 6 {
			notation.WriteString("O-O")
		} else {
			notation.WriteString("O-O-O")
		}
		notation.WriteString(b.checkSuffix(m))
		return notation.String()
	}

	_, isCapture := b.PieceAt(m.To)
	if piece.Type == Pawn && m.From.Col() != m.To.Col() {
		isCapture = true
	}

	if piece.Type == Pawn {
		if isCapture {
			notation.WriteByte(byte('a' + m.From.Col()))
		}
	} else {
		notation.WriteByte(piece.Type.Letter() - ('a' - 'A'))
		needFile, needRank := b.disambiguation(m, piece)
		if needFile {
			notation.WriteByte(byte('a' + m.From.Col()))
		}
		if needRank {
			notation.WriteByte(byte('1' + m.From.Row()))
		}
	}

	if isCapture {
		notation.WriteByte('x')
	}
	notation.WriteString(m.To.String())

	if piece.Type == Pawn && m.To.Row() == backRow(piece.Color.Opposite()) {
		promo := m.Promotion
		if promo < Knight || promo > Queen {
			promo = Queen
		}
		notation.WriteByte('=')
		notation.WriteByte(promo.Letter() - ('a' - 'A'))
	}

	notation.WriteString(b.checkSuffix(m))
	return notation.String()
}

func (b *Board) checkSuffix(m Move) string {
	next := b.Clone()
	next.ApplyMove(m)
	if !next.IsInCheck(next.Active) {
		return ""
	}
	if next.HasLegalMoves(next.Active) {
		return "+"
	}
	return "#"
}

// disambiguation follows the usual rule: file if it separates the candidates,
// otherwise rank, otherwise both.
func (b *Board) disambiguation(m Move, piece Piece) (needFile, needRank bool) {
	others := b.Pieces(piece.Color, piece.Type)
	others.Remove(m.From)

	rivals := false
	sameFile, sameRank := false, false
	for others != 0 {
		sq := others.PopLSB()
		reaches := false
		for _, to := range b.LegalMoves(sq) {
			if to == m.To {
				reaches = true
				break
			}
		}
		if !reaches {
			continue
		}
		rivals = true
		if sq.Col() == m.From.Col() {
			sameFile = true
		}
		if sq.Row() == m.From.Row() {
			sameRank = true
		}
	}

	if !rivals {
		return false, false
	}
	if !sameFile {
		return true, false
	}
	if !sameRank {
		return false, true
	}
	return true, true
}
