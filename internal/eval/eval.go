// Package eval scores chess positions for the bot search. Positive values
// favor White regardless of whose turn it is.
package eval

import nchess "github.com/corentings/chess/v2"

// MateScore is the magnitude assigned to a checkmated position. It must
// dominate any material sum so the search always prefers (or avoids) mate.
const MateScore = 100000

// Evaluate returns the static score of a position. The side to move being
// checkmated scores against that side; drawn terminals score 0. Otherwise
// the score is the material and piece-square sum over all pieces, mirrored
// for Black. Pure function of the position.
//
// Position.Status only reports checkmate and stalemate, so dead material
// draws are detected here. Repetition and fifty-move draws are history
// properties a bare position cannot see; the match layer classifies those
// through the full game before the search ever runs.
func Evaluate(pos *nchess.Position) int {
	switch pos.Status() {
	case nchess.Checkmate:
		if pos.Turn() == nchess.White {
			return -MateScore
		}
		return MateScore
	case nchess.Stalemate:
		return 0
	}
	if insufficientMaterial(pos) {
		return 0
	}

	total := 0
	for sq, piece := range pos.Board().SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		total += pieceScore(piece, sq)
	}
	return total
}

// insufficientMaterial reports the dead draws no sequence of legal moves
// can win: bare kings, a lone minor piece, or one bishop per side on
// same-colored squares.
func insufficientMaterial(pos *nchess.Position) bool {
	knights, bishops := 0, 0
	bishopColors := map[int]bool{}
	for sq, piece := range pos.Board().SquareMap() {
		switch piece.Type() {
		case nchess.NoPieceType, nchess.King:
		case nchess.Knight:
			knights++
		case nchess.Bishop:
			bishops++
			bishopColors[(int(sq.File())+int(sq.Rank()))%2] = true
		default:
			return false
		}
	}
	if knights+bishops <= 1 {
		return true
	}
	// Any number of bishops confined to one square color cannot mate.
	return knights == 0 && len(bishopColors) == 1
}

func pieceScore(piece nchess.Piece, sq nchess.Square) int {
	value := pieceValues[piece.Type()]
	table := tableFor(piece.Type())

	// Tables are laid out from White's perspective with row 0 = rank 8;
	// Black reads them mirrored on both axes.
	file := int(sq.File())
	rank := int(sq.Rank())
	var y, x int
	if piece.Color() == nchess.White {
		y, x = 7-rank, file
	} else {
		y, x = rank, 7-file
	}
	score := value + table[y][x]
	if piece.Color() == nchess.Black {
		return -score
	}
	return score
}
