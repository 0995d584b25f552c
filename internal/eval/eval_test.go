package eval

import (
	"testing"

	nchess "github.com/corentings/chess/v2"
)

func positionFromFEN(t *testing.T, fen string) *nchess.Position {
	t.Helper()
	opt, err := nchess.FEN(fen)
	if err != nil {
		t.Fatalf("FEN %q: %v", fen, err)
	}
	return nchess.NewGame(opt).Position()
}

func positionAfterUCI(t *testing.T, moves ...string) *nchess.Position {
	t.Helper()
	game := nchess.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			t.Fatalf("push %q: %v", mv, err)
		}
	}
	return game.Position()
}

func TestEvaluateStartingPositionIsBalanced(t *testing.T) {
	if got := Evaluate(nchess.NewGame().Position()); got != 0 {
		t.Fatalf("starting position = %d, want 0", got)
	}
}

func TestEvaluateCentralPawnAdvance(t *testing.T) {
	// e2 carries a -20 square penalty, e4 a +20 bonus.
	if got := Evaluate(positionAfterUCI(t, "e2e4")); got != 40 {
		t.Fatalf("after e4 = %d, want 40", got)
	}
	if got := Evaluate(positionAfterUCI(t, "e2e4", "e7e5")); got != 0 {
		t.Fatalf("after e4 e5 = %d, want 0", got)
	}
}

func TestEvaluateMirrorSymmetry(t *testing.T) {
	white := Evaluate(positionAfterUCI(t, "e2e4"))
	// The color-flipped position: Black advanced the e-pawn instead.
	black := Evaluate(positionFromFEN(t, "rnbqkbnr/pppp1ppp/8/4p3/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"))
	if white != -black {
		t.Fatalf("mirror asymmetry: white advance = %d, black advance = %d", white, black)
	}
}

func TestEvaluateMaterialDominatesPlacement(t *testing.T) {
	// White is up a queen; no square bonus comes close to 900.
	up := Evaluate(positionFromFEN(t, "rnb1kbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"))
	if up < 800 {
		t.Fatalf("queen-up position = %d, want >= 800", up)
	}
}

func TestEvaluateInsufficientMaterial(t *testing.T) {
	dead := []string{
		"8/8/4k3/8/8/3K4/8/8 w - - 0 1",    // bare kings
		"8/8/4k3/8/8/3KB3/8/8 w - - 0 1",   // K+B vs K
		"8/8/4k3/8/8/3KN3/8/8 b - - 0 1",   // K+N vs K
		"8/2b5/4k3/8/8/3KB3/8/8 w - - 0 1", // bishops on the same color
	}
	for _, fen := range dead {
		if got := Evaluate(positionFromFEN(t, fen)); got != 0 {
			t.Fatalf("dead draw %q = %d, want 0", fen, got)
		}
	}

	alive := []string{
		"8/8/4k3/8/8/3KR3/8/8 w - - 0 1",   // rook mates
		"8/3b4/4k3/8/8/3KB3/8/8 w - - 0 1", // opposite-colored bishops
		"8/8/4k3/8/8/2NKN3/8/8 w - - 0 1",  // two knights
		"8/8/4k3/8/8/2NKB3/8/8 w - - 0 1",  // knight and bishop
	}
	for _, fen := range alive {
		if got := Evaluate(positionFromFEN(t, fen)); got == 0 {
			t.Fatalf("winnable material %q scored 0", fen)
		}
	}
}

func TestEvaluateCheckmate(t *testing.T) {
	// Fool's mate: White to move and checkmated.
	pos := positionAfterUCI(t, "f2f3", "e7e5", "g2g4", "d8h4")
	if got := Evaluate(pos); got != -MateScore {
		t.Fatalf("checkmated White = %d, want %d", got, -MateScore)
	}
}

func TestEvaluateStalemate(t *testing.T) {
	pos := positionFromFEN(t, "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	if pos.Status() != nchess.Stalemate {
		t.Fatalf("expected stalemate, got %v", pos.Status())
	}
	if got := Evaluate(pos); got != 0 {
		t.Fatalf("stalemate = %d, want 0", got)
	}
}
