package rules

import (
	"errors"
	"testing"

	nchess "github.com/corentings/chess/v2"
)

func TestApplyUCIAndSAN(t *testing.T) {
	game := NewGame()
	applied, err := Apply(game, "e2e4")
	if err != nil {
		t.Fatalf("Apply e2e4: %v", err)
	}
	if applied.SAN != "e4" || applied.UCI != "e2e4" || applied.From != "e2" || applied.To != "e4" {
		t.Fatalf("unexpected applied move: %+v", applied)
	}

	applied, err = Apply(game, "Nf6")
	if err != nil {
		t.Fatalf("Apply Nf6: %v", err)
	}
	if applied.UCI != "g8f6" {
		t.Fatalf("SAN decode: got %q, want g8f6", applied.UCI)
	}
}

func TestApplyRejectsIllegalMove(t *testing.T) {
	game := NewGame()
	for _, text := range []string{"e2e5", "Ke2", "garbage", "", "  "} {
		if _, err := Apply(game, text); !errors.Is(err, ErrIllegalMove) {
			t.Fatalf("Apply(%q) = %v, want ErrIllegalMove", text, err)
		}
	}
	// The rejected attempts must not have advanced the game.
	if n := len(game.Moves()); n != 0 {
		t.Fatalf("game advanced by %d moves after rejections", n)
	}
}

func TestReplayRoundTrip(t *testing.T) {
	moves := []string{"e2e4", "c7c5", "g1f3", "d7d6"}
	game, err := Replay(moves)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if got := len(game.Moves()); got != len(moves) {
		t.Fatalf("replayed %d moves, want %d", got, len(moves))
	}
	if game.Position().Turn() != nchess.White {
		t.Fatalf("expected White to move after 4 plies")
	}

	if _, err := Replay([]string{"e2e4", "e2e4"}); err == nil {
		t.Fatalf("expected error replaying corrupted move list")
	}
}

func TestTerminalCheckmate(t *testing.T) {
	game, err := Replay([]string{"f2f3", "e7e5", "g2g4", "d8h4"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	over, outcome, method := Terminal(game)
	if !over || outcome != nchess.BlackWon || method != nchess.Checkmate {
		t.Fatalf("got over=%v outcome=%v method=%v", over, outcome, method)
	}
}

func TestTerminalNotOver(t *testing.T) {
	game, err := Replay([]string{"e2e4", "e7e5"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if over, _, _ := Terminal(game); over {
		t.Fatalf("open position reported as over")
	}
}

func TestTerminalThreefoldRepetitionIsAutomatic(t *testing.T) {
	// Knights shuffle back and forth until the start position occurs a
	// third time.
	game, err := Replay([]string{
		"g1f3", "g8f6", "f3g1", "f6g8",
		"g1f3", "g8f6", "f3g1", "f6g8",
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	over, outcome, method := Terminal(game)
	if !over || outcome != nchess.Draw || method != nchess.ThreefoldRepetition {
		t.Fatalf("got over=%v outcome=%v method=%v", over, outcome, method)
	}
}

func TestStartingFEN(t *testing.T) {
	if StartingFEN() != "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1" {
		t.Fatalf("unexpected starting FEN: %q", StartingFEN())
	}
}
