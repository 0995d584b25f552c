// Package rules wraps the chess rules library behind the small surface the
// session core needs. The library is treated as an always-correct oracle:
// move legality, terminal detection and notation all live here, never in
// the callers.
package rules

import (
	"errors"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var ErrIllegalMove = errors.New("illegal move")

// AppliedMove describes a move after the oracle accepted it.
type AppliedMove struct {
	SAN  string
	UCI  string
	From string
	To   string
}

// NewGame returns a game at the standard starting position.
func NewGame() *nchess.Game { return nchess.NewGame() }

// StartingFEN is the canonical position string for a fresh match.
func StartingFEN() string { return nchess.NewGame().FEN() }

// Replay reconstructs a game from the start position by applying stored
// UCI moves. Returns an error if any stored move no longer applies, which
// indicates corrupted state.
func Replay(movesUCI []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	for _, mv := range movesUCI {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, err
		}
	}
	return game, nil
}

// Apply decodes moveText against the game's current position (UCI first,
// SAN fallback) and pushes it. Returns ErrIllegalMove when the oracle
// rejects the move; the game is left unchanged in that case.
func Apply(game *nchess.Game, moveText string) (AppliedMove, error) {
	text := strings.TrimSpace(moveText)
	if text == "" {
		return AppliedMove{}, ErrIllegalMove
	}
	pos := game.Position()
	if err := game.PushNotationMove(strings.ToLower(text), nchess.UCINotation{}, nil); err != nil {
		if err := game.PushNotationMove(text, nchess.AlgebraicNotation{}, nil); err != nil {
			return AppliedMove{}, ErrIllegalMove
		}
	}
	last := lastMove(game)
	if last == nil {
		return AppliedMove{}, ErrIllegalMove
	}
	return AppliedMove{
		SAN:  nchess.AlgebraicNotation{}.Encode(pos, last),
		UCI:  last.String(),
		From: last.S1().String(),
		To:   last.S2().String(),
	}, nil
}

// Terminal reports whether the game has ended, with the library's outcome
// and method for the callers to map onto their result vocabulary.
// Threefold repetition and the fifty-move rule are claim-based in the
// library but automatic draws in this platform, so eligible claims are
// exercised here on the oracle's behalf.
func Terminal(game *nchess.Game) (over bool, outcome nchess.Outcome, method nchess.Method) {
	if game.Outcome() == nchess.NoOutcome {
		_ = game.Draw(nchess.ThreefoldRepetition)
	}
	if game.Outcome() == nchess.NoOutcome {
		_ = game.Draw(nchess.FiftyMoveRule)
	}
	outcome = game.Outcome()
	return outcome != nchess.NoOutcome, outcome, game.Method()
}

// LegalMoves returns all legal moves in the position.
func LegalMoves(pos *nchess.Position) []nchess.Move {
	return pos.ValidMoves()
}

func lastMove(game *nchess.Game) *nchess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}
