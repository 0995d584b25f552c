// Package search selects bot moves with a depth-bounded minimax over the
// static evaluator. It never mutates shared state: every line is explored
// on a fresh position copy, so concurrent searches across matches need no
// coordination.
package search

import (
	"math"
	"math/rand"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/gambitlab/gamecore/internal/eval"
	"github.com/gambitlab/gamecore/internal/rules"
)

// Engine holds the seeded randomness used for tie-breaking shuffles.
type Engine struct {
	randMu sync.Mutex
	rand   *rand.Rand
}

func NewEngine() *Engine {
	return &Engine{rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// SetRandomSeed fixes the shuffle source, for tests.
func (e *Engine) SetRandomSeed(seed int64) {
	e.randMu.Lock()
	e.rand = rand.New(rand.NewSource(seed))
	e.randMu.Unlock()
}

// SelectMove picks a move for the side to move. Returns ok=false only when
// the position has no legal moves; the game should already be terminal in
// that case, so this is a defensive path.
//
// Candidates are shuffled before evaluation so that equal-valued moves
// resolve differently across calls; the bot is deliberately not
// deterministic.
func (e *Engine) SelectMove(pos *nchess.Position, cfg Config) (nchess.Move, bool) {
	moves := rules.LegalMoves(pos)
	if len(moves) == 0 {
		return nchess.Move{}, false
	}

	r := e.random()
	if cfg.Randomize {
		r.Shuffle(len(moves), func(i, j int) { moves[i], moves[j] = moves[j], moves[i] })
	}
	if cfg.MaxDepth <= 0 {
		return moves[r.Intn(len(moves))], true
	}

	maximizing := pos.Turn() == nchess.White
	best := moves[0]
	bestValue := math.MinInt
	if !maximizing {
		bestValue = math.MaxInt
	}
	for i := range moves {
		child := pos.Update(&moves[i])
		value := minimax(child, cfg.MaxDepth-1, math.MinInt, math.MaxInt, !maximizing)
		if maximizing && value > bestValue || !maximizing && value < bestValue {
			bestValue = value
			best = moves[i]
		}
	}
	return best, true
}

// minimax with standard alpha-beta cutoffs. Depth is bounded (≤3 plies
// beyond the root), so plain recursion is safe; positions are copied on
// each move, which keeps every exit path, including pruning returns, free
// of undo bookkeeping.
func minimax(pos *nchess.Position, depth, alpha, beta int, maximizing bool) int {
	if depth == 0 || pos.Status() != nchess.NoMethod {
		return eval.Evaluate(pos)
	}
	moves := rules.LegalMoves(pos)
	if len(moves) == 0 {
		return eval.Evaluate(pos)
	}

	if maximizing {
		bestValue := math.MinInt
		for i := range moves {
			value := minimax(pos.Update(&moves[i]), depth-1, alpha, beta, false)
			if value > bestValue {
				bestValue = value
			}
			if value > alpha {
				alpha = value
			}
			if beta <= alpha {
				break
			}
		}
		return bestValue
	}

	bestValue := math.MaxInt
	for i := range moves {
		value := minimax(pos.Update(&moves[i]), depth-1, alpha, beta, true)
		if value < bestValue {
			bestValue = value
		}
		if value < beta {
			beta = value
		}
		if beta <= alpha {
			break
		}
	}
	return bestValue
}

// random returns an independent rand for one selection, so concurrent
// searches do not contend on a shared source.
func (e *Engine) random() *rand.Rand {
	e.randMu.Lock()
	seed := e.rand.Int63()
	e.randMu.Unlock()
	return rand.New(rand.NewSource(seed))
}
