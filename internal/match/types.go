package match

import (
	"time"

	nchess "github.com/corentings/chess/v2"
)

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// Status is the match lifecycle state. There are exactly two: draw
// negotiation is a sub-flag on the active state, not a state of its own.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Result is the final outcome, empty while the match is active.
type Result string

const (
	ResultWhite Result = "white"
	ResultBlack Result = "black"
	ResultDraw  Result = "draw"
)

// EndReason says how the match ended, empty while active.
type EndReason string

const (
	EndReasonCheckmate    EndReason = "checkmate"
	EndReasonStalemate    EndReason = "stalemate"
	EndReasonResignation  EndReason = "resignation"
	EndReasonTimeout      EndReason = "timeout"
	EndReasonAgreement    EndReason = "agreement"
	EndReasonRepetition   EndReason = "repetition"
	EndReasonInsufficient EndReason = "insufficient_material"
	EndReasonFiftyMove    EndReason = "fifty_move"
)

// BotPlayerID occupies the opponent slot in matches against the built-in
// search engine.
const BotPlayerID = "bot"

// TimeControlNone marks an untimed (bot) match.
const TimeControlNone = "none"

// Match is the persisted state of one live session. It is mutated only
// through the Manager's operations and becomes immutable once completed.
type Match struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`

	WhiteID string `json:"white_id"`
	BlackID string `json:"black_id"`

	FEN      string   `json:"fen"`
	MovesSAN []string `json:"moves_san"`
	MovesUCI []string `json:"moves_uci"`

	TimeControl string `json:"time_control"`
	InitialTime int    `json:"initial_time"`
	WhiteTime   int    `json:"white_time"`
	BlackTime   int    `json:"black_time"`

	Status    Status    `json:"status"`
	Result    Result    `json:"result,omitempty"`
	EndReason EndReason `json:"end_reason,omitempty"`

	DrawOfferedBy string `json:"draw_offered_by,omitempty"`

	// BotDifficulty is set when one slot is the built-in bot; such
	// matches are untimed and unrated.
	BotDifficulty string `json:"bot_difficulty,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	LastMoveAt  time.Time `json:"last_move_at"`
	CompletedAt time.Time `json:"completed_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PlayerColor returns the side playerID occupies, or "" for outsiders.
func (g *Match) PlayerColor(playerID string) Color {
	switch playerID {
	case g.WhiteID:
		return White
	case g.BlackID:
		return Black
	}
	return ""
}

// PlayerID returns the participant on the given side.
func (g *Match) PlayerID(c Color) string {
	if c == White {
		return g.WhiteID
	}
	return g.BlackID
}

// SideToMove derives the side to move from move-list parity; the stored
// FEN agrees by construction since both are updated from the same replay.
func (g *Match) SideToMove() Color {
	if len(g.MovesUCI)%2 == 0 {
		return White
	}
	return Black
}

// Timed reports whether clocks run in this match.
func (g *Match) Timed() bool {
	return g.TimeControl != "" && g.TimeControl != TimeControlNone
}

// Rated reports whether the ELO update applies at completion.
func (g *Match) Rated() bool { return g.BotDifficulty == "" }

// clockAnchor is the instant the running clock started counting against
// the side to move.
func (g *Match) clockAnchor() time.Time {
	if g.LastMoveAt.IsZero() {
		return g.StartedAt
	}
	return g.LastMoveAt
}

func (g *Match) clock(c Color) int {
	if c == White {
		return g.WhiteTime
	}
	return g.BlackTime
}

func (g *Match) setClock(c Color, seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	if c == White {
		g.WhiteTime = seconds
	} else {
		g.BlackTime = seconds
	}
}

// complete transitions to the terminal state. Clocks freeze and any
// pending draw offer dies with the transition.
func (g *Match) complete(result Result, reason EndReason, at time.Time) {
	g.Status = StatusCompleted
	g.Result = result
	g.EndReason = reason
	g.DrawOfferedBy = ""
	g.CompletedAt = at
	g.UpdatedAt = at
}

func winner(c Color) Result {
	if c == White {
		return ResultWhite
	}
	return ResultBlack
}

// termination maps the rules oracle's classification onto the closed
// result/reason enums.
func termination(outcome nchess.Outcome, method nchess.Method) (Result, EndReason) {
	switch outcome {
	case nchess.WhiteWon:
		return ResultWhite, EndReasonCheckmate
	case nchess.BlackWon:
		return ResultBlack, EndReasonCheckmate
	}
	switch method {
	case nchess.Stalemate:
		return ResultDraw, EndReasonStalemate
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		return ResultDraw, EndReasonRepetition
	case nchess.InsufficientMaterial:
		return ResultDraw, EndReasonInsufficient
	case nchess.FiftyMoveRule, nchess.SeventyFiveMoveRule:
		return ResultDraw, EndReasonFiftyMove
	}
	return ResultDraw, EndReasonStalemate
}
