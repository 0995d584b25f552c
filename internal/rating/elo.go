// Package rating implements the standard ELO formulas. Everything here is
// a pure function; callers persist the results.
package rating

import "math"

// Outcome is a finished game's result from White's perspective.
type Outcome string

const (
	WhiteWins Outcome = "white"
	BlackWins Outcome = "black"
	Drawn     Outcome = "draw"
)

// Change is the transient result of one rating computation. It is applied
// as a write to the player's rating field, never stored on its own.
type Change struct {
	Old   int
	New   int
	Delta int
}

// BothChanges carries the paired updates; both must be applied together or
// not at all.
type BothChanges struct {
	White Change
	Black Change
}

// ExpectedScore returns the probability-weighted score for a player
// against an opponent: 1 / (1 + 10^((Rb-Ra)/400)).
func ExpectedScore(playerRating, opponentRating int) float64 {
	return 1 / (1 + math.Pow(10, float64(opponentRating-playerRating)/400))
}

// KFactor tiers the rating swing by current strength: provisional and club
// players move faster than established ones.
func KFactor(rating int) int {
	switch {
	case rating < 2100:
		return 32
	case rating < 2400:
		return 24
	default:
		return 16
	}
}

// Delta computes the rounded rating change for one player given the actual
// score (1 win, 0.5 draw, 0 loss).
func Delta(playerRating, opponentRating int, actualScore float64) int {
	expected := ExpectedScore(playerRating, opponentRating)
	k := float64(KFactor(playerRating))
	return int(math.Round(k * (actualScore - expected)))
}

// BothRatings derives each side's actual score from the outcome and
// returns the paired updates.
func BothRatings(whiteRating, blackRating int, outcome Outcome) BothChanges {
	whiteScore := 0.5
	switch outcome {
	case WhiteWins:
		whiteScore = 1
	case BlackWins:
		whiteScore = 0
	}

	whiteDelta := Delta(whiteRating, blackRating, whiteScore)
	blackDelta := Delta(blackRating, whiteRating, 1-whiteScore)
	return BothChanges{
		White: Change{Old: whiteRating, New: whiteRating + whiteDelta, Delta: whiteDelta},
		Black: Change{Old: blackRating, New: blackRating + blackDelta, Delta: blackDelta},
	}
}
