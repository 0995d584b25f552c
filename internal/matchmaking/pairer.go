// Package matchmaking turns queued players into matches. The queue is a
// single hash keyed by player id; pairing reads candidates and deletes
// both entries inside one optimistic transaction, so two joiners racing
// for the same third player can never both succeed.
package matchmaking

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gambitlab/gamecore/internal/match"
	"github.com/gambitlab/gamecore/internal/obslog"
	"github.com/gambitlab/gamecore/pkg/coredto"
)

// RatingWindow is the ± tolerance for eligible opponents.
const RatingWindow = 200

// initialTimes maps a time-control class to seconds per side.
var initialTimes = map[string]int{
	"bullet": 60,
	"blitz":  300,
	"rapid":  600,
}

// InitialTime returns the per-side starting clock for a time-control
// class.
func InitialTime(timeControl string) (int, bool) {
	secs, ok := initialTimes[timeControl]
	return secs, ok
}

// Entry is one queued player. At most one entry exists per player;
// re-joining replaces it.
type Entry struct {
	PlayerID    string    `json:"player_id"`
	Rating      int       `json:"rating"`
	TimeControl string    `json:"time_control"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// JoinResult is either Matched (with the new match) or Queued.
type JoinResult struct {
	Matched bool
	MatchID string
	Match   *match.Match
}

type Pairer struct {
	rdb     *redis.Client
	matches *match.Manager
}

func NewPairer(rdb *redis.Client, matches *match.Manager) *Pairer {
	return &Pairer{rdb: rdb, matches: matches}
}

const queueKey = "mm:queue"

// pairing attempts retried on transaction conflicts; Join is idempotent
// so a bounded retry is safe.
const joinAttempts = 5

// Join upserts the player's queue entry and immediately attempts pairing:
// the closest-rated queued player of the same time-control class within
// the rating window wins. Callers poll Join until matched or they Leave;
// the game:start event on the realtime channel is the primary signal.
func (p *Pairer) Join(ctx context.Context, playerID string, playerRating int, timeControl string) (JoinResult, error) {
	initialTime, ok := InitialTime(timeControl)
	if !ok {
		return JoinResult{}, fmt.Errorf("unknown time control %q", timeControl)
	}
	if playerID == "" {
		return JoinResult{}, fmt.Errorf("player id required")
	}

	var opponent *Entry
	var txErr error
	for attempt := 0; attempt < joinAttempts; attempt++ {
		opponent = nil
		txErr = p.rdb.Watch(ctx, func(tx *redis.Tx) error {
			entries, err := tx.HGetAll(ctx, queueKey).Result()
			if err != nil && err != redis.Nil {
				return err
			}
			opponent = bestCandidate(entries, playerID, playerRating, timeControl)

			pipe := tx.TxPipeline()
			if opponent != nil {
				// Remove both sides atomically; the joiner's stale entry
				// (if any) goes with it.
				pipe.HDel(ctx, queueKey, opponent.PlayerID, playerID)
			} else {
				raw, err := json.Marshal(Entry{
					PlayerID:    playerID,
					Rating:      playerRating,
					TimeControl: timeControl,
					EnqueuedAt:  time.Now(),
				})
				if err != nil {
					return err
				}
				pipe.HSet(ctx, queueKey, playerID, raw)
			}
			_, err = pipe.Exec(ctx)
			return err
		}, queueKey)
		if !errors.Is(txErr, redis.TxFailedErr) {
			break
		}
	}
	if txErr != nil {
		if errors.Is(txErr, redis.TxFailedErr) {
			return JoinResult{}, coredto.ErrConcurrentUpdate
		}
		return JoinResult{}, txErr
	}

	if opponent == nil {
		obslog.L().Info("queue_join",
			zap.String("player_id", playerID),
			zap.String("time_control", timeControl),
			zap.Int("rating", playerRating),
		)
		return JoinResult{}, nil
	}

	whiteID, whiteRating, blackID, blackRating := assignColors(playerID, playerRating, opponent.PlayerID, opponent.Rating)
	g, err := p.matches.Create(ctx, match.CreateParams{
		WhiteID:     whiteID,
		BlackID:     blackID,
		WhiteRating: whiteRating,
		BlackRating: blackRating,
		TimeControl: timeControl,
		InitialTime: initialTime,
	})
	if err != nil {
		// The queue transaction already consumed the opponent's entry;
		// put it back so a failed creation does not strand them.
		p.requeue(ctx, opponent)
		return JoinResult{}, err
	}
	obslog.L().Info("queue_paired",
		zap.String("match_id", g.ID),
		zap.String("white_id", g.WhiteID),
		zap.String("black_id", g.BlackID),
		zap.String("time_control", timeControl),
	)
	return JoinResult{Matched: true, MatchID: g.ID, Match: g}, nil
}

// requeue restores a consumed entry, keeping its original enqueue time.
// Best effort: if Redis is the thing failing, the player re-joins anyway.
func (p *Pairer) requeue(ctx context.Context, e *Entry) {
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := p.rdb.HSet(ctx, queueKey, e.PlayerID, raw).Err(); err != nil {
		obslog.L().Warn("queue_requeue_error", zap.String("player_id", e.PlayerID), zap.Error(err))
		return
	}
	obslog.L().Info("queue_requeue", zap.String("player_id", e.PlayerID))
}

// Leave removes the player's queue entry; absent entries are not an
// error.
func (p *Pairer) Leave(ctx context.Context, playerID string) error {
	if err := p.rdb.HDel(ctx, queueKey, playerID).Err(); err != nil {
		return err
	}
	obslog.L().Info("queue_leave", zap.String("player_id", playerID))
	return nil
}

// bestCandidate scans queued entries for the closest rating within the
// window, same time control, excluding the joiner. First found wins ties.
func bestCandidate(entries map[string]string, playerID string, playerRating int, timeControl string) *Entry {
	var best *Entry
	bestDiff := 0
	for id, raw := range entries {
		if id == playerID {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		if e.TimeControl != timeControl {
			continue
		}
		diff := e.Rating - playerRating
		if diff < 0 {
			diff = -diff
		}
		if diff > RatingWindow {
			continue
		}
		if best == nil || diff < bestDiff {
			entry := e
			best = &entry
			bestDiff = diff
		}
	}
	return best
}

// assignColors picks sides uniformly at random.
func assignColors(aID string, aRating int, bID string, bRating int) (whiteID string, whiteRating int, blackID string, blackRating int) {
	if n, err := rand.Int(rand.Reader, big.NewInt(2)); err == nil && n.Int64() == 0 {
		return bID, bRating, aID, aRating
	}
	return aID, aRating, bID, bRating
}
