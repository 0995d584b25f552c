// Package sweep drives idle timeouts. Clocks are accounted lazily at move
// time, so a player who never moves needs an external trigger; the
// sweeper periodically scans active matches and claims timeouts, which
// the match manager revalidates under the per-match lock.
package sweep

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/gambitlab/gamecore/internal/match"
	"github.com/gambitlab/gamecore/internal/obslog"
	"github.com/gambitlab/gamecore/pkg/coredto"
)

type Sweeper struct {
	matches  *match.Manager
	interval time.Duration
}

func New(matches *match.Manager, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Sweeper{matches: matches, interval: interval}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep examines every active match once.
func (s *Sweeper) Sweep(ctx context.Context) {
	ids, err := s.matches.ActiveIDs(ctx)
	if err != nil {
		obslog.L().Warn("sweep_list_error", zap.Error(err))
		return
	}
	for _, id := range ids {
		s.sweepOne(ctx, id)
	}
}

func (s *Sweeper) sweepOne(ctx context.Context, id string) {
	g, err := s.matches.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, coredto.ErrNotFound) {
			obslog.L().Warn("sweep_load_error", zap.String("match_id", id), zap.Error(err))
		}
		return
	}
	if g.Status != match.StatusActive || !g.Timed() {
		return
	}
	side := g.SideToMove()
	if !Expired(g, side, time.Now()) {
		return
	}
	// Cheap pre-check passed; the manager re-validates under the lock.
	if _, err := s.matches.Timeout(ctx, id, side); err != nil {
		if coredto.CodeOf(err) == "" {
			obslog.L().Warn("sweep_timeout_error", zap.String("match_id", id), zap.Error(err))
		}
		return
	}
	obslog.L().Info("sweep_timeout", zap.String("match_id", id), zap.String("side", string(side)))
}

// Expired reports whether the given side's remaining clock has been fully
// consumed by idle wall-clock time.
func Expired(g *match.Match, side match.Color, now time.Time) bool {
	anchor := g.StartedAt
	if !g.LastMoveAt.IsZero() {
		anchor = g.LastMoveAt
	}
	elapsed := int(now.Sub(anchor).Seconds())
	remaining := g.WhiteTime
	if side == match.Black {
		remaining = g.BlackTime
	}
	return remaining-elapsed <= 0
}
