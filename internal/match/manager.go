// Package match owns the live-session state machine: moves, clocks, draw
// negotiation and termination. Every mutation runs as an optimistic
// transaction on the match key, so concurrent operations on one match
// serialize and the loser fails instead of corrupting state.
package match

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gambitlab/gamecore/internal/obslog"
	"github.com/gambitlab/gamecore/internal/rating"
	"github.com/gambitlab/gamecore/internal/realtime"
	"github.com/gambitlab/gamecore/internal/rules"
	"github.com/gambitlab/gamecore/internal/search"
	"github.com/gambitlab/gamecore/pkg/coredto"
)

const defaultMatchTTL = 24 * time.Hour

// RatingStore reads and writes player ratings. Both writes of a match's
// rating update must land in one transaction or not at all.
type RatingStore interface {
	Ratings(ctx context.Context, whiteID, blackID string) (white int, black int, err error)
	ApplyBoth(ctx context.Context, whiteID string, white rating.Change, blackID string, black rating.Change) error
}

// Archiver persists finished matches for the platform's out-of-scope
// history/analysis pages. Optional collaborator.
type Archiver interface {
	SaveResult(ctx context.Context, g *Match) error
}

type Manager struct {
	rdb     *redis.Client
	pub     realtime.Publisher
	ratings RatingStore
	archive Archiver
	engine  *search.Engine
	ttl     time.Duration
}

func NewManager(rdb *redis.Client, pub realtime.Publisher, ratings RatingStore) *Manager {
	return &Manager{
		rdb:     rdb,
		pub:     pub,
		ratings: ratings,
		engine:  search.NewEngine(),
		ttl:     defaultMatchTTL,
	}
}

// AttachArchive wires the finished-match repository.
func (m *Manager) AttachArchive(a Archiver) {
	if m != nil {
		m.archive = a
	}
}

func (m *Manager) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		m.ttl = ttl
	}
}

// Engine exposes the bot search, for callers that want a standalone move
// suggestion outside any match.
func (m *Manager) Engine() *search.Engine { return m.engine }

func matchKey(id string) string { return "match:game:" + id }

const activeIndexKey = "match:active"

// CreateParams describes a new session. InitialTime is seconds per side;
// zero means untimed.
type CreateParams struct {
	WhiteID       string
	BlackID       string
	WhiteRating   int
	BlackRating   int
	TimeControl   string
	InitialTime   int
	BotDifficulty string
}

// Create persists a fresh match with full starting clocks and announces it
// on its realtime channel. Channel ids are freshly generated and never
// reused.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*Match, error) {
	now := time.Now()
	g := &Match{
		ID:            uuid.NewString(),
		ChannelID:     "match:" + uuid.NewString(),
		WhiteID:       p.WhiteID,
		BlackID:       p.BlackID,
		FEN:           rules.StartingFEN(),
		MovesSAN:      []string{},
		MovesUCI:      []string{},
		TimeControl:   p.TimeControl,
		InitialTime:   p.InitialTime,
		WhiteTime:     p.InitialTime,
		BlackTime:     p.InitialTime,
		Status:        StatusActive,
		BotDifficulty: p.BotDifficulty,
		StartedAt:     now,
		UpdatedAt:     now,
	}

	raw, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	pipe := m.rdb.TxPipeline()
	pipe.Set(ctx, matchKey(g.ID), raw, m.ttl)
	pipe.SAdd(ctx, activeIndexKey, g.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	m.publish(ctx, g, coredto.EventGameStart, coredto.GameStartEvent{
		GameID:      g.ID,
		White:       coredto.PlayerInfo{ID: g.WhiteID, Rating: p.WhiteRating},
		Black:       coredto.PlayerInfo{ID: g.BlackID, Rating: p.BlackRating},
		TimeControl: g.TimeControl,
		InitialTime: g.InitialTime,
	})
	obslog.L().Info("match_create",
		zap.String("match_id", g.ID),
		zap.String("channel_id", g.ChannelID),
		zap.String("white_id", g.WhiteID),
		zap.String("black_id", g.BlackID),
		zap.String("time_control", g.TimeControl),
	)
	return g, nil
}

// Get loads a match by id.
func (m *Manager) Get(ctx context.Context, id string) (*Match, error) {
	raw, err := m.rdb.Get(ctx, matchKey(id)).Bytes()
	if err == redis.Nil {
		return nil, coredto.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var g Match
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// ActiveIDs lists matches the sweeper should examine.
func (m *Manager) ActiveIDs(ctx context.Context) ([]string, error) {
	return m.rdb.SMembers(ctx, activeIndexKey).Result()
}

// ApplyMove validates and applies one move for the acting player. On a
// timed match the mover's clock is charged for the wall-clock time since
// the previous move; a deduction that empties the clock completes the
// match as a timeout and the move is rejected with ErrClockExpired. After
// a successful human move in a bot match the engine's reply is applied
// through the same transactional path.
func (m *Manager) ApplyMove(ctx context.Context, matchID, playerID, moveText string) (*Match, error) {
	g, err := m.doMove(ctx, matchID, playerID, moveText)
	if err != nil {
		return g, err
	}
	return m.botReply(ctx, g)
}

func (m *Manager) doMove(ctx context.Context, matchID, playerID, moveText string) (*Match, error) {
	var out *Match
	var applied rules.AppliedMove
	var flagFell bool

	err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := loadTx(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if cur.Status != StatusActive {
			return coredto.ErrInvalidState
		}
		color := cur.PlayerColor(playerID)
		if color == "" {
			return coredto.ErrUnauthorized
		}
		if color != cur.SideToMove() {
			return coredto.ErrNotYourTurn
		}

		now := time.Now()
		if cur.Timed() {
			elapsed := int(now.Sub(cur.clockAnchor()).Seconds())
			remaining := cur.clock(color) - elapsed
			if remaining <= 0 {
				// The mover ran out of time while submitting this move:
				// the timeout wins over the move itself.
				cur.setClock(color, 0)
				cur.complete(winner(color.Other()), EndReasonTimeout, now)
				if err := storeTx(ctx, tx, cur, m.ttl, true); err != nil {
					return err
				}
				out = cur
				flagFell = true
				return nil
			}
			cur.setClock(color, remaining)
		}

		game, err := rules.Replay(cur.MovesUCI)
		if err != nil {
			return err
		}
		applied, err = rules.Apply(game, moveText)
		if err != nil {
			return coredto.ErrIllegalMove
		}

		cur.MovesSAN = append(cur.MovesSAN, applied.SAN)
		cur.MovesUCI = append(cur.MovesUCI, applied.UCI)
		cur.FEN = game.FEN()
		cur.LastMoveAt = now
		cur.DrawOfferedBy = ""
		cur.UpdatedAt = now

		completed := false
		if over, outcome, method := rules.Terminal(game); over {
			result, reason := termination(outcome, method)
			cur.complete(result, reason, now)
			completed = true
		}

		if err := storeTx(ctx, tx, cur, m.ttl, completed); err != nil {
			return err
		}
		out = cur
		return nil
	}, matchKey(matchID))

	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return nil, coredto.ErrConcurrentUpdate
		}
		return nil, err
	}

	if flagFell {
		m.finalize(ctx, out)
		return out, coredto.ErrClockExpired
	}

	m.publish(ctx, out, coredto.EventMove, coredto.MoveEvent{
		Move: applied.SAN,
		FEN:  out.FEN,
		From: applied.From,
		To:   applied.To,
	})
	if out.Timed() {
		m.publish(ctx, out, coredto.EventTimeUpdate, coredto.TimeUpdateEvent{
			WhiteTime: out.WhiteTime,
			BlackTime: out.BlackTime,
		})
	}
	obslog.L().Info("match_move",
		zap.String("match_id", out.ID),
		zap.String("player_id", playerID),
		zap.String("san", applied.SAN),
		zap.String("status", string(out.Status)),
	)
	if out.Status == StatusCompleted {
		m.finalize(ctx, out)
	}
	return out, nil
}

// AdvanceBot plays the engine's move if the bot currently holds the side
// to move. Called once after creating a bot match where the bot has the
// white pieces; subsequent replies ride on ApplyMove.
func (m *Manager) AdvanceBot(ctx context.Context, g *Match) (*Match, error) {
	return m.botReply(ctx, g)
}

// botReply lets the engine answer while the match is active and the side
// to move is the bot slot.
func (m *Manager) botReply(ctx context.Context, g *Match) (*Match, error) {
	for g.Status == StatusActive && g.PlayerID(g.SideToMove()) == BotPlayerID {
		diff, err := search.ParseDifficulty(g.BotDifficulty)
		if err != nil {
			return g, nil
		}
		game, err := rules.Replay(g.MovesUCI)
		if err != nil {
			return g, err
		}
		mv, ok := m.engine.SelectMove(game.Position(), diff.Config())
		if !ok {
			// No legal moves: the position is already terminal and the
			// move that produced it completed the match.
			return g, nil
		}
		next, err := m.doMove(ctx, g.ID, BotPlayerID, mv.String())
		if err != nil {
			return g, err
		}
		g = next
	}
	return g, nil
}

// Resign immediately completes the match for the opponent.
func (m *Manager) Resign(ctx context.Context, matchID, playerID string) (*Match, error) {
	g, err := m.transition(ctx, matchID, func(cur *Match, now time.Time) error {
		color := cur.PlayerColor(playerID)
		if color == "" {
			return coredto.ErrUnauthorized
		}
		cur.complete(winner(color.Other()), EndReasonResignation, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("match_resign", zap.String("match_id", g.ID), zap.String("player_id", playerID))
	m.finalize(ctx, g)
	return g, nil
}

// OfferDraw records a pending offer. A counter-offer while the opponent
// holds the pending offer replaces the holder; re-offering while already
// holding it fails.
func (m *Manager) OfferDraw(ctx context.Context, matchID, playerID string) (*Match, error) {
	g, err := m.transition(ctx, matchID, func(cur *Match, now time.Time) error {
		if cur.PlayerColor(playerID) == "" {
			return coredto.ErrUnauthorized
		}
		if cur.DrawOfferedBy == playerID {
			return coredto.ErrDuplicateOffer
		}
		cur.DrawOfferedBy = playerID
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, g, coredto.EventDrawOffer, coredto.DrawOfferEvent{OfferedBy: playerID})
	obslog.L().Info("match_draw_offer", zap.String("match_id", g.ID), zap.String("player_id", playerID))
	return g, nil
}

// AcceptDraw completes the match by agreement.
func (m *Manager) AcceptDraw(ctx context.Context, matchID, playerID string) (*Match, error) {
	g, err := m.transition(ctx, matchID, func(cur *Match, now time.Time) error {
		if cur.PlayerColor(playerID) == "" {
			return coredto.ErrUnauthorized
		}
		if cur.DrawOfferedBy == "" {
			return coredto.ErrNoPendingOffer
		}
		if cur.DrawOfferedBy == playerID {
			return coredto.ErrOwnOffer
		}
		cur.complete(ResultDraw, EndReasonAgreement, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("match_draw_accept", zap.String("match_id", g.ID), zap.String("player_id", playerID))
	m.finalize(ctx, g)
	return g, nil
}

// DeclineDraw clears the pending offer and leaves the match active.
func (m *Manager) DeclineDraw(ctx context.Context, matchID, playerID string) (*Match, error) {
	g, err := m.transition(ctx, matchID, func(cur *Match, now time.Time) error {
		if cur.PlayerColor(playerID) == "" {
			return coredto.ErrUnauthorized
		}
		if cur.DrawOfferedBy == "" {
			return coredto.ErrNoPendingOffer
		}
		cur.DrawOfferedBy = ""
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(ctx, g, coredto.EventDrawDecline, coredto.DrawDeclineEvent{DeclinedBy: playerID})
	obslog.L().Info("match_draw_decline", zap.String("match_id", g.ID), zap.String("player_id", playerID))
	return g, nil
}

// Timeout is the explicit trigger for idle timeouts: the caller claims a
// side's flag fell and the claim is revalidated here against wall-clock
// elapsed time under the match lock. Only the side to move can time out,
// since only its clock is running.
func (m *Manager) Timeout(ctx context.Context, matchID string, side Color) (*Match, error) {
	g, err := m.transition(ctx, matchID, func(cur *Match, now time.Time) error {
		if !cur.Timed() {
			return coredto.ErrInvalidState
		}
		if side != cur.SideToMove() {
			return coredto.ErrInvalidState
		}
		elapsed := int(now.Sub(cur.clockAnchor()).Seconds())
		if cur.clock(side)-elapsed > 0 {
			return coredto.ErrInvalidState
		}
		cur.setClock(side, 0)
		cur.complete(winner(side.Other()), EndReasonTimeout, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("match_timeout", zap.String("match_id", g.ID), zap.String("side", string(side)))
	m.finalize(ctx, g)
	return g, nil
}

// transition runs one mutation under the per-match transaction. The
// mutator sees a match already checked to be active.
func (m *Manager) transition(ctx context.Context, matchID string, mutate func(*Match, time.Time) error) (*Match, error) {
	var out *Match
	err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := loadTx(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if cur.Status != StatusActive {
			return coredto.ErrInvalidState
		}
		now := time.Now()
		if err := mutate(cur, now); err != nil {
			return err
		}
		if err := storeTx(ctx, tx, cur, m.ttl, cur.Status == StatusCompleted); err != nil {
			return err
		}
		out = cur
		return nil
	}, matchKey(matchID))
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return nil, coredto.ErrConcurrentUpdate
		}
		return nil, err
	}
	return out, nil
}

// finalize runs the side effects of completion: the end event, the rating
// update for rated matches, and the archive write.
func (m *Manager) finalize(ctx context.Context, g *Match) {
	m.publish(ctx, g, coredto.EventGameEnd, coredto.GameEndEvent{
		Result: string(g.Result),
		Reason: string(g.EndReason),
	})

	if g.Rated() && m.ratings != nil {
		if err := m.applyRatings(ctx, g); err != nil {
			obslog.L().Error("match_rating_error", zap.String("match_id", g.ID), zap.Error(err))
		}
	}

	if m.archive != nil {
		if err := m.archive.SaveResult(ctx, g); err != nil {
			obslog.L().Error("match_archive_error", zap.String("match_id", g.ID), zap.Error(err))
		}
	}

	obslog.L().Info("match_end",
		zap.String("match_id", g.ID),
		zap.String("result", string(g.Result)),
		zap.String("reason", string(g.EndReason)),
	)
}

func (m *Manager) applyRatings(ctx context.Context, g *Match) error {
	whiteRating, blackRating, err := m.ratings.Ratings(ctx, g.WhiteID, g.BlackID)
	if err != nil {
		return err
	}
	changes := rating.BothRatings(whiteRating, blackRating, rating.Outcome(g.Result))
	if err := m.ratings.ApplyBoth(ctx, g.WhiteID, changes.White, g.BlackID, changes.Black); err != nil {
		return err
	}
	obslog.L().Info("match_rating_update",
		zap.String("match_id", g.ID),
		zap.Int("white_delta", changes.White.Delta),
		zap.Int("black_delta", changes.Black.Delta),
	)
	return nil
}

func (m *Manager) publish(ctx context.Context, g *Match, event string, data any) {
	if m.pub == nil {
		return
	}
	if err := m.pub.Publish(ctx, g.ChannelID, event, data); err != nil {
		obslog.L().Warn("match_publish_error",
			zap.String("match_id", g.ID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

func loadTx(ctx context.Context, tx *redis.Tx, matchID string) (*Match, error) {
	raw, err := tx.Get(ctx, matchKey(matchID)).Bytes()
	if err == redis.Nil {
		return nil, coredto.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var g Match
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func storeTx(ctx context.Context, tx *redis.Tx, g *Match, ttl time.Duration, completed bool) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	pipe := tx.TxPipeline()
	pipe.Set(ctx, matchKey(g.ID), raw, ttl)
	if completed {
		pipe.SRem(ctx, activeIndexKey, g.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}
