package match

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/gambitlab/gamecore/internal/realtime"
	"github.com/gambitlab/gamecore/pkg/coredto"
)

func newTestManager(t *testing.T) (*Manager, *realtime.Recorder, *MemoryRatingStore) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rec := realtime.NewRecorder()
	ratings := NewMemoryRatingStore()
	return NewManager(rdb, rec, ratings), rec, ratings
}

func blitzParams() CreateParams {
	return CreateParams{
		WhiteID:     "alice",
		BlackID:     "bob",
		WhiteRating: 1200,
		BlackRating: 1200,
		TimeControl: "blitz",
		InitialTime: 300,
	}
}

func TestCreateAndGet(t *testing.T) {
	m, rec, _ := newTestManager(t)
	ctx := context.Background()

	g, err := m.Create(ctx, blitzParams())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if g.Status != StatusActive || g.WhiteTime != 300 || g.BlackTime != 300 {
		t.Fatalf("unexpected fresh match: %+v", g)
	}
	if g.SideToMove() != White {
		t.Fatalf("fresh match side to move = %s", g.SideToMove())
	}

	got, err := m.Get(ctx, g.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != g.ID || got.FEN != g.FEN {
		t.Fatalf("Get mismatch: %+v vs %+v", got, g)
	}

	ids, err := m.ActiveIDs(ctx)
	if err != nil {
		t.Fatalf("ActiveIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != g.ID {
		t.Fatalf("active index = %v", ids)
	}

	starts := rec.ByEvent(coredto.EventGameStart)
	if len(starts) != 1 {
		t.Fatalf("expected 1 game:start, got %d", len(starts))
	}
	start := starts[0].Data.(coredto.GameStartEvent)
	if start.GameID != g.ID || start.White.ID != "alice" || start.Black.ID != "bob" || start.InitialTime != 300 {
		t.Fatalf("unexpected start payload: %+v", start)
	}
	if starts[0].Channel != g.ChannelID {
		t.Fatalf("start published to %q, want %q", starts[0].Channel, g.ChannelID)
	}
}

func TestGetMissing(t *testing.T) {
	m, _, _ := newTestManager(t)
	if _, err := m.Get(context.Background(), "nope"); !errors.Is(err, coredto.ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestApplyMoveTurnAndLegality(t *testing.T) {
	m, rec, _ := newTestManager(t)
	ctx := context.Background()
	g, _ := m.Create(ctx, blitzParams())

	if _, err := m.ApplyMove(ctx, g.ID, "bob", "e7e5"); !errors.Is(err, coredto.ErrNotYourTurn) {
		t.Fatalf("out-of-turn move = %v, want ErrNotYourTurn", err)
	}
	if _, err := m.ApplyMove(ctx, g.ID, "mallory", "e2e4"); !errors.Is(err, coredto.ErrUnauthorized) {
		t.Fatalf("outsider move = %v, want ErrUnauthorized", err)
	}
	if _, err := m.ApplyMove(ctx, g.ID, "alice", "e2e5"); !errors.Is(err, coredto.ErrIllegalMove) {
		t.Fatalf("illegal move = %v, want ErrIllegalMove", err)
	}

	// Rejected attempts must leave the match untouched.
	cur, _ := m.Get(ctx, g.ID)
	if len(cur.MovesUCI) != 0 || cur.FEN != g.FEN {
		t.Fatalf("rejected moves mutated state: %+v", cur)
	}

	cur, err := m.ApplyMove(ctx, g.ID, "alice", "e2e4")
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if len(cur.MovesSAN) != 1 || cur.MovesSAN[0] != "e4" || cur.MovesUCI[0] != "e2e4" {
		t.Fatalf("unexpected move lists: %v %v", cur.MovesSAN, cur.MovesUCI)
	}
	if cur.FEN == g.FEN {
		t.Fatalf("FEN did not advance")
	}
	if cur.SideToMove() != Black {
		t.Fatalf("side to move after one ply = %s", cur.SideToMove())
	}
	if cur.LastMoveAt.IsZero() {
		t.Fatalf("LastMoveAt not set")
	}

	moves := rec.ByEvent(coredto.EventMove)
	if len(moves) != 1 {
		t.Fatalf("expected 1 move event, got %d", len(moves))
	}
	mv := moves[0].Data.(coredto.MoveEvent)
	if mv.Move != "e4" || mv.From != "e2" || mv.To != "e4" || mv.FEN != cur.FEN {
		t.Fatalf("unexpected move payload: %+v", mv)
	}
	if len(rec.ByEvent(coredto.EventTimeUpdate)) != 1 {
		t.Fatalf("expected a time:update after a timed move")
	}
}

// rewrite stores a mutated match directly, bypassing the manager, so tests
// can backdate clock anchors.
func rewrite(t *testing.T, m *Manager, g *Match) {
	t.Helper()
	raw, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal match: %v", err)
	}
	if err := m.rdb.Set(context.Background(), matchKey(g.ID), raw, 0).Err(); err != nil {
		t.Fatalf("store match: %v", err)
	}
}

func TestApplyMoveChargesOnlyTheMover(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	g, _ := m.Create(ctx, blitzParams())

	// White thinks for 3 seconds before the first move.
	g.StartedAt = time.Now().Add(-3 * time.Second)
	rewrite(t, m, g)

	cur, err := m.ApplyMove(ctx, g.ID, "alice", "e2e4")
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if cur.WhiteTime != 297 {
		t.Fatalf("mover clock = %d, want 297", cur.WhiteTime)
	}
	if cur.BlackTime != 300 {
		t.Fatalf("idle clock = %d, want untouched 300", cur.BlackTime)
	}

	// Black thinks for 5 seconds; White's clock must not move again.
	whiteBefore := cur.WhiteTime
	cur.LastMoveAt = time.Now().Add(-5 * time.Second)
	rewrite(t, m, cur)

	cur, err = m.ApplyMove(ctx, g.ID, "bob", "e7e5")
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if cur.BlackTime != 295 {
		t.Fatalf("mover clock = %d, want 295", cur.BlackTime)
	}
	if cur.WhiteTime != whiteBefore {
		t.Fatalf("idle clock moved: %d -> %d", whiteBefore, cur.WhiteTime)
	}
}

func TestSANMoveAccepted(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	g, _ := m.Create(ctx, blitzParams())

	cur, err := m.ApplyMove(ctx, g.ID, "alice", "Nf3")
	if err != nil {
		t.Fatalf("SAN move: %v", err)
	}
	if cur.MovesUCI[0] != "g1f3" {
		t.Fatalf("SAN decoded to %q", cur.MovesUCI[0])
	}
}

func TestMoveClearsPendingDrawOffer(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	g, _ := m.Create(ctx, blitzParams())

	if _, err := m.OfferDraw(ctx, g.ID, "alice"); err != nil {
		t.Fatalf("OfferDraw: %v", err)
	}
	cur, err := m.ApplyMove(ctx, g.ID, "alice", "d2d4")
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if cur.DrawOfferedBy != "" {
		t.Fatalf("draw offer survived a move: %q", cur.DrawOfferedBy)
	}
}

func TestDrawProtocol(t *testing.T) {
	m, rec, ratings := newTestManager(t)
	ctx := context.Background()
	g, _ := m.Create(ctx, blitzParams())

	if _, err := m.AcceptDraw(ctx, g.ID, "bob"); !errors.Is(err, coredto.ErrNoPendingOffer) {
		t.Fatalf("accept without offer = %v, want ErrNoPendingOffer", err)
	}
	if _, err := m.OfferDraw(ctx, g.ID, "alice"); err != nil {
		t.Fatalf("OfferDraw: %v", err)
	}
	if _, err := m.OfferDraw(ctx, g.ID, "alice"); !errors.Is(err, coredto.ErrDuplicateOffer) {
		t.Fatalf("re-offer = %v, want ErrDuplicateOffer", err)
	}
	if _, err := m.AcceptDraw(ctx, g.ID, "alice"); !errors.Is(err, coredto.ErrOwnOffer) {
		t.Fatalf("self-accept = %v, want ErrOwnOffer", err)
	}

	cur, err := m.DeclineDraw(ctx, g.ID, "bob")
	if err != nil {
		t.Fatalf("DeclineDraw: %v", err)
	}
	if cur.DrawOfferedBy != "" || cur.Status != StatusActive {
		t.Fatalf("decline left state %+v", cur)
	}
	if len(rec.ByEvent(coredto.EventDrawDecline)) != 1 {
		t.Fatalf("expected draw:decline event")
	}

	// A counter-offer by the other side replaces the holder.
	if _, err := m.OfferDraw(ctx, g.ID, "bob"); err != nil {
		t.Fatalf("counter OfferDraw: %v", err)
	}
	cur, err = m.AcceptDraw(ctx, g.ID, "alice")
	if err != nil {
		t.Fatalf("AcceptDraw: %v", err)
	}
	if cur.Status != StatusCompleted || cur.Result != ResultDraw || cur.EndReason != EndReasonAgreement {
		t.Fatalf("agreed draw state: %+v", cur)
	}
	if len(rec.ByEvent(coredto.EventGameEnd)) != 1 {
		t.Fatalf("expected game:end event")
	}

	// Equal ratings, draw: no movement.
	if ratings.Rating("alice") != DefaultRating || ratings.Rating("bob") != DefaultRating {
		t.Fatalf("draw moved equal ratings: %d/%d", ratings.Rating("alice"), ratings.Rating("bob"))
	}

	if _, err := m.ApplyMove(ctx, g.ID, "alice", "e2e4"); !errors.Is(err, coredto.ErrInvalidState) {
		t.Fatalf("move on completed match = %v, want ErrInvalidState", err)
	}
}

func TestResignCompletesAndRates(t *testing.T) {
	m, rec, ratings := newTestManager(t)
	ctx := context.Background()
	g, _ := m.Create(ctx, blitzParams())

	if _, err := m.Resign(ctx, g.ID, "mallory"); !errors.Is(err, coredto.ErrUnauthorized) {
		t.Fatalf("outsider resign = %v, want ErrUnauthorized", err)
	}

	cur, err := m.Resign(ctx, g.ID, "alice")
	if err != nil {
		t.Fatalf("Resign: %v", err)
	}
	if cur.Status != StatusCompleted || cur.Result != ResultBlack || cur.EndReason != EndReasonResignation {
		t.Fatalf("resignation state: %+v", cur)
	}
	if ratings.Rating("alice") != 1184 || ratings.Rating("bob") != 1216 {
		t.Fatalf("ratings after resign: %d/%d, want 1184/1216", ratings.Rating("alice"), ratings.Rating("bob"))
	}

	ends := rec.ByEvent(coredto.EventGameEnd)
	if len(ends) != 1 {
		t.Fatalf("expected 1 game:end, got %d", len(ends))
	}
	end := ends[0].Data.(coredto.GameEndEvent)
	if end.Result != "black" || end.Reason != "resignation" {
		t.Fatalf("unexpected end payload: %+v", end)
	}

	ids, _ := m.ActiveIDs(ctx)
	if len(ids) != 0 {
		t.Fatalf("completed match still indexed active: %v", ids)
	}
}

func TestCheckmateEndsMatch(t *testing.T) {
	m, _, ratings := newTestManager(t)
	ctx := context.Background()
	g, _ := m.Create(ctx, blitzParams())

	plies := []struct {
		player string
		move   string
	}{
		{"alice", "f2f3"},
		{"bob", "e7e5"},
		{"alice", "g2g4"},
		{"bob", "d8h4"},
	}
	var cur *Match
	var err error
	for _, p := range plies {
		cur, err = m.ApplyMove(ctx, g.ID, p.player, p.move)
		if err != nil {
			t.Fatalf("ApplyMove %s %s: %v", p.player, p.move, err)
		}
	}
	if cur.Status != StatusCompleted || cur.Result != ResultBlack || cur.EndReason != EndReasonCheckmate {
		t.Fatalf("mate state: %+v", cur)
	}
	if ratings.Rating("bob") != 1216 {
		t.Fatalf("winner rating %d, want 1216", ratings.Rating("bob"))
	}
}

func TestTimeoutIdle(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	p := blitzParams()
	p.InitialTime = 0 // exhausted from the start
	g, _ := m.Create(ctx, p)

	if _, err := m.Timeout(ctx, g.ID, Black); !errors.Is(err, coredto.ErrInvalidState) {
		t.Fatalf("timeout for the idle side = %v, want ErrInvalidState", err)
	}

	cur, err := m.Timeout(ctx, g.ID, White)
	if err != nil {
		t.Fatalf("Timeout: %v", err)
	}
	if cur.Status != StatusCompleted || cur.Result != ResultBlack || cur.EndReason != EndReasonTimeout {
		t.Fatalf("timeout state: %+v", cur)
	}
	if cur.WhiteTime != 0 {
		t.Fatalf("flagged clock = %d, want 0", cur.WhiteTime)
	}
}

func TestTimeoutRejectedWithTimeRemaining(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	g, _ := m.Create(ctx, blitzParams())

	if _, err := m.Timeout(ctx, g.ID, White); !errors.Is(err, coredto.ErrInvalidState) {
		t.Fatalf("premature timeout = %v, want ErrInvalidState", err)
	}
	cur, _ := m.Get(ctx, g.ID)
	if cur.Status != StatusActive {
		t.Fatalf("premature timeout completed the match")
	}
}

func TestTimeoutUntimed(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	g, _ := m.Create(ctx, CreateParams{
		WhiteID:       "alice",
		BlackID:       BotPlayerID,
		TimeControl:   TimeControlNone,
		BotDifficulty: "basic",
	})
	if _, err := m.Timeout(ctx, g.ID, White); !errors.Is(err, coredto.ErrInvalidState) {
		t.Fatalf("untimed timeout = %v, want ErrInvalidState", err)
	}
}

func TestMoveOnExpiredClockFlags(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	p := blitzParams()
	p.InitialTime = 0
	g, _ := m.Create(ctx, p)

	cur, err := m.ApplyMove(ctx, g.ID, "alice", "e2e4")
	if !errors.Is(err, coredto.ErrClockExpired) {
		t.Fatalf("move on dead clock = %v, want ErrClockExpired", err)
	}
	if cur == nil || cur.Status != StatusCompleted || cur.Result != ResultBlack || cur.EndReason != EndReasonTimeout {
		t.Fatalf("flag-fall state: %+v", cur)
	}
	if len(cur.MovesUCI) != 0 {
		t.Fatalf("move recorded despite flag fall: %v", cur.MovesUCI)
	}
}

func TestBotRepliesAfterHumanMove(t *testing.T) {
	m, _, ratings := newTestManager(t)
	m.Engine().SetRandomSeed(5)
	ctx := context.Background()

	g, err := m.Create(ctx, CreateParams{
		WhiteID:       "alice",
		BlackID:       BotPlayerID,
		TimeControl:   TimeControlNone,
		BotDifficulty: "intermediate",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if g.Rated() {
		t.Fatalf("bot match must be unrated")
	}

	cur, err := m.ApplyMove(ctx, g.ID, "alice", "e2e4")
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if len(cur.MovesUCI) != 2 {
		t.Fatalf("expected bot reply, have %d plies: %v", len(cur.MovesUCI), cur.MovesUCI)
	}
	if cur.SideToMove() != White {
		t.Fatalf("after bot reply side to move = %s", cur.SideToMove())
	}
	if ratings.Rating("alice") != DefaultRating {
		t.Fatalf("bot match touched ratings")
	}
}

func TestAdvanceBotOpensWhenBotIsWhite(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.Engine().SetRandomSeed(5)
	ctx := context.Background()

	g, err := m.Create(ctx, CreateParams{
		WhiteID:       BotPlayerID,
		BlackID:       "bob",
		TimeControl:   TimeControlNone,
		BotDifficulty: "basic",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	cur, err := m.AdvanceBot(ctx, g)
	if err != nil {
		t.Fatalf("AdvanceBot: %v", err)
	}
	if len(cur.MovesUCI) != 1 || cur.SideToMove() != Black {
		t.Fatalf("expected one opening ply, got %v", cur.MovesUCI)
	}

	// With the human to move, AdvanceBot is a no-op.
	again, err := m.AdvanceBot(ctx, cur)
	if err != nil {
		t.Fatalf("AdvanceBot again: %v", err)
	}
	if len(again.MovesUCI) != 1 {
		t.Fatalf("bot moved out of turn: %v", again.MovesUCI)
	}
}
