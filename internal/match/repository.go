package match

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/gambitlab/gamecore/internal/rating"
)

// Repository is the Postgres store for player ratings and the archive of
// finished matches. It implements both RatingStore and Archiver.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Ratings reads both players' ratings; unknown players default to 1200.
func (r *Repository) Ratings(ctx context.Context, whiteID, blackID string) (int, int, error) {
	white, err := r.ratingOf(ctx, whiteID)
	if err != nil {
		return 0, 0, err
	}
	black, err := r.ratingOf(ctx, blackID)
	if err != nil {
		return 0, 0, err
	}
	return white, black, nil
}

func (r *Repository) ratingOf(ctx context.Context, playerID string) (int, error) {
	var rt int
	err := r.db.QueryRowContext(ctx, `SELECT rating FROM players WHERE id = $1`, playerID).Scan(&rt)
	if err == sql.ErrNoRows {
		return DefaultRating, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select rating: %w", err)
	}
	return rt, nil
}

// ApplyBoth writes both new ratings in one transaction so a transient
// failure can never leave only one side updated.
func (r *Repository) ApplyBoth(ctx context.Context, whiteID string, white rating.Change, blackID string, black rating.Change) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `
		INSERT INTO players (id, rating) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET rating = EXCLUDED.rating`
	if _, err := tx.ExecContext(ctx, q, whiteID, white.New); err != nil {
		return fmt.Errorf("update white rating: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q, blackID, black.New); err != nil {
		return fmt.Errorf("update black rating: %w", err)
	}
	return tx.Commit()
}

// SaveResult upserts a finished match into the archive.
func (r *Repository) SaveResult(ctx context.Context, g *Match) error {
	if r == nil || r.db == nil || g == nil {
		return nil
	}
	if g.Status != StatusCompleted {
		return nil
	}

	pgnResult := mapResultToPGN(g.Result)
	pgn := buildPGN(g, pgnResult)
	movesUCIRaw, _ := json.Marshal(g.MovesUCI)
	movesSANRaw, _ := json.Marshal(g.MovesSAN)
	duration := g.CompletedAt.Sub(g.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	const q = `INSERT INTO matches (
	    match_id, white_id, black_id, time_control,
	    result, end_reason, moves_uci, moves_san, pgn,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
	  ) ON CONFLICT (match_id) DO UPDATE SET
	    result=EXCLUDED.result,
	    end_reason=EXCLUDED.end_reason,
	    moves_uci=EXCLUDED.moves_uci,
	    moves_san=EXCLUDED.moves_san,
	    pgn=EXCLUDED.pgn,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		g.ID, g.WhiteID, g.BlackID, g.TimeControl,
		string(g.Result), string(g.EndReason), string(movesUCIRaw), string(movesSANRaw), pgn,
		g.StartedAt, g.CompletedAt, duration,
	)
	return err
}

func mapResultToPGN(result Result) string {
	switch result {
	case ResultWhite:
		return "1-0"
	case ResultBlack:
		return "0-1"
	case ResultDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

func buildPGN(g *Match, pgnResult string) string {
	var b strings.Builder
	date := g.CompletedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Online match\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(g.WhiteID)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(g.BlackID)))
	if g.Timed() {
		b.WriteString(fmt.Sprintf("[TimeControl \"%s\"]\n", sanitizePGN(g.TimeControl)))
	}
	if g.EndReason != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(string(g.EndReason))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	for i := 0; i < len(g.MovesSAN); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, strings.TrimSpace(g.MovesSAN[i])))
		if i+1 < len(g.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(g.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
