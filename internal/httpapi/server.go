// Package httpapi exposes the session core's caller-facing operations as
// a JSON API. The core itself is transport-agnostic; this is the thin
// mapping a frontend talks to.
package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/gambitlab/gamecore/internal/match"
	"github.com/gambitlab/gamecore/internal/matchmaking"
	"github.com/gambitlab/gamecore/internal/obslog"
	"github.com/gambitlab/gamecore/internal/search"
	"github.com/gambitlab/gamecore/pkg/coredto"
)

type Server struct {
	pairer  *matchmaking.Pairer
	matches *match.Manager
	srv     *fasthttp.Server
}

func NewServer(pairer *matchmaking.Pairer, matches *match.Manager) *Server {
	s := &Server{pairer: pairer, matches: matches}
	s.srv = &fasthttp.Server{
		Handler:            s.handle,
		Name:               "gamecore",
		MaxRequestBodySize: 1 << 16,
	}
	return s
}

func (s *Server) ListenAndServe(addr string) error {
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	method := string(ctx.Method())

	switch {
	case path == "/healthz" && method == fasthttp.MethodGet:
		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
	case path == "/api/queue/join" && method == fasthttp.MethodPost:
		s.handleQueueJoin(ctx)
	case path == "/api/queue/leave" && method == fasthttp.MethodPost:
		s.handleQueueLeave(ctx)
	case path == "/api/matches/bot" && method == fasthttp.MethodPost:
		s.handleCreateBot(ctx)
	case strings.HasPrefix(path, "/api/matches/"):
		s.handleMatch(ctx, strings.TrimPrefix(path, "/api/matches/"), method)
	default:
		writeError(ctx, fasthttp.StatusNotFound, coredto.CodeNotFound, "no such route")
	}
}

type joinRequest struct {
	PlayerID    string `json:"player_id"`
	Rating      int    `json:"rating"`
	TimeControl string `json:"time_control"`
}

func (s *Server) handleQueueJoin(ctx *fasthttp.RequestCtx) {
	var req joinRequest
	if !decodeBody(ctx, &req) {
		return
	}
	res, err := s.pairer.Join(ctx, req.PlayerID, req.Rating, req.TimeControl)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	if !res.Matched {
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{"matched": false, "queued": true})
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"matched":  true,
		"match_id": res.MatchID,
		"match":    res.Match,
	})
}

type leaveRequest struct {
	PlayerID string `json:"player_id"`
}

func (s *Server) handleQueueLeave(ctx *fasthttp.RequestCtx) {
	var req leaveRequest
	if !decodeBody(ctx, &req) {
		return
	}
	if err := s.pairer.Leave(ctx, req.PlayerID); err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{"left": true})
}

type createBotRequest struct {
	PlayerID   string `json:"player_id"`
	Color      string `json:"color"`
	Difficulty string `json:"difficulty"`
}

func (s *Server) handleCreateBot(ctx *fasthttp.RequestCtx) {
	var req createBotRequest
	if !decodeBody(ctx, &req) {
		return
	}
	diff, err := search.ParseDifficulty(req.Difficulty)
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid_difficulty", err.Error())
		return
	}
	if strings.TrimSpace(req.PlayerID) == "" {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid_request", "player_id required")
		return
	}

	whiteID, blackID := req.PlayerID, match.BotPlayerID
	switch strings.ToLower(strings.TrimSpace(req.Color)) {
	case "white", "w", "":
	case "black", "b":
		whiteID, blackID = match.BotPlayerID, req.PlayerID
	default:
		if n, err := rand.Int(rand.Reader, big.NewInt(2)); err == nil && n.Int64() == 0 {
			whiteID, blackID = match.BotPlayerID, req.PlayerID
		}
	}

	g, err := s.matches.Create(ctx, match.CreateParams{
		WhiteID:       whiteID,
		BlackID:       blackID,
		TimeControl:   match.TimeControlNone,
		BotDifficulty: string(diff),
	})
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	// The bot opens when it holds the white pieces.
	g, err = s.matches.AdvanceBot(ctx, g)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, g)
}

type actionRequest struct {
	PlayerID string `json:"player_id"`
	Move     string `json:"move"`
	Side     string `json:"side"`
}

func (s *Server) handleMatch(ctx *fasthttp.RequestCtx, rest, method string) {
	parts := strings.SplitN(rest, "/", 3)
	matchID := parts[0]
	if matchID == "" {
		writeError(ctx, fasthttp.StatusNotFound, coredto.CodeNotFound, "match id required")
		return
	}

	if len(parts) == 1 {
		if method != fasthttp.MethodGet {
			writeError(ctx, fasthttp.StatusMethodNotAllowed, "method_not_allowed", "use GET")
			return
		}
		g, err := s.matches.Get(ctx, matchID)
		if err != nil {
			writeDomainError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, g)
		return
	}

	if method != fasthttp.MethodPost {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req actionRequest
	if !decodeBody(ctx, &req) {
		return
	}

	action := strings.Join(parts[1:], "/")
	var g *match.Match
	var err error
	switch action {
	case "move":
		g, err = s.matches.ApplyMove(ctx, matchID, req.PlayerID, req.Move)
	case "resign":
		g, err = s.matches.Resign(ctx, matchID, req.PlayerID)
	case "draw/offer":
		g, err = s.matches.OfferDraw(ctx, matchID, req.PlayerID)
	case "draw/accept":
		g, err = s.matches.AcceptDraw(ctx, matchID, req.PlayerID)
	case "draw/decline":
		g, err = s.matches.DeclineDraw(ctx, matchID, req.PlayerID)
	case "timeout":
		side := match.Color(strings.ToLower(strings.TrimSpace(req.Side)))
		if side != match.White && side != match.Black {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_request", "side must be white or black")
			return
		}
		g, err = s.matches.Timeout(ctx, matchID, side)
	default:
		writeError(ctx, fasthttp.StatusNotFound, coredto.CodeNotFound, "no such action")
		return
	}
	if err != nil {
		// A flag fall during a move completes the match; surface both the
		// error and the final state.
		if coredto.CodeOf(err) == coredto.CodeClockExpired && g != nil {
			writeJSON(ctx, fasthttp.StatusConflict, map[string]any{
				"error": coredto.CodeClockExpired,
				"match": g,
			})
			return
		}
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, g)
}

func decodeBody(ctx *fasthttp.RequestCtx, v any) bool {
	if err := json.Unmarshal(ctx.PostBody(), v); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid_request", "malformed JSON body")
		return false
	}
	return true
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		obslog.L().Error("api_encode_error", zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(raw)
}

func writeError(ctx *fasthttp.RequestCtx, status int, code, message string) {
	writeJSON(ctx, status, map[string]string{"error": code, "message": message})
}

func writeDomainError(ctx *fasthttp.RequestCtx, err error) {
	var de *coredto.DomainError
	if !errors.As(err, &de) {
		obslog.L().Error("api_internal_error", zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, "internal", "internal error")
		return
	}
	status := fasthttp.StatusConflict
	switch de.Code {
	case coredto.CodeNotFound:
		status = fasthttp.StatusNotFound
	case coredto.CodeUnauthorized:
		status = fasthttp.StatusForbidden
	case coredto.CodeIllegalMove:
		status = fasthttp.StatusBadRequest
	}
	writeError(ctx, status, de.Code, de.Message)
}
