// Package httpapi serves stateless best-move analysis over fasthttp.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"runtime"
	"strconv"
	"strings"
	"time"

	corechess "github.com/park285/cheese-engine/internal/chess"
	"github.com/park285/cheese-engine/internal/gamerecord"
	"github.com/park285/cheese-engine/internal/msgcat"
	"github.com/park285/cheese-engine/pkg/enginedto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	defaultAcquireWait = 2 * time.Second
	maxBodySize        = 8 << 10
)

type Config struct {
	MaxDepth    int
	Concurrency int
	// AcquireWait bounds how long a request queues for a search slot.
	AcquireWait time.Duration
}

type Server struct {
	oracle   corechess.Oracle
	searcher *corechess.Searcher
	records  gamerecord.Repository
	msgs     *msgcat.Catalog
	cfg      Config
	logger   *zap.Logger
	slots    *semaphore.Weighted
}

// New builds the API. records may be nil, which disables /v1/games.
func New(oracle corechess.Oracle, searcher *corechess.Searcher, records gamerecord.Repository, msgs *msgcat.Catalog, cfg Config, logger *zap.Logger) *Server {
	if searcher == nil {
		searcher = corechess.NewSearcher(nil)
	}
	if msgs == nil {
		msgs = msgcat.MustDefault()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxDepth < 1 {
		cfg.MaxDepth = 1
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency()
	}
	if cfg.AcquireWait <= 0 {
		cfg.AcquireWait = defaultAcquireWait
	}
	return &Server{
		oracle:   oracle,
		searcher: searcher,
		records:  records,
		msgs:     msgs,
		cfg:      cfg,
		logger:   logger,
		slots:    semaphore.NewWeighted(int64(cfg.Concurrency)),
	}
}

func defaultConcurrency() int {
	cpu := runtime.NumCPU()
	if cpu < 2 {
		return 2
	}
	if cpu > 4 {
		return 4
	}
	return cpu
}

func (s *Server) newFastServer() *fasthttp.Server {
	return &fasthttp.Server{
		Handler:            s.Handle,
		Name:               "cheese-engine",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       30 * time.Second,
		MaxRequestBodySize: maxBodySize,
	}
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info("analysis api listening", zap.String("addr", addr))
	return s.Serve(ctx, ln)
}

// Serve owns ln and closes it on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := s.newFastServer()
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// Handle routes requests; exported so callers can mount it elsewhere.
func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	switch {
	case path == "/healthz":
		ctx.SetContentType("text/plain; charset=utf-8")
		ctx.SetBodyString("ok")
	case path == "/v1/bestmove" && ctx.IsPost():
		s.bestMove(ctx)
	case path == "/v1/bestmove":
		ctx.Response.Header.Set("Allow", fasthttp.MethodPost)
		s.writeError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
	case path == "/v1/games" && ctx.IsGet() && s.records != nil:
		s.recentGames(ctx)
	default:
		s.writeError(ctx, fasthttp.StatusNotFound, "not found")
	}
}

func (s *Server) bestMove(ctx *fasthttp.RequestCtx) {
	var req enginedto.BestMoveRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, s.msgs.Text("api.bad_body", nil, "bad request body"))
		return
	}
	if req.Depth < 1 || req.Depth > s.cfg.MaxDepth {
		s.writeError(ctx, fasthttp.StatusBadRequest, s.msgs.Text("api.bad_depth", map[string]any{"Max": s.cfg.MaxDepth}, "bad depth"))
		return
	}
	if strings.TrimSpace(req.FEN) == "" {
		s.writeError(ctx, fasthttp.StatusBadRequest, s.msgs.Text("api.missing_fen", nil, "fen is required"))
		return
	}
	pos, err := s.oracle.Load(req.FEN)
	if err != nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, s.msgs.Text("protocol.invalid_fen", map[string]any{"Reason": corechess.InvalidPositionReason(err)}, "Invalid FEN"))
		return
	}
	if status := terminalStatus(pos); status != "" {
		s.writeError(ctx, fasthttp.StatusUnprocessableEntity, s.msgs.Text("api.terminal", map[string]any{"Status": status}, "position is terminal"))
		return
	}

	// RequestCtx is never cancelled early, so bound the wait explicitly.
	wctx, cancel := context.WithTimeout(context.Background(), s.cfg.AcquireWait)
	defer cancel()
	if err := s.slots.Acquire(wctx, 1); err != nil {
		s.logger.Warn("analysis rejected", zap.Int("depth", req.Depth), zap.Error(err))
		ctx.Response.Header.Set("Retry-After", "1")
		s.writeError(ctx, fasthttp.StatusServiceUnavailable, s.msgs.Text("api.busy", nil, "engine busy"))
		return
	}
	res := s.searcher.Search(pos, req.Depth)
	s.slots.Release(1)

	if !res.Found {
		s.writeError(ctx, fasthttp.StatusUnprocessableEntity, s.msgs.Text("protocol.no_legal_moves", nil, "no legal moves"))
		return
	}
	s.logger.Debug("analysis",
		zap.String("fen", pos.FEN()),
		zap.Int("depth", res.Depth),
		zap.String("move", res.Move.UCI()),
		zap.Int("score", res.Score),
		zap.Int("nodes", res.Nodes),
		zap.Duration("elapsed", res.Duration),
	)
	out := enginedto.BestMoveResponse{
		From:  res.Move.From.String(),
		To:    res.Move.To.String(),
		Score: res.Score,
		Nodes: res.Nodes,
	}
	if res.Move.Promotion != corechess.NoKind {
		out.Promotion = res.Move.Promotion.Letter()
	}
	s.writeJSON(ctx, fasthttp.StatusOK, out)
}

func (s *Server) recentGames(ctx *fasthttp.RequestCtx) {
	limit := 20
	if raw := string(ctx.QueryArgs().Peek("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(ctx, fasthttp.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	// RequestCtx is never cancelled early, so bound the query explicitly.
	qctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	games, err := s.records.Recent(qctx, limit)
	if err != nil {
		s.logger.Warn("list games failed", zap.Error(err))
		s.writeError(ctx, fasthttp.StatusServiceUnavailable, "game records unavailable")
		return
	}
	out := enginedto.GameList{Games: make([]enginedto.GameSummary, 0, len(games))}
	for _, g := range games {
		out.Games = append(out.Games, enginedto.GameSummary{
			ID:         g.ID,
			SessionID:  g.SessionID,
			Result:     g.Result,
			Method:     g.Method,
			Difficulty: g.Difficulty,
			Moves:      g.MovesUCI,
			PGN:        g.PGN,
			EndedAt:    g.EndedAt,
		})
	}
	s.writeJSON(ctx, fasthttp.StatusOK, out)
}

func terminalStatus(pos corechess.Position) string {
	switch {
	case pos.Checkmate():
		return enginedto.StatusCheckmate
	case pos.Stalemate():
		return enginedto.StatusStalemate
	default:
		return ""
	}
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, status int, msg string) {
	s.writeJSON(ctx, status, enginedto.ErrorBody{Error: msg})
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode response", zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(b)
}
