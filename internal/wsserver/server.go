// Package wsserver exposes the engine protocol over websockets. Every
// connection gets its own session and worker.
package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	corechess "github.com/park285/cheese-engine/internal/chess"
	"github.com/park285/cheese-engine/internal/gamerecord"
	"github.com/park285/cheese-engine/internal/msgcat"
	"github.com/park285/cheese-engine/internal/protocol"
	svc "github.com/park285/cheese-engine/internal/service/chess"
	"github.com/park285/cheese-engine/internal/sessionstore"
	"github.com/park285/cheese-engine/pkg/enginedto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const SessionHeader = enginedto.SessionHeader

const (
	defaultReadLimit = 16 << 10
	persistTimeout   = 3 * time.Second
	writeTimeout     = 10 * time.Second
)

type Config struct {
	DefaultDifficulty int
	// MaxDifficulty caps the search depth a client may request; 0 means no cap.
	MaxDifficulty  int
	OriginPatterns []string
	ReadLimit         int64
}

type Server struct {
	oracle   corechess.Oracle
	searcher *corechess.Searcher
	store    sessionstore.Store
	records  gamerecord.Repository
	msgs     *msgcat.Catalog
	cfg      Config
	logger   *zap.Logger

	wg sync.WaitGroup
}

// New builds a server. store and records may be nil to disable resume and
// game recording.
func New(oracle corechess.Oracle, searcher *corechess.Searcher, store sessionstore.Store, records gamerecord.Repository, msgs *msgcat.Catalog, cfg Config, logger *zap.Logger) *Server {
	if searcher == nil {
		searcher = corechess.NewSearcher(nil)
	}
	if msgs == nil {
		msgs = msgcat.MustDefault()
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		oracle:   oracle,
		searcher: searcher,
		store:    store,
		records:  records,
		msgs:     msgs,
		cfg:      cfg,
		logger:   logger,
	}
}

// Handler serves the websocket endpoint on /ws and a liveness check on /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// ListenAndServe runs until ctx is cancelled, then waits for open
// connections to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("websocket server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.wg.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session, err := svc.NewSession(s.oracle, s.searcher, svc.Config{DefaultDifficulty: s.cfg.DefaultDifficulty, MaxDifficulty: s.cfg.MaxDifficulty}, s.logger)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if id := strings.TrimSpace(r.URL.Query().Get("session")); id != "" {
		status, msg := s.resume(r.Context(), session, id)
		if status != 0 {
			http.Error(w, msg, status)
			return
		}
	}

	w.Header().Set(SessionHeader, session.ID())
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.cfg.OriginPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(s.cfg.ReadLimit)

	s.wg.Add(1)
	defer s.wg.Done()
	s.serveConn(r.Context(), conn, session)
}

// resume restores session from the store. A non-zero status means the
// upgrade must be refused.
func (s *Server) resume(ctx context.Context, session *svc.Session, id string) (int, string) {
	if s.store == nil {
		return http.StatusNotFound, s.msgs.Text("protocol.session_not_found", map[string]any{"SessionID": id}, "session not found")
	}
	snap, err := s.store.Load(ctx, id)
	if err != nil {
		s.logger.Warn("session load failed", zap.String("session_id", id), zap.Error(err))
		return http.StatusServiceUnavailable, "session store unavailable"
	}
	if snap == nil {
		return http.StatusNotFound, s.msgs.Text("protocol.session_not_found", map[string]any{"SessionID": id}, "session not found")
	}
	if err := session.Restore(*snap); err != nil {
		s.logger.Warn("session restore failed", zap.String("session_id", id), zap.Error(err))
		return http.StatusConflict, err.Error()
	}
	s.logger.Info("session resumed",
		zap.String("session_id", id),
		zap.Int("moves", len(snap.Moves)),
		zap.String("status", session.Status().String()),
	)
	return 0, ""
}

func (s *Server) serveConn(parent context.Context, conn *websocket.Conn, session *svc.Session) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	log := s.logger.With(zap.String("session_id", session.ID()))

	dispatcher := protocol.NewDispatcher(session, s.msgs, log)
	worker := protocol.NewWorker(dispatcher, s.observer(session, log), log)
	go worker.Run(ctx)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for resp := range worker.Responses() {
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, resp)
			wcancel()
			if err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				cancel()
				return
			}
		}
	}()

	status, reason := s.readLoop(ctx, conn, worker, log)
	cancel()
	<-writerDone
	_ = conn.Close(status, reason)
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, worker *protocol.Worker, log *zap.Logger) (websocket.StatusCode, string) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return websocket.StatusGoingAway, "server shutting down"
			}
			if websocket.CloseStatus(err) == -1 {
				log.Debug("websocket read failed", zap.Error(err))
			}
			return websocket.StatusNormalClosure, ""
		}
		if typ != websocket.MessageText {
			log.Debug("dropping binary frame")
			continue
		}
		var req enginedto.Request
		if err := json.Unmarshal(data, &req); err != nil {
			log.Debug("dropping malformed request", zap.Error(err))
			continue
		}
		if err := worker.Submit(ctx, req); err != nil {
			return websocket.StatusGoingAway, "worker stopped"
		}
	}
}

// observer persists the session after each request and records games the
// first time they reach a terminal state.
func (s *Server) observer(session *svc.Session, log *zap.Logger) protocol.Observer {
	recorded := ""
	return func(ctx context.Context, req enginedto.Request, resp *enginedto.Response) {
		if session.Status() == svc.StatusUninitialized {
			return
		}
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()

		snap := session.Snapshot()
		if s.store != nil {
			if err := s.store.Save(pctx, snap); err != nil {
				log.Warn("session save failed", zap.Error(err))
			}
		}
		if s.records == nil || !session.Status().Terminal() || recorded == snap.GameID {
			return
		}
		winner := ""
		if side, ok := session.Winner(); ok {
			winner = side.Code()
		}
		rec, err := gamerecord.Build(snap, winner, time.Now())
		if err != nil {
			log.Warn("build game record failed", zap.Error(err))
			return
		}
		switch err := s.records.Insert(pctx, rec); {
		case err == nil:
			log.Info("game recorded", zap.String("game_id", rec.ID), zap.String("result", rec.Result), zap.Int("plies", len(rec.MovesUCI)))
		case errors.Is(err, gamerecord.ErrDuplicateGame):
			log.Debug("game already recorded", zap.String("game_id", rec.ID))
		default:
			log.Warn("game record insert failed", zap.Error(err))
			return
		}
		recorded = snap.GameID
	}
}
