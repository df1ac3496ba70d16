package chess

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	corechess "github.com/park285/cheese-engine/internal/chess"
	"github.com/park285/cheese-engine/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrNotInitialized   = errors.New("game not initialized")
	ErrGameOver         = errors.New("game over")
	ErrNoLegalMoves     = errors.New("no legal moves")
	ErrSnapshotMismatch = errors.New("snapshot does not replay to its position")
)

const defaultDifficulty = 1

// Status is the session lifecycle state. Checkmate and Stalemate are
// absorbing until the next Init.
type Status int

const (
	StatusUninitialized Status = iota
	StatusActive
	StatusCheckmate
	StatusStalemate
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCheckmate:
		return "checkmate"
	case StatusStalemate:
		return "stalemate"
	default:
		return "uninitialized"
	}
}

func (s Status) Terminal() bool { return s == StatusCheckmate || s == StatusStalemate }

func parseStatus(v string) Status {
	switch v {
	case "active":
		return StatusActive
	case "checkmate":
		return StatusCheckmate
	case "stalemate":
		return StatusStalemate
	default:
		return StatusUninitialized
	}
}

type OutcomeKind int

const (
	// OutcomeAIMove: the engine replied. Status tells whether the reply ended the game.
	OutcomeAIMove OutcomeKind = iota
	// OutcomeCheckmate / OutcomeStalemate: the player's move ended the game.
	OutcomeCheckmate
	OutcomeStalemate
)

type Outcome struct {
	Kind       OutcomeKind
	PlayerMove corechess.Move
	EngineMove corechess.Move
	Status     Status
	// Winner is set when Status is StatusCheckmate.
	Winner corechess.Side
	Search corechess.SearchResult
}

// IllegalMoveError carries the legal destinations from the rejected source square.
type IllegalMoveError struct {
	From       string
	To         string
	LegalMoves []string
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("illegal move %s%s", e.From, e.To)
}

func (e *IllegalMoveError) Unwrap() error { return corechess.ErrIllegalMove }

type Config struct {
	DefaultDifficulty int
	// MaxDifficulty caps requested search depth; 0 means no cap.
	MaxDifficulty int
}

// Session is one game against the engine. It is owned by a single worker and
// is not safe for concurrent use.
type Session struct {
	oracle   corechess.Oracle
	searcher *corechess.Searcher
	logger   *zap.Logger

	id         string
	gameID     string
	pos        corechess.Position
	status     Status
	difficulty int
	maxDepth   int
	startFEN   string
	moves      []string
	startedAt  time.Time
	updatedAt  time.Time
}

func NewSession(oracle corechess.Oracle, searcher *corechess.Searcher, cfg Config, logger *zap.Logger) (*Session, error) {
	if oracle == nil {
		return nil, fmt.Errorf("rules oracle is required")
	}
	if searcher == nil {
		searcher = corechess.NewSearcher(nil)
	}
	if cfg.DefaultDifficulty <= 0 {
		cfg.DefaultDifficulty = defaultDifficulty
	}
	if cfg.MaxDifficulty > 0 && cfg.DefaultDifficulty > cfg.MaxDifficulty {
		cfg.DefaultDifficulty = cfg.MaxDifficulty
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		oracle:     oracle,
		searcher:   searcher,
		logger:     logger,
		id:         uuid.NewString(),
		difficulty: cfg.DefaultDifficulty,
		maxDepth:   cfg.MaxDifficulty,
	}, nil
}

func (s *Session) ID() string { return s.id }

// GameID identifies the game started by the last Init.
func (s *Session) GameID() string { return s.gameID }
func (s *Session) Status() Status { return s.status }
func (s *Session) Difficulty() int { return s.difficulty }
func (s *Session) StartFEN() string { return s.startFEN }
func (s *Session) Position() corechess.Position { return s.pos }

// FEN returns the current position, or "" before the first Init.
func (s *Session) FEN() string {
	if s.pos == nil {
		return ""
	}
	return s.pos.FEN()
}

// History returns the accepted UCI moves since the last Init.
func (s *Session) History() []string {
	return append([]string(nil), s.moves...)
}

// Winner reports the winning side when the session ended in checkmate.
func (s *Session) Winner() (corechess.Side, bool) {
	if s.status != StatusCheckmate || s.pos == nil {
		return corechess.White, false
	}
	return s.pos.Turn().Opponent(), true
}

func (s *Session) setDifficulty(d int) {
	if d <= 0 {
		return
	}
	if s.maxDepth > 0 && d > s.maxDepth {
		s.logger.Debug("difficulty clamped", zap.Int("requested", d), zap.Int("max", s.maxDepth))
		d = s.maxDepth
	}
	s.difficulty = d
}

// Init replaces the session with the given position ("" for the standard
// start). On a parse error the previous state is kept.
func (s *Session) Init(fen string, difficulty int) (Status, error) {
	pos, err := s.oracle.Load(fen)
	if err != nil {
		s.logger.Debug("init rejected", zap.String("session_id", s.id), zap.Error(err))
		return s.status, err
	}
	now := time.Now()
	s.gameID = uuid.NewString()
	s.pos = pos
	s.startFEN = pos.FEN()
	s.moves = nil
	s.status = statusOf(pos)
	s.startedAt = now
	s.updatedAt = now
	s.setDifficulty(difficulty)

	s.logger.Info("session initialized",
		zap.String("session_id", s.id),
		zap.String("game_id", s.gameID),
		zap.String("fen", s.startFEN),
		zap.Int("difficulty", s.difficulty),
		zap.String("status", s.status.String()),
	)
	return s.status, nil
}

// LegalMoves returns the sorted destinations reachable from square. It never
// changes state.
func (s *Session) LegalMoves(square string) []string {
	if s.pos == nil {
		return []string{}
	}
	sq, ok := corechess.ParseSquare(square)
	if !ok {
		return []string{}
	}
	return destinations(s.pos.LegalMovesFrom(sq))
}

// PlayerMove applies from->to (promoting to a queen) and, if the game goes on,
// lets the engine reply.
func (s *Session) PlayerMove(from, to string, difficulty int) (Outcome, error) {
	if s.pos == nil {
		return Outcome{}, ErrNotInitialized
	}
	s.setDifficulty(difficulty)
	if s.status.Terminal() {
		return Outcome{}, ErrGameOver
	}

	mv, ok := s.resolve(from, to)
	if !ok {
		return Outcome{}, s.illegal(from, to)
	}
	next, err := s.pos.Apply(mv)
	if err != nil {
		return Outcome{}, s.illegal(from, to)
	}
	s.commit(mv, next)

	out := Outcome{PlayerMove: mv, Status: s.status}
	switch s.status {
	case StatusCheckmate:
		out.Kind = OutcomeCheckmate
		out.Winner, _ = s.Winner()
		s.logger.Info("player delivered checkmate", zap.String("session_id", s.id), zap.String("move", mv.UCI()))
		return out, nil
	case StatusStalemate:
		out.Kind = OutcomeStalemate
		s.logger.Info("player move stalemated", zap.String("session_id", s.id), zap.String("move", mv.UCI()))
		return out, nil
	}

	reply, err := s.engineReply()
	if err != nil {
		return Outcome{}, err
	}
	reply.PlayerMove = mv
	return reply, nil
}

// RequestAIMove makes the engine move for the side to move.
func (s *Session) RequestAIMove(difficulty int) (Outcome, error) {
	if s.pos == nil {
		return Outcome{}, ErrNotInitialized
	}
	s.setDifficulty(difficulty)
	if s.status.Terminal() {
		return Outcome{}, ErrGameOver
	}
	return s.engineReply()
}

func (s *Session) engineReply() (Outcome, error) {
	res := s.searcher.Search(s.pos, s.difficulty)
	if !res.Found {
		s.logger.Warn("search found no move on a live position",
			zap.String("session_id", s.id),
			zap.String("fen", s.pos.FEN()),
		)
		return Outcome{}, ErrNoLegalMoves
	}
	next, err := s.pos.Apply(res.Move)
	if err != nil {
		return Outcome{}, fmt.Errorf("apply engine move %s: %w", res.Move.UCI(), err)
	}
	s.commit(res.Move, next)

	s.logger.Info("engine move",
		zap.String("session_id", s.id),
		zap.String("move", res.Move.UCI()),
		zap.Int("depth", res.Depth),
		zap.Int("score", res.Score),
		zap.Int("nodes", res.Nodes),
		zap.Int("cutoffs", res.Cutoffs),
		zap.Duration("elapsed", res.Duration),
		zap.String("status", s.status.String()),
	)

	out := Outcome{Kind: OutcomeAIMove, EngineMove: res.Move, Status: s.status, Search: res}
	if s.status == StatusCheckmate {
		out.Winner, _ = s.Winner()
	}
	return out, nil
}

func (s *Session) commit(mv corechess.Move, next corechess.Position) {
	s.pos = next
	s.moves = append(s.moves, mv.UCI())
	s.status = statusOf(next)
	s.updatedAt = time.Now()
}

// resolve finds the legal move from->to, preferring a queen promotion.
func (s *Session) resolve(from, to string) (corechess.Move, bool) {
	src, ok1 := corechess.ParseSquare(from)
	dst, ok2 := corechess.ParseSquare(to)
	if !ok1 || !ok2 {
		return corechess.Move{}, false
	}
	var found corechess.Move
	ok := false
	for _, mv := range s.pos.LegalMovesFrom(src) {
		if mv.To != dst {
			continue
		}
		if mv.Promotion == corechess.NoKind || mv.Promotion == corechess.Queen {
			return mv, true
		}
		if !ok {
			found, ok = mv, true
		}
	}
	return found, ok
}

func (s *Session) illegal(from, to string) error {
	legal := s.LegalMoves(from)
	s.logger.Debug("illegal player move",
		zap.String("session_id", s.id),
		zap.String("from", from),
		zap.String("to", to),
		zap.Strings("legal", legal),
	)
	return &IllegalMoveError{From: from, To: to, LegalMoves: legal}
}

// Snapshot captures the session for a snapshot store.
func (s *Session) Snapshot() domain.SessionSnapshot {
	return domain.SessionSnapshot{
		SessionID:  s.id,
		GameID:     s.gameID,
		StartFEN:   s.startFEN,
		FEN:        s.FEN(),
		Moves:      s.History(),
		Difficulty: s.difficulty,
		Status:     s.status.String(),
		StartedAt:  s.startedAt,
		UpdatedAt:  s.updatedAt,
	}
}

// Restore rebuilds the session by replaying snap.Moves from snap.StartFEN.
// The session is unchanged on error.
func (s *Session) Restore(snap domain.SessionSnapshot) error {
	pos, err := s.oracle.Load(snap.StartFEN)
	if err != nil {
		return err
	}
	start := pos.FEN()
	moves := make([]string, 0, len(snap.Moves))
	for _, text := range snap.Moves {
		mv, err := corechess.ParseUCI(text)
		if err != nil {
			return fmt.Errorf("replay %q: %w", text, err)
		}
		next, err := pos.Apply(mv)
		if err != nil {
			return fmt.Errorf("replay %q: %w", text, err)
		}
		pos = next
		moves = append(moves, mv.UCI())
	}
	if snap.FEN != "" && pos.FEN() != snap.FEN {
		return ErrSnapshotMismatch
	}
	if snap.SessionID != "" {
		s.id = snap.SessionID
	}
	s.gameID = snap.GameID
	if s.gameID == "" {
		s.gameID = uuid.NewString()
	}
	s.pos = pos
	s.startFEN = start
	s.moves = moves
	s.status = statusOf(pos)
	s.startedAt = snap.StartedAt
	s.updatedAt = snap.UpdatedAt
	s.setDifficulty(snap.Difficulty)
	if want := parseStatus(snap.Status); want != StatusUninitialized && want != s.status {
		s.logger.Warn("snapshot status disagrees with replay",
			zap.String("session_id", s.id),
			zap.String("stored", snap.Status),
			zap.String("replayed", s.status.String()),
		)
	}
	return nil
}

func statusOf(pos corechess.Position) Status {
	switch {
	case pos.Checkmate():
		return StatusCheckmate
	case pos.Stalemate():
		return StatusStalemate
	default:
		return StatusActive
	}
}

func destinations(moves []corechess.Move) []string {
	seen := make(map[corechess.Square]struct{}, len(moves))
	out := make([]string, 0, len(moves))
	for _, mv := range moves {
		if _, ok := seen[mv.To]; ok {
			continue
		}
		seen[mv.To] = struct{}{}
		out = append(out, mv.To.String())
	}
	sort.Strings(out)
	return out
}
