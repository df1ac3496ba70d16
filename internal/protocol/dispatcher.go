// Package protocol maps engine requests onto a game session and runs one
// session per worker goroutine.
package protocol

import (
	"context"
	"errors"

	corechess "github.com/park285/cheese-engine/internal/chess"
	"github.com/park285/cheese-engine/internal/msgcat"
	svc "github.com/park285/cheese-engine/internal/service/chess"
	"github.com/park285/cheese-engine/pkg/enginedto"
	"go.uber.org/zap"
)

// Game is the session surface the dispatcher drives.
type Game interface {
	Init(fen string, difficulty int) (svc.Status, error)
	LegalMoves(square string) []string
	PlayerMove(from, to string, difficulty int) (svc.Outcome, error)
	RequestAIMove(difficulty int) (svc.Outcome, error)
	Winner() (corechess.Side, bool)
	FEN() string
}

type Dispatcher struct {
	game   Game
	msgs   *msgcat.Catalog
	logger *zap.Logger
}

func NewDispatcher(game Game, msgs *msgcat.Catalog, logger *zap.Logger) *Dispatcher {
	if msgs == nil {
		msgs = msgcat.MustDefault()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{game: game, msgs: msgs, logger: logger}
}

// Dispatch handles one request. It returns nil when there is nothing to send:
// unknown request types, a cancelled context, and INIT of a playable position.
func (d *Dispatcher) Dispatch(ctx context.Context, req enginedto.Request) *enginedto.Response {
	if ctx.Err() != nil {
		d.logger.Debug("request abandoned", zap.String("type", req.Type), zap.Error(ctx.Err()))
		return nil
	}
	switch req.Type {
	case enginedto.TypeInit:
		return d.handleInit(req)
	case enginedto.TypeGetLegalMoves:
		return &enginedto.Response{
			Type:   enginedto.TypeLegalMoves,
			Square: req.Square,
			Moves:  d.game.LegalMoves(req.Square),
		}
	case enginedto.TypePlayerMove:
		out, err := d.game.PlayerMove(req.From, req.To, req.DifficultyOr())
		if err != nil {
			return d.errorResponse(err)
		}
		return d.outcomeResponse(out)
	case enginedto.TypeRequestAIMove:
		out, err := d.game.RequestAIMove(req.DifficultyOr())
		if err != nil {
			return d.errorResponse(err)
		}
		return d.outcomeResponse(out)
	default:
		d.logger.Debug("dropping unknown request", zap.String("type", req.Type))
		return nil
	}
}

func (d *Dispatcher) handleInit(req enginedto.Request) *enginedto.Response {
	status, err := d.game.Init(req.FENOr(), req.DifficultyOr())
	if err != nil {
		return d.errorResponse(err)
	}
	switch status {
	case svc.StatusCheckmate:
		winner, _ := d.game.Winner()
		return &enginedto.Response{Type: enginedto.TypeCheckmate, Winner: winner.Code()}
	case svc.StatusStalemate:
		return &enginedto.Response{Type: enginedto.TypeStalemate}
	default:
		return nil
	}
}

func (d *Dispatcher) outcomeResponse(out svc.Outcome) *enginedto.Response {
	switch out.Kind {
	case svc.OutcomeCheckmate:
		return &enginedto.Response{Type: enginedto.TypeCheckmate, Winner: out.Winner.Code()}
	case svc.OutcomeStalemate:
		return &enginedto.Response{Type: enginedto.TypeStalemate}
	}

	resp := &enginedto.Response{
		Type: enginedto.TypeAIMove,
		From: out.EngineMove.From.String(),
		To:   out.EngineMove.To.String(),
		FEN:  d.game.FEN(),
	}
	if out.EngineMove.Promotion != corechess.NoKind {
		resp.Promotion = out.EngineMove.Promotion.Letter()
	}
	// 엔진 수로 끝난 경우 같은 응답에 상태를 실어 보냄
	switch out.Status {
	case svc.StatusCheckmate:
		resp.Status = enginedto.StatusCheckmate
		resp.Winner = out.Winner.Code()
	case svc.StatusStalemate:
		resp.Status = enginedto.StatusStalemate
	}
	return resp
}

func (d *Dispatcher) errorResponse(err error) *enginedto.Response {
	de := d.domainError(err)
	if de.Code == enginedto.CodeInternal {
		d.logger.Error("request failed", zap.Error(err))
	} else {
		d.logger.Debug("request rejected", zap.String("code", de.Code), zap.Error(err))
	}
	return de.Response()
}

// domainError classifies a session error into its wire code and message.
func (d *Dispatcher) domainError(err error) *enginedto.DomainError {
	var illegal *svc.IllegalMoveError
	switch {
	case errors.As(err, &illegal):
		return &enginedto.DomainError{
			Code:       enginedto.CodeIllegalMove,
			Message:    d.msgs.Text("protocol.illegal_move", nil, "Illegal move"),
			LegalMoves: illegal.LegalMoves,
		}
	case errors.Is(err, corechess.ErrInvalidPosition):
		return d.coded(enginedto.CodeInvalidFEN, "protocol.invalid_fen",
			map[string]any{"Reason": corechess.InvalidPositionReason(err)}, "Invalid FEN")
	case errors.Is(err, svc.ErrGameOver):
		return d.coded(enginedto.CodeGameOver, "protocol.game_over", nil, "Game over")
	case errors.Is(err, svc.ErrNotInitialized):
		return d.coded(enginedto.CodeNotInitialized, "protocol.not_initialized", nil, "Game not initialized")
	case errors.Is(err, svc.ErrNoLegalMoves):
		return d.coded(enginedto.CodeNoLegalMoves, "protocol.no_legal_moves", nil, "no legal moves")
	default:
		return d.coded(enginedto.CodeInternal, "protocol.internal", nil, "Engine error")
	}
}

func (d *Dispatcher) coded(code, key string, data any, fallback string) *enginedto.DomainError {
	return &enginedto.DomainError{Code: code, Message: d.msgs.Text(key, data, fallback)}
}
