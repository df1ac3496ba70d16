package protocol

import (
	"context"
	"fmt"

	"github.com/park285/cheese-engine/pkg/enginedto"
	"go.uber.org/zap"
)

// Observer runs on the worker goroutine after each request, so it may read the
// session without extra locking.
type Observer func(ctx context.Context, req enginedto.Request, resp *enginedto.Response)

// Worker owns one Dispatcher and handles its requests strictly in order.
// The inbox is unbuffered: Submit blocks until the previous request is done,
// so pipelined requests queue up in their senders rather than in the worker.
type Worker struct {
	dispatcher *Dispatcher
	observer   Observer
	logger     *zap.Logger

	inbox  chan enginedto.Request
	outbox chan *enginedto.Response
	done   chan struct{}
}

func NewWorker(d *Dispatcher, observer Observer, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		dispatcher: d,
		observer:   observer,
		logger:     logger,
		inbox:      make(chan enginedto.Request),
		outbox:     make(chan *enginedto.Response),
		done:       make(chan struct{}),
	}
}

// Responses yields responses in request order. It is closed when Run returns.
func (w *Worker) Responses() <-chan *enginedto.Response { return w.outbox }

// Submit hands req to the worker, waiting until it is accepted.
func (w *Worker) Submit(ctx context.Context, req enginedto.Request) error {
	select {
	case w.inbox <- req:
		return nil
	case <-w.done:
		return fmt.Errorf("worker stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes requests until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.outbox)
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.inbox:
			resp := w.handle(ctx, req)
			if w.observer != nil {
				w.observer(ctx, req, resp)
			}
			if resp == nil {
				continue
			}
			select {
			case w.outbox <- resp:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, req enginedto.Request) (resp *enginedto.Response) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("dispatch panic", zap.Any("panic", r), zap.String("type", req.Type))
			resp = &enginedto.Response{
				Type:    enginedto.TypeError,
				Message: w.dispatcher.msgs.Text("protocol.internal", nil, "Engine error"),
			}
		}
	}()
	return w.dispatcher.Dispatch(ctx, req)
}
