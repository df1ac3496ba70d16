package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/cheese-engine/internal/chess/rules"
	"github.com/park285/cheese-engine/internal/httpapi"
	"github.com/park285/cheese-engine/internal/wsclient"
	"github.com/park285/cheese-engine/pkg/enginedto"
)

// enginecheck smoke-tests a running engine: the analysis API and a short
// websocket game.
func main() {
	apiURL := os.Getenv("ENGINE_API_URL")
	wsURL := os.Getenv("ENGINE_WS_URL")
	fen := os.Getenv("CHECK_FEN")
	if fen == "" {
		fen = rules.StartFEN
	}

	if apiURL == "" && wsURL == "" {
		log.Fatal("ENGINE_API_URL or ENGINE_WS_URL is required")
	}

	if apiURL != "" {
		client := httpapi.NewClient(apiURL, httpapi.WithTimeout(8*time.Second))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := client.Health(ctx); err != nil {
			log.Printf("/healthz error: %v", err)
		} else {
			log.Println("/healthz ok")
		}
		res, err := client.BestMove(ctx, fen, 2)
		if err != nil {
			log.Printf("/v1/bestmove error: %v", err)
		} else {
			log.Printf("/v1/bestmove ok: %s%s%s score=%d nodes=%d", res.From, res.To, res.Promotion, res.Score, res.Nodes)
		}
		if games, err := client.RecentGames(ctx, 5); err != nil {
			log.Printf("/v1/games error: %v", err)
		} else {
			log.Printf("/v1/games ok: %d recent", len(games))
		}
		cancel()
	}

	if wsURL == "" {
		log.Println("ENGINE_WS_URL not set; skipping WS check")
		return
	}

	ws := wsclient.New(wsURL, 3, 500*time.Millisecond, nil)
	ws.OnStateChange(func(state wsclient.State) {
		log.Printf("WS state: %s", state)
	})
	responses := make(chan *enginedto.Response, 4)
	ws.OnResponse(func(resp *enginedto.Response) { responses <- resp })

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := ws.Connect(ctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}
	defer func() { _ = ws.Close(context.Background()) }()
	log.Printf("WS connected: session=%s", ws.SessionID())

	steps := []enginedto.Request{
		{Type: enginedto.TypeInit, FEN: &fen},
		{Type: enginedto.TypeGetLegalMoves, Square: "e2"},
		{Type: enginedto.TypeRequestAIMove},
	}
	for _, req := range steps {
		if err := ws.Send(ctx, req); err != nil {
			log.Printf("WS write error: %v", err)
			return
		}
		// INIT on a playable position is not answered
		if req.Type == enginedto.TypeInit {
			continue
		}
		select {
		case out := <-responses:
			fmt.Printf("WS %s -> %s %s%s moves=%v status=%s message=%q\n", req.Type, out.Type, out.From, out.To, out.Moves, out.Status, out.Message)
		case <-ctx.Done():
			log.Printf("WS read timeout: %v", ctx.Err())
			return
		}
	}
}
