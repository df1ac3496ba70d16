package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	appcfg "github.com/park285/cheese-engine/internal/config"
	"github.com/park285/cheese-engine/internal/enginebuilder"
	"github.com/park285/cheese-engine/internal/httpapi"
	"github.com/park285/cheese-engine/internal/obslog"
	"github.com/park285/cheese-engine/internal/wsserver"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	err = run(cfg, obslog.L())
	obslog.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *appcfg.AppConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := enginebuilder.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("engine init error", zap.Error(err))
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("close deps", zap.Error(err))
		}
	}()

	ws := wsserver.New(deps.Oracle, deps.Searcher, deps.Store, deps.Records, deps.Messages,
		wsserver.Config{DefaultDifficulty: cfg.DefaultDifficulty, MaxDifficulty: cfg.MaxDepth}, logger.Named("ws"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ws.ListenAndServe(gctx, cfg.WSAddr) })
	if cfg.HTTPAddr != "" {
		api := httpapi.New(deps.Oracle, deps.Searcher, deps.Records, deps.Messages,
			httpapi.Config{MaxDepth: cfg.MaxDepth, Concurrency: cfg.AnalysisConcurrency}, logger.Named("api"))
		g.Go(func() error { return api.ListenAndServe(gctx, cfg.HTTPAddr) })
	} else {
		logger.Info("analysis api disabled (HTTP_ADDR empty)")
	}

	logger.Info("engine started",
		zap.String("ws_addr", cfg.WSAddr),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.Int("default_difficulty", cfg.DefaultDifficulty),
		zap.Int("max_depth", cfg.MaxDepth),
	)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", zap.Error(err))
		return err
	}
	logger.Info("engine stopped")
	return nil
}
