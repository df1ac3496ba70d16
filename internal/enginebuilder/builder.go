package enginebuilder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	corechess "github.com/park285/cheese-engine/internal/chess"
	"github.com/park285/cheese-engine/internal/chess/rules"
	"github.com/park285/cheese-engine/internal/config"
	"github.com/park285/cheese-engine/internal/gamerecord"
	"github.com/park285/cheese-engine/internal/msgcat"
	"github.com/park285/cheese-engine/internal/sessionstore"
	"go.uber.org/zap"
)

type Deps struct {
	Oracle   corechess.Oracle
	Searcher *corechess.Searcher
	Store    sessionstore.Store
	Records  gamerecord.Repository
	Messages *msgcat.Catalog

	closers []func() error
}

// New wires the engine from cfg. Redis and Postgres are optional; without
// them sessions and records live in memory.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	d := &Deps{
		Oracle:   rules.New(),
		Searcher: corechess.NewSearcher(nil),
		Messages: msgs,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		rdb, err := sessionstore.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("init session store: %w", err)
		}
		store := sessionstore.NewRedisStore(rdb, cfg.SessionTTL())
		d.Store = store
		d.closers = append(d.closers, store.Close)
		logger.Info("session store: redis", zap.Duration("ttl", cfg.SessionTTL()))
	} else {
		d.Store = sessionstore.NewMemoryStore(cfg.SessionTTL())
		logger.Info("session store: memory (REDIS_URL not set)")
	}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		repo, err := gamerecord.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("init game records: %w", err)
		}
		d.Records = repo
		d.closers = append(d.closers, repo.Close)
		logger.Info("game records: postgres")
	} else {
		d.Records = gamerecord.NewMemoryRepository()
		logger.Info("game records: memory (DATABASE_URL not set)")
	}
	return d, nil
}

// Close releases external connections in reverse order of creation.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
