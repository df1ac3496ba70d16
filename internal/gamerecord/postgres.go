package gamerecord

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/cheese-engine/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS engine_games (
	id          UUID PRIMARY KEY,
	session_id  TEXT NOT NULL,
	start_fen   TEXT NOT NULL,
	final_fen   TEXT NOT NULL,
	moves_uci   JSONB NOT NULL,
	moves_san   JSONB NOT NULL,
	pgn         TEXT NOT NULL,
	result      TEXT NOT NULL,
	method      TEXT NOT NULL,
	difficulty  INT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL
)`

type PostgresRepository struct {
	db *sql.DB
}

// Open connects, pings and ensures the schema exists.
func Open(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	repo := NewPostgresRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create engine_games: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *PostgresRepository) Insert(ctx context.Context, rec *domain.GameRecord) error {
	if rec == nil {
		return nil
	}
	movesUCI, err := json.Marshal(rec.MovesUCI)
	if err != nil {
		return fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(rec.MovesSAN)
	if err != nil {
		return fmt.Errorf("marshal moves_san: %w", err)
	}

	const q = `
		INSERT INTO engine_games (
			id, session_id, start_fen, final_fen, moves_uci, moves_san, pgn,
			result, method, difficulty, started_at, ended_at, duration_ms
		)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.SessionID, rec.StartFEN, rec.FinalFEN,
		string(movesUCI), string(movesSAN), rec.PGN,
		rec.Result, rec.Method, rec.Difficulty,
		rec.StartedAt, rec.EndedAt, rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert engine game: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateGame
	}
	return nil
}

func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]*domain.GameRecord, error) {
	if limit <= 0 || limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	const q = `
		SELECT id, session_id, start_fen, final_fen, moves_uci, moves_san, pgn,
			result, method, difficulty, started_at, ended_at, duration_ms
		FROM engine_games
		ORDER BY ended_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query engine games: %w", err)
	}
	defer rows.Close()

	var out []*domain.GameRecord
	for rows.Next() {
		var (
			rec        domain.GameRecord
			uci, san   []byte
			durationMS int64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StartFEN, &rec.FinalFEN, &uci, &san, &rec.PGN,
			&rec.Result, &rec.Method, &rec.Difficulty, &rec.StartedAt, &rec.EndedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scan engine game: %w", err)
		}
		if err := json.Unmarshal(uci, &rec.MovesUCI); err != nil {
			return nil, fmt.Errorf("decode moves_uci: %w", err)
		}
		if err := json.Unmarshal(san, &rec.MovesSAN); err != nil {
			return nil, fmt.Errorf("decode moves_san: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, &rec)
	}
	return out, rows.Err()
}
