// Package sessionstore persists session snapshots so a client can reconnect
// and continue its game.
package sessionstore

import (
	"context"
	"errors"

	"github.com/park285/cheese-engine/internal/domain"
)

var ErrEmptySessionID = errors.New("empty session id")

type Store interface {
	Save(ctx context.Context, snap domain.SessionSnapshot) error
	// Load returns nil, nil when nothing is stored under id.
	Load(ctx context.Context, id string) (*domain.SessionSnapshot, error)
	Delete(ctx context.Context, id string) error
}
