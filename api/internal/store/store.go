// Package store хранит словари переменных чат-сессий между сообщениями.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"math-canvas/api/internal/calc/types"
)

var ErrNotFound = errors.New("variables not found")

// VarStore: хранилище словаря переменных по ключу сессии (chat id).
type VarStore interface {
	Load(ctx context.Context, key string) (types.Variables, error)
	Save(ctx context.Context, key string, vars types.Variables) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Pinger: хранилища с внешним соединением (Redis, Postgres).
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	_ Pinger = (*RedisStore)(nil)
	_ Pinger = (*PGStore)(nil)
)

// Options: параметры выбора бэкенда хранилища.
type Options struct {
	Kind        string // memory | redis | postgres
	TTL         time.Duration
	RedisURL    string
	DatabaseURL string
}

// Open выбирает реализацию по Kind.
func Open(ctx context.Context, o Options) (VarStore, error) {
	switch strings.ToLower(strings.TrimSpace(o.Kind)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, o.RedisURL, o.TTL)
	case "postgres", "pg":
		return OpenPGStore(ctx, o.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown session store %q", o.Kind)
	}
}

// LoadOrEmpty: Load, где отсутствие записи даёт пустой словарь.
func LoadOrEmpty(ctx context.Context, s VarStore, key string) (types.Variables, error) {
	v, err := s.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return types.Variables{}, nil
	}
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = types.Variables{}
	}
	return v, nil
}
