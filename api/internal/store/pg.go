package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"math-canvas/api/internal/calc/types"
)

const pgSchema = `
create table if not exists chat_variables (
    session_key text primary key,
    vars_json   jsonb not null,
    updated_at  timestamptz not null default now()
)`

type PGStore struct{ DB *sql.DB }

func NewPGStore(db *sql.DB) *PGStore { return &PGStore{DB: db} }

// OpenPGStore открывает пул pgx, пингует базу и создаёт таблицу при необходимости.
func OpenPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for postgres session store")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(1 * time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	s := NewPGStore(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGStore) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, pgSchema); err != nil {
		return fmt.Errorf("migrate chat_variables: %w", err)
	}
	return nil
}

func (s *PGStore) Load(ctx context.Context, key string) (types.Variables, error) {
	const q = `select vars_json from chat_variables where session_key=$1`
	var js []byte
	if err := s.DB.QueryRowContext(ctx, q, key).Scan(&js); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var vars types.Variables
	if err := json.Unmarshal(js, &vars); err != nil {
		return nil, fmt.Errorf("decode vars_json: %w", err)
	}
	return vars, nil
}

// Save: upsert по session_key.
func (s *PGStore) Save(ctx context.Context, key string, vars types.Variables) error {
	js, err := json.Marshal(vars)
	if err != nil {
		return err
	}
	const q = `
insert into chat_variables(session_key, vars_json)
values ($1,$2)
on conflict (session_key)
do update set vars_json=excluded.vars_json, updated_at=now()`
	_, err = s.DB.ExecContext(ctx, q, key, js)
	return err
}

func (s *PGStore) Delete(ctx context.Context, key string) error {
	_, err := s.DB.ExecContext(ctx, `delete from chat_variables where session_key=$1`, key)
	return err
}

// Ping: для /healthz бота.
func (s *PGStore) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *PGStore) Close() error { return s.DB.Close() }
