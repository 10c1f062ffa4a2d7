// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool connects and validates connectivity with a short ping.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 5
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ctxPing, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// Lazy defers the first connection until a database step actually runs,
// so the runner starts cleanly when the database is down or unused.
type Lazy struct {
	url string

	mu   sync.Mutex
	pool *pgxpool.Pool
}

func NewLazy(databaseURL string) *Lazy {
	return &Lazy{url: databaseURL}
}

func (l *Lazy) acquire(ctx context.Context) (*pgxpool.Pool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pool != nil {
		return l.pool, nil
	}

	pool, err := NewPool(ctx, l.url)
	if err != nil {
		return nil, err
	}
	l.pool = pool
	return pool, nil
}

func (l *Lazy) Ping(ctx context.Context) error {
	pool, err := l.acquire(ctx)
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

func (l *Lazy) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	pool, err := l.acquire(ctx)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return pool.Exec(ctx, sql, args...)
}

func (l *Lazy) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	pool, err := l.acquire(ctx)
	if err != nil {
		return nil, err
	}
	return pool.Query(ctx, sql, args...)
}

func (l *Lazy) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pool != nil {
		l.pool.Close()
		l.pool = nil
	}
}
