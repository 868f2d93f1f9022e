// Package pg implementa los repositorios de dominio sobre PostgreSQL (pgx).
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mercatto/authd/internal/domain/repository"
)

type Config struct {
	DSN             string
	MaxConns        int
	ConnMaxLifetime time.Duration
}

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Ping verifica la conexión al storage.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Identities() repository.IdentityRepository   { return &identityRepo{pool: s.pool} }
func (s *Store) Links() repository.SocialLinkRepository      { return &socialLinkRepo{pool: s.pool} }
func (s *Store) AppleProfiles() repository.AppleProfileRepository {
	return &appleProfileRepo{pool: s.pool}
}
func (s *Store) Blacklist() repository.BlacklistRepository { return &blacklistRepo{pool: s.pool} }

// isUniqueViolation detecta violaciones de constraint UNIQUE (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
