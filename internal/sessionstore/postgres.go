package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/birbparty/nestlink/sdk"
)

const schema = `
CREATE TABLE IF NOT EXISTS nestlink_sessions (
	profile      TEXT PRIMARY KEY,
	token        TEXT NOT NULL,
	user_id      TEXT NOT NULL DEFAULT '',
	role         TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT '',
	expires_at   TIMESTAMPTZ,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore keeps one session row per profile
type PostgresStore struct {
	pool    *pgxpool.Pool
	profile string
}

// NewPostgresStore creates the pool, verifies it, and ensures the schema
func NewPostgresStore(cfg *PostgresConfig, profile string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	return &PostgresStore{pool: pool, profile: profile}, nil
}

// Read returns the profile's session, nil when there is none
func (p *PostgresStore) Read(ctx context.Context) (*sdk.Session, error) {
	var s sdk.Session
	var expiresAt *time.Time
	err := p.pool.QueryRow(ctx,
		`SELECT token, user_id, role, display_name, expires_at
		 FROM nestlink_sessions WHERE profile = $1`, p.profile,
	).Scan(&s.Token, &s.UserID, &s.Role, &s.DisplayName, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if expiresAt != nil {
		s.ExpiresAt = *expiresAt
	}
	return &s, nil
}

// Write upserts the profile's session
func (p *PostgresStore) Write(ctx context.Context, s sdk.Session) error {
	if s.Token == "" {
		return errors.New("session token cannot be empty")
	}
	var expiresAt *time.Time
	if !s.ExpiresAt.IsZero() {
		expiresAt = &s.ExpiresAt
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO nestlink_sessions (profile, token, user_id, role, display_name, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (profile) DO UPDATE SET
			token = EXCLUDED.token,
			user_id = EXCLUDED.user_id,
			role = EXCLUDED.role,
			display_name = EXCLUDED.display_name,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()`,
		p.profile, s.Token, s.UserID, s.Role, s.DisplayName, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Clear deletes the profile's session
func (p *PostgresStore) Clear(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM nestlink_sessions WHERE profile = $1`, p.profile); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// CompareAndClear deletes the session only while it still holds token
func (p *PostgresStore) CompareAndClear(ctx context.Context, token string) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM nestlink_sessions WHERE profile = $1 AND token = $2`, p.profile, token)
	if err != nil {
		return false, fmt.Errorf("failed to clear session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Ping checks the database health
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the connection pool
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
