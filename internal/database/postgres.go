package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Connect opens the pool, checks it and applies the migrations.
func Connect(ctx context.Context, cfg Config, log zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(ctx, db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	log.Info().Msg("PostgreSQL connection established")
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS interview_sessions (
		session_id TEXT PRIMARY KEY,
		view_id UUID NOT NULL,
		user_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		join_url TEXT NOT NULL,
		status TEXT NOT NULL,
		provider_status TEXT NOT NULL DEFAULT '',
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		participant_joined_at TIMESTAMP WITH TIME ZONE,
		recording_status TEXT NOT NULL DEFAULT 'absent',
		recording_url TEXT NOT NULL DEFAULT '',
		recording_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
		ended_at TIMESTAMP WITH TIME ZONE
	)`,

	`CREATE INDEX IF NOT EXISTS idx_interview_sessions_user_id ON interview_sessions(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_interview_sessions_status ON interview_sessions(status)`,

	`CREATE TABLE IF NOT EXISTS call_preferences (
		user_id TEXT PRIMARY KEY,
		camera_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		microphone_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,
}

// Migrate applies every statement in order. All statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Info().Int("count", len(migrations)).Msg("migrations completed")
	return nil
}
