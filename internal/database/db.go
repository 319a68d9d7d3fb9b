package database

import (
	"context"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"whytrade-api/config"
	"whytrade-api/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates a new database connection pool. Numeric columns are scanned
// into shopspring decimals so P/L arithmetic never passes through float64.
func NewDB(cfg config.DatabaseConfig) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logging.WithComponent("database").Info("connected to PostgreSQL database %s", cfg.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		logging.WithComponent("database").Info("database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log := logging.WithComponent("database")
	log.Info("running database migrations")

	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			email VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			full_name VARCHAR(100),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			ticker_symbol VARCHAR(10) NOT NULL,
			trade_type VARCHAR(4) NOT NULL,
			quantity DECIMAL(20, 4) NOT NULL,
			price DECIMAL(20, 4) NOT NULL,
			total_amount DECIMAL(20, 4) NOT NULL,
			executed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			status VARCHAR(10) NOT NULL DEFAULT 'OPEN',
			profit_loss DECIMAL(20, 4),
			related_trade_id UUID REFERENCES trades(id) ON DELETE SET NULL,
			market_env TEXT,
			technical_analysis TEXT,
			fundamental_analysis TEXT,
			risk_reward_ratio DECIMAL(10, 4),
			confidence_level INTEGER,
			entry_trigger TEXT,
			target_price DECIMAL(20, 4),
			stop_loss DECIMAL(20, 4),
			holding_period VARCHAR(50),
			position_sizing TEXT,
			competitor_analysis TEXT,
			catalyst TEXT,
			rationale TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_user_id ON trades(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_ticker_symbol ON trades(ticker_symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_related_trade_id ON trades(related_trade_id)`,

		`CREATE TABLE IF NOT EXISTS trade_reflections (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			trade_id UUID NOT NULL UNIQUE REFERENCES trades(id) ON DELETE CASCADE,
			what_went_well TEXT,
			what_went_wrong TEXT,
			lessons_learned TEXT,
			action_items TEXT,
			satisfaction_rating INTEGER,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Info("database migrations completed")
	return nil
}
