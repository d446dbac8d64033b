package trust

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresLedger persists trust scores to a PostgreSQL table.
// It implements the Ledger interface.
//
// Expected schema:
//
//	CREATE TABLE trust_scores (
//	    agent_id   TEXT PRIMARY KEY,
//	    score      DOUBLE PRECISION NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
type PostgresLedger struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresLedger creates a PostgresLedger backed by the given connection pool.
func NewPostgresLedger(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLedger {
	return &PostgresLedger{pool: pool, logger: logger}
}

// Get implements Ledger. Agents without a row read as DefaultScore.
func (l *PostgresLedger) Get(ctx context.Context, agentID string) (float64, error) {
	var score float64
	err := l.pool.QueryRow(ctx,
		"SELECT score FROM trust_scores WHERE agent_id = $1", agentID,
	).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultScore, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get trust score for %s: %w", agentID, err)
	}
	return score, nil
}

// Set implements Ledger.
func (l *PostgresLedger) Set(ctx context.Context, agentID string, score float64) error {
	score = Clamp(score)
	if _, err := l.pool.Exec(ctx,
		`INSERT INTO trust_scores (agent_id, score, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (agent_id) DO UPDATE SET score = $2, updated_at = $3`,
		agentID, score, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("set trust score for %s: %w", agentID, err)
	}

	l.logger.Debug("trust score updated",
		zap.String("agent_id", agentID),
		zap.Float64("score", score),
	)
	return nil
}
