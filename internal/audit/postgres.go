package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// concurrent Append calls. The value is arbitrary but must be consistent
// across all gateway instances sharing the database.
const advisoryLockKey = int64(7_420_118_206)

// PostgresLog persists the decision audit chain to a PostgreSQL database.
// It implements the Log interface.
//
// Expected schema:
//
//	CREATE TABLE audit_log (
//	    idx          INTEGER PRIMARY KEY,
//	    timestamp    TIMESTAMPTZ NOT NULL,
//	    agent_id     TEXT NOT NULL,
//	    caller_id    TEXT NOT NULL DEFAULT '',
//	    action_type  TEXT NOT NULL,
//	    outcome      TEXT NOT NULL,
//	    reason       TEXT NOT NULL,
//	    trust_score  DOUBLE PRECISION NOT NULL,
//	    payload_hash TEXT NOT NULL,
//	    prev_hash    TEXT NOT NULL,
//	    hash         TEXT NOT NULL
//	);
//
// The genesis row (idx 0, hash GenesisHash) must be seeded before first use;
// EnsureGenesis does so idempotently.
type PostgresLog struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresLog creates a PostgresLog backed by the given connection pool.
func NewPostgresLog(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLog {
	return &PostgresLog{pool: pool, logger: logger}
}

// EnsureGenesis inserts the genesis entry if the table is empty.
func (l *PostgresLog) EnsureGenesis(ctx context.Context) error {
	g := genesisEntry()
	if _, err := l.pool.Exec(ctx,
		`INSERT INTO audit_log (idx, timestamp, agent_id, caller_id, action_type, outcome, reason, trust_score, payload_hash, prev_hash, hash)
		 VALUES (0, $1, $2, '', '', $3, $4, 0, '', $5, $5)
		 ON CONFLICT (idx) DO NOTHING`,
		g.Timestamp, g.AgentID, g.Outcome, g.Reason, GenesisHash,
	); err != nil {
		return fmt.Errorf("seed genesis entry: %w", err)
	}
	return nil
}

// Append implements Log. It acquires a PostgreSQL advisory lock, reads the
// chain tail, computes the new entry hash, and inserts it — all within a
// single transaction.
func (l *PostgresLog) Append(ctx context.Context, rec Record) (*Entry, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Serialise concurrent appends with a transaction-scoped advisory lock.
	// The lock is released when the transaction commits or rolls back.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var prevIdx int
	var prevHash string
	if err := tx.QueryRow(ctx,
		"SELECT idx, hash FROM audit_log ORDER BY idx DESC LIMIT 1",
	).Scan(&prevIdx, &prevHash); err != nil {
		return nil, fmt.Errorf("read audit tail: %w", err)
	}

	entry := &Entry{
		Index:       prevIdx + 1,
		Timestamp:   time.Now().UTC(),
		AgentID:     rec.AgentID,
		CallerID:    rec.CallerID,
		ActionType:  rec.ActionType,
		Outcome:     rec.Outcome,
		Reason:      rec.Reason,
		TrustScore:  rec.TrustScore,
		PayloadHash: digestPayload(rec.Payload),
		PrevHash:    prevHash,
	}
	entry.Hash = hashEntry(entry)

	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_log (idx, timestamp, agent_id, caller_id, action_type, outcome, reason, trust_score, payload_hash, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.Index, entry.Timestamp, entry.AgentID, entry.CallerID,
		entry.ActionType, entry.Outcome, entry.Reason, entry.TrustScore,
		entry.PayloadHash, entry.PrevHash, entry.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit audit tx: %w", err)
	}

	l.logger.Debug("audit entry appended",
		zap.Int("idx", entry.Index),
		zap.String("agent_id", entry.AgentID),
		zap.String("outcome", entry.Outcome),
	)
	return entry, nil
}

// Get implements Log.
func (l *PostgresLog) Get(ctx context.Context, index int) (*Entry, error) {
	entry := &Entry{}
	if err := l.pool.QueryRow(ctx,
		`SELECT idx, timestamp, agent_id, caller_id, action_type, outcome, reason, trust_score, payload_hash, prev_hash, hash
		 FROM audit_log WHERE idx = $1`, index,
	).Scan(
		&entry.Index, &entry.Timestamp, &entry.AgentID, &entry.CallerID,
		&entry.ActionType, &entry.Outcome, &entry.Reason, &entry.TrustScore,
		&entry.PayloadHash, &entry.PrevHash, &entry.Hash,
	); err != nil {
		return nil, fmt.Errorf("get audit entry %d: %w", index, err)
	}
	return entry, nil
}

// List implements Log.
func (l *PostgresLog) List(ctx context.Context, limit, offset int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := l.pool.Query(ctx,
		`SELECT idx, timestamp, agent_id, caller_id, action_type, outcome, reason, trust_score, payload_hash, prev_hash, hash
		 FROM audit_log ORDER BY idx ASC LIMIT $1 OFFSET $2`, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry := &Entry{}
		if err := rows.Scan(
			&entry.Index, &entry.Timestamp, &entry.AgentID, &entry.CallerID,
			&entry.ActionType, &entry.Outcome, &entry.Reason, &entry.TrustScore,
			&entry.PayloadHash, &entry.PrevHash, &entry.Hash,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Len implements Log.
func (l *PostgresLog) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

// Verify implements Log. It streams all rows ordered by idx and validates
// the hash chain. O(n) in chain length.
func (l *PostgresLog) Verify(ctx context.Context) error {
	rows, err := l.pool.Query(ctx,
		`SELECT idx, timestamp, agent_id, caller_id, action_type, outcome, reason, trust_score, payload_hash, prev_hash, hash
		 FROM audit_log ORDER BY idx ASC`,
	)
	if err != nil {
		return fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var prev *Entry
	for rows.Next() {
		curr := &Entry{}
		if err := rows.Scan(
			&curr.Index, &curr.Timestamp, &curr.AgentID, &curr.CallerID,
			&curr.ActionType, &curr.Outcome, &curr.Reason, &curr.TrustScore,
			&curr.PayloadHash, &curr.PrevHash, &curr.Hash,
		); err != nil {
			return fmt.Errorf("scan audit row: %w", err)
		}

		if prev == nil {
			if curr.Hash != GenesisHash {
				return fmt.Errorf("genesis entry has wrong hash: got %q", curr.Hash)
			}
			prev = curr
			continue
		}
		if curr.PrevHash != prev.Hash {
			return fmt.Errorf("hash chain broken at index %d", curr.Index)
		}
		if curr.Hash != hashEntry(curr) {
			return fmt.Errorf("entry %d has invalid hash", curr.Index)
		}
		prev = curr
	}
	return rows.Err()
}

// Root implements Log.
func (l *PostgresLog) Root(ctx context.Context) (string, error) {
	var hash string
	if err := l.pool.QueryRow(ctx,
		"SELECT hash FROM audit_log ORDER BY idx DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get audit root: %w", err)
	}
	return hash, nil
}
