// Package trust maintains the per-agent trust score consumed and mutated by
// the governance engine.
//
// Scores live in [0.0, 1.0]. An agent that has never been evaluated reads as
// DefaultScore; scores are created lazily on first write and never deleted.
// Get and Set are total over the key space — there is no "missing score"
// error, only the default.
//
// Two implementations of the Ledger interface are provided:
//   - MemoryLedger: in-process, for testing and single-node deployments.
//   - PostgresLedger: durable, for production use.
package trust

import "context"

// DefaultScore is the neutral score assigned to agents with no history.
const DefaultScore = 0.8

// Ledger stores one trust score per agent id.
//
// The governance engine is the only writer. Set must be visible to
// subsequent Get calls for the same key (read-your-writes); serialising the
// surrounding read-modify-write per agent is the engine's responsibility.
type Ledger interface {
	// Get returns the stored score for the agent, or DefaultScore if the
	// agent has no entry.
	Get(ctx context.Context, agentID string) (float64, error)

	// Set stores the score for the agent, clamped to [0.0, 1.0].
	Set(ctx context.Context, agentID string, score float64) error
}

// Clamp bounds a score to the valid [0.0, 1.0] range.
func Clamp(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
