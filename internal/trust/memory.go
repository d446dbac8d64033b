package trust

import (
	"context"
	"sync"
)

// MemoryLedger is an in-memory, thread-safe Ledger implementation.
type MemoryLedger struct {
	mu     sync.RWMutex
	scores map[string]float64
}

// New creates an empty MemoryLedger. Every agent reads as DefaultScore
// until its first Set.
func New() *MemoryLedger {
	return &MemoryLedger{scores: make(map[string]float64)}
}

// Get implements Ledger.
func (l *MemoryLedger) Get(_ context.Context, agentID string) (float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	score, ok := l.scores[agentID]
	if !ok {
		return DefaultScore, nil
	}
	return score, nil
}

// Set implements Ledger.
func (l *MemoryLedger) Set(_ context.Context, agentID string, score float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scores[agentID] = Clamp(score)
	return nil
}
