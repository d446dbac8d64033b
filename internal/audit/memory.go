package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLog is an in-memory, thread-safe Log implementation. It is primarily
// useful for testing and for single-process deployments that do not require
// the decision trail to survive restarts.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemoryLog creates a MemoryLog initialised with the canonical genesis
// entry at index 0.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{entries: []*Entry{genesisEntry()}}
}

// Append implements Log.
func (l *MemoryLog) Append(_ context.Context, rec Record) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.entries[len(l.entries)-1]
	entry := &Entry{
		Index:       len(l.entries),
		Timestamp:   time.Now().UTC(),
		AgentID:     rec.AgentID,
		CallerID:    rec.CallerID,
		ActionType:  rec.ActionType,
		Outcome:     rec.Outcome,
		Reason:      rec.Reason,
		TrustScore:  rec.TrustScore,
		PayloadHash: digestPayload(rec.Payload),
		PrevHash:    prev.Hash,
	}
	entry.Hash = hashEntry(entry)
	l.entries = append(l.entries, entry)
	return entry, nil
}

// Get implements Log.
func (l *MemoryLog) Get(_ context.Context, index int) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.entries) {
		return nil, fmt.Errorf("index %d out of range", index)
	}
	return l.entries[index], nil
}

// List implements Log.
func (l *MemoryLog) List(_ context.Context, limit, offset int) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 || offset >= len(l.entries) {
		return []*Entry{}, nil
	}
	end := offset + limit
	if end > len(l.entries) {
		end = len(l.entries)
	}
	out := make([]*Entry, end-offset)
	copy(out, l.entries[offset:end])
	return out, nil
}

// Len implements Log.
func (l *MemoryLog) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

// Verify implements Log.
func (l *MemoryLog) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return verifyEntries(l.entries)
}

// Root implements Log.
func (l *MemoryLog) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[len(l.entries)-1].Hash, nil
}
