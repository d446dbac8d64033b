// Package audit implements a hash-chained, append-only log of governance
// decisions.
//
// The chain begins with a well-known genesis entry whose Hash equals
// GenesisHash (64 hex zeros). Every subsequent entry records the SHA-256 of
// its predecessor, making tampering detectable via Verify. Action payloads
// are stored only as a SHA-256 digest, never raw.
//
// Two implementations of the Log interface are provided:
//   - MemoryLog: in-process, for testing and development.
//   - PostgresLog: durable, for production use.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// GenesisHash is the canonical well-known hash of the genesis entry.
// All subsequent entry hashes chain from this constant.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Record is the decision data appended to the log.
type Record struct {
	// AgentID is the acting agent the decision applies to.
	AgentID string `json:"agent_id"`

	// CallerID is the agent that initiated the call, when known.
	CallerID string `json:"caller_id,omitempty"`

	ActionType string  `json:"action_type"`
	Outcome    string  `json:"outcome"`
	Reason     string  `json:"reason"`
	TrustScore float64 `json:"trust_score"`

	// Payload is digested into the entry's PayloadHash; it is never stored.
	Payload map[string]any `json:"-"`
}

// Entry is a single committed record in the audit chain.
type Entry struct {
	Index      int       `json:"index"`
	Timestamp  time.Time `json:"timestamp"`
	AgentID    string    `json:"agent_id"`
	CallerID   string    `json:"caller_id,omitempty"`
	ActionType string    `json:"action_type"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason"`
	TrustScore float64   `json:"trust_score"`

	// PayloadHash is the SHA-256 of the JSON-marshalled action payload.
	PayloadHash string `json:"payload_hash"`
	PrevHash    string `json:"prev_hash"`
	Hash        string `json:"hash"`
}

// Log is the interface for the decision audit chain.
type Log interface {
	// Append adds a new entry chained to the previous one.
	Append(ctx context.Context, rec Record) (*Entry, error)

	// Get returns the entry at the given zero-based index.
	Get(ctx context.Context, index int) (*Entry, error)

	// List returns up to limit entries starting at offset, oldest first
	// (including the genesis entry at index 0).
	List(ctx context.Context, limit, offset int) ([]*Entry, error)

	// Len returns the total number of entries (including the genesis entry).
	Len(ctx context.Context) (int, error)

	// Verify walks the entire chain and checks hash consistency.
	// Returns nil if the chain is intact.
	Verify(ctx context.Context) error

	// Root returns the hash of the most recent entry (the chain tip).
	Root(ctx context.Context) (string, error)
}

// hashEntry computes a deterministic SHA-256 hash over an entry's fields.
// This function must never be called on the genesis entry (index 0).
func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%s|%.6f|%s|%s",
		e.Index, e.Timestamp.Format(time.RFC3339Nano),
		e.AgentID, e.CallerID, e.ActionType, e.Outcome,
		e.Reason, e.TrustScore, e.PayloadHash, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// digestPayload returns the hex-encoded SHA-256 of the JSON form of payload.
func digestPayload(payload map[string]any) string {
	b, err := json.Marshal(payload)
	if err != nil {
		b = []byte(fmt.Sprint(payload))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// genesisEntry returns the canonical index-0 entry.
func genesisEntry() *Entry {
	return &Entry{
		Index:     0,
		Timestamp: time.Now().UTC(),
		AgentID:   "cns-system",
		Outcome:   "genesis",
		Reason:    "genesis",
		Hash:      GenesisHash, // genesis hash is the well-known constant, not computed
		PrevHash:  GenesisHash,
	}
}

// verifyEntries walks a full, index-ordered chain and checks hash
// consistency. Shared by both Log implementations.
func verifyEntries(entries []*Entry) error {
	for i, curr := range entries {
		if i == 0 {
			// Genesis: must equal the well-known constant.
			if curr.Hash != GenesisHash {
				return fmt.Errorf("genesis entry has wrong hash: got %q", curr.Hash)
			}
			continue
		}
		prev := entries[i-1]
		if curr.PrevHash != prev.Hash {
			return fmt.Errorf("hash chain broken at index %d", curr.Index)
		}
		if curr.Hash != hashEntry(curr) {
			return fmt.Errorf("entry %d has invalid hash", curr.Index)
		}
	}
	return nil
}
