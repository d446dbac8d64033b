// Package registry holds agent registration cards and answers lookups for
// the governance core.
//
// The core itself only ever calls Lookup; registration, listing, and removal
// exist for the HTTP front door and operational tooling. A missing card is a
// normal, expected state — every consumer must handle it explicitly.
package registry

import (
	"context"
	"errors"

	"github.com/SchenleyKB/evermore-cns/internal/registry/model"
)

// ErrNotFound is returned when no card exists for the requested agent id.
var ErrNotFound = errors.New("agent not found")

// Store is the registry contract consumed by the gateway and handlers.
type Store interface {
	// Register inserts or replaces the card for card.ID. Idempotent on id.
	Register(ctx context.Context, card *model.AgentCard) error

	// Lookup returns the card for the given agent id, or ErrNotFound.
	Lookup(ctx context.Context, agentID string) (*model.AgentCard, error)

	// List returns all cards matching the filter, in stable id order.
	List(ctx context.Context, filter model.Filter) ([]*model.AgentCard, error)

	// Delete removes the card for the given agent id, or returns ErrNotFound.
	Delete(ctx context.Context, agentID string) error
}
