package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SchenleyKB/evermore-cns/internal/registry/model"
)

// MemoryStore is an in-memory, thread-safe Store implementation. It is the
// default backing store: agent cards are operational configuration, not
// durable governance state, so losing them on restart is acceptable.
type MemoryStore struct {
	mu    sync.RWMutex
	cards map[string]*model.AgentCard
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cards: make(map[string]*model.AgentCard)}
}

// Register implements Store. Re-registering an existing id replaces the card
// but preserves its original CreatedAt.
func (s *MemoryStore) Register(_ context.Context, card *model.AgentCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	stored := *card
	stored.UpdatedAt = now
	if prev, ok := s.cards[card.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	s.cards[card.ID] = &stored
	return nil
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(_ context.Context, agentID string) (*model.AgentCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	card, ok := s.cards[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *card
	return &cp, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, filter model.Filter) ([]*model.AgentCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cards := make([]*model.AgentCard, 0, len(s.cards))
	for _, card := range s.cards {
		if !filter.Matches(card) {
			continue
		}
		cp := *card
		cards = append(cards, &cp)
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
	return cards, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cards[agentID]; !ok {
		return ErrNotFound
	}
	delete(s.cards, agentID)
	return nil
}
