package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"questweaver/server/internal/interfaces"
	"questweaver/server/internal/models"
)

// MemoryStore is an in-memory AdventureStore used when MySQL is unavailable
// and throughout the test suite. Nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	blobs   map[string][]byte
	records map[string]*models.AdventureRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs:   make(map[string][]byte),
		records: make(map[string]*models.AdventureRecord),
	}
}

func (s *MemoryStore) Save(ctx context.Context, state *models.AdventureState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize adventure state: %w", err)
	}
	status := models.StatusActive
	if state.IsComplete() {
		status = models.StatusComplete
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[state.ID] = blob
	s.records[state.ID] = &models.AdventureRecord{
		ID:          state.ID,
		UserID:      state.Identity.UserID,
		Category:    state.Category,
		Topic:       state.Topic,
		Status:      status,
		Environment: state.Environment,
		CreatedAt:   state.CreatedAt,
		UpdatedAt:   state.UpdatedAt,
	}
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, adventureID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[adventureID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}

func (s *MemoryStore) ActiveForUser(ctx context.Context, userID string) (*interfaces.ActiveAdventure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var newest *models.AdventureRecord
	for _, rec := range s.records {
		if rec.UserID != userID || rec.Status != models.StatusActive {
			continue
		}
		if newest == nil || rec.UpdatedAt.After(newest.UpdatedAt) {
			newest = rec
		}
	}
	if newest == nil {
		return nil, interfaces.ErrNoActive
	}
	return &interfaces.ActiveAdventure{
		AdventureID: newest.ID,
		Category:    newest.Category,
		Topic:       newest.Topic,
		Blob:        s.blobs[newest.ID],
	}, nil
}

func (s *MemoryStore) Abandon(ctx context.Context, adventureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[adventureID]
	if !ok {
		return interfaces.ErrNotFound
	}
	rec.Status = models.StatusAbandoned
	return nil
}

func (s *MemoryStore) AbandonOtherActive(ctx context.Context, userID, keepID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.UserID == userID && rec.Status == models.StatusActive && rec.ID != keepID {
			rec.Status = models.StatusAbandoned
		}
	}
	return nil
}

// ActiveCount reports the number of active adventures for a user.
func (s *MemoryStore) ActiveCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.records {
		if rec.UserID == userID && rec.Status == models.StatusActive {
			n++
		}
	}
	return n
}
