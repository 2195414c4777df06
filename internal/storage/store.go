package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"questweaver/server/internal/interfaces"
	"questweaver/server/internal/models"
)

// AdventureStore combines MySQL (source of truth) with an optional Redis
// cache for blobs and the active-adventure index. A nil redis store degrades
// to MySQL-only operation.
type AdventureStore struct {
	mysql *MySQLStore
	redis *RedisStore
}

func NewAdventureStore(mysql *MySQLStore, redis *RedisStore) *AdventureStore {
	return &AdventureStore{mysql: mysql, redis: redis}
}

// Save persists the full state: blob plus extracted columns for the conflict
// surface. The MySQL write is the acknowledgement boundary; cache updates
// after it are best-effort.
func (s *AdventureStore) Save(ctx context.Context, state *models.AdventureState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize adventure state: %w", err)
	}

	status := models.StatusActive
	if state.IsComplete() {
		status = models.StatusComplete
	}
	rec := &models.AdventureRecord{
		ID:          state.ID,
		UserID:      state.Identity.UserID,
		Category:    state.Category,
		Topic:       state.Topic,
		Status:      status,
		Environment: state.Environment,
		StateJSON:   string(blob),
		CreatedAt:   state.CreatedAt,
		UpdatedAt:   state.UpdatedAt,
	}
	if err := s.mysql.SaveRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to save adventure record: %w", err)
	}

	if s.redis != nil {
		if err := s.redis.PutBlob(ctx, state.ID, blob); err != nil {
			log.Printf("[Store] Failed to cache blob for %s: %v", state.ID, err)
		}
		if status == models.StatusActive {
			if err := s.redis.SetActive(ctx, state.Identity.UserID, state.ID); err != nil {
				log.Printf("[Store] Failed to set active pointer for %s: %v", state.Identity.UserID, err)
			}
		} else {
			_ = s.redis.ClearActive(ctx, state.Identity.UserID)
		}
	}
	return nil
}

// Load returns the persisted blob, cache first.
func (s *AdventureStore) Load(ctx context.Context, adventureID string) ([]byte, error) {
	if s.redis != nil {
		blob, ok, err := s.redis.GetBlob(ctx, adventureID)
		if err != nil {
			log.Printf("[Store] Blob cache read failed for %s: %v", adventureID, err)
		}
		if ok {
			return blob, nil
		}
	}

	rec, err := s.mysql.GetRecord(ctx, adventureID)
	if err != nil {
		return nil, err
	}
	return []byte(rec.StateJSON), nil
}

// ActiveForUser returns the identity's single incomplete adventure.
func (s *AdventureStore) ActiveForUser(ctx context.Context, userID string) (*interfaces.ActiveAdventure, error) {
	if s.redis != nil {
		if id, err := s.redis.GetActive(ctx, userID); err == nil && id != "" {
			if rec, err := s.mysql.GetRecord(ctx, id); err == nil && rec.Status == models.StatusActive {
				return &interfaces.ActiveAdventure{
					AdventureID: rec.ID,
					Category:    rec.Category,
					Topic:       rec.Topic,
					Blob:        []byte(rec.StateJSON),
				}, nil
			}
			// Stale pointer; fall through to the table scan.
			_ = s.redis.ClearActive(ctx, userID)
		}
	}

	rec, err := s.mysql.ActiveRecordForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &interfaces.ActiveAdventure{
		AdventureID: rec.ID,
		Category:    rec.Category,
		Topic:       rec.Topic,
		Blob:        []byte(rec.StateJSON),
	}, nil
}

// Abandon marks an adventure abandoned and clears cache entries.
func (s *AdventureStore) Abandon(ctx context.Context, adventureID string) error {
	rec, err := s.mysql.GetRecord(ctx, adventureID)
	if err != nil {
		return err
	}
	if err := s.mysql.SetStatus(ctx, adventureID, models.StatusAbandoned); err != nil {
		return err
	}
	if s.redis != nil {
		_ = s.redis.DelBlob(ctx, adventureID)
		if id, _ := s.redis.GetActive(ctx, rec.UserID); id == adventureID {
			_ = s.redis.ClearActive(ctx, rec.UserID)
		}
	}
	return nil
}

// AbandonOtherActive enforces at-most-one-active per identity at creation
// time.
func (s *AdventureStore) AbandonOtherActive(ctx context.Context, userID, keepID string) error {
	return s.mysql.AbandonOtherActive(ctx, userID, keepID)
}
