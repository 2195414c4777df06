package interfaces

import (
	"context"
	"errors"

	"questweaver/server/internal/models"
)

// ErrNotFound is returned when no adventure exists for the requested id.
var ErrNotFound = errors.New("adventure not found")

// ErrNoActive is returned when an identity has no incomplete adventure.
var ErrNoActive = errors.New("no active adventure")

// ActiveAdventure describes an identity's incomplete adventure for the
// conflict surface. Blob is the persisted state, ready for reconstruction.
type ActiveAdventure struct {
	AdventureID string
	Category    string
	Topic       string
	Blob        []byte
}

// AdventureStore persists adventure state. Writes are last-writer-wins per
// adventure id; the one-active-adventure-per-identity invariant bounds the
// blast radius of concurrent writers.
type AdventureStore interface {
	// Save persists the full state. Must complete before the client is told
	// it is safe to disconnect.
	Save(ctx context.Context, state *models.AdventureState) error

	// Load returns the persisted blob for an adventure id.
	Load(ctx context.Context, adventureID string) ([]byte, error)

	// ActiveForUser returns the identity's single incomplete adventure, or
	// ErrNoActive.
	ActiveForUser(ctx context.Context, userID string) (*ActiveAdventure, error)

	// Abandon marks an adventure abandoned so a new one may start.
	Abandon(ctx context.Context, adventureID string) error

	// AbandonOtherActive marks every other active adventure for the
	// identity abandoned, enforcing at-most-one-active.
	AbandonOtherActive(ctx context.Context, userID, keepID string) error
}
