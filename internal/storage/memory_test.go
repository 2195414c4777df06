package storage

import (
	"context"
	"testing"

	"questweaver/server/internal/interfaces"
	"questweaver/server/internal/models"
)

func memState(t *testing.T, id, userID string) *models.AdventureState {
	t.Helper()
	st, err := models.NewAdventureState(id, models.Identity{UserID: userID},
		"science", "astronomy", models.PlanChapterKinds(4), nil, "test")
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestMemoryStoreSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	st := memState(t, "adv-1", "u1")

	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	blob, err := store.Load(ctx, "adv-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(blob) == 0 {
		t.Fatal("empty blob")
	}

	if _, err := store.Load(ctx, "missing"); err != interfaces.ErrNotFound {
		t.Errorf("Load(missing) = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreActiveForUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.ActiveForUser(ctx, "u1"); err != interfaces.ErrNoActive {
		t.Fatalf("ActiveForUser with nothing saved = %v, want ErrNoActive", err)
	}

	st := memState(t, "adv-1", "u1")
	if err := store.Save(ctx, st); err != nil {
		t.Fatal(err)
	}

	active, err := store.ActiveForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveForUser: %v", err)
	}
	if active.AdventureID != "adv-1" || active.Topic != "astronomy" {
		t.Errorf("unexpected active adventure: %+v", active)
	}

	// A completed adventure is no longer active.
	for _, kind := range st.PlannedKinds {
		if _, err := st.AppendChapter(models.ChapterState{Kind: kind, Content: "c"}); err != nil {
			t.Fatal(err)
		}
		if err := st.CloseChapter(models.ChapterResponse{ChosenDestinationID: "a"}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := st.AppendChapter(models.ChapterState{Kind: models.KindSummary, Content: "recap"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, st); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ActiveForUser(ctx, "u1"); err != interfaces.ErrNoActive {
		t.Errorf("completed adventure still reported active: %v", err)
	}
}

func TestMemoryStoreAbandon(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Save(ctx, memState(t, "adv-1", "u1")); err != nil {
		t.Fatal(err)
	}

	if err := store.Abandon(ctx, "adv-1"); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if _, err := store.ActiveForUser(ctx, "u1"); err != interfaces.ErrNoActive {
		t.Errorf("abandoned adventure still active: %v", err)
	}
	if err := store.Abandon(ctx, "missing"); err != interfaces.ErrNotFound {
		t.Errorf("Abandon(missing) = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreAbandonOtherActive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Save(ctx, memState(t, "adv-1", "u1")); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, memState(t, "adv-2", "u1")); err != nil {
		t.Fatal(err)
	}

	if err := store.AbandonOtherActive(ctx, "u1", "adv-2"); err != nil {
		t.Fatalf("AbandonOtherActive: %v", err)
	}
	if got := store.ActiveCount("u1"); got != 1 {
		t.Errorf("ActiveCount = %d, want 1", got)
	}
	active, err := store.ActiveForUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if active.AdventureID != "adv-2" {
		t.Errorf("surviving adventure = %s, want adv-2", active.AdventureID)
	}
}
