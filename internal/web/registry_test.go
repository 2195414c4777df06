package web

import "testing"

func TestRegistryRegisterAndRelease(t *testing.T) {
	r := NewRegistry()
	s1 := &Session{id: "s1"}
	s2 := &Session{id: "s2"}

	if prev := r.Register("u1", s1); prev != nil {
		t.Errorf("first Register returned prev = %v", prev)
	}
	if got, ok := r.Active("u1"); !ok || got != s1 {
		t.Error("Active should return the registered session")
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}

	// A second connection for the same identity supersedes the first.
	if prev := r.Register("u1", s2); prev != s1 {
		t.Errorf("Register returned prev = %v, want s1", prev)
	}

	// The superseded session's cleanup must not evict the newer one.
	r.Release("u1", s1)
	if got, ok := r.Active("u1"); !ok || got != s2 {
		t.Error("stale Release evicted the live session")
	}

	r.Release("u1", s2)
	if _, ok := r.Active("u1"); ok {
		t.Error("session still registered after Release")
	}
}
