package memory

import (
	"testing"
)

func TestMemoryStore(t *testing.T) {
	s := NewStore()

	t.Run("SetGet", func(t *testing.T) {
		if err := s.Set("k1", "v1"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, ok := s.Get("k1")
		if !ok || got != "v1" {
			t.Errorf("expected (v1, true), got (%q, %v)", got, ok)
		}
	})

	t.Run("GetAbsent", func(t *testing.T) {
		_, ok := s.Get("missing")
		if ok {
			t.Error("expected miss for absent key")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		s.Set("k1", "v2")
		got, _ := s.Get("k1")
		if got != "v2" {
			t.Errorf("expected v2, got %q", got)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		s.Set("k2", "v")
		if err := s.Remove("k2"); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if _, ok := s.Get("k2"); ok {
			t.Error("expected key removed")
		}
	})

	t.Run("RemoveAbsent", func(t *testing.T) {
		if err := s.Remove("never-set"); err != nil {
			t.Errorf("removing an absent key should not error: %v", err)
		}
	})
}
