package bbolt

import (
	"os"
	"testing"

	"go.etcd.io/bbolt"
)

func newTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	f, err := os.CreateTemp("", "punchclock-test-*.db")
	if err != nil {
		t.Fatalf("could not create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		os.Remove(path)
		t.Fatalf("could not open db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		os.Remove(path)
	})
	return db
}

func TestBBoltStore(t *testing.T) {
	s := NewStore(newTestDB(t))

	t.Run("SetGet", func(t *testing.T) {
		if err := s.Set("k1", "v1"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, ok := s.Get("k1")
		if !ok || got != "v1" {
			t.Errorf("expected (v1, true), got (%q, %v)", got, ok)
		}
	})

	t.Run("GetBeforeAnyWrite", func(t *testing.T) {
		fresh := NewStore(newTestDB(t))
		if _, ok := fresh.Get("anything"); ok {
			t.Error("expected miss on an empty database")
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

	t.Run("RemoveOnEmptyDB", func(t *testing.T) {
		fresh := NewStore(newTestDB(t))
		if err := fresh.Remove("missing"); err != nil {
			t.Errorf("removing from an empty db should not error: %v", err)
		}
	})

	t.Run("PersistsAcrossReopen", func(t *testing.T) {
		f, err := os.CreateTemp("", "punchclock-reopen-*.db")
		if err != nil {
			t.Fatal(err)
		}
		path := f.Name()
		f.Close()
		os.Remove(path)
		t.Cleanup(func() { os.Remove(path) })

		store, err := NewStoreFromFile(path, nil)
		if err != nil {
			t.Fatalf("open failed: %v", err)
		}
		store.Set("session", "blob")
		store.Close()

		reopened, err := NewStoreFromFile(path, nil)
		if err != nil {
			t.Fatalf("reopen failed: %v", err)
		}
		defer reopened.Close()
		got, ok := reopened.Get("session")
		if !ok || got != "blob" {
			t.Errorf("expected persisted value, got (%q, %v)", got, ok)
		}
	})
}
