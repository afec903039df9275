package bbolt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmcleod/ballotbox/storage"
	"go.etcd.io/bbolt"
)

func newTestDB(t *testing.T) (*bbolt.DB, func()) {
	t.Helper()
	f, err := os.CreateTemp("", "session-test-*.db")
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
	return db, func() {
		db.Close()
		os.Remove(path)
	}
}

func TestBBoltStorage(t *testing.T) {
	db, cleanup := newTestDB(t)
	defer cleanup()

	s := NewRepository(db)
	ns := "session"
	recordType := "KV"
	env := storage.RawRecord([]byte("T"))

	t.Run("PutGet", func(t *testing.T) {
		if err := s.Put(ns, recordType, "accessToken", env); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := s.Get(ns, recordType, "accessToken")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got.Ciphertext) != "T" {
			t.Errorf("expected payload %q, got %q", "T", got.Ciphertext)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := s.Get("nope", recordType, "accessToken"); !errors.Is(err, storage.ErrNamespaceNotFound) {
			t.Errorf("expected ErrNamespaceNotFound, got %v", err)
		}
		if _, err := s.Get(ns, recordType, "nope"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		s.Put(ns, recordType, "user", env)
		ids, err := s.List(ns, recordType)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(ids) != 2 {
			t.Errorf("expected 2 IDs, got %d", len(ids))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := s.Delete(ns, recordType, "user"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := s.Delete(ns, recordType, "user"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("BatchRollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.Batch(ns, func(tx storage.BatchTx) error {
			if err := tx.Delete(recordType, "accessToken"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if _, err := s.Get(ns, recordType, "accessToken"); err != nil {
			t.Errorf("rolled back batch should keep record, got %v", err)
		}
	})

	t.Run("BatchCommit", func(t *testing.T) {
		err := s.Batch(ns, func(tx storage.BatchTx) error {
			if err := tx.Delete(recordType, "accessToken"); err != nil {
				return err
			}
			return tx.Delete(recordType, "never-existed")
		})
		if err != nil {
			t.Fatalf("Batch failed: %v", err)
		}
		ids, _ := s.List(ns, recordType)
		if len(ids) != 0 {
			t.Errorf("expected empty namespace, got %v", ids)
		}
	})
}

func TestBBoltSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := s.Put("session", "KV", "accessToken", storage.RawRecord([]byte("T"))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()
	got, err := s.Get("session", "KV", "accessToken")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(got.Ciphertext) != "T" {
		t.Errorf("expected %q after reopen, got %q", "T", got.Ciphertext)
	}
}
