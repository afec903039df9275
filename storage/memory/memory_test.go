package memory

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jmcleod/ballotbox/storage"
)

func TestMemoryRepository(t *testing.T) {
	repo := NewRepository()
	ns := "session"
	recordType := "KV"
	recordID := "accessToken"
	env := storage.RawRecord([]byte("token-1"))

	t.Run("PutAndGet", func(t *testing.T) {
		if err := repo.Put(ns, recordType, recordID, env); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := repo.Get(ns, recordType, recordID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Scheme != env.Scheme || !bytes.Equal(got.Ciphertext, env.Ciphertext) {
			t.Errorf("Get returned wrong envelope: %+v", got)
		}

		// Returned envelopes are clones.
		got.Ciphertext[0] = 'X'
		got2, _ := repo.Get(ns, recordType, recordID)
		if got2.Ciphertext[0] == 'X' {
			t.Error("Memory repository should return clones of envelopes")
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := repo.Get("nonexistent", recordType, recordID)
		if !errors.Is(err, storage.ErrNamespaceNotFound) {
			t.Errorf("expected ErrNamespaceNotFound, got %v", err)
		}

		_, err = repo.Get(ns, recordType, "nonexistent")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo.Put(ns, recordType, "user", env)
		repo.Put(ns, "OTHER", "x", env)
		ids, err := repo.List(ns, recordType)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(ids) != 2 {
			t.Errorf("expected 2 IDs, got %d: %v", len(ids), ids)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(ns, "OTHER", "x"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := repo.Delete(ns, "OTHER", "x"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})
}

func TestMemoryBatch(t *testing.T) {
	repo := NewRepository()
	ns := "session"

	t.Run("Commit", func(t *testing.T) {
		err := repo.Batch(ns, func(tx storage.BatchTx) error {
			if err := tx.Put("KV", "accessToken", storage.RawRecord([]byte("T"))); err != nil {
				return err
			}
			return tx.Put("KV", "user", storage.RawRecord([]byte(`{"id":1}`)))
		})
		if err != nil {
			t.Fatalf("Batch failed: %v", err)
		}
		ids, _ := repo.List(ns, "KV")
		if len(ids) != 2 {
			t.Errorf("expected 2 records after batch, got %d", len(ids))
		}
	})

	t.Run("Rollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.Batch(ns, func(tx storage.BatchTx) error {
			if err := tx.Delete("KV", "accessToken"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if _, err := repo.Get(ns, "KV", "accessToken"); err != nil {
			t.Errorf("rolled back delete should keep the record, got %v", err)
		}
	})

	t.Run("DeleteMissingInBatch", func(t *testing.T) {
		err := repo.Batch(ns, func(tx storage.BatchTx) error {
			return tx.Delete("KV", "never-existed")
		})
		if err != nil {
			t.Errorf("deleting a missing record in a batch should succeed, got %v", err)
		}
	})
}
