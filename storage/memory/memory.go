// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"strings"
	"sync"

	"github.com/jmcleod/ballotbox/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing and for sessions that should not outlive the process.
type Repository struct {
	mu   sync.RWMutex
	data map[string]map[string]*storage.Envelope
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]map[string]*storage.Envelope)}
}

func makeKey(recordType, recordID string) string {
	return recordType + ":" + recordID
}

func cloneEnvelope(env *storage.Envelope) *storage.Envelope {
	if env == nil {
		return nil
	}
	return &storage.Envelope{
		Ver:        env.Ver,
		Scheme:     env.Scheme,
		Nonce:      append([]byte(nil), env.Nonce...),
		Ciphertext: append([]byte(nil), env.Ciphertext...),
	}
}

func (r *Repository) Put(ns, recordType, recordID string, envelope *storage.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.putLocked(ns, recordType, recordID, envelope)
	return nil
}

func (r *Repository) putLocked(ns, recordType, recordID string, envelope *storage.Envelope) {
	if _, ok := r.data[ns]; !ok {
		r.data[ns] = make(map[string]*storage.Envelope)
	}
	r.data[ns][makeKey(recordType, recordID)] = cloneEnvelope(envelope)
}

func (r *Repository) Get(ns, recordType, recordID string) (*storage.Envelope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nsData, ok := r.data[ns]
	if !ok {
		return nil, storage.ErrNamespaceNotFound
	}
	env, ok := nsData[makeKey(recordType, recordID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneEnvelope(env), nil
}

func (r *Repository) List(ns, recordType string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	prefix := recordType + ":"
	for k := range r.data[ns] {
		if id, ok := strings.CutPrefix(k, prefix); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *Repository) Delete(ns, recordType, recordID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	nsData, ok := r.data[ns]
	if !ok {
		return storage.ErrNamespaceNotFound
	}
	k := makeKey(recordType, recordID)
	if _, ok := nsData[k]; !ok {
		return storage.ErrNotFound
	}
	delete(nsData, k)
	return nil
}

// Batch executes fn within a batch transaction. On error, all writes are rolled back.
func (r *Repository) Batch(ns string, fn func(tx storage.BatchTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.snapshotNamespace(ns)

	tx := &memoryBatchTx{repo: r, ns: ns}
	if err := fn(tx); err != nil {
		r.restoreNamespace(ns, snapshot)
		return err
	}
	return nil
}

func (r *Repository) snapshotNamespace(ns string) map[string]*storage.Envelope {
	original, ok := r.data[ns]
	if !ok {
		return nil
	}
	cp := make(map[string]*storage.Envelope, len(original))
	for k, v := range original {
		cp[k] = cloneEnvelope(v)
	}
	return cp
}

func (r *Repository) restoreNamespace(ns string, snapshot map[string]*storage.Envelope) {
	if snapshot == nil {
		delete(r.data, ns)
	} else {
		r.data[ns] = snapshot
	}
}

type memoryBatchTx struct {
	repo *Repository
	ns   string
}

func (tx *memoryBatchTx) Put(recordType, recordID string, envelope *storage.Envelope) error {
	tx.repo.putLocked(tx.ns, recordType, recordID, envelope)
	return nil
}

func (tx *memoryBatchTx) Delete(recordType, recordID string) error {
	delete(tx.repo.data[tx.ns], makeKey(recordType, recordID))
	return nil
}
