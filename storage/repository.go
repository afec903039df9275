// Package storage provides the key/value abstraction the client session is
// persisted through.
package storage

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNamespaceNotFound is returned when a namespace has never been written.
	ErrNamespaceNotFound = errors.New("namespace not found")
)

// BatchTx provides Put and Delete within an atomic transaction.
// The namespace is scoped to the batch, so methods don't require it.
type BatchTx interface {
	Put(recordType string, recordID string, envelope *Envelope) error
	// Delete removes a record. Deleting a missing record is not an error
	// inside a batch.
	Delete(recordType string, recordID string) error
}

// Repository defines the interface for durable record storage.
type Repository interface {
	Put(ns string, recordType string, recordID string, envelope *Envelope) error
	Get(ns string, recordType string, recordID string) (*Envelope, error)
	Delete(ns string, recordType string, recordID string) error
	List(ns string, recordType string) ([]string, error)
	// Batch runs fn atomically. If fn returns an error no write is applied.
	Batch(ns string, fn func(tx BatchTx) error) error
}
