// Package kv abstracts the transactional byte store that backs the
// tries of a node: atomic commits for writers, read-committed
// snapshots for readers.
//
// Two implementations are provided: a leveldb store for on-disk nodes
// and an adapter over any avalanchego database (typically memdb, for
// tests and for the log-backed adapter).
package kv

import (
	"github.com/omahs/hotmoka/errors"
)

// ErrNotFound is returned by Get when a key is absent.
var ErrNotFound = errors.New("not found")

// Reader reads committed key-value pairs. The store byte partitions
// the key space into independent logical stores.
type Reader interface {
	// Get yields the value bound to key in the given logical store,
	// or ErrNotFound.
	Get(store byte, key []byte) ([]byte, error)
}

// Transaction is a writable view over the database. Writes become
// visible atomically on Commit; Discard drops them. A transaction
// reads its own uncommitted writes.
type Transaction interface {
	Reader

	Put(store byte, key, value []byte) error
	Delete(store byte, key []byte) error

	// Commit atomically applies every write of the transaction.
	Commit() error

	// Discard releases the transaction without applying it.
	// Discard after Commit is a no-op.
	Discard()
}

// Database is a transactional byte store.
type Database interface {
	Reader

	// NewTransaction starts a writable transaction. Writers are
	// serialized: at most one transaction is open at a time.
	NewTransaction() (Transaction, error)

	Close() error
}

// prefixed yields the physical key of a logical store entry.
func prefixed(store byte, key []byte) []byte {
	p := make([]byte, 1+len(key))
	p[0] = store
	copy(p[1:], key)
	return p
}
