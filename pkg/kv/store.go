// Package kv defines the ordered key-value backing-store contract the
// schema graph is built on (component C2 in the design). Two
// implementations satisfy it: badgerstore, backed by BadgerDB for
// persistence, and memstore, an in-memory store for tests and
// embedded use.
//
// Design Principles:
//   - Byte-lexicographic ordering: Scan and Seek always return keys
//     in ascending order, so callers never need to sort.
//   - Read-your-writes: a transaction observes its own buffered
//     writes immediately, before Commit.
//   - Snapshot isolation: a transaction observes the store as it was
//     at BeginTxn time, regardless of concurrent commits.
//
// Example Usage:
//
//	store := memstore.New()
//	defer store.Close()
//
//	txn, _ := store.BeginTxn(true)
//	_ = txn.Put([]byte("a"), []byte("1"))
//	it, _ := txn.Scan([]byte("a"))
//	for it.Next() {
//		fmt.Println(string(it.Key()), string(it.Value()))
//	}
//	it.Close()
//	_ = txn.Commit(context.Background())
package kv

import (
	"context"
	"errors"
)

// Common errors returned by Store/Txn implementations.
var (
	ErrNotFound         = errors.New("kv: key not found")
	ErrTxnClosed        = errors.New("kv: transaction already committed or rolled back")
	ErrReadOnlyTxn      = errors.New("kv: transaction is read-only")
	ErrConcurrentWrite  = errors.New("kv: concurrent schema write")
	ErrCommitTimeout    = errors.New("kv: commit timed out")
)

// Store opens transactions against an ordered key-value backing
// store. Multiple read-only transactions may run concurrently against
// a Store's snapshot; exactly one read-write transaction may be
// committing at a time, matching the "single-threaded cooperative"
// scheduling model a schema graph transaction runs under.
type Store interface {
	// BeginTxn starts a new transaction. When writable is false, Put,
	// Delete, and Commit all fail; Scan/Seek/Get still observe the
	// store's state as of the call to BeginTxn (snapshot isolation).
	BeginTxn(writable bool) (Txn, error)

	// Close releases the store's resources. Any still-open
	// transactions become invalid.
	Close() error
}

// Txn is a single transaction's view of a Store: buffered writes plus
// reads that merge those writes with the underlying snapshot.
type Txn interface {
	// Get returns the value for key, or ErrNotFound if it is absent
	// (accounting for this transaction's own buffered writes).
	Get(key []byte) ([]byte, error)

	// Put buffers a write; it is not durable, and invisible to other
	// transactions, until Commit succeeds.
	Put(key, value []byte) error

	// Delete buffers a deletion.
	Delete(key []byte) error

	// Scan returns an iterator over every key with the given prefix,
	// in ascending order, merging committed storage with this
	// transaction's write buffer.
	Scan(prefix []byte) (Iterator, error)

	// Seek returns an iterator starting at the first key >= key, in
	// ascending order, merging committed storage with this
	// transaction's write buffer.
	Seek(key []byte) (Iterator, error)

	// Commit makes every buffered write visible atomically: either
	// all of them land, or none do. ctx's deadline, if any, bounds
	// how long Commit waits to acquire the backing store's write
	// lock; exceeding it returns ErrCommitTimeout.
	Commit(ctx context.Context) error

	// Rollback discards every buffered write. Safe to call after a
	// failed Commit; a no-op after a successful one.
	Rollback() error
}

// Iterator walks a Scan or Seek result in ascending key order.
type Iterator interface {
	// Next advances the iterator and reports whether a value is
	// available. Must be called before the first Key/Value.
	Next() bool

	// Key returns the current entry's key. Valid only after Next
	// returns true.
	Key() []byte

	// Value returns the current entry's value. Valid only after Next
	// returns true.
	Value() []byte

	// Close releases resources held by the iterator.
	Close()
}

// Collect drains it into a slice of key-value pairs, in iteration
// order, and closes it. Convenient in tests and for small scans; the
// codec and schema packages prefer streaming via Next() directly.
func Collect(it Iterator) []Pair {
	defer it.Close()
	var pairs []Pair
	for it.Next() {
		pairs = append(pairs, Pair{Key: append([]byte(nil), it.Key()...), Value: append([]byte(nil), it.Value()...)})
	}
	return pairs
}

// Pair is a materialized key-value entry, used by Collect.
type Pair struct {
	Key   []byte
	Value []byte
}
