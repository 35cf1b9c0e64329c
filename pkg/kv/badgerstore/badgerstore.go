// Package badgerstore implements kv.Store on top of BadgerDB, giving
// the schema graph persistent, ACID-transactional storage.
//
// This mirrors storage.BadgerEngine in the teacher codebase: a thin
// wrapper that hands out badger.Txn-backed transactions rather than
// re-implementing buffering, since Badger's own transaction already
// provides read-your-writes and snapshot isolation.
package badgerstore

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/latticedb/schemagraph/pkg/kv"
)

// Options configures the BadgerDB-backed store.
type Options struct {
	// DataDir is the directory for on-disk data files. Ignored when
	// InMemory is true.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode. Useful for tests
	// that want BadgerDB's exact transaction semantics without
	// touching disk.
	InMemory bool

	// SyncWrites forces fsync on every commit. Slower, more durable.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. Nil disables
	// it.
	Logger badger.Logger
}

// Store adapts a *badger.DB to kv.Store.
type Store struct {
	db *badger.DB
}

// Open creates or opens a BadgerDB-backed store.
func Open(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	badgerOpts = badgerOpts.WithSyncWrites(opts.SyncWrites)
	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger)
	} else {
		badgerOpts = badgerOpts.WithLoggingLevel(badger.WARNING)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: opening database: %w", err)
	}
	return &Store{db: db}, nil
}

// BeginTxn starts a BadgerDB transaction. Badger itself provides
// read-your-writes within the transaction and snapshot isolation
// against concurrent commits, so the adapter only needs to translate
// calls and errors.
func (s *Store) BeginTxn(writable bool) (kv.Txn, error) {
	return &txn{badgerTxn: s.db.NewTransaction(writable), writable: writable}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type txn struct {
	badgerTxn *badger.Txn
	writable  bool
	done      bool
}

func (t *txn) Get(key []byte) ([]byte, error) {
	item, err := t.badgerTxn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badgerstore: get: %w", err)
	}
	return item.ValueCopy(nil)
}

func (t *txn) Put(key, value []byte) error {
	if !t.writable {
		return kv.ErrReadOnlyTxn
	}
	if err := t.badgerTxn.Set(key, value); err != nil {
		return fmt.Errorf("badgerstore: put: %w", err)
	}
	return nil
}

func (t *txn) Delete(key []byte) error {
	if !t.writable {
		return kv.ErrReadOnlyTxn
	}
	if err := t.badgerTxn.Delete(key); err != nil {
		return fmt.Errorf("badgerstore: delete: %w", err)
	}
	return nil
}

func (t *txn) Scan(prefix []byte) (kv.Iterator, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.badgerTxn.NewIterator(opts)
	return &iterator{it: it, prefix: append([]byte(nil), prefix...), seekTo: append([]byte(nil), prefix...)}, nil
}

func (t *txn) Seek(key []byte) (kv.Iterator, error) {
	opts := badger.DefaultIteratorOptions
	it := t.badgerTxn.NewIterator(opts)
	return &iterator{it: it, seekTo: append([]byte(nil), key...)}, nil
}

// Commit applies every buffered write atomically via Badger's own
// commit path. ctx's deadline bounds how long Commit waits for
// Badger's internal write lock; Badger's optimistic conflict
// detection (ErrConflict) surfaces as kv.ErrConcurrentWrite.
func (t *txn) Commit(ctx context.Context) error {
	if t.done {
		return kv.ErrTxnClosed
	}
	if !t.writable {
		t.done = true
		return kv.ErrReadOnlyTxn
	}

	result := make(chan error, 1)
	go func() { result <- t.badgerTxn.Commit() }()

	select {
	case err := <-result:
		t.done = true
		if err == badger.ErrConflict {
			return kv.ErrConcurrentWrite
		}
		if err != nil {
			return fmt.Errorf("badgerstore: commit: %w", err)
		}
		return nil
	case <-ctx.Done():
		t.done = true
		go func() { t.badgerTxn.Discard() }()
		return kv.ErrCommitTimeout
	}
}

// Rollback discards every buffered write.
func (t *txn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.badgerTxn.Discard()
	return nil
}

type iterator struct {
	it      *badger.Iterator
	prefix  []byte
	seekTo  []byte
	started bool
}

func (it *iterator) Next() bool {
	if !it.started {
		it.it.Seek(it.seekTo)
		it.started = true
	} else {
		it.it.Next()
	}
	if it.prefix != nil {
		return it.it.ValidForPrefix(it.prefix)
	}
	return it.it.Valid()
}

func (it *iterator) Key() []byte {
	return it.it.Item().KeyCopy(nil)
}

func (it *iterator) Value() []byte {
	val, err := it.it.Item().ValueCopy(nil)
	if err != nil {
		return nil
	}
	return val
}

func (it *iterator) Close() {
	it.it.Close()
}
