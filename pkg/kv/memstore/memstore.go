// Package memstore is an in-memory implementation of kv.Store.
//
// It exists for unit tests and for embedding the schema graph without
// a data directory, the same role storage.MemoryEngine plays in the
// teacher codebase: a thread-safe map-backed engine with the same
// transactional semantics as the persistent adapter, so tests never
// need to touch disk.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/latticedb/schemagraph/pkg/kv"
)

// Store is a sorted, in-memory key-value store protected by a
// read-write mutex, mirroring storage.MemoryEngine's concurrency
// model in the teacher codebase.
type Store struct {
	mu      sync.RWMutex
	data    map[string][]byte
	version uint64
	history []versionedWrite
	closed  bool
}

type versionedWrite struct {
	version uint64
	keys    map[string]struct{}
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// BeginTxn starts a transaction against the store's current snapshot.
func (s *Store) BeginTxn(writable bool) (kv.Txn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("memstore: store is closed")
	}

	snapshot := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		snapshot[k] = v
	}

	return &txn{
		store:        s,
		writable:     writable,
		baseVersion:  s.version,
		snapshot:     snapshot,
		pendingPuts:  make(map[string][]byte),
		pendingDel:   make(map[string]struct{}),
	}, nil
}

// Close releases the store. After Close, BeginTxn fails.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type txn struct {
	mu          sync.Mutex
	store       *Store
	writable    bool
	baseVersion uint64
	snapshot    map[string][]byte
	pendingPuts map[string][]byte
	pendingDel  map[string]struct{}
	done        bool
}

func (t *txn) Get(key []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil, kv.ErrTxnClosed
	}

	k := string(key)
	if _, deleted := t.pendingDel[k]; deleted {
		return nil, kv.ErrNotFound
	}
	if v, ok := t.pendingPuts[k]; ok {
		return v, nil
	}
	if v, ok := t.snapshot[k]; ok {
		return v, nil
	}
	return nil, kv.ErrNotFound
}

func (t *txn) Put(key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return kv.ErrTxnClosed
	}
	if !t.writable {
		return kv.ErrReadOnlyTxn
	}
	k := string(key)
	delete(t.pendingDel, k)
	t.pendingPuts[k] = append([]byte(nil), value...)
	return nil
}

func (t *txn) Delete(key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return kv.ErrTxnClosed
	}
	if !t.writable {
		return kv.ErrReadOnlyTxn
	}
	k := string(key)
	delete(t.pendingPuts, k)
	t.pendingDel[k] = struct{}{}
	return nil
}

func (t *txn) merged() []kv.Pair {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make(map[string]struct{}, len(t.snapshot)+len(t.pendingPuts))
	for k := range t.snapshot {
		keys[k] = struct{}{}
	}
	for k := range t.pendingPuts {
		keys[k] = struct{}{}
	}
	for k := range t.pendingDel {
		delete(keys, k)
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	pairs := make([]kv.Pair, 0, len(sorted))
	for _, k := range sorted {
		if v, ok := t.pendingPuts[k]; ok {
			pairs = append(pairs, kv.Pair{Key: []byte(k), Value: v})
			continue
		}
		pairs = append(pairs, kv.Pair{Key: []byte(k), Value: t.snapshot[k]})
	}
	return pairs
}

func (t *txn) Scan(prefix []byte) (kv.Iterator, error) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil, kv.ErrTxnClosed
	}
	t.mu.Unlock()

	all := t.merged()
	var filtered []kv.Pair
	for _, p := range all {
		if bytes.HasPrefix(p.Key, prefix) {
			filtered = append(filtered, p)
		}
	}
	return &sliceIterator{pairs: filtered, idx: -1}, nil
}

func (t *txn) Seek(key []byte) (kv.Iterator, error) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil, kv.ErrTxnClosed
	}
	t.mu.Unlock()

	all := t.merged()
	start := sort.Search(len(all), func(i int) bool {
		return bytes.Compare(all[i].Key, key) >= 0
	})
	return &sliceIterator{pairs: all[start:], idx: -1}, nil
}

// Commit applies every buffered write atomically. ctx's deadline, if
// set, bounds how long Commit waits for the store's write lock, the
// one suspension point this transaction model has (§5 of the
// design: "Blocking occurs at C2's commit when the backing store
// acquires a write lock for atomic apply").
func (t *txn) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return kv.ErrTxnClosed
	}
	if !t.writable {
		t.done = true
		return kv.ErrReadOnlyTxn
	}

	locked := make(chan struct{})
	go func() {
		t.store.mu.Lock()
		close(locked)
	}()

	select {
	case <-locked:
	case <-ctx.Done():
		go func() { <-locked; t.store.mu.Unlock() }()
		return kv.ErrCommitTimeout
	}
	defer t.store.mu.Unlock()

	if conflict := t.conflicts(); conflict {
		t.done = true
		return kv.ErrConcurrentWrite
	}

	touched := make(map[string]struct{}, len(t.pendingPuts)+len(t.pendingDel))
	for k, v := range t.pendingPuts {
		t.store.data[k] = v
		touched[k] = struct{}{}
	}
	for k := range t.pendingDel {
		delete(t.store.data, k)
		touched[k] = struct{}{}
	}

	t.store.version++
	t.store.history = append(t.store.history, versionedWrite{version: t.store.version, keys: touched})
	t.done = true
	return nil
}

// conflicts reports whether any key this transaction wrote has been
// written by a transaction that committed after this one began.
// Must be called with t.store.mu held.
func (t *txn) conflicts() bool {
	if len(t.pendingPuts) == 0 && len(t.pendingDel) == 0 {
		return false
	}
	for _, h := range t.store.history {
		if h.version <= t.baseVersion {
			continue
		}
		for k := range t.pendingPuts {
			if _, hit := h.keys[k]; hit {
				return true
			}
		}
		for k := range t.pendingDel {
			if _, hit := h.keys[k]; hit {
				return true
			}
		}
	}
	return false
}

// Rollback discards every buffered write.
func (t *txn) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	t.pendingPuts = nil
	t.pendingDel = nil
	return nil
}

type sliceIterator struct {
	pairs []kv.Pair
	idx   int
}

func (it *sliceIterator) Next() bool {
	it.idx++
	return it.idx < len(it.pairs)
}

func (it *sliceIterator) Key() []byte {
	return it.pairs[it.idx].Key
}

func (it *sliceIterator) Value() []byte {
	return it.pairs[it.idx].Value
}

func (it *sliceIterator) Close() {}

// String renders the store's key count, for debugging.
func (s *Store) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var b strings.Builder
	fmt.Fprintf(&b, "memstore{keys=%d, version=%d}", len(s.data), s.version)
	return b.String()
}
