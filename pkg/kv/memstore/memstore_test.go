package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticedb/schemagraph/pkg/kv"
)

func TestPutGetReadYourWrites(t *testing.T) {
	store := New()
	txn, err := store.BeginTxn(true)
	require.NoError(t, err)

	require.NoError(t, txn.Put([]byte("a"), []byte("1")))
	v, err := txn.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
}

func TestCommitMakesWritesVisibleToFreshTxn(t *testing.T) {
	store := New()
	txn, _ := store.BeginTxn(true)
	require.NoError(t, txn.Put([]byte("a"), []byte("1")))
	require.NoError(t, txn.Commit(context.Background()))

	fresh, _ := store.BeginTxn(false)
	v, err := fresh.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	store := New()
	txn, _ := store.BeginTxn(true)
	require.NoError(t, txn.Put([]byte("a"), []byte("1")))
	require.NoError(t, txn.Rollback())

	fresh, _ := store.BeginTxn(false)
	_, err := fresh.Get([]byte("a"))
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestScanOrdersAscendingAndMergesBuffer(t *testing.T) {
	store := New()
	seed, _ := store.BeginTxn(true)
	require.NoError(t, seed.Put([]byte("k2"), []byte("b")))
	require.NoError(t, seed.Commit(context.Background()))

	txn, _ := store.BeginTxn(true)
	require.NoError(t, txn.Put([]byte("k1"), []byte("a")))
	require.NoError(t, txn.Put([]byte("k3"), []byte("c")))

	it, err := txn.Scan([]byte("k"))
	require.NoError(t, err)
	pairs := kv.Collect(it)
	require.Len(t, pairs, 3)
	assert.Equal(t, "k1", string(pairs[0].Key))
	assert.Equal(t, "k2", string(pairs[1].Key))
	assert.Equal(t, "k3", string(pairs[2].Key))
}

func TestScanOmitsBufferedDeletes(t *testing.T) {
	store := New()
	seed, _ := store.BeginTxn(true)
	require.NoError(t, seed.Put([]byte("k1"), []byte("a")))
	require.NoError(t, seed.Commit(context.Background()))

	txn, _ := store.BeginTxn(true)
	require.NoError(t, txn.Delete([]byte("k1")))

	it, err := txn.Scan([]byte("k"))
	require.NoError(t, err)
	pairs := kv.Collect(it)
	assert.Empty(t, pairs)
}

func TestSeekStartsAtFirstKeyGreaterOrEqual(t *testing.T) {
	store := New()
	txn, _ := store.BeginTxn(true)
	for _, id := range []string{"5", "2", "9", "7", "3"} {
		require.NoError(t, txn.Put([]byte("n"+id), []byte(id)))
	}
	require.NoError(t, txn.Commit(context.Background()))

	reader, _ := store.BeginTxn(false)
	it, err := reader.Seek([]byte("n6"))
	require.NoError(t, err)
	pairs := kv.Collect(it)
	require.Len(t, pairs, 2)
	assert.Equal(t, "n7", string(pairs[0].Key))
	assert.Equal(t, "n9", string(pairs[1].Key))
}

func TestConcurrentOverlappingWritesConflict(t *testing.T) {
	store := New()
	a, _ := store.BeginTxn(true)
	b, _ := store.BeginTxn(true)

	require.NoError(t, a.Put([]byte("x"), []byte("1")))
	require.NoError(t, b.Put([]byte("x"), []byte("2")))

	require.NoError(t, a.Commit(context.Background()))
	err := b.Commit(context.Background())
	assert.ErrorIs(t, err, kv.ErrConcurrentWrite)
}

func TestReadOnlyTxnRejectsWrites(t *testing.T) {
	store := New()
	txn, _ := store.BeginTxn(false)
	assert.ErrorIs(t, txn.Put([]byte("a"), []byte("1")), kv.ErrReadOnlyTxn)
}
