package badgerstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticedb/schemagraph/pkg/kv"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBadgerPutCommitGet(t *testing.T) {
	store := openTestStore(t)

	txn, err := store.BeginTxn(true)
	require.NoError(t, err)
	require.NoError(t, txn.Put([]byte("a"), []byte("1")))
	require.NoError(t, txn.Commit(context.Background()))

	reader, err := store.BeginTxn(false)
	require.NoError(t, err)
	v, err := reader.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
}

func TestBadgerReadYourWrites(t *testing.T) {
	store := openTestStore(t)

	txn, err := store.BeginTxn(true)
	require.NoError(t, err)
	require.NoError(t, txn.Put([]byte("a"), []byte("1")))

	v, err := txn.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, txn.Rollback())
}

func TestBadgerRollbackDiscardsWrites(t *testing.T) {
	store := openTestStore(t)

	txn, err := store.BeginTxn(true)
	require.NoError(t, err)
	require.NoError(t, txn.Put([]byte("a"), []byte("1")))
	require.NoError(t, txn.Rollback())

	reader, err := store.BeginTxn(false)
	require.NoError(t, err)
	_, err = reader.Get([]byte("a"))
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestBadgerScanOrdersAscending(t *testing.T) {
	store := openTestStore(t)

	txn, err := store.BeginTxn(true)
	require.NoError(t, err)
	for _, id := range []string{"n5", "n2", "n9", "n7", "n3"} {
		require.NoError(t, txn.Put([]byte(id), []byte(id)))
	}
	require.NoError(t, txn.Commit(context.Background()))

	reader, err := store.BeginTxn(false)
	require.NoError(t, err)
	it, err := reader.Scan([]byte("n"))
	require.NoError(t, err)
	pairs := kv.Collect(it)
	require.Len(t, pairs, 5)
	assert.Equal(t, "n2", string(pairs[0].Key))
	assert.Equal(t, "n3", string(pairs[1].Key))
	assert.Equal(t, "n5", string(pairs[2].Key))
	assert.Equal(t, "n7", string(pairs[3].Key))
	assert.Equal(t, "n9", string(pairs[4].Key))
}

func TestBadgerSeekStartsAtFirstKeyGreaterOrEqual(t *testing.T) {
	store := openTestStore(t)

	txn, err := store.BeginTxn(true)
	require.NoError(t, err)
	for _, id := range []string{"n5", "n2", "n9", "n7", "n3"} {
		require.NoError(t, txn.Put([]byte(id), []byte(id)))
	}
	require.NoError(t, txn.Commit(context.Background()))

	reader, err := store.BeginTxn(false)
	require.NoError(t, err)
	it, err := reader.Seek([]byte("n6"))
	require.NoError(t, err)
	pairs := kv.Collect(it)
	require.Len(t, pairs, 2)
	assert.Equal(t, "n7", string(pairs[0].Key))
	assert.Equal(t, "n9", string(pairs[1].Key))
}

func TestBadgerReadOnlyTxnRejectsWrites(t *testing.T) {
	store := openTestStore(t)

	txn, err := store.BeginTxn(false)
	require.NoError(t, err)
	assert.ErrorIs(t, txn.Put([]byte("a"), []byte("1")), kv.ErrReadOnlyTxn)
}
