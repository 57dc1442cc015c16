package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKvStoreNamespacesIsolateKeys(t *testing.T) {
	store := NewKvStore(NewMemDB())
	require.NoError(t, store.Put(NamespaceAccounts, "addr1", []byte("account-record")))
	require.NoError(t, store.Put(NamespaceOrders, "addr1", []byte("order-record")))

	acct, err := store.Get(NamespaceAccounts, "addr1")
	require.NoError(t, err)
	require.Equal(t, "account-record", string(acct))

	order, err := store.Get(NamespaceOrders, "addr1")
	require.NoError(t, err)
	require.Equal(t, "order-record", string(order))
}

func TestKvStoreGetMissingReturnsErrNotFound(t *testing.T) {
	store := NewKvStore(NewMemDB())
	_, err := store.Get(NamespaceBlocks, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestKvStoreScanReturnsOnlyMatchingNamespace(t *testing.T) {
	store := NewKvStore(NewMemDB())
	require.NoError(t, store.Put(NamespaceOrders, "a", []byte("1")))
	require.NoError(t, store.Put(NamespaceOrders, "b", []byte("2")))
	require.NoError(t, store.Put(NamespaceAccounts, "c", []byte("3")))

	rows, err := store.Scan(NamespaceOrders)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestKvStoreCommitIsAtomic(t *testing.T) {
	store := NewKvStore(NewMemDB())
	batch := store.NewBatch()
	batch.Put(NamespaceAccounts, "addr1", []byte("v1"))
	batch.Put(NamespaceUTXO, "tx1:0", []byte("v2"))
	require.NoError(t, store.Commit(batch))

	v1, err := store.Get(NamespaceAccounts, "addr1")
	require.NoError(t, err)
	require.Equal(t, "v1", string(v1))

	v2, err := store.Get(NamespaceUTXO, "tx1:0")
	require.NoError(t, err)
	require.Equal(t, "v2", string(v2))
}

func TestKvStoreDelete(t *testing.T) {
	store := NewKvStore(NewMemDB())
	require.NoError(t, store.Put(NamespaceMeta, "tip", []byte("1")))
	require.NoError(t, store.Delete(NamespaceMeta, "tip"))
	_, err := store.Get(NamespaceMeta, "tip")
	require.ErrorIs(t, err, ErrNotFound)
}
