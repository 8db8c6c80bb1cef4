package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func databases(t *testing.T) map[string]Database {
	t.Helper()
	ldb, err := OpenLevelDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ldb.Close() })
	mdb := NewMemDB()
	t.Cleanup(func() { mdb.Close() })
	return map[string]Database{"leveldb": ldb, "memdb": mdb}
}

func TestPutGetAcrossCommit(t *testing.T) {
	for name, db := range databases(t) {
		t.Run(name, func(t *testing.T) {
			txn, err := db.NewTransaction()
			require.NoError(t, err)
			require.NoError(t, txn.Put(1, []byte("k"), []byte("v")))

			// uncommitted writes are visible inside the transaction only
			v, err := txn.Get(1, []byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("v"), v)
			_, err = db.Get(1, []byte("k"))
			require.Equal(t, ErrNotFound, err)

			require.NoError(t, txn.Commit())
			v, err = db.Get(1, []byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("v"), v)
		})
	}
}

func TestDiscard(t *testing.T) {
	for name, db := range databases(t) {
		t.Run(name, func(t *testing.T) {
			txn, err := db.NewTransaction()
			require.NoError(t, err)
			require.NoError(t, txn.Put(1, []byte("gone"), []byte("x")))
			txn.Discard()

			_, err = db.Get(1, []byte("gone"))
			require.Equal(t, ErrNotFound, err)
		})
	}
}

func TestStoresAreIndependent(t *testing.T) {
	for name, db := range databases(t) {
		t.Run(name, func(t *testing.T) {
			txn, err := db.NewTransaction()
			require.NoError(t, err)
			require.NoError(t, txn.Put(1, []byte("k"), []byte("one")))
			require.NoError(t, txn.Put(2, []byte("k"), []byte("two")))
			require.NoError(t, txn.Commit())

			v1, err := db.Get(1, []byte("k"))
			require.NoError(t, err)
			v2, err := db.Get(2, []byte("k"))
			require.NoError(t, err)
			require.NotEqual(t, v1, v2)
		})
	}
}

func TestDelete(t *testing.T) {
	for name, db := range databases(t) {
		t.Run(name, func(t *testing.T) {
			txn, err := db.NewTransaction()
			require.NoError(t, err)
			require.NoError(t, txn.Put(1, []byte("k"), []byte("v")))
			require.NoError(t, txn.Commit())

			txn, err = db.NewTransaction()
			require.NoError(t, err)
			require.NoError(t, txn.Delete(1, []byte("k")))
			require.NoError(t, txn.Commit())

			_, err = db.Get(1, []byte("k"))
			require.Equal(t, ErrNotFound, err)
		})
	}
}
