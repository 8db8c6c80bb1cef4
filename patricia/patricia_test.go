package patricia

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omahs/hotmoka/crypto"
	"github.com/omahs/hotmoka/kv"
)

const testStore = 1

func writer(t *testing.T, db kv.Database, root []byte, commit uint64) (*Trie, kv.Transaction) {
	t.Helper()
	txn, err := db.NewTransaction()
	require.NoError(t, err)
	return NewWriter(txn, testStore, root, crypto.Sha256, commit), txn
}

func TestEmptyTrie(t *testing.T) {
	db := kv.NewMemDB()
	trie := New(db, testStore, nil, crypto.Sha256)
	require.Nil(t, trie.Root())
	_, err := trie.Get([]byte("missing"))
	require.Equal(t, ErrNotFound, err)
}

func TestPutGet(t *testing.T) {
	db := kv.NewMemDB()
	trie, txn := writer(t, db, nil, 0)

	for i := 0; i < 100; i++ {
		require.NoError(t, trie.Put([]byte(fmt.Sprintf("key%d", i)), []byte(fmt.Sprintf("value%d", i))))
	}
	require.NoError(t, txn.Commit())

	read := New(db, testStore, trie.Root(), crypto.Sha256)
	for i := 0; i < 100; i++ {
		v, err := read.Get([]byte(fmt.Sprintf("key%d", i)))
		require.NoError(t, err)
		require.Equal(t, []byte(fmt.Sprintf("value%d", i)), v)
	}
	_, err := read.Get([]byte("key100"))
	require.Equal(t, ErrNotFound, err)
}

func TestOverwrite(t *testing.T) {
	db := kv.NewMemDB()
	trie, txn := writer(t, db, nil, 0)
	require.NoError(t, trie.Put([]byte("k"), []byte("v1")))
	require.NoError(t, trie.Put([]byte("k"), []byte("v2")))
	require.NoError(t, txn.Commit())

	v, err := New(db, testStore, trie.Root(), crypto.Sha256).Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), v)
}

func TestRootIsContentAddressed(t *testing.T) {
	// the root only depends on the content, not on insertion order
	build := func(order []int) []byte {
		db := kv.NewMemDB()
		trie, txn := writer(t, db, nil, 0)
		for _, i := range order {
			require.NoError(t, trie.Put([]byte(fmt.Sprintf("key%d", i)), []byte(fmt.Sprintf("value%d", i))))
		}
		require.NoError(t, txn.Commit())
		return trie.Root()
	}
	r1 := build([]int{0, 1, 2, 3, 4})
	r2 := build([]int{4, 2, 0, 3, 1})
	require.Equal(t, r1, r2)

	r3 := build([]int{0, 1, 2, 3})
	require.NotEqual(t, r1, r3)
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	db := kv.NewMemDB()
	trie := New(db, testStore, nil, crypto.Sha256)
	require.Equal(t, ErrReadOnly, trie.Put([]byte("k"), []byte("v")))
	require.Equal(t, ErrReadOnly, trie.GarbageCollect(0))
}

func TestOldRootStaysCheckable(t *testing.T) {
	db := kv.NewMemDB()

	trie, txn := writer(t, db, nil, 0)
	require.NoError(t, trie.Put([]byte("a"), []byte("1")))
	require.NoError(t, txn.Commit())
	root0 := trie.Root()

	trie, txn = writer(t, db, root0, 1)
	require.NoError(t, trie.Put([]byte("a"), []byte("2")))
	require.NoError(t, trie.Put([]byte("b"), []byte("3")))
	require.NoError(t, txn.Commit())
	root1 := trie.Root()

	// before garbage collection both roots resolve
	v, err := New(db, testStore, root0, crypto.Sha256).Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
	v, err = New(db, testStore, root1, crypto.Sha256).Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v)
}

func TestGarbageCollect(t *testing.T) {
	db := kv.NewMemDB()

	trie, txn := writer(t, db, nil, 0)
	require.NoError(t, trie.Put([]byte("a"), []byte("1")))
	require.NoError(t, txn.Commit())
	root0 := trie.Root()

	trie, txn = writer(t, db, root0, 1)
	require.NoError(t, trie.Put([]byte("a"), []byte("2")))
	require.NoError(t, txn.Commit())
	root1 := trie.Root()

	// collect the nodes unlinked during commit 1
	gc, txn := writer(t, db, root1, 2)
	require.NoError(t, gc.GarbageCollect(1))
	require.NoError(t, txn.Commit())

	// the current root still resolves
	v, err := New(db, testStore, root1, crypto.Sha256).Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v)

	// the collected root does not
	_, err = New(db, testStore, root0, crypto.Sha256).Get([]byte("a"))
	require.Error(t, err)
}

func TestGarbageCollectKeepsSharedNodes(t *testing.T) {
	db := kv.NewMemDB()

	// commit 0 binds two keys; commit 1 rebinds one of them to the
	// same value it already had, so the rewritten node must survive
	// collection of commit 1
	trie, txn := writer(t, db, nil, 0)
	require.NoError(t, trie.Put([]byte("a"), []byte("same")))
	require.NoError(t, trie.Put([]byte("b"), []byte("x")))
	require.NoError(t, txn.Commit())

	trie, txn = writer(t, db, trie.Root(), 1)
	require.NoError(t, trie.Put([]byte("a"), []byte("same")))
	require.NoError(t, txn.Commit())
	root1 := trie.Root()

	gc, txn := writer(t, db, root1, 2)
	require.NoError(t, gc.GarbageCollect(1))
	require.NoError(t, txn.Commit())

	v, err := New(db, testStore, root1, crypto.Sha256).Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("same"), v)
}
