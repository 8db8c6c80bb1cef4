package kv

import (
	"github.com/ava-labs/avalanchego/database"
	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/database/prefixdb"
	"github.com/ava-labs/avalanchego/database/versiondb"
)

// AvalancheDB adapts any avalanchego database to the Database
// contract. Transactions are versiondb layers whose batch is applied
// atomically on Commit. Logical stores map to prefixdb key spaces.
type AvalancheDB struct {
	base database.Database
}

// NewMemDB yields an in-memory Database, used in tests and by the
// log-backed adapter.
func NewMemDB() *AvalancheDB {
	return &AvalancheDB{base: memdb.New()}
}

// WrapAvalanche adapts an existing avalanchego database.
func WrapAvalanche(db database.Database) *AvalancheDB {
	return &AvalancheDB{base: db}
}

func (a *AvalancheDB) Get(store byte, key []byte) ([]byte, error) {
	v, err := prefixdb.New([]byte{store}, a.base).Get(key)
	if err == database.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func (a *AvalancheDB) NewTransaction() (Transaction, error) {
	return &avalancheTransaction{vdb: versiondb.New(a.base)}, nil
}

func (a *AvalancheDB) Close() error {
	return a.base.Close()
}

type avalancheTransaction struct {
	vdb  *versiondb.Database
	done bool
}

func (t *avalancheTransaction) Get(store byte, key []byte) ([]byte, error) {
	v, err := prefixdb.New([]byte{store}, t.vdb).Get(key)
	if err == database.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func (t *avalancheTransaction) Put(store byte, key, value []byte) error {
	return prefixdb.New([]byte{store}, t.vdb).Put(key, value)
}

func (t *avalancheTransaction) Delete(store byte, key []byte) error {
	return prefixdb.New([]byte{store}, t.vdb).Delete(key)
}

func (t *avalancheTransaction) Commit() error {
	t.done = true
	return t.vdb.Commit()
}

func (t *avalancheTransaction) Discard() {
	if !t.done {
		t.vdb.Abort()
		t.done = true
	}
}
