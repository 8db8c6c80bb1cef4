package kv

import (
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/omahs/hotmoka/errors"
)

// LevelDB is a Database over a goleveldb store. It is the on-disk
// backend of local nodes: one store directory per node.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) the store directory of a node.
func OpenLevelDB(dir string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "opening store %s", dir)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(store byte, key []byte) ([]byte, error) {
	v, err := l.db.Get(prefixed(store, key), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func (l *LevelDB) NewTransaction() (Transaction, error) {
	txn, err := l.db.OpenTransaction()
	if err != nil {
		return nil, errors.Wrap(err, "opening store transaction")
	}
	return &levelDBTransaction{txn: txn}, nil
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}

type levelDBTransaction struct {
	txn  *leveldb.Transaction
	done bool
}

func (t *levelDBTransaction) Get(store byte, key []byte) ([]byte, error) {
	v, err := t.txn.Get(prefixed(store, key), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func (t *levelDBTransaction) Put(store byte, key, value []byte) error {
	return t.txn.Put(prefixed(store, key), value, nil)
}

func (t *levelDBTransaction) Delete(store byte, key []byte) error {
	return t.txn.Delete(prefixed(store, key), nil)
}

func (t *levelDBTransaction) Commit() error {
	t.done = true
	return t.txn.Commit()
}

func (t *levelDBTransaction) Discard() {
	if !t.done {
		t.txn.Discard()
		t.done = true
	}
}
