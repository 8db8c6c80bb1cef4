// Package store implements the persistent, authenticated state of a
// node: a trie of responses, a trie of histories and a trie of control
// information, over a single transactional key-value database.
//
// The concatenation of the three trie roots is the 96-byte merged root
// committed per block; CheckOut reopens the tries at a historical
// merged root.
package store

import (
	"encoding/binary"
	"sync"

	"github.com/golang/snappy"

	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/crypto"
	"github.com/omahs/hotmoka/errors"
	"github.com/omahs/hotmoka/kv"
	"github.com/omahs/hotmoka/marshal"
	"github.com/omahs/hotmoka/patricia"
)

// Logical stores inside the backing database.
const (
	storeOfMeta      byte = 0
	storeOfResponses byte = 1
	storeOfInfo      byte = 2
	storeOfHistories byte = 3
	storeOfHashes    byte = 4
	storeOfRequests  byte = 5
)

// Tags of the control values kept in the trie of info.
const (
	InfoTakamakaCode byte = 0x00
	InfoJar          byte = 0x01
	InfoAccounts     byte = 0x02
	InfoCommitCount  byte = 0x03
	InfoNext         byte = 0x04
	InfoManifest     byte = 0x05
	InfoGamete       byte = 0x06
	InfoConsensus    byte = 0x07
)

// MergedRootLen is the width of the authenticated state commitment:
// the three concatenated trie roots.
const MergedRootLen = 3 * crypto.HashLen

var (
	// ErrNotFound is returned when a response, history or request is
	// absent from the store.
	ErrNotFound = errors.New("absent from store")

	// ErrNoTransaction is returned when a mutating operation runs
	// outside BeginTransaction/CommitTransaction.
	ErrNoTransaction = errors.New("no store transaction in progress")

	errBadRoot = errors.New("malformed merged root")
)

var metaRootKey = []byte("root")

// Store is the state of a node. Readers may run concurrently;
// mutations happen inside a single store transaction at a time.
type Store struct {
	mu sync.RWMutex

	db             kv.Database
	checkableDepth int64

	rootResponses []byte
	rootInfo      []byte
	rootHistories []byte

	// set between BeginTransaction and CommitTransaction
	txn           kv.Transaction
	trieResponses *patricia.Trie
	trieInfo      *patricia.Trie
	trieHistories *patricia.Trie
}

// Open opens the store over the given database. The checkable depth
// rules trie garbage collection: 0 collects every superseded commit
// immediately, a positive value keeps that many commits checkable, a
// negative value never collects.
func Open(db kv.Database, checkableDepth int64) (*Store, error) {
	s := &Store{db: db, checkableDepth: checkableDepth}
	merged, err := db.Get(storeOfMeta, metaRootKey)
	switch err {
	case nil:
		if err := s.setRootsTo(merged); err != nil {
			return nil, err
		}
	case kv.ErrNotFound:
		// a fresh store: all tries empty
	default:
		return nil, err
	}
	return s, nil
}

func hashTransactionReference(ref beans.TransactionReference) [crypto.HashLen]byte {
	return crypto.Sha256(ref[:])
}

func keyOfInfo(tag byte) []byte { return []byte{tag} }

// setRootsTo splits a merged root into the three component roots.
// An all-zero component denotes an empty trie.
func (s *Store) setRootsTo(merged []byte) error {
	if len(merged) != MergedRootLen {
		return errBadRoot
	}
	s.rootResponses = nilIfZero(merged[0:32])
	s.rootInfo = nilIfZero(merged[32:64])
	s.rootHistories = nilIfZero(merged[64:96])
	return nil
}

// MergedRoot yields the current authenticated state commitment.
func (s *Store) MergedRoot() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mergedRootLocked()
}

func (s *Store) mergedRootLocked() []byte {
	merged := make([]byte, MergedRootLen)
	copy(merged[0:32], s.rootResponses)
	copy(merged[32:64], s.rootInfo)
	copy(merged[64:96], s.rootHistories)
	return merged
}

// CheckOut repositions the store on a historical merged root. The
// caller is then viewing the state as of that commit.
func (s *Store) CheckOut(merged []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txn != nil {
		return errors.New("cannot check out during a store transaction")
	}
	return s.setRootsTo(merged)
}

// CommitCount yields the number of commits executed over this store.
func (s *Store) CommitCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commitCountAt(s.rootInfo)
}

func (s *Store) commitCountAt(rootInfo []byte) (uint64, error) {
	trie := patricia.New(s.db, storeOfInfo, rootInfo, crypto.Sha256)
	v, err := trie.Get(keyOfInfo(InfoCommitCount))
	if err == patricia.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(v), nil
}

// BeginTransaction opens the store transaction inside which the
// responses of a block are written.
func (s *Store) BeginTransaction() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txn != nil {
		return errors.New("a store transaction is already in progress")
	}
	commits, err := s.commitCountAt(s.rootInfo)
	if err != nil {
		return err
	}
	txn, err := s.db.NewTransaction()
	if err != nil {
		return err
	}
	s.txn = txn
	s.trieResponses = patricia.NewWriter(txn, storeOfResponses, s.rootResponses, crypto.Sha256, commits)
	s.trieInfo = patricia.NewWriter(txn, storeOfInfo, s.rootInfo, crypto.Sha256, commits)
	s.trieHistories = patricia.NewWriter(txn, storeOfHistories, s.rootHistories, crypto.Sha256, commits)
	return nil
}

// AbortTransaction discards the store transaction, leaving the
// committed state untouched.
func (s *Store) AbortTransaction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txn == nil {
		return
	}
	s.txn.Discard()
	s.txn, s.trieResponses, s.trieInfo, s.trieHistories = nil, nil, nil, nil
}

// CommitTransaction advances the commit count, garbage-collects the
// commit that left the retention window, atomically applies the store
// transaction and yields the new merged root.
func (s *Store) CommitTransaction() ([]byte, error) {
	return s.commit(false, 0)
}

// CommitBlock is CommitTransaction plus the recording of the merged
// root reached at the given block height, for the replication
// adapter.
func (s *Store) CommitBlock(height uint64) ([]byte, error) {
	return s.commit(true, height)
}

func (s *Store) commit(recordBlockRoot bool, height uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txn == nil {
		return nil, ErrNoTransaction
	}

	commits, err := s.commitCountAt(s.rootInfo)
	if err != nil {
		return nil, err
	}
	var count [8]byte
	binary.BigEndian.PutUint64(count[:], commits+1)
	if err := s.trieInfo.Put(keyOfInfo(InfoCommitCount), count[:]); err != nil {
		return nil, err
	}

	if s.checkableDepth >= 0 && commits >= uint64(s.checkableDepth) {
		collectable := commits - uint64(s.checkableDepth)
		for _, trie := range []*patricia.Trie{s.trieResponses, s.trieInfo, s.trieHistories} {
			if err := trie.GarbageCollect(collectable); err != nil {
				return nil, err
			}
		}
	}

	s.rootResponses = s.trieResponses.Root()
	s.rootInfo = s.trieInfo.Root()
	s.rootHistories = s.trieHistories.Root()
	merged := s.mergedRootLocked()

	if err := s.txn.Put(storeOfMeta, metaRootKey, merged); err != nil {
		return nil, err
	}
	if recordBlockRoot {
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], height)
		if err := s.txn.Put(storeOfHashes, key[:], merged); err != nil {
			return nil, err
		}
	}
	if err := s.txn.Commit(); err != nil {
		return nil, err
	}
	s.txn, s.trieResponses, s.trieInfo, s.trieHistories = nil, nil, nil, nil
	return merged, nil
}

// SetRequest records the request of a transaction. Requests are kept
// outside the authenticated tries; jar payloads make them large, so
// they are stored compressed.
func (s *Store) SetRequest(ref beans.TransactionReference, request beans.TransactionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txn == nil {
		return ErrNoTransaction
	}
	b, err := marshal.ToBytes(request.Into)
	if err != nil {
		return err
	}
	return s.txn.Put(storeOfRequests, ref[:], snappy.Encode(nil, b))
}

// GetRequest yields the request with the given reference, if any.
func (s *Store) GetRequest(ref beans.TransactionReference) (beans.TransactionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, err := s.db.Get(storeOfRequests, ref[:])
	if err == kv.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b, err := snappy.Decode(nil, v)
	if err != nil {
		return nil, errors.Wrap(err, "corrupted request")
	}
	return beans.RequestFrom(marshal.FromBytes(b))
}

// SetResponse records the response of a transaction in the trie of
// responses.
func (s *Store) SetResponse(ref beans.TransactionReference, response beans.TransactionResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txn == nil {
		return ErrNoTransaction
	}
	b, err := marshal.ToBytes(response.Into)
	if err != nil {
		return err
	}
	key := hashTransactionReference(ref)
	return s.trieResponses.Put(key[:], b)
}

// GetResponse yields the committed response of a transaction.
func (s *Store) GetResponse(ref beans.TransactionReference) (beans.TransactionResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.responseAt(patricia.New(s.db, storeOfResponses, s.rootResponses, crypto.Sha256), ref)
}

// GetResponseUncommitted yields the response of a transaction, also
// searching the store transaction in progress.
func (s *Store) GetResponseUncommitted(ref beans.TransactionReference) (beans.TransactionResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.trieResponses != nil {
		return s.responseAt(s.trieResponses, ref)
	}
	return s.responseAt(patricia.New(s.db, storeOfResponses, s.rootResponses, crypto.Sha256), ref)
}

func (s *Store) responseAt(trie *patricia.Trie, ref beans.TransactionReference) (beans.TransactionResponse, error) {
	key := hashTransactionReference(ref)
	v, err := trie.Get(key[:])
	if err == patricia.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return beans.ResponseFrom(marshal.FromBytes(v))
}

// SetHistory binds the history of an object: the transactions that
// touched its state, most recent first. The history must end with the
// transaction that created the object; that last element is elided
// from the stored form.
func (s *Store) SetHistory(object beans.StorageReference, history []beans.TransactionReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txn == nil {
		return ErrNoTransaction
	}
	if len(history) == 0 || history[len(history)-1] != object.Transaction {
		return errors.New("a history must end with the creating transaction")
	}
	withoutLast := history[:len(history)-1]
	b, err := marshal.ToBytes(func(ctx *marshal.Context) {
		ctx.WriteCompactInt(int32(len(withoutLast)))
		for _, ref := range withoutLast {
			ref.Into(ctx)
		}
	})
	if err != nil {
		return err
	}
	key := crypto.Sha256(object.BytesWithoutSelector())
	return s.trieHistories.Put(key[:], b)
}

// GetHistory yields the committed history of an object, most recent
// first, ending with the creating transaction. An object without
// history yields an empty slice.
func (s *Store) GetHistory(object beans.StorageReference) ([]beans.TransactionReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.historyAt(patricia.New(s.db, storeOfHistories, s.rootHistories, crypto.Sha256), object)
}

// GetHistoryUncommitted also searches the store transaction in
// progress.
func (s *Store) GetHistoryUncommitted(object beans.StorageReference) ([]beans.TransactionReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.trieHistories != nil {
		return s.historyAt(s.trieHistories, object)
	}
	return s.historyAt(patricia.New(s.db, storeOfHistories, s.rootHistories, crypto.Sha256), object)
}

func (s *Store) historyAt(trie *patricia.Trie, object beans.StorageReference) ([]beans.TransactionReference, error) {
	key := crypto.Sha256(object.BytesWithoutSelector())
	v, err := trie.Get(key[:])
	if err == patricia.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ctx := marshal.FromBytes(v)
	n := ctx.ReadCompactInt()
	history := make([]beans.TransactionReference, 0, n+1)
	for i := int32(0); i < n; i++ {
		history = append(history, beans.TransactionReferenceFrom(ctx))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// the stored form elides the creating transaction
	return append(history, object.Transaction), nil
}

// SetInfo binds a control value in the trie of info.
func (s *Store) SetInfo(tag byte, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txn == nil {
		return ErrNoTransaction
	}
	return s.trieInfo.Put(keyOfInfo(tag), value)
}

// GetInfo yields a control value, or ErrNotFound.
func (s *Store) GetInfo(tag byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.infoAt(patricia.New(s.db, storeOfInfo, s.rootInfo, crypto.Sha256), tag)
}

// GetInfoUncommitted also searches the store transaction in progress.
func (s *Store) GetInfoUncommitted(tag byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.trieInfo != nil {
		return s.infoAt(s.trieInfo, tag)
	}
	return s.infoAt(patricia.New(s.db, storeOfInfo, s.rootInfo, crypto.Sha256), tag)
}

func (s *Store) infoAt(trie *patricia.Trie, tag byte) ([]byte, error) {
	v, err := trie.Get(keyOfInfo(tag))
	if err == patricia.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

// SetBlockRoot records the merged root reached at the given block
// height, for the replication adapter.
func (s *Store) SetBlockRoot(height uint64, merged []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txn == nil {
		return ErrNoTransaction
	}
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], height)
	return s.txn.Put(storeOfHashes, key[:], merged)
}

// BlockRoot yields the merged root reached at the given block height.
func (s *Store) BlockRoot(height uint64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], height)
	v, err := s.db.Get(storeOfHashes, key[:])
	if err == kv.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func nilIfZero(b []byte) []byte {
	for _, x := range b {
		if x != 0 {
			out := make([]byte, len(b))
			copy(out, b)
			return out
		}
	}
	return nil
}
