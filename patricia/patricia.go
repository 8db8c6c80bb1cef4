// Package patricia implements a Merkle-Patricia trie over a
// transactional key-value store.
//
// Keys are hashed to a fixed-width path of 4-bit nibbles; values are
// arbitrary marshalled beans. Nodes are content-addressed: the store
// maps the hash of a node's canonical encoding to that encoding, so
// the 32-byte root digest commits the whole map.
//
// Each node entry carries, outside the hash pre-image, a reference
// count and the number of the commit that last wrote it. Nodes whose
// count drops to zero during a commit are recorded in that commit's
// freed-list; garbage collection of a commit deletes the listed nodes
// that are still unreferenced and were not rewritten by a newer
// commit. Deletion is deferred by the retention window, so any root up
// to that depth stays checkable.
package patricia

import (
	"bytes"
	"encoding/binary"

	"github.com/omahs/hotmoka/crypto"
	"github.com/omahs/hotmoka/errors"
	"github.com/omahs/hotmoka/kv"
	"github.com/omahs/hotmoka/marshal"
)

// ErrReadOnly is returned by Put and GarbageCollect on a trie opened
// without a store transaction.
var ErrReadOnly = errors.New("trie is read-only")

// ErrNotFound is returned by Get when no value is bound to a key.
var ErrNotFound = errors.New("key not bound in trie")

// errCorrupted signals a node that does not decode; it can only follow
// from store corruption.
var errCorrupted = errors.New("corrupted trie node")

const (
	nodeKindLeaf      = 0
	nodeKindExtension = 1
	nodeKindBranch    = 2

	// key prefixes inside the trie's logical store
	prefixNode  = 'n'
	prefixFreed = 'g'
)

// Trie is a persistent map whose root digest is a pure function of its
// content.
type Trie struct {
	reader  kv.Reader
	txn     kv.Transaction // nil when read-only
	store   byte
	hashKey crypto.Hasher
	root    []byte // nil when empty
	commit  uint64 // tag for nodes written by this trie

	// freed collects the hashes whose reference count dropped to
	// zero during the current mutation; they are flushed to the
	// freed-list of the commit after each Put.
	freed [][]byte
}

// node entries are refcount(4) || commit tag(8) || canonical encoding;
// only the encoding is hashed.
const nodeHeaderLen = 12

// New opens a read-only view of the trie with the given root (nil for
// the empty trie).
func New(reader kv.Reader, store byte, root []byte, hashKey crypto.Hasher) *Trie {
	return &Trie{reader: reader, store: store, hashKey: hashKey, root: cloneBytes(root)}
}

// NewWriter opens a writable trie inside the given store transaction.
// Nodes written through it are tagged with the given commit number.
func NewWriter(txn kv.Transaction, store byte, root []byte, hashKey crypto.Hasher, commit uint64) *Trie {
	return &Trie{reader: txn, txn: txn, store: store, hashKey: hashKey, root: cloneBytes(root), commit: commit}
}

// Root yields the 32-byte root digest, or nil if the trie is empty.
func (t *Trie) Root() []byte {
	return cloneBytes(t.root)
}

// Get yields the value bound to key, or ErrNotFound.
func (t *Trie) Get(key []byte) ([]byte, error) {
	if t.root == nil {
		return nil, ErrNotFound
	}
	digest := t.hashKey(key)
	return t.get(t.root, nibbles(digest[:]))
}

func (t *Trie) get(nodeHash []byte, path []byte) ([]byte, error) {
	kind, nodePath, value, children, err := t.load(nodeHash)
	if err != nil {
		return nil, err
	}
	switch kind {
	case nodeKindLeaf:
		if bytes.Equal(nodePath, path) {
			return value, nil
		}
		return nil, ErrNotFound
	case nodeKindExtension:
		if len(path) < len(nodePath) || !bytes.Equal(nodePath, path[:len(nodePath)]) {
			return nil, ErrNotFound
		}
		return t.get(children[0], path[len(nodePath):])
	default: // branch
		child := children[path[0]]
		if child == nil {
			return nil, ErrNotFound
		}
		return t.get(child, path[1:])
	}
}

// Put binds key to value, replacing any previous binding.
func (t *Trie) Put(key, value []byte) error {
	if t.txn == nil {
		return ErrReadOnly
	}
	digest := t.hashKey(key)
	newRoot, err := t.put(t.root, nibbles(digest[:]), value)
	if err != nil {
		return err
	}
	t.root = newRoot
	return t.flushFreed()
}

func (t *Trie) put(nodeHash []byte, path []byte, value []byte) ([]byte, error) {
	if nodeHash == nil {
		return t.store_(encodeLeaf(path, value))
	}

	kind, nodePath, nodeValue, children, err := t.load(nodeHash)
	if err != nil {
		return nil, err
	}
	if err := t.free(nodeHash); err != nil {
		return nil, err
	}

	switch kind {
	case nodeKindLeaf:
		if bytes.Equal(nodePath, path) {
			return t.store_(encodeLeaf(path, value))
		}
		common := commonPrefix(nodePath, path)
		oldLeaf, err := t.store_(encodeLeaf(nodePath[common+1:], nodeValue))
		if err != nil {
			return nil, err
		}
		newLeaf, err := t.store_(encodeLeaf(path[common+1:], value))
		if err != nil {
			return nil, err
		}
		branch := make([][]byte, 16)
		branch[nodePath[common]] = oldLeaf
		branch[path[common]] = newLeaf
		return t.storeBranchBehindExtension(path[:common], branch)

	case nodeKindExtension:
		common := commonPrefix(nodePath, path)
		if common == len(nodePath) {
			// path continues below the extension
			child, err := t.put(children[0], path[common:], value)
			if err != nil {
				return nil, err
			}
			return t.store_(encodeExtension(nodePath, child))
		}
		// the extension splits at the first divergent nibble
		branch := make([][]byte, 16)
		if rest := nodePath[common+1:]; len(rest) > 0 {
			child, err := t.store_(encodeExtension(rest, children[0]))
			if err != nil {
				return nil, err
			}
			branch[nodePath[common]] = child
		} else {
			branch[nodePath[common]] = children[0]
		}
		newLeaf, err := t.store_(encodeLeaf(path[common+1:], value))
		if err != nil {
			return nil, err
		}
		branch[path[common]] = newLeaf
		return t.storeBranchBehindExtension(path[:common], branch)

	default: // branch
		child, err := t.put(children[path[0]], path[1:], value)
		if err != nil {
			return nil, err
		}
		children[path[0]] = child
		return t.store_(encodeBranch(children))
	}
}

// storeBranchBehindExtension stores a branch node, preceded by an
// extension when the shared prefix is not empty.
func (t *Trie) storeBranchBehindExtension(shared []byte, children [][]byte) ([]byte, error) {
	hash, err := t.store_(encodeBranch(children))
	if err != nil {
		return nil, err
	}
	if len(shared) == 0 {
		return hash, nil
	}
	return t.store_(encodeExtension(shared, hash))
}

// GarbageCollect deletes the nodes unlinked during the given commit,
// unless a later commit wrote them again.
func (t *Trie) GarbageCollect(commit uint64) error {
	if t.txn == nil {
		return ErrReadOnly
	}
	listKey := freedKey(commit)
	list, err := t.txn.Get(t.store, listKey)
	if err == kv.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	for off := 0; off+crypto.HashLen <= len(list); off += crypto.HashLen {
		hash := list[off : off+crypto.HashLen]
		entry, err := t.txn.Get(t.store, nodeKey(hash))
		if err == kv.ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		if len(entry) < nodeHeaderLen {
			return errCorrupted
		}
		refs := binary.BigEndian.Uint32(entry)
		tag := binary.BigEndian.Uint64(entry[4:12])
		// skip nodes relinked since, or rewritten by a newer commit
		if refs == 0 && tag <= commit {
			if err := t.txn.Delete(t.store, nodeKey(hash)); err != nil {
				return err
			}
		}
	}
	return t.txn.Delete(t.store, listKey)
}

// load reads and decodes the node with the given hash.
func (t *Trie) load(hash []byte) (kind byte, path []byte, value []byte, children [][]byte, err error) {
	entry, err := t.reader.Get(t.store, nodeKey(hash))
	if err == kv.ErrNotFound {
		return 0, nil, nil, nil, errors.Wrapf(errCorrupted, "dangling node %x", hash)
	}
	if err != nil {
		return 0, nil, nil, nil, err
	}
	if len(entry) < nodeHeaderLen {
		return 0, nil, nil, nil, errCorrupted
	}
	return decodeNode(entry[nodeHeaderLen:])
}

// store_ persists an encoded node tagged with the current commit and
// yields its hash. A node already present gains a reference.
func (t *Trie) store_(encoded []byte) ([]byte, error) {
	digest := crypto.Sha256(encoded)
	key := nodeKey(digest[:])
	refs := uint32(1)
	if old, err := t.txn.Get(t.store, key); err == nil && len(old) >= nodeHeaderLen {
		refs = binary.BigEndian.Uint32(old) + 1
	} else if err != nil && err != kv.ErrNotFound {
		return nil, err
	}
	entry := make([]byte, nodeHeaderLen+len(encoded))
	binary.BigEndian.PutUint32(entry, refs)
	binary.BigEndian.PutUint64(entry[4:12], t.commit)
	copy(entry[nodeHeaderLen:], encoded)
	if err := t.txn.Put(t.store, key, entry); err != nil {
		return nil, err
	}
	return digest[:], nil
}

// free drops one reference from the node with the given hash; when the
// count reaches zero the node becomes eligible for garbage collection
// at the end of the retention window.
func (t *Trie) free(hash []byte) error {
	key := nodeKey(hash)
	entry, err := t.txn.Get(t.store, key)
	if err != nil {
		return err
	}
	if len(entry) < nodeHeaderLen {
		return errCorrupted
	}
	refs := binary.BigEndian.Uint32(entry)
	if refs > 0 {
		refs--
	}
	updated := cloneBytes(entry)
	binary.BigEndian.PutUint32(updated, refs)
	if err := t.txn.Put(t.store, key, updated); err != nil {
		return err
	}
	if refs == 0 {
		t.freed = append(t.freed, cloneBytes(hash))
	}
	return nil
}

// flushFreed appends the hashes unlinked by the last mutation to the
// freed-list of the current commit.
func (t *Trie) flushFreed() error {
	if len(t.freed) == 0 {
		return nil
	}
	listKey := freedKey(t.commit)
	list, err := t.txn.Get(t.store, listKey)
	if err != nil && err != kv.ErrNotFound {
		return err
	}
	for _, hash := range t.freed {
		list = append(list, hash...)
	}
	t.freed = t.freed[:0]
	return t.txn.Put(t.store, listKey, list)
}

func nodeKey(hash []byte) []byte {
	k := make([]byte, 1+len(hash))
	k[0] = prefixNode
	copy(k[1:], hash)
	return k
}

func freedKey(commit uint64) []byte {
	k := make([]byte, 9)
	k[0] = prefixFreed
	binary.BigEndian.PutUint64(k[1:], commit)
	return k
}

// nibbles explodes a byte string into its 4-bit digits.
func nibbles(b []byte) []byte {
	out := make([]byte, 2*len(b))
	for i, x := range b {
		out[2*i] = x >> 4
		out[2*i+1] = x & 0x0f
	}
	return out
}

func commonPrefix(a, b []byte) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func encodeLeaf(path, value []byte) []byte {
	b, _ := marshal.ToBytes(func(ctx *marshal.Context) {
		ctx.WriteByte(nodeKindLeaf)
		ctx.WriteBytes(path)
		ctx.WriteBytes(value)
	})
	return b
}

func encodeExtension(path, child []byte) []byte {
	b, _ := marshal.ToBytes(func(ctx *marshal.Context) {
		ctx.WriteByte(nodeKindExtension)
		ctx.WriteBytes(path)
		ctx.Write(child)
	})
	return b
}

func encodeBranch(children [][]byte) []byte {
	b, _ := marshal.ToBytes(func(ctx *marshal.Context) {
		ctx.WriteByte(nodeKindBranch)
		var bitmap uint16
		for i, child := range children {
			if child != nil {
				bitmap |= 1 << uint(i)
			}
		}
		ctx.WriteShort(int16(bitmap))
		for _, child := range children {
			if child != nil {
				ctx.Write(child)
			}
		}
	})
	return b
}

func decodeNode(encoded []byte) (kind byte, path []byte, value []byte, children [][]byte, err error) {
	ctx := marshal.FromBytes(encoded)
	kind = ctx.ReadByte()
	switch kind {
	case nodeKindLeaf:
		path = ctx.ReadBytes()
		value = ctx.ReadBytes()
		if ctx.Err() != nil {
			return 0, nil, nil, nil, errCorrupted
		}
		return kind, path, value, nil, nil

	case nodeKindExtension:
		path = ctx.ReadBytes()
		child := make([]byte, crypto.HashLen)
		ctx.ReadFull(child)
		if ctx.Err() != nil {
			return 0, nil, nil, nil, errCorrupted
		}
		return kind, path, nil, [][]byte{child}, nil

	case nodeKindBranch:
		bitmap := uint16(ctx.ReadShort())
		children = make([][]byte, 16)
		for i := 0; i < 16; i++ {
			if bitmap&(1<<uint(i)) != 0 {
				child := make([]byte, crypto.HashLen)
				ctx.ReadFull(child)
				children[i] = child
			}
		}
		if ctx.Err() != nil {
			return 0, nil, nil, nil, errCorrupted
		}
		return kind, nil, nil, children, nil
	}
	return 0, nil, nil, nil, errCorrupted
}
