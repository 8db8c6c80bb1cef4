// Package beans defines the value, update, request and response types
// exchanged with a node, together with their canonical binary
// representation. The byte representation of a request is the pre-image
// of its transaction reference, so every encoding here is canonical:
// logically equal beans marshal to equal bytes.
package beans

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/omahs/hotmoka/crypto"
	"github.com/omahs/hotmoka/marshal"
)

// TransactionReference identifies a transaction already committed in a
// node: the hash of the bytes of its request.
type TransactionReference [crypto.HashLen]byte

// NewTransactionReference builds a reference from its hexadecimal form.
func NewTransactionReference(s string) (TransactionReference, error) {
	var ref TransactionReference
	b, err := hex.DecodeString(s)
	if err != nil {
		return ref, err
	}
	if len(b) != len(ref) {
		return ref, fmt.Errorf("transaction reference must be %d bytes, got %d", len(ref), len(b))
	}
	copy(ref[:], b)
	return ref, nil
}

func (ref TransactionReference) String() string {
	return hex.EncodeToString(ref[:])
}

// Cmp compares two references lexicographically.
func (ref TransactionReference) Cmp(other TransactionReference) int {
	return bytes.Compare(ref[:], other[:])
}

// Into writes the reference: its raw 32 bytes.
func (ref TransactionReference) Into(ctx *marshal.Context) {
	ctx.Write(ref[:])
}

// TransactionReferenceFrom reads back a reference written by Into.
func TransactionReferenceFrom(ctx *marshal.UnmarshalContext) TransactionReference {
	var ref TransactionReference
	ctx.ReadFull(ref[:])
	return ref
}

// StorageReference identifies an object persisted in the store: the
// transaction that created it and a progressive number distinguishing
// objects created by the same transaction.
type StorageReference struct {
	Transaction TransactionReference
	Progressive uint64
}

func (sr StorageReference) String() string {
	return fmt.Sprintf("%s#%d", sr.Transaction, sr.Progressive)
}

// IntoWithoutSelector writes the reference for use inside composite
// encodings, where the value selector byte is suppressed.
func (sr StorageReference) IntoWithoutSelector(ctx *marshal.Context) {
	sr.Transaction.Into(ctx)
	ctx.WriteLong(int64(sr.Progressive))
}

// BytesWithoutSelector yields the marshalling of IntoWithoutSelector.
// It is the hashing pre-image used to key the trie of histories.
func (sr StorageReference) BytesWithoutSelector() []byte {
	b, err := marshal.ToBytes(sr.IntoWithoutSelector)
	if err != nil {
		// writing to a memory buffer cannot fail
		panic(err)
	}
	return b
}

// StorageReferenceFrom reads back a reference written by
// IntoWithoutSelector.
func StorageReferenceFrom(ctx *marshal.UnmarshalContext) StorageReference {
	tx := TransactionReferenceFrom(ctx)
	return StorageReference{Transaction: tx, Progressive: uint64(ctx.ReadLong())}
}
