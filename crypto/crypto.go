// Package crypto adapts the hashing and signature primitives used by
// the engine: request hashing, trie node hashing and request signing.
package crypto

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/omahs/hotmoka/errors"
)

// HashLen is the width of every hash used by the engine.
const HashLen = 32

// ErrUnknownAlgorithm is returned when a hashing or signature
// algorithm name is not recognized.
var ErrUnknownAlgorithm = errors.New("unknown algorithm")

// Hasher maps a byte string to a fixed-width digest.
type Hasher func([]byte) [HashLen]byte

// Sha256 is the hasher used for transaction references and trie nodes.
func Sha256(data []byte) [HashLen]byte {
	return sha256.Sum256(data)
}

// Sha3 hashes with SHA3-256.
func Sha3(data []byte) [HashLen]byte {
	return sha3.Sum256(data)
}

// HasherFor yields the hasher with the given name.
func HasherFor(name string) (Hasher, error) {
	switch name {
	case "sha256":
		return Sha256, nil
	case "sha3-256":
		return Sha3, nil
	}
	return nil, errors.Wrap(ErrUnknownAlgorithm, name)
}

// A SignatureAlgorithm signs request bytes and verifies signatures.
// Keys travel as opaque byte strings; their textual form is base64.
type SignatureAlgorithm interface {
	Name() string

	// KeyPair generates a fresh key pair.
	KeyPair() (pub, priv []byte, err error)

	// KeyPairFromSeed derives a key pair deterministically from a seed.
	KeyPairFromSeed(seed []byte) (pub, priv []byte, err error)

	// Sign signs data with the given private key.
	Sign(priv, data []byte) ([]byte, error)

	// Verify reports whether sig is a valid signature of data
	// under the given public key.
	Verify(pub, data, sig []byte) (bool, error)
}

// SignatureAlgorithmFor yields the signature algorithm with the given
// name: ed25519, ed25519det, sha256dsa or empty.
func SignatureAlgorithmFor(name string) (SignatureAlgorithm, error) {
	switch name {
	case "ed25519":
		return ed25519Algorithm{name: "ed25519"}, nil
	case "ed25519det":
		// same scheme; the deterministic variant only constrains
		// key generation
		return ed25519Algorithm{name: "ed25519det"}, nil
	case "sha256dsa":
		return ecdsaAlgorithm{}, nil
	case "empty":
		return emptyAlgorithm{}, nil
	}
	return nil, errors.Wrap(ErrUnknownAlgorithm, name)
}

// EncodeKey yields the textual form of a key.
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// DecodeKey parses the textual form of a key.
func DecodeKey(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

type ed25519Algorithm struct {
	name string
}

func (a ed25519Algorithm) Name() string { return a.name }

func (a ed25519Algorithm) KeyPair() ([]byte, []byte, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	return pub, priv, err
}

func (a ed25519Algorithm) KeyPairFromSeed(seed []byte) ([]byte, []byte, error) {
	h := sha256.Sum256(seed)
	priv := ed25519.NewKeyFromSeed(h[:])
	pub := priv.Public().(ed25519.PublicKey)
	return pub, priv, nil
}

func (a ed25519Algorithm) Sign(priv, data []byte) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid ed25519 private key")
	}
	return ed25519.Sign(ed25519.PrivateKey(priv), data), nil
}

func (a ed25519Algorithm) Verify(pub, data, sig []byte) (bool, error) {
	if len(pub) != ed25519.PublicKeySize {
		return false, errors.New("invalid ed25519 public key")
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, sig), nil
}

// ecdsaAlgorithm implements the sha256dsa algorithm name over
// ECDSA P-256 with SHA-256 digests. Public keys are the uncompressed
// curve point, private keys the big-endian scalar.
type ecdsaAlgorithm struct{}

func (ecdsaAlgorithm) Name() string { return "sha256dsa" }

func (ecdsaAlgorithm) KeyPair() ([]byte, []byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	pub := elliptic.Marshal(elliptic.P256(), key.X, key.Y)
	return pub, key.D.Bytes(), nil
}

func (a ecdsaAlgorithm) KeyPairFromSeed(seed []byte) ([]byte, []byte, error) {
	return nil, nil, errors.New("sha256dsa does not support seeded key pairs")
}

func (ecdsaAlgorithm) Sign(priv, data []byte) ([]byte, error) {
	key, err := ecdsaPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(data)
	return ecdsa.SignASN1(rand.Reader, key, digest[:])
}

func (ecdsaAlgorithm) Verify(pub, data, sig []byte) (bool, error) {
	x, y := elliptic.Unmarshal(elliptic.P256(), pub)
	if x == nil {
		return false, errors.New("invalid sha256dsa public key")
	}
	key := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(key, digest[:], sig), nil
}

// emptyAlgorithm accepts every signature. It exists for tests and for
// nodes that disable request signing.
type emptyAlgorithm struct{}

func (emptyAlgorithm) Name() string { return "empty" }

func (emptyAlgorithm) KeyPair() ([]byte, []byte, error) {
	return []byte{}, []byte{}, nil
}

func (emptyAlgorithm) KeyPairFromSeed(seed []byte) ([]byte, []byte, error) {
	return []byte{}, []byte{}, nil
}

func (emptyAlgorithm) Sign(priv, data []byte) ([]byte, error) {
	return []byte{}, nil
}

func (emptyAlgorithm) Verify(pub, data, sig []byte) (bool, error) {
	return true, nil
}

func ecdsaPrivateKey(priv []byte) (*ecdsa.PrivateKey, error) {
	d := new(big.Int).SetBytes(priv)
	if d.Sign() <= 0 {
		return nil, errors.New("invalid sha256dsa private key")
	}
	key := new(ecdsa.PrivateKey)
	key.Curve = elliptic.P256()
	key.D = d
	key.X, key.Y = elliptic.P256().ScalarBaseMult(priv)
	return key, nil
}
