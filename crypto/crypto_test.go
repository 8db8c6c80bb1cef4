package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasherFor(t *testing.T) {
	h, err := HasherFor("sha256")
	require.NoError(t, err)
	require.Equal(t, Sha256([]byte("abc")), h([]byte("abc")))

	h3, err := HasherFor("sha3-256")
	require.NoError(t, err)
	require.NotEqual(t, h([]byte("abc")), h3([]byte("abc")))

	_, err = HasherFor("md5")
	require.Error(t, err)
}

func TestEd25519SignVerify(t *testing.T) {
	for _, name := range []string{"ed25519", "ed25519det"} {
		alg, err := SignatureAlgorithmFor(name)
		require.NoError(t, err)

		pub, priv, err := alg.KeyPair()
		require.NoError(t, err)

		msg := []byte("a signed request")
		sig, err := alg.Sign(priv, msg)
		require.NoError(t, err)

		ok, err := alg.Verify(pub, msg, sig)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = alg.Verify(pub, []byte("tampered"), sig)
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestEd25519DeterministicSeed(t *testing.T) {
	alg, err := SignatureAlgorithmFor("ed25519det")
	require.NoError(t, err)

	pub1, priv1, err := alg.KeyPairFromSeed([]byte("seed"))
	require.NoError(t, err)
	pub2, priv2, err := alg.KeyPairFromSeed([]byte("seed"))
	require.NoError(t, err)
	require.True(t, bytes.Equal(pub1, pub2))
	require.True(t, bytes.Equal(priv1, priv2))

	pub3, _, err := alg.KeyPairFromSeed([]byte("other"))
	require.NoError(t, err)
	require.False(t, bytes.Equal(pub1, pub3))
}

func TestSha256Dsa(t *testing.T) {
	alg, err := SignatureAlgorithmFor("sha256dsa")
	require.NoError(t, err)

	pub, priv, err := alg.KeyPair()
	require.NoError(t, err)

	msg := []byte("a signed request")
	sig, err := alg.Sign(priv, msg)
	require.NoError(t, err)

	ok, err := alg.Verify(pub, msg, sig)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = alg.Verify(pub, []byte("tampered"), sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEmptyAcceptsEverything(t *testing.T) {
	alg, err := SignatureAlgorithmFor("empty")
	require.NoError(t, err)

	sig, err := alg.Sign(nil, []byte("anything"))
	require.NoError(t, err)
	ok, err := alg.Verify(nil, []byte("anything"), sig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestKeyEncoding(t *testing.T) {
	key := []byte{0x30, 0, 0, 0, 1}
	round, err := DecodeKey(EncodeKey(key))
	require.NoError(t, err)
	require.Equal(t, key, round)
}
