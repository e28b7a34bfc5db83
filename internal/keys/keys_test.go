package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"

	"github.com/Skotchmaster/data_delivery/internal/errs"
)

func newTestEngine() *Engine {
	e := New(2048)
	e.Argon2 = Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1}
	return e
}

func TestGenerateUserKeyPair(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	pair, err := e.GenerateUserKeyPair()
	require.NoError(t, err)

	pub, err := x509.ParsePKIXPublicKey(pair.PublicKey)
	require.NoError(t, err)
	rsaPub, ok := pub.(*rsa.PublicKey)
	require.True(t, ok)
	assert.Equal(t, 2048, rsaPub.N.BitLen())

	_, err = x509.ParsePKCS8PrivateKey(pair.PrivateKey)
	require.NoError(t, err)
}

func TestSealAndOpenUserPrivateKey(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	salt, err := e.NewSalt()
	require.NoError(t, err)
	userKey := e.DeriveUserKey("s3cret-password", salt)
	require.Len(t, userKey, KeySize)

	sealed, nonce, err := e.SealUserPrivateKey(userKey, []byte("private"))
	require.NoError(t, err)

	plain, err := e.OpenUserPrivateKey(e.DeriveUserKey("s3cret-password", salt), sealed, nonce)
	require.NoError(t, err)
	assert.Equal(t, []byte("private"), plain)

	_, err = e.OpenUserPrivateKey(e.DeriveUserKey("wrong", salt), sealed, nonce)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestProjectKeyPairRoundTrip(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	owner := []byte("owner-private-key-material")

	pair, err := e.GenerateProjectKeyPair(owner)
	require.NoError(t, err)
	assert.Len(t, pair.PublicKey, curve25519.PointSize)
	assert.Len(t, pair.Salt, SaltSize)

	priv, err := e.DecryptProjectPrivateKey(owner, &ProjectKeyPair{
		EncryptedPrivateKey: pair.EncryptedPrivateKey,
		Salt:                pair.Salt,
		Nonce:               pair.Nonce,
	})
	require.NoError(t, err)

	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	require.NoError(t, err)
	assert.Equal(t, pair.PublicKey, pub)

	_, err = e.DecryptProjectPrivateKey([]byte("someone else"), pair)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestProjectKeyPairsAreUnique(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	a, err := e.GenerateProjectKeyPair([]byte("owner"))
	require.NoError(t, err)
	b, err := e.GenerateProjectKeyPair([]byte("owner"))
	require.NoError(t, err)

	assert.NotEqual(t, a.PublicKey, b.PublicKey)
	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.Nonce, b.Nonce)
}

func TestGenerateProjectKeyPairRejectsEmptySecret(t *testing.T) {
	t.Parallel()

	_, err := newTestEngine().GenerateProjectKeyPair(nil)
	assert.ErrorIs(t, err, errs.ErrKeyGeneration)
}

func TestShareProjectKey(t *testing.T) {
	t.Parallel()

	e := newTestEngine()
	admin, err := e.GenerateUserKeyPair()
	require.NoError(t, err)
	outsider, err := e.GenerateUserKeyPair()
	require.NoError(t, err)

	pair, err := e.GenerateProjectKeyPair([]byte("owner"))
	require.NoError(t, err)
	share, err := e.Share(pair, admin.PublicKey)
	require.NoError(t, err)

	expected, err := e.DecryptProjectPrivateKey([]byte("owner"), pair)
	require.NoError(t, err)

	got, err := e.OpenProjectKeyShare(share, admin.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, expected, got)

	_, err = e.OpenProjectKeyShare(share, outsider.PrivateKey)
	assert.ErrorIs(t, err, ErrDecrypt)

	pair.Wipe()
	_, err = e.Share(pair, admin.PublicKey)
	assert.ErrorIs(t, err, errs.ErrKeyGeneration)
}
