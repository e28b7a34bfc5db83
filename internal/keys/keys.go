// Package keys generates and protects the key material of users and
// projects.
//
// User keys are RSA pairs. The private half is sealed with
// XChaCha20-Poly1305 under a key derived from the user's password with
// argon2id. Project keys are X25519 pairs; the private half is sealed under
// a key derived from the key owner's unsealed user private key. Other
// administrators receive the project private key as an RSA-OAEP share.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"

	"github.com/Skotchmaster/data_delivery/internal/errs"
)

const (
	DefaultRSABits = 4096
	SaltSize       = 32
	KeySize        = 32
)

// ErrDecrypt is returned when sealed key material cannot be opened, which
// almost always means the wrong secret was supplied.
var ErrDecrypt = errors.New("keys: decryption failed")

type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

var DefaultArgon2 = Argon2Params{Time: 2, Memory: 64 * 1024, Threads: 4}

type Engine struct {
	RSABits int
	Argon2  Argon2Params
	Rand    io.Reader
}

func New(rsaBits int) *Engine {
	if rsaBits <= 0 {
		rsaBits = DefaultRSABits
	}
	return &Engine{RSABits: rsaBits, Argon2: DefaultArgon2, Rand: rand.Reader}
}

func (e *Engine) random() io.Reader {
	if e.Rand != nil {
		return e.Rand
	}
	return rand.Reader
}

func (e *Engine) randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(e.random(), b); err != nil {
		return nil, err
	}
	return b, nil
}

func (e *Engine) NewSalt() ([]byte, error) {
	return e.randomBytes(SaltSize)
}

func (e *Engine) kdf(secret, salt []byte) []byte {
	p := e.Argon2
	if p.Time == 0 {
		p = DefaultArgon2
	}
	return argon2.IDKey(secret, salt, p.Time, p.Memory, p.Threads, KeySize)
}

// DeriveUserKey turns a password into the key that seals the user's RSA
// private key.
func (e *Engine) DeriveUserKey(password string, salt []byte) []byte {
	return e.kdf([]byte(password), salt)
}

type UserKeyPair struct {
	PublicKey  []byte // PKIX DER
	PrivateKey []byte // PKCS#8 DER, unsealed
}

func (e *Engine) GenerateUserKeyPair() (*UserKeyPair, error) {
	priv, err := rsa.GenerateKey(e.random(), e.RSABits)
	if err != nil {
		return nil, errs.KeyGeneration(err)
	}
	pub, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, errs.KeyGeneration(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, errs.KeyGeneration(err)
	}
	return &UserKeyPair{PublicKey: pub, PrivateKey: der}, nil
}

func (e *Engine) seal(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, err
	}
	nonce, err = e.randomBytes(aead.NonceSize())
	if err != nil {
		return nil, nil, err
	}
	return aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func open(key, ciphertext, nonce []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length %d", ErrDecrypt, len(nonce))
	}
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}

func (e *Engine) SealUserPrivateKey(userKey, privateKey []byte) (ciphertext, nonce []byte, err error) {
	ciphertext, nonce, err = e.seal(userKey, privateKey)
	if err != nil {
		return nil, nil, errs.KeyGeneration(err)
	}
	return ciphertext, nonce, nil
}

func (e *Engine) OpenUserPrivateKey(userKey, ciphertext, nonce []byte) ([]byte, error) {
	return open(userKey, ciphertext, nonce)
}

type ProjectKeyPair struct {
	PublicKey           []byte
	EncryptedPrivateKey []byte
	Salt                []byte
	Nonce               []byte

	privateKey []byte
}

// GenerateProjectKeyPair creates a fresh X25519 pair and seals the private
// half under ownerSecret. The returned pair keeps the plaintext private key
// in memory until Wipe so that shares can be produced in the same
// transaction.
func (e *Engine) GenerateProjectKeyPair(ownerSecret []byte) (*ProjectKeyPair, error) {
	if len(ownerSecret) == 0 {
		return nil, errs.KeyGeneration(errors.New("empty owner secret"))
	}
	priv, err := e.randomBytes(curve25519.ScalarSize)
	if err != nil {
		return nil, errs.KeyGeneration(err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, errs.KeyGeneration(err)
	}
	salt, err := e.NewSalt()
	if err != nil {
		return nil, errs.KeyGeneration(err)
	}
	sealed, nonce, err := e.seal(e.kdf(ownerSecret, salt), priv)
	if err != nil {
		return nil, errs.KeyGeneration(err)
	}
	return &ProjectKeyPair{
		PublicKey:           pub,
		EncryptedPrivateKey: sealed,
		Salt:                salt,
		Nonce:               nonce,
		privateKey:          priv,
	}, nil
}

func (e *Engine) DecryptProjectPrivateKey(ownerSecret []byte, pair *ProjectKeyPair) ([]byte, error) {
	return open(e.kdf(ownerSecret, pair.Salt), pair.EncryptedPrivateKey, pair.Nonce)
}

// Share encrypts the freshly generated project private key to a user's RSA
// public key.
func (e *Engine) Share(pair *ProjectKeyPair, userPublicKey []byte) ([]byte, error) {
	if pair.privateKey == nil {
		return nil, errs.KeyGeneration(errors.New("project private key is not available"))
	}
	return e.ShareProjectKey(pair.privateKey, userPublicKey)
}

func (e *Engine) ShareProjectKey(projectPrivateKey, userPublicKey []byte) ([]byte, error) {
	parsed, err := x509.ParsePKIXPublicKey(userPublicKey)
	if err != nil {
		return nil, errs.KeyGeneration(err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errs.KeyGeneration(fmt.Errorf("unexpected public key type %T", parsed))
	}
	out, err := rsa.EncryptOAEP(sha256.New(), e.random(), pub, projectPrivateKey, nil)
	if err != nil {
		return nil, errs.KeyGeneration(err)
	}
	return out, nil
}

func (e *Engine) OpenProjectKeyShare(share, userPrivateKey []byte) ([]byte, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(userPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected private key type %T", ErrDecrypt, parsed)
	}
	out, err := rsa.DecryptOAEP(sha256.New(), nil, priv, share, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return out, nil
}

func (p *ProjectKeyPair) Wipe() {
	for i := range p.privateKey {
		p.privateKey[i] = 0
	}
	p.privateKey = nil
}
