// Package tokens issues and verifies session tokens.
//
// A token is an HS256 JWT. Tokens that carry sensitive content are wrapped
// in a compact JWE (dir + A256GCM) whose plaintext is the signed JWT.
package tokens

import (
	"crypto/sha256"
	"errors"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Skotchmaster/data_delivery/internal/clock"
	"github.com/Skotchmaster/data_delivery/internal/errs"
)

const (
	DefaultTTL    = 168 * time.Hour
	DefaultLeeway = 60 * time.Second
	issuer        = "data_delivery"
)

var errExpired = errs.Authentication("Expired token")

type Config struct {
	Secret []byte
	TTL    time.Duration
	Leeway time.Duration
	Clock  clock.Clock
}

type Service struct {
	secret []byte
	encKey []byte
	ttl    time.Duration
	leeway time.Duration
	clock  clock.Clock
}

func NewService(cfg Config) *Service {
	enc := sha256.Sum256(append([]byte("jwe:"), cfg.Secret...))
	s := &Service{
		secret: cfg.Secret,
		encKey: enc[:],
		ttl:    cfg.TTL,
		leeway: cfg.Leeway,
		clock:  cfg.Clock,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.leeway < 0 {
		s.leeway = 0
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	return s
}

func (s *Service) NewClaims(username string, mfaAuthTime *time.Time, sensitive string) Claims {
	now := s.clock.Now()
	c := Claims{
		SensitiveContent: sensitive,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	if mfaAuthTime != nil {
		ts := mfaAuthTime.Unix()
		c.MFAAuthTime = &ts
	}
	return c
}

// Sign produces a plain signed token. Sensitive content is dropped: it must
// never be readable by the holder.
func (s *Service) Sign(c Claims) (string, error) {
	c.SensitiveContent = ""
	return s.sign(c)
}

func (s *Service) sign(c Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

func (s *Service) Encrypt(c Claims) (string, error) {
	signed, err := s.sign(c)
	if err != nil {
		return "", err
	}
	enc, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.DIRECT, Key: s.encKey},
		(&jose.EncrypterOptions{}).WithContentType("JWT"),
	)
	if err != nil {
		return "", err
	}
	obj, err := enc.Encrypt([]byte(signed))
	if err != nil {
		return "", err
	}
	return obj.CompactSerialize()
}

// Verify accepts both shapes. Three dot-separated segments are tried as a
// signed token first, anything else as an encrypted one; when that fails the
// other shape is tried before giving up. Expiry is never retried.
func (s *Service) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errs.Authentication("No token")
	}
	signed := strings.Count(token, ".") == 2
	c, err := s.verifyAs(token, signed)
	if err == nil || errors.Is(err, errExpired) {
		return c, err
	}
	c, err2 := s.verifyAs(token, !signed)
	if err2 == nil {
		return c, nil
	}
	return nil, firstFailure(err, err2)
}

// firstFailure keeps the error of the preferred shape unless the other
// shape got far enough to find the token expired.
func firstFailure(preferred, fallback error) error {
	if errors.Is(fallback, errExpired) {
		return fallback
	}
	return preferred
}

func (s *Service) verifyAs(token string, signed bool) (*Claims, error) {
	if !signed {
		return s.decryptAndVerify(token)
	}
	c, err := s.verifySigned(token)
	if err != nil {
		return nil, err
	}
	c.SensitiveContent = ""
	return c, nil
}

func (s *Service) decryptAndVerify(token string) (*Claims, error) {
	obj, err := jose.ParseEncrypted(token, []jose.KeyAlgorithm{jose.DIRECT}, []jose.ContentEncryption{jose.A256GCM})
	if err != nil {
		return nil, errs.Authentication("Invalid token")
	}
	inner, err := obj.Decrypt(s.encKey)
	if err != nil {
		return nil, errs.Authentication("Invalid token")
	}
	return s.verifySigned(string(inner))
}

func (s *Service) verifySigned(token string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errExpired
		}
		return nil, errs.Authentication("Invalid token")
	}
	// The leeway above absorbs clock skew on nbf/iat; expiry itself is hard.
	if !s.clock.Now().Before(claims.ExpiresAt.Time) {
		return nil, errExpired
	}
	return &claims, nil
}

// SensitiveContent returns sen_con only when the token is encrypted and was
// issued to username.
func (s *Service) SensitiveContent(token, username string) (string, error) {
	if strings.Count(strings.TrimSpace(token), ".") == 2 {
		return "", nil
	}
	c, err := s.decryptAndVerify(strings.TrimSpace(token))
	if err != nil {
		return "", err
	}
	if c.Subject != username {
		return "", nil
	}
	return c.SensitiveContent, nil
}
