package tokenstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/yanqian/mealplanner/internal/domain/session"
)

const sealInfo = "mealplanner token at rest"

// SealedStore encrypts the token before handing it to the wrapped store.
type SealedStore struct {
	inner session.TokenStore
	key   []byte
}

// NewSealedStore derives an XChaCha20-Poly1305 key from secret.
func NewSealedStore(inner session.TokenStore, secret string) (*SealedStore, error) {
	if secret == "" {
		return nil, errors.New("token sealing secret is empty")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(sealInfo)), key); err != nil {
		return nil, fmt.Errorf("derive sealing key: %w", err)
	}
	return &SealedStore{inner: inner, key: key}, nil
}

func (s *SealedStore) Load(ctx context.Context) (string, bool, error) {
	sealed, ok, err := s.inner.Load(ctx)
	if err != nil || !ok {
		return "", ok, err
	}
	token, err := s.open(sealed)
	if err != nil {
		return "", false, fmt.Errorf("open persisted token: %w", err)
	}
	return token, true, nil
}

func (s *SealedStore) Save(ctx context.Context, token string) error {
	sealed, err := s.seal(token)
	if err != nil {
		return err
	}
	return s.inner.Save(ctx, sealed)
}

func (s *SealedStore) Clear(ctx context.Context) error {
	return s.inner.Clear(ctx)
}

func (s *SealedStore) seal(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	payload := aead.Seal(nonce, nonce, []byte(plaintext), []byte(Name))
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

func (s *SealedStore) open(encoded string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(payload) < aead.NonceSize() {
		return "", errors.New("invalid token payload")
	}
	nonce, ciphertext := payload[:aead.NonceSize()], payload[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(Name))
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

var _ session.TokenStore = (*SealedStore)(nil)
