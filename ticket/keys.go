package ticket

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

const (
	keyInfo      = "app-electron-v1"
	keyLength    = 16 // AES-128
	keyCacheSize = 50
)

// KeyCache derives AES-GCM keys from server secrets and keeps the most recently used
// ones. Entries are indexed by the SHA-256 of the secret, never by the secret itself.
type KeyCache struct {
	cache *lru.Cache[string, cipher.AEAD]
}

var defaultKeys = NewKeyCache()

// NewKeyCache creates an empty cache bounded to 50 keys.
func NewKeyCache() *KeyCache {
	cache, err := lru.New[string, cipher.AEAD](keyCacheSize)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &KeyCache{cache: cache}
}

// Derive returns the AEAD for secret, deriving it with HKDF-SHA256 on a miss.
func (k *KeyCache) Derive(secret []byte) (cipher.AEAD, error) {
	if len(secret) == 0 {
		return nil, errors.Wrap(apperrors.ErrCryptoInit, "[KeyCache Derive] secret is empty")
	}
	sum := sha256.Sum256(secret)
	index := base64.RawURLEncoding.EncodeToString(sum[:])

	if aead, ok := k.cache.Get(index); ok {
		return aead, nil
	}

	key := make([]byte, keyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, errors.Wrapf(apperrors.ErrCryptoInit, "[KeyCache Derive] hkdf: %v", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrapf(apperrors.ErrCryptoInit, "[KeyCache Derive] aes.NewCipher: %v", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrapf(apperrors.ErrCryptoInit, "[KeyCache Derive] cipher.NewGCM: %v", err)
	}

	k.cache.Add(index, aead)
	return aead, nil
}

// Len is the number of cached keys.
func (k *KeyCache) Len() int {
	return k.cache.Len()
}

// Contains reports whether the key for secret is cached, without promoting it.
func (k *KeyCache) Contains(secret []byte) bool {
	sum := sha256.Sum256(secret)
	return k.cache.Contains(base64.RawURLEncoding.EncodeToString(sum[:]))
}
