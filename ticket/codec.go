// Package ticket encrypts the short-lived tickets that carry a provider sign-in across
// the custom-scheme boundary. Wire format: base64url(iv) "." base64url(ciphertext).
package ticket

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/pkg/errors"
)

const ivLength = 12

// Payload is what the backend binds into every ticket.
type Payload struct {
	UserID    string `json:"userid"`
	Scheme    string `json:"scheme"`
	Provider  string `json:"provider"`
	Challenge string `json:"challenge"`
	Status    string `json:"status,omitempty"`
}

type envelope struct {
	Payload any   `json:"payload"`
	Exp     int64 `json:"exp"`
}

type rawEnvelope struct {
	Payload json.RawMessage `json:"payload"`
	Exp     json.Number     `json:"exp"`
}

// Codec encrypts and decrypts tickets with keys derived from one server secret.
type Codec struct {
	secret  []byte
	keys    *KeyCache
	random  io.Reader
	nowTime func() time.Time
}

// CodecOption defines a function type to modify the Codec instance.
type CodecOption func(*Codec)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowTime = nowFunc
	}
}

// WithKeyCache replaces the process wide key cache.
func WithKeyCache(keys *KeyCache) CodecOption {
	return func(c *Codec) {
		c.keys = keys
	}
}

// WithRandom replaces the IV source.
func WithRandom(r io.Reader) CodecOption {
	return func(c *Codec) {
		c.random = r
	}
}

// NewCodec creates a codec for secret.
func NewCodec(secret []byte, options ...CodecOption) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("[NewCodec] secret is required")
	}
	c := &Codec{
		secret:  append([]byte{}, secret...),
		keys:    defaultKeys,
		random:  rand.Reader,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Encrypt seals {payload, exp: now+ttl} under a fresh IV.
func (c *Codec) Encrypt(payload any, ttl time.Duration) (string, error) {
	plaintext, err := json.Marshal(envelope{
		Payload: payload,
		Exp:     c.nowTime().Add(ttl).UnixMilli(),
	})
	if err != nil {
		return "", errors.Wrapf(apperrors.ErrSerialization, "[Codec Encrypt] %v", err)
	}

	aead, err := c.keys.Derive(c.secret)
	if err != nil {
		return "", errors.Wrap(err, "[Codec Encrypt]")
	}

	iv := make([]byte, ivLength)
	if _, err := io.ReadFull(c.random, iv); err != nil {
		return "", errors.Wrapf(apperrors.ErrCryptoOp, "[Codec Encrypt] iv: %v", err)
	}
	ciphertext := aead.Seal(nil, iv, plaintext, nil)

	return base64.RawURLEncoding.EncodeToString(iv) + "." + base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

// Decrypt opens ticket and returns the raw inner payload.
func (c *Codec) Decrypt(ticket string) (json.RawMessage, error) {
	ivPart, cipherPart, found := strings.Cut(ticket, ".")
	if !found || ivPart == "" || cipherPart == "" {
		return nil, errors.Wrap(apperrors.ErrMalformedTicket, "[Codec Decrypt] expected two segments")
	}
	iv, err := decodeSegment(ivPart)
	if err != nil {
		return nil, errors.Wrapf(apperrors.ErrMalformedTicket, "[Codec Decrypt] iv: %v", err)
	}
	if len(iv) != ivLength {
		return nil, errors.Wrapf(apperrors.ErrMalformedTicket, "[Codec Decrypt] iv is %d bytes", len(iv))
	}
	ciphertext, err := decodeSegment(cipherPart)
	if err != nil {
		return nil, errors.Wrapf(apperrors.ErrMalformedTicket, "[Codec Decrypt] ciphertext: %v", err)
	}

	aead, err := c.keys.Derive(c.secret)
	if err != nil {
		return nil, errors.Wrap(err, "[Codec Decrypt]")
	}
	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrTicketAuth, "[Codec Decrypt]")
	}

	var env rawEnvelope
	decoder := json.NewDecoder(bytes.NewReader(plaintext))
	decoder.UseNumber()
	if err := decoder.Decode(&env); err != nil {
		return nil, errors.Wrapf(apperrors.ErrMalformedTicket, "[Codec Decrypt] json: %v", err)
	}
	if !isJSONObject(env.Payload) {
		return nil, errors.Wrap(apperrors.ErrMalformedTicket, "[Codec Decrypt] payload is not an object")
	}
	exp, err := env.Exp.Int64()
	if err != nil || exp <= 0 {
		return nil, errors.Wrap(apperrors.ErrMalformedTicket, "[Codec Decrypt] exp is not a positive integer")
	}
	if exp < c.nowTime().UnixMilli() {
		return nil, errors.Wrap(apperrors.ErrTicketExpired, "[Codec Decrypt]")
	}
	return env.Payload, nil
}

// DecryptPayload opens ticket and decodes it as a Payload.
func (c *Codec) DecryptPayload(ticket string) (Payload, error) {
	raw, err := c.Decrypt(ticket)
	if err != nil {
		return Payload{}, err
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, errors.Wrapf(apperrors.ErrMalformedTicket, "[Codec DecryptPayload] %v", err)
	}
	return p, nil
}

// decodeSegment accepts both alphabets and optional padding.
func decodeSegment(s string) ([]byte, error) {
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
