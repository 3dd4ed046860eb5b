package ticket_test

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/jrsteele09/go-desktop-handoff/ticket"
	"github.com/stretchr/testify/require"
)

const (
	testSecret    = "a-very-long-server-secret-for-tests"
	testUserID    = "user_123"
	testChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

type testFixture struct {
	codec *ticket.Codec
	now   time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := ticket.NewCodec([]byte(testSecret),
		ticket.WithKeyCache(ticket.NewKeyCache()),
		ticket.WithNowTime(func() time.Time { return f.now }),
	)
	require.NoError(t, err)
	f.codec = codec
	return f
}

func testPayload() ticket.Payload {
	return ticket.Payload{
		UserID:    testUserID,
		Scheme:    "app",
		Provider:  "github",
		Challenge: testChallenge,
		Status:    "succeed",
	}
}

func TestNewCodecRequiresSecret(t *testing.T) {
	_, err := ticket.NewCodec(nil)
	require.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	f := setupTestFixture(t)

	tkt, err := f.codec.Encrypt(testPayload(), 300*time.Second)
	require.NoError(t, err)

	ivPart, cipherPart, found := strings.Cut(tkt, ".")
	require.True(t, found)
	iv, err := base64.RawURLEncoding.DecodeString(ivPart)
	require.NoError(t, err)
	require.Len(t, iv, 12)
	require.NotEmpty(t, cipherPart)

	got, err := f.codec.DecryptPayload(tkt)
	require.NoError(t, err)
	require.Equal(t, testPayload(), got)
}

func TestDecryptReturnsArbitraryObjects(t *testing.T) {
	f := setupTestFixture(t)
	in := map[string]any{"a": "b", "n": float64(3), "nested": map[string]any{"ok": true}}

	tkt, err := f.codec.Encrypt(in, time.Minute)
	require.NoError(t, err)

	raw, err := f.codec.Decrypt(tkt)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, in, out)
}

func TestEncryptUsesFreshIV(t *testing.T) {
	f := setupTestFixture(t)
	a, err := f.codec.Encrypt(testPayload(), time.Minute)
	require.NoError(t, err)
	b, err := f.codec.Encrypt(testPayload(), time.Minute)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestEncryptSerializationError(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.codec.Encrypt(map[string]any{"c": make(chan int)}, time.Minute)
	require.ErrorIs(t, err, apperrors.ErrSerialization)
}

func TestDecryptExpired(t *testing.T) {
	f := setupTestFixture(t)
	tkt, err := f.codec.Encrypt(testPayload(), 300*time.Second)
	require.NoError(t, err)

	f.now = f.now.Add(300 * time.Second)
	_, err = f.codec.Decrypt(tkt)
	require.NoError(t, err, "a ticket is valid up to and including its expiry")

	f.now = f.now.Add(time.Millisecond)
	_, err = f.codec.Decrypt(tkt)
	require.ErrorIs(t, err, apperrors.ErrTicketExpired)
}

func TestDecryptTampered(t *testing.T) {
	f := setupTestFixture(t)
	tkt, err := f.codec.Encrypt(testPayload(), time.Minute)
	require.NoError(t, err)
	ivPart, cipherPart, _ := strings.Cut(tkt, ".")

	t.Run("ciphertext", func(t *testing.T) {
		ct, err := base64.RawURLEncoding.DecodeString(cipherPart)
		require.NoError(t, err)
		ct[0] ^= 0x01
		_, err = f.codec.Decrypt(ivPart + "." + base64.RawURLEncoding.EncodeToString(ct))
		require.ErrorIs(t, err, apperrors.ErrTicketAuth)
	})

	t.Run("iv", func(t *testing.T) {
		iv, err := base64.RawURLEncoding.DecodeString(ivPart)
		require.NoError(t, err)
		iv[3] ^= 0x80
		_, err = f.codec.Decrypt(base64.RawURLEncoding.EncodeToString(iv) + "." + cipherPart)
		require.ErrorIs(t, err, apperrors.ErrTicketAuth)
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := ticket.NewCodec([]byte("another-secret"), ticket.WithKeyCache(ticket.NewKeyCache()))
		require.NoError(t, err)
		_, err = other.Decrypt(tkt)
		require.ErrorIs(t, err, apperrors.ErrTicketAuth)
	})
}

func TestDecryptAcceptsStandardAlphabetAndPadding(t *testing.T) {
	f := setupTestFixture(t)
	tkt, err := f.codec.Encrypt(testPayload(), time.Minute)
	require.NoError(t, err)
	ivPart, cipherPart, _ := strings.Cut(tkt, ".")

	iv, err := base64.RawURLEncoding.DecodeString(ivPart)
	require.NoError(t, err)
	ct, err := base64.RawURLEncoding.DecodeString(cipherPart)
	require.NoError(t, err)

	std := base64.StdEncoding.EncodeToString(iv) + "." + base64.StdEncoding.EncodeToString(ct)
	got, err := f.codec.DecryptPayload(std)
	require.NoError(t, err)
	require.Equal(t, testPayload(), got)
}

func TestDecryptMalformed(t *testing.T) {
	f := setupTestFixture(t)
	shortIV := base64.RawURLEncoding.EncodeToString([]byte("short"))

	for _, tkt := range []string{
		"",
		"no-separator",
		".onlycipher",
		"onlyiv.",
		shortIV + ".abcd",
		"!!!!.abcd",
	} {
		_, err := f.codec.Decrypt(tkt)
		require.ErrorIs(t, err, apperrors.ErrMalformedTicket, "ticket %q", tkt)
	}
}

func TestDecryptRejectsBadShape(t *testing.T) {
	f := setupTestFixture(t)

	for _, payload := range []any{"a string", 42, []string{"x"}, nil} {
		tkt, err := f.codec.Encrypt(payload, time.Minute)
		require.NoError(t, err)
		_, err = f.codec.Decrypt(tkt)
		require.ErrorIs(t, err, apperrors.ErrMalformedTicket, "payload %v", payload)
	}

	f.now = time.UnixMilli(0)
	tkt, err := f.codec.Encrypt(testPayload(), 0)
	require.NoError(t, err)
	_, err = f.codec.Decrypt(tkt)
	require.ErrorIs(t, err, apperrors.ErrMalformedTicket)
}

func TestKeyCacheEvictsLeastRecentlyUsed(t *testing.T) {
	keys := ticket.NewKeyCache()
	first := []byte("secret-0")

	_, err := keys.Derive(first)
	require.NoError(t, err)
	for i := 1; i <= 50; i++ {
		_, err := keys.Derive([]byte(fmt.Sprintf("secret-%d", i)))
		require.NoError(t, err)
	}

	require.Equal(t, 50, keys.Len())
	require.False(t, keys.Contains(first))
	require.True(t, keys.Contains([]byte("secret-50")))
}

func TestKeyCacheReusesDerivedKey(t *testing.T) {
	keys := ticket.NewKeyCache()
	_, err := keys.Derive([]byte(testSecret))
	require.NoError(t, err)
	_, err = keys.Derive([]byte(testSecret))
	require.NoError(t, err)
	require.Equal(t, 1, keys.Len())
	require.True(t, keys.Contains([]byte(testSecret)))

	_, err = keys.Derive(nil)
	require.ErrorIs(t, err, apperrors.ErrCryptoInit)
}
