package sessions

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/pkg/errors"
)

// CookieName is the session cookie. The prefix keeps it apart from other apps on the
// same host.
const CookieName = "handoff.session_token"

// CookieSigner signs session tokens for the session cookie: token "." HMAC-SHA256(token).
type CookieSigner struct {
	key []byte
}

// NewCookieSigner creates a signer for secret.
func NewCookieSigner(secret []byte) (*CookieSigner, error) {
	if len(secret) == 0 {
		return nil, errors.New("[NewCookieSigner] secret is required")
	}
	return &CookieSigner{key: append([]byte{}, secret...)}, nil
}

// Sign returns the url-escaped cookie value for token.
func (s *CookieSigner) Sign(token string) (string, error) {
	sig, err := jwt.SigningMethodHS256.Sign(token, s.key)
	if err != nil {
		return "", errors.Wrap(err, "[CookieSigner Sign]")
	}
	return url.QueryEscape(token + "." + base64.RawURLEncoding.EncodeToString(sig)), nil
}

// Verify checks a cookie value and returns the token it carries.
func (s *CookieSigner) Verify(value string) (string, error) {
	raw, err := url.QueryUnescape(value)
	if err != nil {
		return "", errors.Wrap(apperrors.ErrUnauthorized, "cookie is not url encoded")
	}
	i := strings.LastIndex(raw, ".")
	if i <= 0 || i == len(raw)-1 {
		return "", errors.Wrap(apperrors.ErrUnauthorized, "cookie is not signed")
	}
	token, encodedSig := raw[:i], raw[i+1:]
	sig, err := base64.RawURLEncoding.DecodeString(encodedSig)
	if err != nil {
		return "", errors.Wrap(apperrors.ErrUnauthorized, "cookie signature is not base64url")
	}
	if err := jwt.SigningMethodHS256.Verify(token, sig, s.key); err != nil {
		return "", errors.Wrap(apperrors.ErrUnauthorized, "cookie signature mismatch")
	}
	return token, nil
}

// Cookie builds the session cookie usable from the desktop UI's custom scheme origin.
func Cookie(value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	}
}

// ExpiredCookie clears the session cookie.
func ExpiredCookie() *http.Cookie {
	c := Cookie("", 0)
	c.MaxAge = -1
	return c
}
