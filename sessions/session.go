package sessions

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const tokenBytes = 32

// Session is a signed-in browser or desktop client. The token is what the session cookie
// carries; the id is only used internally.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"-"`
	UserID    string    `json:"userId"`
	UserAgent string    `json:"userAgent,omitempty"`
	IPAddress string    `json:"ipAddress,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// New creates a session for userID valid for duration from now.
func New(userID, userAgent, ipAddress string, duration time.Duration, now time.Time) (*Session, error) {
	if userID == "" {
		return nil, errors.New("[sessions.New] userID is required")
	}
	token, err := NewToken()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        uuid.New().String(),
		Token:     token,
		UserID:    userID,
		UserAgent: userAgent,
		IPAddress: ipAddress,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(duration),
	}, nil
}

// NewToken returns a random url-safe session token.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "[sessions.NewToken]")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
