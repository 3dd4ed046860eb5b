package users

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is an account known to the backend. Accounts are created by the provider sign-in.
type User struct {
	ID            string    `json:"id"`                  // Unique identifier for the user
	Email         string    `json:"email"`               // User's email address
	Name          string    `json:"name,omitempty"`      // Display name from the provider
	Image         string    `json:"image,omitempty"`     // Avatar URL from the provider
	EmailVerified bool      `json:"emailVerified"`       // Whether the provider verified the email
	CreatedAt     time.Time `json:"createdAt"`           // When the account was created
	UpdatedAt     time.Time `json:"updatedAt"`           // Last profile update
	LastLogin     time.Time `json:"lastLogin,omitempty"` // Last successful sign-in
}

// NewUser creates a user with a fresh id.
func NewUser(email, name string, now time.Time) *User {
	return &User{
		ID:        uuid.New().String(),
		Email:     NormaliseEmail(email),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NormaliseEmail lower-cases and trims an email so lookups are case insensitive.
func NormaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
