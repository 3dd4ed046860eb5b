// Package identity signs users in with external OAuth2 providers. A Provider builds the
// authorize URL for a flow and turns the returned code into a Profile.
package identity

import (
	"context"
	"net/http"
	"slices"
	"sort"
	"sync"

	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/pkg/errors"
)

// Profile is what a provider tells us about the signed-in user.
type Profile struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Image         string `json:"picture"`
}

// Validate checks the fields a sign-in cannot do without.
func (p Profile) Validate() error {
	if p.Subject == "" {
		return errors.Wrap(apperrors.ErrInvalidParameter, "provider returned no subject")
	}
	if p.Email == "" {
		return errors.Wrap(apperrors.ErrInvalidParameter, "provider returned no email")
	}
	return nil
}

// AuthRequest describes one authorize redirect.
type AuthRequest struct {
	State       string
	Verifier    string // PKCE verifier; the S256 challenge is sent to the provider
	RedirectURL string
	LoginHint   string
	Scopes      []string // added to the provider's default scopes
}

// Provider is an external identity provider.
type Provider interface {
	Name() string
	AuthCodeURL(req AuthRequest) string
	Exchange(ctx context.Context, code, verifier, redirectURL string) (Profile, error)
}

// ProfileFetcher reads the profile with an authorised client.
type ProfileFetcher func(ctx context.Context, client *http.Client) (Profile, error)

// Registry holds the configured providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces p.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider called name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, errors.Wrapf(apperrors.ErrNotFound, "identity provider %q", name)
	}
	return p, nil
}

// Names lists the registered providers in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func mergeScopes(base, extra []string) []string {
	out := slices.Clone(base)
	for _, s := range extra {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
