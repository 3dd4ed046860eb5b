package providerfake

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/jrsteele09/go-desktop-handoff/identity"
	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/jrsteele09/go-desktop-handoff/pkce"
	"github.com/pkg/errors"
)

var _ identity.Provider = (*FakeProvider)(nil)

// FakeProvider authorises at a fake URL and accepts the codes it was given profiles for.
// A code is bound to the challenge of the request it was issued for.
type FakeProvider struct {
	name string

	mu         sync.Mutex
	profiles   map[string]identity.Profile
	challenges map[string]string
	requests   []identity.AuthRequest
}

func NewFakeProvider(name string) *FakeProvider {
	return &FakeProvider{
		name:       name,
		profiles:   make(map[string]identity.Profile),
		challenges: make(map[string]string),
	}
}

func (p *FakeProvider) Name() string {
	return p.name
}

// AddCode makes code exchangeable for profile.
func (p *FakeProvider) AddCode(code string, profile identity.Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[code] = profile
}

// Requests returns every AuthRequest seen so far.
func (p *FakeProvider) Requests() []identity.AuthRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]identity.AuthRequest(nil), p.requests...)
}

func (p *FakeProvider) AuthCodeURL(req identity.AuthRequest) string {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	q := url.Values{}
	q.Set("state", req.State)
	q.Set("redirect_uri", req.RedirectURL)
	q.Set("code_challenge", pkce.Challenge(req.Verifier))
	if req.LoginHint != "" {
		q.Set("login_hint", req.LoginHint)
	}
	if len(req.Scopes) > 0 {
		q.Set("scope", strings.Join(req.Scopes, " "))
	}
	return "https://" + p.name + ".provider.test/authorize?" + q.Encode()
}

// Bind ties code to the challenge sent for state, as a provider does at authorize time.
func (p *FakeProvider) Bind(code, challenge string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.challenges[code] = challenge
}

func (p *FakeProvider) Exchange(_ context.Context, code, verifier, _ string) (identity.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	profile, ok := p.profiles[code]
	if !ok {
		return identity.Profile{}, errors.Wrap(apperrors.ErrProviderReported, "unknown code")
	}
	if challenge, bound := p.challenges[code]; bound && !pkce.Verify(verifier, challenge) {
		return identity.Profile{}, errors.Wrap(apperrors.ErrProviderReported, "code verifier mismatch")
	}
	delete(p.profiles, code)
	return profile, nil
}
