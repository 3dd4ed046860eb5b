package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

const (
	googleIssuer      = "https://accounts.google.com"
	googleCertsURL    = "https://www.googleapis.com/oauth2/v3/certs"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	githubAPIURL      = "https://api.github.com"
)

// Config holds the client credentials for one provider.
type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// OAuth2Provider is a Provider backed by an authorization code flow with PKCE. When an
// ID token verifier is set and the token response carries an id_token, the profile comes
// from its claims; otherwise the profile fetcher is called.
type OAuth2Provider struct {
	name       string
	config     oauth2.Config
	idTokens   *oidc.IDTokenVerifier
	profile    ProfileFetcher
	httpClient *http.Client
}

var _ Provider = (*OAuth2Provider)(nil)

// ProviderOption defines a function type to modify the OAuth2Provider instance.
type ProviderOption func(*OAuth2Provider)

// WithEndpoint sets the authorize and token URLs.
func WithEndpoint(endpoint oauth2.Endpoint) ProviderOption {
	return func(p *OAuth2Provider) {
		p.config.Endpoint = endpoint
	}
}

// WithIDTokenVerifier makes the provider read the profile from a verified id_token.
func WithIDTokenVerifier(v *oidc.IDTokenVerifier) ProviderOption {
	return func(p *OAuth2Provider) {
		p.idTokens = v
	}
}

// WithProfileFetcher sets how the profile is read after the code exchange.
func WithProfileFetcher(f ProfileFetcher) ProviderOption {
	return func(p *OAuth2Provider) {
		p.profile = f
	}
}

// WithHTTPClient sets the client used for the token and profile requests.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *OAuth2Provider) {
		p.httpClient = c
	}
}

// NewOAuth2Provider creates a provider called name.
func NewOAuth2Provider(name string, cfg Config, options ...ProviderOption) (*OAuth2Provider, error) {
	if name == "" {
		return nil, errors.New("[NewOAuth2Provider] name is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("[NewOAuth2Provider] client id is required")
	}
	p := &OAuth2Provider{
		name: name,
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
		},
	}
	for _, opt := range options {
		opt(p)
	}
	if p.config.Endpoint.AuthURL == "" || p.config.Endpoint.TokenURL == "" {
		return nil, errors.New("[NewOAuth2Provider] endpoint is required")
	}
	if p.profile == nil && p.idTokens == nil {
		return nil, errors.New("[NewOAuth2Provider] a profile fetcher or id token verifier is required")
	}
	return p, nil
}

// NewGitHubProvider signs in with GitHub.
func NewGitHubProvider(cfg Config, options ...ProviderOption) (*OAuth2Provider, error) {
	cfg.Scopes = mergeScopes([]string{"read:user", "user:email"}, cfg.Scopes)
	options = append([]ProviderOption{
		WithEndpoint(github.Endpoint),
		WithProfileFetcher(GitHubProfile(githubAPIURL)),
	}, options...)
	return NewOAuth2Provider("github", cfg, options...)
}

// NewGoogleProvider signs in with Google. The profile is read from the verified id_token;
// the signing keys are fetched lazily on first verification.
func NewGoogleProvider(ctx context.Context, cfg Config, options ...ProviderOption) (*OAuth2Provider, error) {
	cfg.Scopes = mergeScopes([]string{oidc.ScopeOpenID, "email", "profile"}, cfg.Scopes)
	keySet := oidc.NewRemoteKeySet(ctx, googleCertsURL)
	options = append([]ProviderOption{
		WithEndpoint(google.Endpoint),
		WithIDTokenVerifier(oidc.NewVerifier(googleIssuer, keySet, &oidc.Config{ClientID: cfg.ClientID})),
		WithProfileFetcher(UserInfoProfile(googleUserInfoURL)),
	}, options...)
	return NewOAuth2Provider("google", cfg, options...)
}

func (p *OAuth2Provider) Name() string {
	return p.name
}

// AuthCodeURL builds the provider authorize URL for req.
func (p *OAuth2Provider) AuthCodeURL(req AuthRequest) string {
	cfg := p.config
	cfg.RedirectURL = req.RedirectURL
	cfg.Scopes = mergeScopes(p.config.Scopes, req.Scopes)

	var opts []oauth2.AuthCodeOption
	if req.Verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(req.Verifier))
	}
	if req.LoginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", req.LoginHint))
	}
	return cfg.AuthCodeURL(req.State, opts...)
}

// Exchange trades code for tokens and reads the profile.
func (p *OAuth2Provider) Exchange(ctx context.Context, code, verifier, redirectURL string) (Profile, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}
	cfg := p.config
	cfg.RedirectURL = redirectURL

	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	token, err := cfg.Exchange(ctx, code, opts...)
	if err != nil {
		return Profile{}, errors.Wrapf(apperrors.ErrProviderReported, "[%s Exchange] %v", p.name, err)
	}

	var profile Profile
	if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" && p.idTokens != nil {
		idToken, err := p.idTokens.Verify(ctx, rawIDToken)
		if err != nil {
			return Profile{}, errors.Wrapf(apperrors.ErrForbidden, "[%s Exchange] id token: %v", p.name, err)
		}
		if err := idToken.Claims(&profile); err != nil {
			return Profile{}, errors.Wrapf(apperrors.ErrProviderReported, "[%s Exchange] claims: %v", p.name, err)
		}
	} else {
		if p.profile == nil {
			return Profile{}, errors.Wrapf(apperrors.ErrProviderReported, "[%s Exchange] no id token in response", p.name)
		}
		profile, err = p.profile(ctx, cfg.Client(ctx, token))
		if err != nil {
			return Profile{}, errors.Wrapf(err, "[%s Exchange] profile", p.name)
		}
	}

	if err := profile.Validate(); err != nil {
		return Profile{}, errors.Wrapf(err, "[%s Exchange]", p.name)
	}
	return profile, nil
}

// UserInfoProfile reads an OpenID Connect userinfo endpoint.
func UserInfoProfile(userInfoURL string) ProfileFetcher {
	return func(ctx context.Context, client *http.Client) (Profile, error) {
		var profile Profile
		if err := getJSON(ctx, client, userInfoURL, &profile); err != nil {
			return Profile{}, err
		}
		return profile, nil
	}
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubProfile reads the GitHub user. A private email is looked up in the user's
// email list, preferring the verified primary address.
func GitHubProfile(apiURL string) ProfileFetcher {
	return func(ctx context.Context, client *http.Client) (Profile, error) {
		var user githubUser
		if err := getJSON(ctx, client, apiURL+"/user", &user); err != nil {
			return Profile{}, err
		}
		profile := Profile{
			Subject: fmt.Sprintf("%d", user.ID),
			Email:   user.Email,
			Name:    user.Name,
			Image:   user.AvatarURL,
		}
		if profile.Name == "" {
			profile.Name = user.Login
		}

		var emails []githubEmail
		if err := getJSON(ctx, client, apiURL+"/user/emails", &emails); err != nil {
			if profile.Email != "" {
				return profile, nil
			}
			return Profile{}, err
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				profile.Email, profile.EmailVerified = e.Email, true
				return profile, nil
			}
		}
		for _, e := range emails {
			if e.Email == profile.Email {
				profile.EmailVerified = e.Verified
			}
		}
		return profile, nil
	}
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrapf(apperrors.ErrProviderReported, "GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Wrapf(apperrors.ErrProviderReported, "GET %s returned %d: %s", url, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(apperrors.ErrProviderReported, "decode %s: %v", url, err)
	}
	return nil
}
