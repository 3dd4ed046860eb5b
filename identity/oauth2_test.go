package identity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/jrsteele09/go-desktop-handoff/identity"
	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/jrsteele09/go-desktop-handoff/pkce"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	testRedirect  = "http://localhost:8080/auth/callback/test"
)

type testFixture struct {
	server   *httptest.Server
	provider *identity.OAuth2Provider
	userInfo map[string]any
	emails   []map[string]any
}

func setupTestFixture(t *testing.T, fetcher func(baseURL string) identity.ProfileFetcher) *testFixture {
	t.Helper()
	f := &testFixture{
		userInfo: map[string]any{"sub": "42", "email": "ada@example.com", "email_verified": true, "name": "Ada"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" || r.PostForm.Get("code_verifier") != testVerifier {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		require.Equal(t, testRedirect, r.PostForm.Get("redirect_uri"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-123","token_type":"bearer"}`))
	})
	writeJSON := func(w http.ResponseWriter, r *http.Request, v any) {
		require.Equal(t, "Bearer access-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(v))
	}
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) { writeJSON(w, r, f.userInfo) })
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) { writeJSON(w, r, f.userInfo) })
	mux.HandleFunc("GET /user/emails", func(w http.ResponseWriter, r *http.Request) { writeJSON(w, r, f.emails) })

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	provider, err := identity.NewOAuth2Provider("test", identity.Config{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		Scopes:       []string{"openid", "email"},
	},
		identity.WithEndpoint(oauth2.Endpoint{
			AuthURL:   f.server.URL + "/authorize",
			TokenURL:  f.server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}),
		identity.WithProfileFetcher(fetcher(f.server.URL)),
		identity.WithHTTPClient(f.server.Client()),
	)
	require.NoError(t, err)
	f.provider = provider
	return f
}

func userInfoAt(baseURL string) identity.ProfileFetcher {
	return identity.UserInfoProfile(baseURL + "/userinfo")
}

func TestNewOAuth2ProviderValidates(t *testing.T) {
	_, err := identity.NewOAuth2Provider("", identity.Config{ClientID: "c"})
	require.Error(t, err)
	_, err = identity.NewOAuth2Provider("x", identity.Config{})
	require.Error(t, err)
	_, err = identity.NewOAuth2Provider("x", identity.Config{ClientID: "c"}, identity.WithProfileFetcher(userInfoAt("http://x")))
	require.Error(t, err, "endpoint is required")
	_, err = identity.NewOAuth2Provider("x", identity.Config{ClientID: "c"},
		identity.WithEndpoint(oauth2.Endpoint{AuthURL: "http://x/a", TokenURL: "http://x/t"}))
	require.Error(t, err, "profile source is required")
}

func TestAuthCodeURL(t *testing.T) {
	f := setupTestFixture(t, userInfoAt)

	raw := f.provider.AuthCodeURL(identity.AuthRequest{
		State:       "state-1",
		Verifier:    testVerifier,
		RedirectURL: testRedirect,
		LoginHint:   "ada@example.com",
		Scopes:      []string{"email", "calendar"},
	})
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()

	require.Equal(t, f.server.URL+"/authorize", u.Scheme+"://"+u.Host+u.Path)
	require.Equal(t, "client-1", q.Get("client_id"))
	require.Equal(t, "state-1", q.Get("state"))
	require.Equal(t, testRedirect, q.Get("redirect_uri"))
	require.Equal(t, testChallenge, q.Get("code_challenge"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, "ada@example.com", q.Get("login_hint"))
	require.Equal(t, "openid email calendar", q.Get("scope"))
}

func TestExchangeReadsUserInfo(t *testing.T) {
	f := setupTestFixture(t, userInfoAt)

	profile, err := f.provider.Exchange(context.Background(), "good-code", testVerifier, testRedirect)
	require.NoError(t, err)
	require.Equal(t, identity.Profile{Subject: "42", Email: "ada@example.com", EmailVerified: true, Name: "Ada"}, profile)
}

func TestExchangeRejectsBadCode(t *testing.T) {
	f := setupTestFixture(t, userInfoAt)

	_, err := f.provider.Exchange(context.Background(), "bad-code", testVerifier, testRedirect)
	require.ErrorIs(t, err, apperrors.ErrProviderReported)

	_, err = f.provider.Exchange(context.Background(), "good-code", "wrong-verifier", testRedirect)
	require.ErrorIs(t, err, apperrors.ErrProviderReported)
}

func TestExchangeRequiresEmail(t *testing.T) {
	f := setupTestFixture(t, userInfoAt)
	delete(f.userInfo, "email")

	_, err := f.provider.Exchange(context.Background(), "good-code", testVerifier, testRedirect)
	require.ErrorIs(t, err, apperrors.ErrInvalidParameter)
}

func TestGitHubProfileUsesPrimaryVerifiedEmail(t *testing.T) {
	f := setupTestFixture(t, identity.GitHubProfile)
	f.userInfo = map[string]any{"id": 1234, "login": "ada", "avatar_url": "https://avatars.test/ada"}
	f.emails = []map[string]any{
		{"email": "old@example.com", "primary": false, "verified": true},
		{"email": "ada@example.com", "primary": true, "verified": true},
	}

	profile, err := f.provider.Exchange(context.Background(), "good-code", testVerifier, testRedirect)
	require.NoError(t, err)
	require.Equal(t, identity.Profile{
		Subject:       "1234",
		Email:         "ada@example.com",
		EmailVerified: true,
		Name:          "ada",
		Image:         "https://avatars.test/ada",
	}, profile)
}

func TestBuiltInProviders(t *testing.T) {
	gh, err := identity.NewGitHubProvider(identity.Config{ClientID: "gh"})
	require.NoError(t, err)
	require.Equal(t, "github", gh.Name())
	u, err := url.Parse(gh.AuthCodeURL(identity.AuthRequest{State: "s", Verifier: testVerifier, RedirectURL: testRedirect}))
	require.NoError(t, err)
	require.Equal(t, "github.com", u.Host)
	require.Equal(t, "read:user user:email", u.Query().Get("scope"))

	g, err := identity.NewGoogleProvider(context.Background(), identity.Config{ClientID: "g"})
	require.NoError(t, err)
	require.Equal(t, "google", g.Name())
	u, err = url.Parse(g.AuthCodeURL(identity.AuthRequest{State: "s", Verifier: testVerifier, RedirectURL: testRedirect}))
	require.NoError(t, err)
	require.Equal(t, "accounts.google.com", u.Host)
	require.Equal(t, "openid email profile", u.Query().Get("scope"))
	require.Equal(t, pkce.Challenge(testVerifier), u.Query().Get("code_challenge"))
}

func TestRegistry(t *testing.T) {
	gh, err := identity.NewGitHubProvider(identity.Config{ClientID: "gh"})
	require.NoError(t, err)
	r := identity.NewRegistry(gh)

	p, err := r.Get("github")
	require.NoError(t, err)
	require.Equal(t, "github", p.Name())

	_, err = r.Get("gitlab")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.Equal(t, []string{"github"}, r.Names())
}
