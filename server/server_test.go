package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/jrsteele09/go-desktop-handoff/handoff"
	"github.com/jrsteele09/go-desktop-handoff/identity"
	"github.com/jrsteele09/go-desktop-handoff/identity/providerfake"
	"github.com/jrsteele09/go-desktop-handoff/internal/config"
	"github.com/jrsteele09/go-desktop-handoff/server"
	"github.com/jrsteele09/go-desktop-handoff/server/authflowrepo"
	"github.com/jrsteele09/go-desktop-handoff/sessions"
	"github.com/jrsteele09/go-desktop-handoff/sessions/repofakes"
	"github.com/jrsteele09/go-desktop-handoff/ticket"
	"github.com/jrsteele09/go-desktop-handoff/users"
	fakeuserrepo "github.com/jrsteele09/go-desktop-handoff/users/repofake"
	"github.com/stretchr/testify/require"
)

const (
	testSecret    = "server-secret-used-only-in-tests"
	testVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	appOrigin     = "app://app-renderer"
)

type testFixture struct {
	server   *server.Server
	opts     handoff.Options
	users    *fakeuserrepo.FakeUserRepo
	sessions *repofakes.SessionRepo
	flows    *authflowrepo.InMemoryRepo
	github   *providerfake.FakeProvider
	tickets  *ticket.Codec
	signer   *sessions.CookieSigner
	now      time.Time
}

func setupTestFixture(t *testing.T, mutate ...func(*handoff.Options)) *testFixture {
	t.Helper()
	return setupTestFixtureWith(t, nil, mutate...)
}

// setupTestFixtureWith builds the fixture with extra server options.
func setupTestFixtureWith(t *testing.T, serverOptions []server.Option, mutate ...func(*handoff.Options)) *testFixture {
	t.Helper()
	t.Setenv("HANDOFF_SECRET", testSecret)
	t.Setenv("ENV", "TEST")

	f := &testFixture{
		opts:     handoff.DefaultOptions(),
		users:    fakeuserrepo.NewFakeUserRepo(),
		sessions: repofakes.NewSessionRepo(),
		flows:    authflowrepo.NewInMemoryRepo(),
		github:   providerfake.NewFakeProvider("github"),
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, m := range mutate {
		m(&f.opts)
	}
	nowTime := func() time.Time { return f.now }

	var err error
	f.tickets, err = ticket.NewCodec([]byte(testSecret), ticket.WithNowTime(nowTime))
	require.NoError(t, err)
	f.signer, err = sessions.NewCookieSigner([]byte(testSecret))
	require.NoError(t, err)

	f.server, err = server.New(config.New(), f.opts,
		server.Repos{Users: f.users, Sessions: f.sessions, Flows: f.flows},
		identity.NewRegistry(f.github, providerfake.NewFakeProvider("google")),
		append([]server.Option{server.WithNowTime(nowTime)}, serverOptions...)...,
	)
	require.NoError(t, err)
	return f
}

// signedInUser stores a user with a live session and returns the session cookie.
func (f *testFixture) signedInUser(t *testing.T, email string) (*users.User, *http.Cookie) {
	t.Helper()
	user := users.NewUser(email, "Ada", f.now)
	require.NoError(t, f.users.Upsert(user))
	session, err := sessions.New(user.ID, "test", "127.0.0.1", time.Hour, f.now)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Create(session))
	value, err := f.signer.Sign(session.Token)
	require.NoError(t, err)
	return user, &http.Cookie{Name: sessions.CookieName, Value: value}
}

func (f *testFixture) mintTicket(t *testing.T, p ticket.Payload) string {
	t.Helper()
	tkt, err := f.tickets.Encrypt(p, f.opts.TicketTTL)
	require.NoError(t, err)
	return tkt
}

type request struct {
	method  string
	target  string
	body    any
	origin  string
	cookies []*http.Cookie
}

func (f *testFixture) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	return f.doWithHeader(t, req, "", "")
}

func (f *testFixture) doWithHeader(t *testing.T, req request, name, value string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if req.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(req.body))
	}
	r := httptest.NewRequest(req.method, req.target, &body)
	if req.body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if req.origin != "" {
		r.Header.Set("Origin", req.origin)
	}
	if name != "" {
		r.Header.Set(name, value)
	}
	for _, c := range req.cookies {
		r.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, r)
	return rec
}

func location(t *testing.T, rec *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	u, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return u
}

func TestNewRequiresSecret(t *testing.T) {
	t.Setenv("HANDOFF_SECRET", "")
	_, err := server.New(config.New(), handoff.DefaultOptions(),
		server.Repos{Users: fakeuserrepo.NewFakeUserRepo(), Sessions: repofakes.NewSessionRepo(), Flows: authflowrepo.NewInMemoryRepo()},
		identity.NewRegistry(),
	)
	require.Error(t, err)
}

func TestNewValidatesDependencies(t *testing.T) {
	t.Setenv("HANDOFF_SECRET", testSecret)
	_, err := server.New(config.New(), handoff.DefaultOptions(), server.Repos{}, identity.NewRegistry())
	require.Error(t, err)

	_, err = server.New(config.New(), handoff.Options{},
		server.Repos{Users: fakeuserrepo.NewFakeUserRepo(), Sessions: repofakes.NewSessionRepo(), Flows: authflowrepo.NewInMemoryRepo()},
		identity.NewRegistry(),
	)
	require.Error(t, err)
}

func TestCorsPreflightAllowsAppOrigin(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, request{method: http.MethodOptions, target: "/desktop/exchange", origin: appOrigin})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, appOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = f.do(t, request{method: http.MethodOptions, target: "/desktop/exchange", origin: "https://evil.example.com"})
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRelaxCookie(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "a=b; Path=/; SameSite=Lax", want: "a=b; Path=/; SameSite=None; Secure"},
		{in: "a=b; samesite=strict; Secure", want: "a=b; SameSite=None; Secure"},
		{in: "a=b; SameSite = Lax; HttpOnly", want: "a=b; SameSite=None; HttpOnly; Secure"},
		{in: "a=b; HttpOnly", want: "a=b; HttpOnly; SameSite=None; Secure"},
		{in: "a=b; SameSite=None; Secure; HttpOnly", want: "a=b; SameSite=None; Secure; HttpOnly"},
		{in: "secure=1", want: "secure=1; SameSite=None; Secure"},
		{in: "pref=samesite=strict; Path=/", want: "pref=samesite=strict; Path=/; SameSite=None; Secure"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, server.RelaxCookie(tt.in, true), tt.in)
	}
}

func TestRelaxCookieOverPlainHTTP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "a=b; Path=/; HttpOnly; Secure; SameSite=None", want: "a=b; Path=/; HttpOnly"},
		{in: "a=b; Secure", want: "a=b"},
		{in: "a=b; SameSite=Lax; Path=/", want: "a=b; Path=/"},
		{in: "secure=1; Path=/", want: "secure=1; Path=/"},
		{in: "pref=samesite=strict", want: "pref=samesite=strict"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, server.RelaxCookie(tt.in, false), tt.in)
	}
}

func TestPurgeExpired(t *testing.T) {
	f := setupTestFixture(t)
	f.signedInUser(t, "ada@example.com")
	require.NoError(t, f.flows.Upsert("state-1", &authflowrepo.FlowState{Provider: "github", ExpiresAt: f.now.Add(time.Minute)}))

	f.now = f.now.Add(2 * time.Hour)
	f.server.PurgeExpired()

	require.Zero(t, f.sessions.Count())
	_, err := f.flows.Get("state-1")
	require.Error(t, err)
}
