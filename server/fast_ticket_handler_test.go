package server_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/jrsteele09/go-desktop-handoff/server"
	"github.com/jrsteele09/go-desktop-handoff/ticket"
	"github.com/stretchr/testify/require"
)

func TestFastTicketRedirectsToDeepLink(t *testing.T) {
	f := setupTestFixture(t)
	user, cookie := f.signedInUser(t, "ada@example.com")

	rec := f.do(t, request{
		method:  http.MethodPost,
		target:  "/desktop/fastTicket",
		origin:  appOrigin,
		cookies: []*http.Cookie{cookie},
		body:    server.FastTicketRequest{UserID: user.ID, Scheme: "app", Provider: "github", Challenge: testChallenge},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp server.FastTicketResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	link, err := url.Parse(resp.Redirect)
	require.NoError(t, err)
	require.Equal(t, "app", link.Scheme)
	require.Equal(t, "auth-callback", link.Host)
	require.Equal(t, "succeed", link.Query().Get("status"))
	require.Equal(t, testChallenge, link.Query().Get("challenge"))

	payload, err := f.tickets.DecryptPayload(link.Query().Get("ticket"))
	require.NoError(t, err)
	require.Equal(t, user.ID, payload.UserID)
	require.Equal(t, "github", payload.Provider)
	require.Empty(t, payload.Status)
}

func TestFastTicketForeignUserIsForbidden(t *testing.T) {
	f := setupTestFixture(t)
	_, cookie := f.signedInUser(t, "ada@example.com")
	other, _ := f.signedInUser(t, "eve@example.com")

	rec := f.do(t, request{
		method:  http.MethodPost,
		target:  "/desktop/fastTicket",
		origin:  appOrigin,
		cookies: []*http.Cookie{cookie},
		body:    server.FastTicketRequest{UserID: other.ID, Scheme: "app", Provider: "github", Challenge: testChallenge},
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.NotContains(t, rec.Body.String(), "redirect")
}

func TestFastTicketRejections(t *testing.T) {
	f := setupTestFixture(t)
	user, cookie := f.signedInUser(t, "ada@example.com")

	tests := []struct {
		name    string
		body    server.FastTicketRequest
		cookies []*http.Cookie
		want    int
	}{
		{name: "no session", body: server.FastTicketRequest{UserID: user.ID, Scheme: "app", Provider: "github", Challenge: testChallenge}, want: http.StatusUnauthorized},
		{name: "forged cookie", body: server.FastTicketRequest{UserID: user.ID, Scheme: "app", Provider: "github", Challenge: testChallenge}, cookies: []*http.Cookie{{Name: cookie.Name, Value: "token.c2ln"}}, want: http.StatusUnauthorized},
		{name: "unknown provider", body: server.FastTicketRequest{UserID: user.ID, Scheme: "app", Provider: "gitlab", Challenge: testChallenge}, cookies: []*http.Cookie{cookie}, want: http.StatusBadRequest},
		{name: "short challenge", body: server.FastTicketRequest{UserID: user.ID, Scheme: "app", Provider: "github", Challenge: "abc"}, cookies: []*http.Cookie{cookie}, want: http.StatusBadRequest},
		{name: "bad userid", body: server.FastTicketRequest{UserID: "a b", Scheme: "app", Provider: "github", Challenge: testChallenge}, cookies: []*http.Cookie{cookie}, want: http.StatusBadRequest},
		{name: "foreign scheme", body: server.FastTicketRequest{UserID: user.ID, Scheme: "evil", Provider: "github", Challenge: testChallenge}, cookies: []*http.Cookie{cookie}, want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, request{method: http.MethodPost, target: "/desktop/fastTicket", origin: appOrigin, cookies: tt.cookies, body: tt.body})
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy unavailable")
}

func TestFastTicketMintFailureIsForbidden(t *testing.T) {
	f := setupTestFixtureWith(t, []server.Option{server.WithTicketOptions(ticket.WithRandom(failingReader{}))})
	user, cookie := f.signedInUser(t, "ada@example.com")

	rec := f.do(t, request{
		method:  http.MethodPost,
		target:  "/desktop/fastTicket",
		origin:  appOrigin,
		cookies: []*http.Cookie{cookie},
		body:    server.FastTicketRequest{UserID: user.ID, Scheme: "app", Provider: "github", Challenge: testChallenge},
	})
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	require.NotContains(t, rec.Body.String(), "redirect")
}

func TestDesktopLoginMintFailureIsForbidden(t *testing.T) {
	f := setupTestFixtureWith(t, []server.Option{server.WithTicketOptions(ticket.WithRandom(failingReader{}))})
	_, cookie := f.signedInUser(t, "ada@example.com")

	rec := f.do(t, request{
		method:  http.MethodGet,
		target:  "/desktop/login?scheme=app&provider=github&challenge=" + testChallenge,
		cookies: []*http.Cookie{cookie},
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, rec.Header().Get("Location"))
}
