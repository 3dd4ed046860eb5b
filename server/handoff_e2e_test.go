package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/jrsteele09/go-desktop-handoff/host"
	"github.com/jrsteele09/go-desktop-handoff/host/ipc"
	"github.com/jrsteele09/go-desktop-handoff/pkce"
	"github.com/jrsteele09/go-desktop-handoff/renderer"
	"github.com/jrsteele09/go-desktop-handoff/verifier"
	"github.com/stretchr/testify/require"
)

// TestDesktopHandoffEndToEnd drives a whole sign-in: the host's verifier store and gateway,
// a browser walking the backend's web flow, and the UI's negotiator exchanging the ticket.
func TestDesktopHandoffEndToEnd(t *testing.T) {
	f := setupTestFixture(t)
	ts := httptest.NewTLSServer(f.server)
	defer ts.Close()

	opts := f.opts
	opts.BackendURL = ts.URL

	// host side
	store, err := verifier.NewStore(t.TempDir())
	require.NoError(t, err)
	hostPort, uiPort := ipc.NewPair("host", "renderer")
	gateway, err := host.NewGateway(opts, host.NewHostSessionState(), store)
	require.NoError(t, err)
	hostPort.On(opts.AppMountedEvent, func(e ipc.Event, _ json.RawMessage) { gateway.HandleAppMounted(e) })

	v, err := store.Get()
	require.NoError(t, err)
	challenge := pkce.Challenge(v)

	// browser side
	browser := *ts.Client()
	browser.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	get := func(target string) *url.URL {
		t.Helper()
		resp, err := browser.Get(target)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusFound, resp.StatusCode)
		loc, err := resp.Location()
		require.NoError(t, err)
		return loc
	}

	login := get(ts.URL + "/desktop/login?" + url.Values{
		"scheme": {"app"}, "provider": {"github"}, "challenge": {challenge},
	}.Encode())
	authorize := get(login.String())
	require.Equal(t, "github.provider.test", authorize.Host)

	f.github.AddCode("code-e2e", adaProfile)
	f.github.Bind("code-e2e", authorize.Query().Get("code_challenge"))
	deepLink := get(ts.URL + "/auth/callback/github?" + url.Values{
		"state": {authorize.Query().Get("state")}, "code": {"code-e2e"},
	}.Encode())
	require.Equal(t, "app", deepLink.Scheme)

	// the OS launches the app with the deep link before the UI exists
	gateway.HandleColdStart([]string{"/Applications/Desktop", deepLink.String()})

	// UI side
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	uiHTTP := *ts.Client()
	uiHTTP.Jar = jar
	client := renderer.NewClient(opts, &uiHTTP)
	negotiator, err := renderer.NewNegotiator(opts, uiPort, client, renderer.WithState(renderer.NewRendererHandoffState()))
	require.NoError(t, err)

	newUser := make(chan renderer.UserSession, 1)
	failures := make(chan error, 1)
	negotiator.OnNewUser(func(us renderer.UserSession) { newUser <- us })
	negotiator.OnFailure(func(err error) { failures <- err })
	require.True(t, negotiator.Attach())
	negotiator.Wait()

	select {
	case err := <-failures:
		t.Fatalf("handoff failed: %v", err)
	case us := <-newUser:
		require.Equal(t, "ada@example.com", us.User.Email)
		require.Equal(t, f.now.Add(opts.SessionDuration), us.Session.ExpiresAt.UTC())
	}

	// the exchange cookie authenticates the UI from now on
	current, err := client.Session(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", current.User.Email)

	require.NoError(t, client.SignOut(context.Background()))
	_, err = client.Session(context.Background())
	require.Error(t, err)
}
