package host_test

import (
	"net/url"
	"sync"
	"testing"

	"github.com/jrsteele09/go-desktop-handoff/handoff"
	"github.com/jrsteele09/go-desktop-handoff/host"
	"github.com/jrsteele09/go-desktop-handoff/host/browser"
	"github.com/stretchr/testify/require"
)

type recordingOpener struct {
	mu     sync.Mutex
	opened []string
}

func (r *recordingOpener) Open(u string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, u)
	return nil
}

func (r *recordingOpener) urls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.opened...)
}

func setupPolicy(t *testing.T, override host.OpenHandler) (*host.OpenPolicy, *recordingOpener) {
	t.Helper()
	opener := &recordingOpener{}
	policy, err := host.NewOpenPolicy(handoff.DefaultOptions(), staticVerifiers{verifier: testVerifier}, opener, override)
	require.NoError(t, err)
	return policy, opener
}

func TestLoginURLOpensBrowserWithChallenge(t *testing.T) {
	policy, opener := setupPolicy(t, nil)

	action := policy.Decide("http://localhost:8080/desktop/login?provider=github")
	require.Equal(t, host.OpenDeny, action)
	policy.Wait()

	opened := opener.urls()
	require.Len(t, opened, 1)
	u, err := url.Parse(opened[0])
	require.NoError(t, err)
	require.Equal(t, "/desktop/login", u.Path)
	require.Equal(t, "github", u.Query().Get("provider"))
	require.Equal(t, testChallenge, u.Query().Get("challenge"))
	require.Equal(t, "app", u.Query().Get("scheme"))
}

func TestLoginURLWithBadProviderOpensNothing(t *testing.T) {
	policy, opener := setupPolicy(t, nil)

	require.Equal(t, host.OpenDeny, policy.Decide("http://localhost:8080/desktop/login"))
	require.Equal(t, host.OpenDeny, policy.Decide("http://localhost:8080/desktop/login?provider=myspace"))
	policy.Wait()
	require.Empty(t, opener.urls())
}

func TestOpenPolicyDecisions(t *testing.T) {
	policy, opener := setupPolicy(t, nil)

	tests := []struct {
		url      string
		action   host.OpenAction
		external bool
	}{
		{url: "https://example.com/docs", action: host.OpenDeny, external: true},
		{url: "mailto:someone@example.com", action: host.OpenDeny, external: true},
		{url: "tel:+4412345", action: host.OpenDeny, external: true},
		{url: "app://app-renderer/settings", action: host.OpenDeny},
		{url: "file:///etc/passwd", action: host.OpenDeny},
		{url: "javascript:alert(1)", action: host.OpenDeny},
		{url: "blob:app://app-renderer/1234", action: host.OpenAllow},
		{url: "ftp://example.com", action: host.OpenDeny},
	}
	var external []string
	for _, tt := range tests {
		require.Equal(t, tt.action, policy.Decide(tt.url), tt.url)
		if tt.external {
			external = append(external, tt.url)
		}
	}
	policy.Wait()
	require.ElementsMatch(t, external, opener.urls())
}

func TestOpenPolicyOverride(t *testing.T) {
	policy, opener := setupPolicy(t, func(string) host.OpenAction { return host.OpenAllow })
	require.Equal(t, host.OpenAllow, policy.Decide("https://example.com"))
	policy.Wait()
	require.Empty(t, opener.urls())
}

func TestNewOpenPolicyRequiresDeps(t *testing.T) {
	_, err := host.NewOpenPolicy(handoff.DefaultOptions(), nil, browser.System{}, nil)
	require.Error(t, err)
	_, err = host.NewOpenPolicy(handoff.DefaultOptions(), staticVerifiers{}, nil, nil)
	require.Error(t, err)
}
