package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-desktop-handoff/handoff"
	"github.com/jrsteele09/go-desktop-handoff/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaultsMatchHandoffDefaults(t *testing.T) {
	c := config.New()
	opts := config.HandoffOptions(c)
	defaults := handoff.DefaultOptions()

	require.Equal(t, defaults.Scheme, opts.Scheme)
	require.Equal(t, defaults.Providers, opts.Providers)
	require.Equal(t, defaults.TicketTTL, opts.TicketTTL)
	require.Equal(t, "http://localhost:8080", opts.BackendURL)
	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", ":9000")
	t.Setenv("HANDOFF_SCHEME", "myapp")
	t.Setenv("HANDOFF_PROVIDERS", "github, gitlab,")
	t.Setenv("HANDOFF_SESSION_DURATION", "24h")
	t.Setenv("HANDOFF_TICKET_TTL", "nonsense")
	t.Setenv("HANDOFF_LAZY_READY_SIGNAL", "yes")
	t.Setenv("HANDOFF_INJECT_HEADERS", "1")
	t.Setenv("GITHUB_CLIENT_ID", "gh-id")
	t.Setenv("GITHUB_SCOPES", "repo,gist")

	c := config.New()
	opts := config.HandoffOptions(c)
	require.Equal(t, ":9000", c.GetPort())
	require.Equal(t, "myapp", opts.Scheme)
	require.Equal(t, []string{"github", "gitlab"}, opts.Providers)
	require.Equal(t, 24*time.Hour, opts.SessionDuration)
	require.Equal(t, 300*time.Second, opts.TicketTTL)
	require.True(t, opts.LazyReadySignal)
	require.True(t, opts.InjectBackendHeaders)

	gh, ok := c.GetProviderConfig("github")
	require.True(t, ok)
	require.Equal(t, "gh-id", gh.ClientID)
	require.Equal(t, []string{"repo", "gist"}, gh.Scopes)

	_, ok = c.GetProviderConfig("google")
	require.False(t, ok)
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "https://web.example.com")
	origins := config.New().GetAllowedOrigins().With("app://app-renderer")
	require.True(t, origins.IsAllowedOrigin("app://app-renderer"))
	require.True(t, origins.IsAllowedOrigin("https://web.example.com"))
	require.False(t, origins.IsAllowedOrigin("https://evil.example.com"))
	require.Equal(t, "app://app-renderer, https://web.example.com", origins.String())
}

func TestLoadReadsEnvFileAndYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	yamlFile := filepath.Join(dir, "handoff.yaml")
	require.NoError(t, os.WriteFile(envFile, []byte("HANDOFF_APP_HOST=env-host\nHANDOFF_SECRET=from-env-file\n"), 0o600))
	require.NoError(t, os.WriteFile(yamlFile, []byte("handoff_app_host: yaml-host\nhandoff_callback_host: yaml-callback\nhandoff_providers:\n  - google\n  - github\n"), 0o600))

	// t.Setenv restores these after the test; Load only sets unset variables
	for _, name := range []string{"HANDOFF_APP_HOST", "HANDOFF_SECRET", "HANDOFF_CALLBACK_HOST", "HANDOFF_PROVIDERS"} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
	t.Setenv("HANDOFF_CONFIG", yamlFile)

	c, err := config.Load(envFile, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	opts := config.HandoffOptions(c)
	require.Equal(t, "env-host", opts.AppHost)
	require.Equal(t, "yaml-callback", opts.CallbackHost)
	require.Equal(t, []string{"google", "github"}, opts.Providers)
	require.Equal(t, []byte("from-env-file"), c.GetSecret())
}
