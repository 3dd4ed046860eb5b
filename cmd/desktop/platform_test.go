package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-desktop-handoff/handoff"
	"github.com/stretchr/testify/require"
)

func TestAppHostBridgeRewritesHost(t *testing.T) {
	var seen string
	h := appHostBridge("app.local", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Host
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "http://127.0.0.1:4000/index.html", nil))
	require.Equal(t, "app.local", seen)
}

func TestPlatformServesProtocolHandler(t *testing.T) {
	p := newPlatform(context.Background(), filepath.Join(t.TempDir(), "instance.lock"), "127.0.0.1:0", "app.local")
	t.Cleanup(p.Close)

	require.True(t, p.RequestSingleInstanceLock())
	require.NoError(t, p.HandleProtocol("app", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Host)
	})))

	resp, err := http.Get(p.uiURL + "/index.html")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "app.local", string(body))
}

func TestPlatformOpenURLAndQuit(t *testing.T) {
	p := newPlatform(context.Background(), filepath.Join(t.TempDir(), "instance.lock"), "127.0.0.1:0", "app.local")
	t.Cleanup(p.Close)

	p.OpenURL("app://ignored")
	var got string
	p.OnOpenURL(func(url string) { got = url })
	p.OpenURL("app://app.local/?ticket=t")
	require.Equal(t, "app://app.local/?ticket=t", got)

	p.Quit()
	select {
	case <-p.Done():
	default:
		t.Fatal("platform should be done after Quit")
	}
}

func TestShellExecQuitAndHelp(t *testing.T) {
	var out bytes.Buffer
	s := &shell{opts: handoff.DefaultOptions(), out: &out}

	require.False(t, s.exec(context.Background(), ""))
	require.Empty(t, out.String())

	require.False(t, s.exec(context.Background(), "bogus"))
	require.Contains(t, out.String(), "login <provider>")
	require.NotContains(t, out.String(), "${scheme}")

	require.True(t, s.exec(context.Background(), "quit"))
	require.True(t, s.exec(context.Background(), "exit"))
}
