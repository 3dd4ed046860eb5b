package host

import (
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json"

// StaticHandler serves the built UI for ${scheme}://${appHost}/ requests.
type StaticHandler struct {
	root    string
	appHost string
}

// NewStaticHandler serves files below root for appHost.
func NewStaticHandler(root, appHost string) *StaticHandler {
	return &StaticHandler{root: filepath.Clean(root), appHost: appHost}
}

func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Hostname()
	if host == "" {
		host = hostOnly(r.Host)
	}
	if host != h.appHost {
		http.Error(w, "Forbidden Host", http.StatusForbidden)
		return
	}

	target := filepath.Join(h.root, filepath.FromSlash(r.URL.Path))
	rel, err := filepath.Rel(h.root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		http.Error(w, "Access Denied", http.StatusForbidden)
		return
	}

	file, ok := resolve(target)
	if !ok {
		switch filepath.Ext(target) {
		case ".html", ".asar":
			file = filepath.Join(h.root, "index.html")
		default:
			http.Error(w, "File Not Found", http.StatusNotFound)
			return
		}
	}

	f, err := os.Open(file)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "File Not Found", http.StatusNotFound)
			return
		}
		log.Err(err).Str("path", file).Msg("protocol IO error")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		log.Err(err).Str("path", file).Msg("protocol IO error")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if strings.HasSuffix(file, ".map") {
		w.Header().Set("Content-Type", contentTypeJSON)
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// resolve returns path itself when it is a file, or its index.html when it is a directory.
func resolve(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if !info.IsDir() {
		return path, true
	}
	index := filepath.Join(path, "index.html")
	if info, err := os.Stat(index); err == nil && !info.IsDir() {
		return index, true
	}
	return "", false
}

func hostOnly(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}
