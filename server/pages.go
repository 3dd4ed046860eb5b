package server

import (
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

var (
	errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.AppName}} - sign-in error</title></head>
<body>
<h1>{{.Title}}</h1>
<p>The sign-in link is not valid. Return to {{.AppName}} and try again.</p>
</body>
</html>
`))

	handoffPage = template.Must(template.New("handoff").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.AppName}}</title></head>
<body>
{{if eq .Status "error"}}<h1>Sign-in failed</h1>
<p>Return to {{.AppName}} and try again.</p>
{{else}}<h1>Signed in</h1>
<p>You can close this tab and return to {{.AppName}}.</p>
{{end}}</body>
</html>
`))
)

type pageData struct {
	AppName string
	Title   string
	Status  string
}

// renderError logs err and renders a plain error page with status.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, err error) {
	logError(r.Method, r.URL.Path, err)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = errorPage.Execute(w, pageData{AppName: s.opts.AppName, Title: http.StatusText(status)})
}

// HandoffPageHandler is where web sign-ins that were not intercepted land.
func (s *Server) HandoffPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := handoffPage.Execute(w, pageData{
			AppName: s.opts.AppName,
			Status:  r.URL.Query().Get(s.opts.StatusParam),
		}); err != nil {
			log.Err(err).Msg("failed to render handoff page")
		}
	}
}
