package config

import (
	"sort"
	"strings"
)

type Cors struct{}

var _ CorsConfig = Cors{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

// With returns a copy of a that also allows origins.
func (a AllowedOrigins) With(origins ...string) AllowedOrigins {
	out := make(AllowedOrigins, len(a)+len(origins))
	for k := range a {
		out[k] = nullValue{}
	}
	for _, o := range origins {
		out[o] = nullValue{}
	}
	return out
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	sort.Strings(origins)
	return strings.Join(origins, ", ")
}

// GetAllowedOrigins reads CORS_ORIGINS; the desktop app origin is added by the server.
func (Cors) GetAllowedOrigins() AllowedOrigins {
	return AllowedOrigins{}.With(GetEnvList("CORS_ORIGINS", []string{"http://localhost:3001"})...)
}

func (Cors) GetAllowedMethods() string {
	return "GET, POST, OPTIONS"
}

func (Cors) GetAllowedHeaders() string {
	return "Content-Type, Authorization"
}
