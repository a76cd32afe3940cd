package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// Headers browsers may read from API responses. Location and Retry-After
// drive job polling after a 202.
var exposedHeaders = []string{"Location", "Retry-After", requestIDHeader}

var allowedRequestHeaders = []string{"Accept", "Content-Type", "Idempotency-Key", requestIDHeader}

// CORSConfig lists the browser origins allowed to call the API. "*"
// allows any origin.
type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         int
}

type originPolicy struct {
	any     bool
	origins map[string]struct{}
}

func newOriginPolicy(values []string) originPolicy {
	policy := originPolicy{origins: make(map[string]struct{}, len(values))}
	for _, raw := range values {
		origin := strings.ToLower(strings.TrimRight(strings.TrimSpace(raw), "/"))
		switch origin {
		case "":
		case "*":
			policy.any = true
		default:
			policy.origins[origin] = struct{}{}
		}
	}
	return policy
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when the origin is not allowed.
func (p originPolicy) allowOrigin(origin string) string {
	if p.any {
		return "*"
	}
	if _, ok := p.origins[strings.ToLower(origin)]; ok {
		return origin
	}
	return ""
}

func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	policy := newOriginPolicy(cfg.AllowedOrigins)
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 600
	}
	preflight := map[string]string{
		"Access-Control-Allow-Methods": strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", "),
		"Access-Control-Allow-Headers": strings.Join(allowedRequestHeaders, ", "),
		"Access-Control-Max-Age":       strconv.Itoa(maxAge),
	}
	expose := strings.Join(exposedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			allowed := ""
			if origin != "" {
				allowed = policy.allowOrigin(origin)
			}
			if allowed == "" {
				next.ServeHTTP(w, r)
				return
			}

			header := w.Header()
			header.Add("Vary", "Origin")
			header.Set("Access-Control-Allow-Origin", allowed)

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				header.Set("Access-Control-Expose-Headers", expose)
				next.ServeHTTP(w, r)
				return
			}

			header.Add("Vary", "Access-Control-Request-Method")
			header.Add("Vary", "Access-Control-Request-Headers")
			for key, value := range preflight {
				header.Set(key, value)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
