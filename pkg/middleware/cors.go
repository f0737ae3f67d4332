package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// The account API is called with bearer tokens in the Authorization header,
// never with cookies, so credentialed CORS is never enabled and the method
// and header lists are fixed to what the routes accept.
const (
	corsAllowMethods  = "GET, POST, PUT"
	corsAllowHeaders  = "Authorization, Content-Type, " + CorrelationHeader
	corsExposeHeaders = CorrelationHeader + ", Retry-After"
)

// CORSConfig selects which browser origins may call the API.
type CORSConfig struct {
	// AllowedOrigins lists exact origins such as "https://admin.example.com".
	// A "*" entry allows any origin.
	AllowedOrigins []string

	// MaxAge is how long browsers may cache a preflight answer. Zero means
	// one hour.
	MaxAge time.Duration
}

// DefaultCORSConfig allows any origin. It suits local development.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{AllowedOrigins: []string{"*"}, MaxAge: time.Hour}
}

// AllowsAnyOrigin reports whether the config contains the "*" wildcard.
func (c CORSConfig) AllowsAnyOrigin() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

// CORS answers preflight requests and adds the Access-Control headers to
// responses for allowed origins. Requests from other origins get no CORS
// headers and are left to the browser to block.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	anyOrigin := cfg.AllowsAnyOrigin()
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[strings.TrimRight(strings.TrimSpace(o), "/")] = struct{}{}
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}
	maxAge := strconv.Itoa(int(cfg.MaxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			h := w.Header()
			if !anyOrigin {
				h.Add("Vary", "Origin")
			}

			_, listed := origins[origin]
			if origin != "" && (anyOrigin || listed) {
				if anyOrigin {
					h.Set("Access-Control-Allow-Origin", "*")
				} else {
					h.Set("Access-Control-Allow-Origin", origin)
				}
				if preflight {
					h.Set("Access-Control-Allow-Methods", corsAllowMethods)
					h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
					h.Set("Access-Control-Max-Age", maxAge)
				} else {
					h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
				}
			}

			if preflight {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
