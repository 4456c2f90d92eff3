package middleware

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/httputil"
)

// OriginMiddleware rejects requests whose Origin header is not in the
// allow-list. Requests without an Origin header (same-origin, curl) pass
// through; browsers attach the header on all cross-origin requests, which is
// the case this gate exists for.
type OriginMiddleware struct {
	allowed map[string]struct{}
	logger  *logrus.Logger
}

// NewOriginMiddleware creates the origin gate.
func NewOriginMiddleware(allowedOrigins []string, logger *logrus.Logger) *OriginMiddleware {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &OriginMiddleware{allowed: allowed, logger: logger}
}

// Handler wraps an HTTP handler with the origin check.
func (m *OriginMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if _, ok := m.allowed[origin]; !ok {
				m.logger.WithField("origin", origin).Warn("rejected request from disallowed origin")
				httputil.WriteForbidden(w, "origin not allowed")
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		next.ServeHTTP(w, r)
	})
}
