// Package server implements the staging-side half of the validation
// protocol: the endpoint the CMS bridge calls, behind origin allow-listing
// and rate limiting.
package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/config"
	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/httputil"
	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/middleware"
	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/observability"
	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/platform"
)

// Options wires the router's dependencies.
type Options struct {
	Snapshot        *config.Snapshot
	Secret          []byte
	AuthorizedRoles []string
	Clock           platform.Clock
	Logger          *logrus.Logger
	Metrics         *observability.Metrics
	RateLimit       *middleware.RateLimitConfig
}

// NewRouter builds the staging auth router: the validate endpoint from the
// configured path, a liveness probe, and Prometheus metrics.
func NewRouter(opts Options) *mux.Router {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	var snapshot *config.Snapshot
	if opts.Snapshot != nil {
		// Own a copy: a caller mutating its snapshot after building the
		// router must not change the allow-list or routes under us.
		snapshot = opts.Snapshot.Clone()
	} else {
		defaults := config.Defaults()
		snapshot = &defaults
	}

	validate := NewValidateHandler(opts.Secret, opts.AuthorizedRoles, opts.Clock, opts.Logger)

	origin := middleware.NewOriginMiddleware(snapshot.Security.AllowedOrigins, opts.Logger)
	rateLimit := middleware.NewRateLimiter(opts.RateLimit)

	var validateChain http.Handler = validate
	validateChain = rateLimit.Handler(validateChain)
	validateChain = origin.Handler(validateChain)
	validateChain = otelhttp.NewHandler(validateChain, "validate-session")

	r := mux.NewRouter()
	r.Handle(snapshot.URLs.APIEndpoints.ValidateV3, validateChain).Methods(http.MethodPost)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteSuccess(w, map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}
