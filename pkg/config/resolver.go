package config

import (
	"context"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/observability"
)

// Resolver builds and caches the merged configuration snapshot.
//
// Resolve builds at most once per process lifetime; Reset discards the cache
// so the next Resolve rebuilds (test isolation, overrides-file changes).
// TryCached never blocks: while a build is in flight, or before any build,
// it hands out a defaults clone instead.
type Resolver struct {
	store         Store
	overridesPath string
	logger        *observability.Logger
	metrics       *observability.Metrics

	mu       sync.Mutex
	cached   *Snapshot
	building chan struct{} // non-nil while a build is in flight
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithStore attaches the remote feature-store tier.
func WithStore(store Store) Option {
	return func(r *Resolver) { r.store = store }
}

// WithOverridesFile attaches a local YAML overrides file, applied above the
// compiled defaults and below environment variables.
func WithOverridesFile(path string) Option {
	return func(r *Resolver) { r.overridesPath = path }
}

// WithMetrics attaches build metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a resolver. All tiers beyond the compiled defaults are
// optional.
func NewResolver(logger *observability.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	r := &Resolver{logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the cached snapshot, building it on first use. Exactly one
// goroutine runs the build; concurrent first callers wait for its result, so
// the remote store is fetched once per process lifetime unless Reset. Remote
// store and overrides-file failures are logged and degrade to the lower
// tiers; Resolve itself never fails.
func (r *Resolver) Resolve(ctx context.Context) *Snapshot {
	for {
		r.mu.Lock()
		if r.cached != nil {
			snapshot := r.cached
			r.mu.Unlock()
			return snapshot
		}
		if r.building != nil {
			wait := r.building
			r.mu.Unlock()
			<-wait
			// Loop: the build may have raced a Reset, in which case this
			// caller becomes the next builder.
			continue
		}
		done := make(chan struct{})
		r.building = done
		r.mu.Unlock()

		built := r.build(ctx)

		r.mu.Lock()
		if r.cached == nil {
			r.cached = built
		}
		snapshot := r.cached
		r.building = nil
		r.mu.Unlock()
		close(done)
		return snapshot
	}
}

// TryCached returns the cached snapshot when one exists, otherwise a clone
// of the compiled defaults. The second return value reports which it was.
func (r *Resolver) TryCached() (*Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil {
		return r.cached, true
	}
	defaults := Defaults()
	return &defaults, false
}

// Reset discards the cached snapshot so the next Resolve rebuilds.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}

func (r *Resolver) build(ctx context.Context) *Snapshot {
	snapshot := Defaults()

	if r.overridesPath != "" {
		if err := applyOverridesFile(&snapshot, r.overridesPath); err != nil {
			r.logger.WithError(err).WithField("path", r.overridesPath).
				Warn("config overrides file skipped")
		}
	}

	applyEnv(&snapshot)

	outcome := "ok"
	if r.store != nil {
		values, err := r.store.Fetch(ctx)
		if err != nil {
			// Degraded build: remote tier unavailable is never fatal.
			outcome = "degraded"
			r.logger.WithError(err).Warn("remote feature store unavailable, using lower-precedence config")
			if r.metrics != nil {
				r.metrics.RemoteStoreErrorsTotal.Inc()
			}
		} else {
			applyRemote(&snapshot, values)
		}
	}

	if err := snapshot.Validate(); err != nil {
		outcome = "degraded"
		r.logger.WithError(err).Warn("merged config invalid, falling back to compiled defaults")
		snapshot = Defaults()
	}

	if r.metrics != nil {
		r.metrics.ConfigBuildsTotal.WithLabelValues(outcome).Inc()
	}
	return &snapshot
}

// fileOverrides mirrors the snapshot with pointer fields so absent keys are
// distinguishable from zero values.
type fileOverrides struct {
	URLs struct {
		Staging     *string  `yaml:"staging"`
		Development []string `yaml:"development"`
		APIEndpoints struct {
			ValidateV3 *string `yaml:"validateV3"`
		} `yaml:"apiEndpoints"`
	} `yaml:"urls"`
	Security struct {
		TokenValidityDays *int     `yaml:"tokenValidityDays"`
		RateLimitRetryMs  *int     `yaml:"rateLimitRetryMs"`
		AllowedOrigins    []string `yaml:"allowedOrigins"`
		CookieName        *string  `yaml:"cookieName"`
	} `yaml:"security"`
	Logging struct {
		Provider *string `yaml:"provider"`
		Level    *string `yaml:"level"`
	} `yaml:"logging"`
	Features struct {
		AutoValidation    *bool `yaml:"autoValidation"`
		DebugMode         *bool `yaml:"debugMode"`
		EnablePostMessage *bool `yaml:"enablePostMessage"`
		ShowToasts        *bool `yaml:"showToasts"`
	} `yaml:"features"`
}

func applyOverridesFile(s *Snapshot, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var overrides fileOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return err
	}

	if overrides.URLs.Staging != nil {
		s.URLs.Staging = *overrides.URLs.Staging
	}
	if overrides.URLs.Development != nil {
		s.URLs.Development = append([]string(nil), overrides.URLs.Development...)
	}
	if overrides.URLs.APIEndpoints.ValidateV3 != nil {
		s.URLs.APIEndpoints.ValidateV3 = *overrides.URLs.APIEndpoints.ValidateV3
	}
	if overrides.Security.TokenValidityDays != nil {
		s.Security.TokenValidityDays = *overrides.Security.TokenValidityDays
	}
	if overrides.Security.RateLimitRetryMs != nil {
		s.Security.RateLimitRetry = msToDuration(*overrides.Security.RateLimitRetryMs)
	}
	if overrides.Security.AllowedOrigins != nil {
		s.Security.AllowedOrigins = append([]string(nil), overrides.Security.AllowedOrigins...)
	}
	if overrides.Security.CookieName != nil {
		s.Security.CookieName = *overrides.Security.CookieName
	}
	if overrides.Logging.Provider != nil {
		s.Logging.Provider = *overrides.Logging.Provider
	}
	if overrides.Logging.Level != nil {
		s.Logging.Level = *overrides.Logging.Level
	}
	if overrides.Features.AutoValidation != nil {
		s.Features.AutoValidation = *overrides.Features.AutoValidation
	}
	if overrides.Features.DebugMode != nil {
		s.Features.DebugMode = *overrides.Features.DebugMode
	}
	if overrides.Features.EnablePostMessage != nil {
		s.Features.EnablePostMessage = *overrides.Features.EnablePostMessage
	}
	if overrides.Features.ShowToasts != nil {
		s.Features.ShowToasts = *overrides.Features.ShowToasts
	}
	return nil
}
