// Package validator performs the remote session-validation round trip: one
// authenticated POST to the staging validate endpoint per invocation, with a
// typed error taxonomy and redacted logging. Throttling and retries belong
// to the caller (see pkg/throttle).
package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/config"
	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/observability"
	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/platform"
)

// Tier selects which configured base URL the validator targets.
type Tier string

const (
	TierDevelopment Tier = "development"
	TierStaging     Tier = "staging"
	TierProduction  Tier = "production"
)

// Request carries one validation attempt.
type Request struct {
	SessionToken string   `json:"sessionToken"`
	UserRoles    []string `json:"userRoles"`
	UserName     string   `json:"userName,omitempty"`
	UserEmail    string   `json:"userEmail,omitempty"`
}

// Result is the typed outcome of a successful round trip. It is produced at
// most once per call and never mutated afterwards; the caller owns the "last
// known" value.
type Result struct {
	Authorized    bool   `json:"authorized"`
	Role          string `json:"role,omitempty"`
	Error         string `json:"error,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
}

// Validator issues validation calls. Stateless across calls apart from the
// injected capabilities and configuration.
type Validator struct {
	platform *platform.Platform
	resolver *config.Resolver
	logger   *observability.Logger
	metrics  *observability.Metrics
	tier     Tier
}

// New creates a validator for the given tier. Every dependency is optional:
// nil values fall back to the production platform, a defaults-only resolver,
// an info-level logger and no metrics.
func New(p *platform.Platform, resolver *config.Resolver, logger *observability.Logger, metrics *observability.Metrics, tier Tier) *Validator {
	if p == nil {
		p = platform.Default()
	}
	if resolver == nil {
		resolver = config.NewResolver(nil)
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Validator{
		platform: p,
		resolver: resolver,
		logger:   logger,
		metrics:  metrics,
		tier:     tier,
	}
}

// Validate performs exactly one validation attempt against the remote
// endpoint and returns either a Result or a typed error from the taxonomy in
// errors.go. It never returns a partially decoded Result.
func (v *Validator) Validate(ctx context.Context, req Request) (*Result, error) {
	if req.SessionToken == "" {
		return nil, ErrNoSession
	}

	cfg := v.resolver.Resolve(ctx)
	endpoint := v.baseURL(cfg) + cfg.URLs.APIEndpoints.ValidateV3
	correlationID := v.correlationID(ctx)
	ctx = observability.WithCorrelationID(ctx, correlationID)
	production := v.tier == TierProduction

	fields := map[string]interface{}{
		"correlation_id": correlationID,
		"token":          observability.RedactToken(req.SessionToken),
		"roles":          observability.RedactRoles(req.UserRoles, production),
	}
	if req.UserEmail != "" {
		fields["email"] = observability.RedactEmail(req.UserEmail)
	}
	log := v.logger.WithFields(fields)
	log.Info("session validation started")

	start := v.platform.Clock.Now()
	result, err := v.attempt(ctx, cfg, endpoint, correlationID, req)
	duration := v.platform.Clock.Now().Sub(start)

	log = log.WithField("duration_ms", duration.Milliseconds())
	if err != nil {
		log.WithError(err).Warn("session validation failed")
		v.observe(outcomeFor(err), duration)
		return nil, err
	}

	outcome := observability.OutcomeUnauthorized
	if result.Authorized {
		outcome = observability.OutcomeAuthorized
	}
	v.observe(outcome, duration)
	log.WithField("authorized", result.Authorized).Info("session validation completed")
	return result, nil
}

func (v *Validator) attempt(ctx context.Context, cfg *config.Snapshot, endpoint, correlationID string, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode validation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build validation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Correlation-ID", correlationID)
	// Credentials included: the session rides along as the configured cookie.
	httpReq.AddCookie(&http.Cookie{Name: cfg.Security.CookieName, Value: req.SessionToken})

	resp, err := v.platform.HTTP.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitedError{RetryAfter: retryAfter(resp, cfg.Security.RateLimitRetry)}
	case resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("staging rejected the request: %w", ErrOriginForbidden)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &ValidationFailedError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return decodeResult(resp.Body, correlationID)
}

// decodeResult parses the response strictly: a body without a boolean
// "authorized" field is malformed, never defaulted.
func decodeResult(body io.Reader, correlationID string) (*Result, error) {
	var wire struct {
		Authorized    *bool  `json:"authorized"`
		Role          string `json:"role"`
		Error         string `json:"error"`
		CorrelationID string `json:"correlationId"`
		Timestamp     string `json:"timestamp"`
	}
	if err := json.NewDecoder(body).Decode(&wire); err != nil {
		return nil, &ValidationFailedError{Reason: "invalid response format"}
	}
	if wire.Authorized == nil {
		return nil, &ValidationFailedError{Reason: "invalid response format"}
	}

	result := &Result{
		Authorized:    *wire.Authorized,
		Role:          wire.Role,
		Error:         wire.Error,
		CorrelationID: wire.CorrelationID,
		Timestamp:     wire.Timestamp,
	}
	if result.CorrelationID == "" {
		result.CorrelationID = correlationID
	}
	return result, nil
}

// baseURL picks exactly one base URL for the tier: the first development
// endpoint in development, the staging endpoint everywhere else.
func (v *Validator) baseURL(cfg *config.Snapshot) string {
	if v.tier == TierDevelopment && len(cfg.URLs.Development) > 0 {
		return cfg.URLs.Development[0]
	}
	return cfg.URLs.Staging
}

// correlationID reuses an identifier already carried by the context (set by
// an upstream handler or scheduler run) and otherwise prefers the platform's
// secure random source; the insecure clock-derived fallback is used only when
// that source fails, with a visible warning.
func (v *Validator) correlationID(ctx context.Context) string {
	if id := observability.GetCorrelationID(ctx); id != "" {
		return id
	}
	id, err := v.platform.Rand.UUID()
	if err != nil {
		v.logger.WithError(err).Warn("secure random unavailable, using insecure correlation id")
		return platform.FallbackID(v.platform.Clock)
	}
	return id
}

func retryAfter(resp *http.Response, fallback time.Duration) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func outcomeFor(err error) string {
	switch {
	case isRateLimited(err):
		return observability.OutcomeRateLimited
	case isForbidden(err):
		return observability.OutcomeForbidden
	case isNetwork(err):
		return observability.OutcomeNetworkError
	case isInvalidResponse(err):
		return observability.OutcomeInvalid
	default:
		return observability.OutcomeFailed
	}
}

func (v *Validator) observe(outcome string, duration time.Duration) {
	if v.metrics == nil {
		return
	}
	v.metrics.ValidationsTotal.WithLabelValues(outcome).Inc()
	v.metrics.ValidationDuration.Observe(duration.Seconds())
}
