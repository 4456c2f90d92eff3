// Package platform groups the runtime capabilities the auth bridge depends
// on (HTTP transport, wall clock, secure randomness) behind small interfaces
// so the core packages never touch process globals directly.
package platform

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RequestTimeout bounds every outbound validation call. Kept under typical
// serverless platform limits so the caller fails before the platform does.
const RequestTimeout = 20 * time.Second

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Clock supplies the current time to components that window or schedule work.
type Clock interface {
	Now() time.Time
}

// SecureRandom produces correlation identifiers. Implementations must prefer
// a cryptographically strong source and return an error when none exists so
// callers can fall back visibly.
type SecureRandom interface {
	UUID() (string, error)
}

// Platform bundles the injected capabilities.
type Platform struct {
	HTTP  Doer
	Clock Clock
	Rand  SecureRandom
}

// Default returns the production platform: an otel-instrumented HTTP client
// with a hard request timeout, the system clock, and a crypto/rand UUID
// source.
func Default() *Platform {
	return &Platform{
		HTTP: &http.Client{
			Timeout:   RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Clock: systemClock{},
		Rand:  uuidRandom{},
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall-clock implementation of Clock.
func SystemClock() Clock { return systemClock{} }

type uuidRandom struct{}

func (uuidRandom) UUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("secure random source unavailable: %w", err)
	}
	return id.String(), nil
}

// FallbackID derives an identifier from the wall clock. It is not secure;
// callers must emit a visible warning whenever they substitute it for a
// SecureRandom failure.
func FallbackID(clock Clock) string {
	return fmt.Sprintf("insecure-%d", clock.Now().UnixNano())
}
