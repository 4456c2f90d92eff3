package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Snapshot is one fully merged configuration. Treat it as read-only: the
// resolver hands the same snapshot to every caller until Reset.
type Snapshot struct {
	URLs     URLsConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Features FeatureConfig
}

// URLsConfig holds the staging and development endpoints
type URLsConfig struct {
	Staging      string
	Development  []string
	APIEndpoints APIEndpoints
}

// APIEndpoints holds the remote validation endpoint paths
type APIEndpoints struct {
	ValidateV3 string
}

// SecurityConfig holds trust and throttling settings
type SecurityConfig struct {
	TokenValidityDays int
	RateLimitRetry    time.Duration
	AllowedOrigins    []string
	CookieName        string
}

// LoggingConfig holds logging provider settings
type LoggingConfig struct {
	Provider      string
	Level         string
	FlushInterval time.Duration
	ProviderToken string
}

// FeatureConfig holds feature toggles
type FeatureConfig struct {
	AutoValidation    bool
	DebugMode         bool
	EnablePostMessage bool
	ShowToasts        bool
}

// Clone deep-copies the snapshot so no caller can reach shared slices.
func (s *Snapshot) Clone() *Snapshot {
	out := *s
	out.URLs.Development = append([]string(nil), s.URLs.Development...)
	out.Security.AllowedOrigins = append([]string(nil), s.Security.AllowedOrigins...)
	return &out
}

// Defaults returns the compiled default configuration. Each call builds a
// fresh value, so no amount of snapshot building can corrupt the defaults.
func Defaults() Snapshot {
	return Snapshot{
		URLs: URLsConfig{
			Staging:     "https://staging.invisiblecities.agency",
			Development: []string{"http://localhost:3000"},
			APIEndpoints: APIEndpoints{
				ValidateV3: "/api/auth/validate-sanity-v3",
			},
		},
		Security: SecurityConfig{
			TokenValidityDays: 7,
			RateLimitRetry:    60 * time.Second,
			AllowedOrigins: []string{
				"https://staging.invisiblecities.agency",
				"http://localhost:3000",
			},
			CookieName: "sanity-staging-auth",
		},
		Logging: LoggingConfig{
			Provider:      "console",
			Level:         "info",
			FlushInterval: 5 * time.Second,
		},
		Features: FeatureConfig{
			AutoValidation:    true,
			DebugMode:         false,
			EnablePostMessage: true,
			ShowToasts:        true,
		},
	}
}

// Validate checks that the snapshot can actually drive a validation flow.
func (s *Snapshot) Validate() error {
	if s.URLs.Staging == "" {
		return errors.New("config: staging URL is empty")
	}
	if s.URLs.APIEndpoints.ValidateV3 == "" {
		return errors.New("config: validate endpoint path is empty")
	}
	if s.Security.CookieName == "" {
		return errors.New("config: cookie name is empty")
	}
	if s.Security.TokenValidityDays <= 0 {
		return fmt.Errorf("config: token validity must be positive, got %d", s.Security.TokenValidityDays)
	}
	return nil
}

// applyEnv overlays environment variables onto the snapshot. Every variable
// is optional; unset or unparseable values leave the lower tier in place.
func applyEnv(s *Snapshot) {
	if v := getEnv("STAGING_AUTH_STAGING_URL", ""); v != "" {
		s.URLs.Staging = v
	}
	if v := getEnv("STAGING_AUTH_DEV_URLS", ""); v != "" {
		s.URLs.Development = splitList(v)
	}
	if v := getEnv("STAGING_AUTH_COOKIE_NAME", ""); v != "" {
		s.Security.CookieName = v
	}
	if v := getEnvInt("STAGING_AUTH_TOKEN_VALIDITY_DAYS", 0); v > 0 {
		s.Security.TokenValidityDays = v
	}
	if v := getEnvInt("STAGING_AUTH_RATE_LIMIT_RETRY_MS", 0); v > 0 {
		s.Security.RateLimitRetry = time.Duration(v) * time.Millisecond
	}
	if v := getEnv("STAGING_AUTH_ALLOWED_ORIGINS", ""); v != "" {
		s.Security.AllowedOrigins = splitList(v)
	}
	if v := getEnv("STAGING_AUTH_LOG_LEVEL", ""); v != "" {
		s.Logging.Level = v
	}
	if v := getEnv("STAGING_AUTH_LOG_PROVIDER", ""); v != "" {
		s.Logging.Provider = v
	}
	if v := getEnv("STAGING_AUTH_LOG_TOKEN", ""); v != "" {
		s.Logging.ProviderToken = v
	}
	if v := os.Getenv("STAGING_AUTH_DEBUG"); v != "" {
		s.Features.DebugMode = getEnvBool("STAGING_AUTH_DEBUG", false)
	}
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
