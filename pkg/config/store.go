package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Store is the remote feature-store tier: a flat key/value map using dotted
// keys matching the configuration surface ("urls.staging",
// "security.cookieName", "features.autoValidation", ...).
type Store interface {
	Fetch(ctx context.Context) (map[string]string, error)
}

// RedisStore reads the feature-store hash from Redis.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a store reading the given hash key. An empty key
// falls back to "stagingauth:config".
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "stagingauth:config"
	}
	return &RedisStore{client: client, key: key}
}

// Fetch returns all configured overrides. A missing hash is not an error;
// it simply yields no overrides.
func (s *RedisStore) Fetch(ctx context.Context) (map[string]string, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("feature store fetch failed: %w", err)
	}
	return values, nil
}

// applyRemote overlays remote feature-store values onto the snapshot.
// Unknown keys and unparseable values are skipped so a sloppy store entry
// can never break config resolution.
func applyRemote(s *Snapshot, values map[string]string) {
	for key, value := range values {
		switch key {
		case "urls.staging":
			s.URLs.Staging = value
		case "urls.development":
			s.URLs.Development = splitList(value)
		case "urls.apiEndpoints.validateV3":
			s.URLs.APIEndpoints.ValidateV3 = value
		case "security.tokenValidityDays":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				s.Security.TokenValidityDays = n
			}
		case "security.rateLimitRetryMs":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				s.Security.RateLimitRetry = time.Duration(n) * time.Millisecond
			}
		case "security.allowedOrigins":
			s.Security.AllowedOrigins = splitList(value)
		case "security.cookieName":
			s.Security.CookieName = value
		case "logging.provider":
			s.Logging.Provider = value
		case "logging.level":
			s.Logging.Level = value
		case "logging.flushIntervalMs":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				s.Logging.FlushInterval = time.Duration(n) * time.Millisecond
			}
		case "features.autoValidation":
			if b, err := parseBool(value); err == nil {
				s.Features.AutoValidation = b
			}
		case "features.debugMode":
			if b, err := parseBool(value); err == nil {
				s.Features.DebugMode = b
			}
		case "features.enablePostMessage":
			if b, err := parseBool(value); err == nil {
				s.Features.EnablePostMessage = b
			}
		case "features.showToasts":
			if b, err := parseBool(value); err == nil {
				s.Features.ShowToasts = b
			}
		}
	}
}

func parseBool(value string) (bool, error) {
	return strconv.ParseBool(strings.ToLower(value))
}
