package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	mu      sync.Mutex
	values  map[string]string
	err     error
	fetches int
	block   chan struct{} // when set, Fetch blocks until closed
}

func (s *stubStore) Fetch(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	s.fetches++
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.values, nil
}

func (s *stubStore) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func TestResolveBuildsOnce(t *testing.T) {
	store := &stubStore{values: map[string]string{"security.cookieName": "from-remote"}}
	r := NewResolver(nil, WithStore(store))

	first := r.Resolve(context.Background())
	second := r.Resolve(context.Background())

	assert.Same(t, first, second, "Resolve should return the cached snapshot")
	assert.Equal(t, "from-remote", first.Security.CookieName)
	assert.Equal(t, 1, store.fetchCount(), "remote store fetched more than once")
}

func TestResolveConcurrentFirstUse(t *testing.T) {
	block := make(chan struct{})
	store := &stubStore{block: block, values: map[string]string{"security.cookieName": "from-remote"}}
	r := NewResolver(nil, WithStore(store))

	const callers = 4
	snapshots := make(chan *Snapshot, callers)
	for i := 0; i < callers; i++ {
		go func() { snapshots <- r.Resolve(context.Background()) }()
	}

	// Let every caller arrive while the single build is stuck in the fetch.
	deadline := time.After(time.Second)
	for store.fetchCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("store never fetched")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	time.Sleep(20 * time.Millisecond)
	close(block)

	first := <-snapshots
	for i := 1; i < callers; i++ {
		assert.Same(t, first, <-snapshots, "concurrent first callers must share one snapshot")
	}
	assert.Equal(t, 1, store.fetchCount(), "remote store fetched more than once for one process lifetime")
	assert.Equal(t, "from-remote", first.Security.CookieName)
}

func TestResolveDegradesOnStoreFailure(t *testing.T) {
	store := &stubStore{err: errors.New("store down")}
	r := NewResolver(nil, WithStore(store))

	snapshot := r.Resolve(context.Background())
	require.NotNil(t, snapshot)
	assert.Equal(t, Defaults().Security.CookieName, snapshot.Security.CookieName,
		"failed remote tier should leave lower tiers in place")
}

func TestTryCachedNeverBlocks(t *testing.T) {
	block := make(chan struct{})
	store := &stubStore{block: block, values: map[string]string{"security.cookieName": "late"}}
	r := NewResolver(nil, WithStore(store))

	resolved := make(chan *Snapshot, 1)
	go func() { resolved <- r.Resolve(context.Background()) }()

	// While the build is stuck in the store fetch, TryCached must return a
	// valid defaults snapshot immediately.
	deadline := time.After(time.Second)
	for store.fetchCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("store never fetched")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	snapshot, cached := r.TryCached()
	require.NotNil(t, snapshot)
	assert.False(t, cached, "no build has completed yet")
	assert.Equal(t, Defaults().Security.CookieName, snapshot.Security.CookieName)

	close(block)
	final := <-resolved
	assert.Equal(t, "late", final.Security.CookieName)

	snapshot, cached = r.TryCached()
	assert.True(t, cached)
	assert.Same(t, final, snapshot)
}

func TestResetForcesRebuild(t *testing.T) {
	store := &stubStore{values: map[string]string{}}
	r := NewResolver(nil, WithStore(store))

	first := r.Resolve(context.Background())
	r.Reset()
	second := r.Resolve(context.Background())

	assert.NotSame(t, first, second, "Reset should discard the cached snapshot")
	assert.Equal(t, 2, store.fetchCount())
}

func TestResolverWithRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	mr.HSet("stagingauth:config",
		"urls.staging", "https://edge.example",
		"features.showToasts", "false",
	)

	r := NewResolver(nil, WithStore(NewRedisStore(client, "")))
	snapshot := r.Resolve(context.Background())

	assert.Equal(t, "https://edge.example", snapshot.URLs.Staging)
	assert.False(t, snapshot.Features.ShowToasts)
}

func TestResolverWithRedisStoreDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	r := NewResolver(nil, WithStore(NewRedisStore(client, "")))
	snapshot := r.Resolve(context.Background())

	require.NotNil(t, snapshot, "unreachable store must not block resolution")
	assert.Equal(t, Defaults().URLs.Staging, snapshot.URLs.Staging)
}

func TestOverridesFileTier(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.yaml")
	content := []byte(`
urls:
  staging: https://file.example
security:
  cookieName: file-cookie
  rateLimitRetryMs: 5000
features:
  showToasts: false
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	r := NewResolver(nil, WithOverridesFile(path))
	snapshot := r.Resolve(context.Background())

	assert.Equal(t, "https://file.example", snapshot.URLs.Staging)
	assert.Equal(t, "file-cookie", snapshot.Security.CookieName)
	assert.Equal(t, 5*time.Second, snapshot.Security.RateLimitRetry)
	assert.False(t, snapshot.Features.ShowToasts)
}

func TestEnvBeatsOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.yaml")
	require.NoError(t, os.WriteFile(path, []byte("security:\n  cookieName: file-cookie\n"), 0o644))

	os.Setenv("STAGING_AUTH_COOKIE_NAME", "env-cookie")
	defer os.Unsetenv("STAGING_AUTH_COOKIE_NAME")

	r := NewResolver(nil, WithOverridesFile(path))
	snapshot := r.Resolve(context.Background())

	assert.Equal(t, "env-cookie", snapshot.Security.CookieName)
}

func TestMissingOverridesFileDegrades(t *testing.T) {
	r := NewResolver(nil, WithOverridesFile("/nonexistent/overrides.yaml"))
	snapshot := r.Resolve(context.Background())
	assert.Equal(t, Defaults().Security.CookieName, snapshot.Security.CookieName)
}
