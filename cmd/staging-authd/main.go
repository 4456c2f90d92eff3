package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/config"
	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/observability"
	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/server"
)

func main() {
	// Parse command line flags
	addr := flag.String("addr", ":8080", "Address to listen on")
	redisAddr := flag.String("redis-addr", "", "Redis address for the remote feature store (empty disables)")
	overridesFile := flag.String("overrides-file", "", "Path to a YAML config overrides file (empty disables)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	shutdownTimeout := flag.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(level)
	}

	// Session tokens are verified against this secret; it never rides on argv.
	secret := os.Getenv("STAGING_AUTH_SECRET")
	if secret == "" {
		logger.Fatal("STAGING_AUTH_SECRET must be set")
	}

	configLogger := observability.NewLogger(observability.ParseLogLevel(*logLevel), os.Stdout)
	metrics := observability.NewMetrics(nil)

	resolverOpts := []config.Option{config.WithMetrics(metrics)}
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		resolverOpts = append(resolverOpts, config.WithStore(config.NewRedisStore(client, "")))
	}
	if *overridesFile != "" {
		resolverOpts = append(resolverOpts, config.WithOverridesFile(*overridesFile))
	}
	resolver := config.NewResolver(configLogger, resolverOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snapshot := resolver.Resolve(ctx)
	handler := newReloadingHandler(resolver, func(s *config.Snapshot) http.Handler {
		return server.NewRouter(server.Options{
			Snapshot: s,
			Secret:   []byte(secret),
			Logger:   logger,
			Metrics:  metrics,
		})
	})

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.WithFields(logrus.Fields{
			"addr":     *addr,
			"endpoint": snapshot.URLs.APIEndpoints.ValidateV3,
		}).Info("staging auth daemon listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if *overridesFile != "" {
		watcher := config.NewWatcher(resolver, *overridesFile, configLogger)
		group.Go(func() error {
			if err := watcher.Watch(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		logger.WithError(err).Fatal("daemon exited with error")
	}
	logger.Info("daemon stopped")
}

// reloadingHandler rebuilds the router when the resolver hands out a new
// snapshot, so overrides-file changes (allowed origins in particular) apply
// without a restart.
type reloadingHandler struct {
	resolver *config.Resolver
	build    func(*config.Snapshot) http.Handler

	mu       sync.Mutex
	snapshot *config.Snapshot
	handler  http.Handler
}

func newReloadingHandler(resolver *config.Resolver, build func(*config.Snapshot) http.Handler) *reloadingHandler {
	return &reloadingHandler{resolver: resolver, build: build}
}

func (h *reloadingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	current := h.resolver.Resolve(r.Context())

	h.mu.Lock()
	if current != h.snapshot {
		h.snapshot = current
		h.handler = h.build(current)
	}
	handler := h.handler
	h.mu.Unlock()

	handler.ServeHTTP(w, r)
}
