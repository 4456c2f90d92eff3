package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/config"
	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/observability"
	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/platform"
	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/scheduler"
	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/throttle"
	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/validator"
)

// Exit codes by validation outcome.
const (
	exitUnauthorized = 1
	exitNoSession    = 2
	exitRateLimited  = 3
	exitForbidden    = 4
	exitNetwork      = 5
	exitFailed       = 6
)

func main() {
	roleList := flag.String("roles", "", "Comma-separated user roles to present")
	userName := flag.String("name", "", "User display name")
	userEmail := flag.String("email", "", "User email")
	tier := flag.String("tier", "staging", "Deployment tier (development, staging, production)")
	interval := flag.String("interval", "", "Re-validate on this cron schedule instead of exiting (e.g. '@every 30s')")
	throttleWindow := flag.Duration("throttle", 5*time.Second, "Minimum spacing between validation calls")
	overridesFile := flag.String("overrides-file", "", "Path to a YAML config overrides file")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address in watch mode (empty disables)")
	logLevel := flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	flag.Parse()

	token := os.Getenv("STAGING_AUTH_TOKEN")
	if token == "" {
		fmt.Fprintln(os.Stderr, "STAGING_AUTH_TOKEN must be set")
		os.Exit(exitNoSession)
	}

	logger := observability.NewLogger(observability.ParseLogLevel(*logLevel), os.Stderr)

	resolverOpts := []config.Option{}
	if *overridesFile != "" {
		resolverOpts = append(resolverOpts, config.WithOverridesFile(*overridesFile))
	}
	resolver := config.NewResolver(logger, resolverOpts...)

	var metrics *observability.Metrics
	if *interval != "" && *metricsAddr != "" {
		metrics = observability.NewMetrics(nil)
	}

	v := validator.New(platform.Default(), resolver, logger, metrics, validator.Tier(*tier))
	req := validator.Request{
		SessionToken: token,
		UserRoles:    splitRoles(*roleList),
		UserName:     *userName,
		UserEmail:    *userEmail,
	}
	throttled := throttle.New(func(ctx context.Context) (*validator.Result, error) {
		return v.Validate(ctx, req)
	}, *throttleWindow)
	if metrics != nil {
		throttled.OnCoalesced(metrics.ThrottleCoalescedTotal.Inc)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *interval == "" {
		result, err := throttled.Do(ctx)
		os.Exit(report(result, err))
	}

	// Watch mode: re-validate on the schedule until interrupted. Each run
	// prints its outcome; the exit code reflects the last one.
	lastExit := 0
	s, err := scheduler.New(func(ctx context.Context) error {
		result, err := throttled.Do(ctx)
		lastExit = report(result, err)
		return err
	}, scheduler.Options{
		Schedule: *interval,
		Enabled: func(ctx context.Context) bool {
			return resolver.Resolve(ctx).Features.AutoValidation
		},
		Logger: logger,
	})
	if err != nil {
		logger.Errorf("invalid -interval schedule: %v", err)
		os.Exit(exitFailed)
	}
	logger.Infof("watch mode: validating on schedule %s", *interval)

	if *overridesFile != "" {
		watcher := config.NewWatcher(resolver, *overridesFile, logger)
		go func() {
			if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Warn("config watcher stopped")
			}
		}()
	}

	if metrics != nil {
		go func() {
			srv := &http.Server{Addr: *metricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Warnf("metrics listener stopped: %v", err)
			}
		}()
	}

	s.RunOnce(ctx)
	s.Start()
	<-ctx.Done()
	s.Stop()
	os.Exit(lastExit)
}

// report prints the outcome and returns the process exit code for it.
func report(result *validator.Result, err error) int {
	if err == nil {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		if result.Authorized {
			return 0
		}
		return exitUnauthorized
	}

	fmt.Fprintf(os.Stderr, "validation error: %v\n", err)

	var rateLimited *validator.RateLimitedError
	var network *validator.NetworkError
	switch {
	case errors.Is(err, validator.ErrNoSession):
		return exitNoSession
	case errors.As(err, &rateLimited):
		return exitRateLimited
	case errors.Is(err, validator.ErrOriginForbidden):
		return exitForbidden
	case errors.As(err, &network):
		return exitNetwork
	default:
		return exitFailed
	}
}

func splitRoles(list string) []string {
	if list == "" {
		return nil
	}
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
