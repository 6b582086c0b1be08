package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	libdnscloudflare "github.com/libdns/cloudflare"
	"golang.org/x/term"

	"github.com/evanofslack/dh-dyn-update/internal/address"
	"github.com/evanofslack/dh-dyn-update/internal/config"
	"github.com/evanofslack/dh-dyn-update/internal/dreamhost"
	"github.com/evanofslack/dh-dyn-update/internal/logger"
	"github.com/evanofslack/dh-dyn-update/internal/metrics"
	"github.com/evanofslack/dh-dyn-update/internal/observer"
	"github.com/evanofslack/dh-dyn-update/internal/provider"
	"github.com/evanofslack/dh-dyn-update/internal/provider/cloudflare"
	"github.com/evanofslack/dh-dyn-update/internal/provider/libdnszone"
	"github.com/evanofslack/dh-dyn-update/internal/reconcile"
	"github.com/evanofslack/dh-dyn-update/internal/state"
)

const defaultConfigPath = "/etc/dh-dyn-update.yaml"

// Process exit codes.
const (
	exitFailure       = 1
	exitConfigFile    = 3
	exitConfig        = 4
	exitUnknownFamily = 7
)

type poller interface {
	Poll(ctx context.Context) (reconcile.Results, error)
}

type addressObserver interface {
	Observe(ctx context.Context) address.Set
}

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the YAML configuration file")
	account := flag.String("account", "", "account to use from the configuration file")
	monitorOnly := flag.Bool("monitor-only", false, "print local addresses and never contact the DNS API")
	once := flag.Bool("once", false, "run a single pass and exit")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error or critical")
	dryRun := flag.Bool("dry-run", false, "log DNS changes without applying them")
	flag.Parse()

	logger.Configure("info", "prod")

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "path", *configPath, "error", err)
		os.Exit(loadExitCode(err))
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Env)

	if *monitorOnly && *account != "" {
		slog.Error("Monitor-only mode does not use an account", "account", *account)
		os.Exit(exitConfig)
	}
	if *account != "" {
		cfg.Account = *account
	}
	if *dryRun {
		cfg.Reconcile.DryRun = true
	}
	if !*monitorOnly {
		promptAPIKey(cfg)
	}
	if err := cfg.Validate(*monitorOnly); err != nil {
		slog.Error("Invalid config", "error", err)
		os.Exit(exitConfig)
	}

	// Initialize metrics
	metrics := metrics.New(true)

	obs := newObserver(cfg, metrics)
	if err := obs.Validate(); err != nil {
		slog.Error("Invalid interface configuration", "error", err)
		os.Exit(exitConfig)
	}

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutdown signal received")
		cancel()
	}()

	if *monitorOnly {
		runMonitorLoop(ctx, os.Stdout, obs, cfg.UpdateInterval, *once)
		return
	}

	server := startMetricsServer(cfg.Metrics.Address, metrics)

	stateManager, err := state.New(metrics, address.Loopback())
	if err != nil {
		slog.Error("Failed to initialize state manager", "error", err)
		os.Exit(exitFailure)
	}

	acct, _ := cfg.Credentials()
	dnsProvider, err := newProvider(cfg, acct, metrics)
	if err != nil {
		slog.Error("Failed to initialize DNS provider", "provider", cfg.Provider, "error", err)
		os.Exit(exitFailure)
	}

	rec, err := reconcile.New(acct.Hostname, obs, dnsProvider, stateManager, metrics,
		reconcile.WithDryRun(cfg.Reconcile.DryRun),
		reconcile.WithComment(cfg.Reconcile.Comment))
	if err != nil {
		slog.Error("Failed to initialize reconciler", "error", err)
		os.Exit(exitFailure)
	}

	slog.Info("Starting dh-dyn-update service", "hostname", acct.Hostname, "provider", cfg.Provider,
		"interval", cfg.UpdateInterval.String(), "dry_run", cfg.Reconcile.DryRun)

	loopErr := runPollLoop(ctx, rec, cfg.UpdateInterval, *once)

	if server != nil {
		serverShutdownCtx, cancelServer := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(serverShutdownCtx); err != nil {
			slog.Error("Metrics server shutdown error", "error", err)
		}
		cancelServer()
	}
	if err := stateManager.Close(); err != nil {
		slog.Error("Failed to close state manager", "error", err)
	}

	switch {
	case errors.Is(loopErr, reconcile.ErrUnknownFamily):
		os.Exit(exitUnknownFamily)
	case loopErr != nil:
		os.Exit(exitFailure)
	}
	slog.Info("Service shutdown complete")
}

// loadExitCode tells an unreadable config file apart from a malformed one.
func loadExitCode(err error) int {
	if errors.Is(err, config.ErrUnreadable) {
		return exitConfigFile
	}
	return exitConfig
}

func newObserver(cfg *config.Config, metrics *metrics.Metrics) *observer.Observer {
	spec := make(observer.Spec, 0, len(cfg.Interfaces))
	for _, b := range cfg.Interfaces {
		spec = append(spec, observer.Binding{Family: b.Family, Interface: b.Interface})
	}
	lookupClient := &http.Client{Timeout: cfg.API.Timeout}
	return observer.New(spec,
		observer.WithMetrics(metrics),
		observer.WithResolver(observer.SentinelIpify, observer.NewWebResolver(cfg.IPLookup.IPv4URL, cfg.IPLookup.IPv6URL, lookupClient)),
		observer.WithResolver(observer.SentinelOpenDNS, observer.NewDNSResolver("", "")),
	)
}

func newProvider(cfg *config.Config, acct config.Account, metrics *metrics.Metrics) (provider.Provider, error) {
	switch cfg.Provider {
	case config.ProviderCloudflare:
		cf, err := cloudflare.New(cfg.Cloudflare, acct.Hostname, metrics)
		if err != nil {
			return nil, err
		}
		return cf, nil
	case config.ProviderLibdnsCloudflare:
		backend := &libdnscloudflare.Provider{APIToken: cfg.Cloudflare.Token}
		ttl := time.Duration(cfg.Cloudflare.TTL) * time.Second
		zone, err := libdnszone.New(backend, cfg.Cloudflare.Zone, ttl, metrics)
		if err != nil {
			return nil, err
		}
		return zone, nil
	case config.ProviderDreamHost:
		client, err := dreamhost.NewClient(cfg.API.URL, acct.APIKey,
			dreamhost.WithTimeout(cfg.API.Timeout),
			dreamhost.WithMetrics(metrics))
		if err != nil {
			return nil, err
		}
		return dreamhost.NewProvider(client), nil
	}
	return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
}

// promptAPIKey asks for a missing DreamHost key when stdin is a terminal.
func promptAPIKey(cfg *config.Config) {
	if cfg.Provider != config.ProviderDreamHost {
		return
	}
	if acct, err := cfg.Credentials(); err == nil && acct.APIKey != "" {
		return
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}

	fmt.Fprintf(os.Stderr, "DreamHost API key for account %s: ", cfg.Account)
	key, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		slog.Warn("Failed to read API key", "error", err)
		return
	}
	cfg.SetAPIKey(strings.TrimSpace(string(key)))
}

// startMetricsServer serves /metrics in the background. An empty address
// disables it.
func startMetricsServer(addr string, metrics *metrics.Metrics) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Starting metrics server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	return server
}

// runPollLoop polls once per interval until ctx is done. Only an unknown
// address family stops the loop early; in once mode the single poll's error
// is returned.
func runPollLoop(ctx context.Context, p poller, interval time.Duration, once bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := performPoll(ctx, p)
		if errors.Is(err, reconcile.ErrUnknownFamily) {
			return err
		}
		if once {
			return err
		}

		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			slog.Info("Stopping poll loop")
			return nil
		}
	}
}

func performPoll(ctx context.Context, p poller) error {
	slog.Debug("Starting poll")
	results, err := p.Poll(ctx)
	if err != nil {
		slog.Error("Poll failed", "error", err)
		return err
	}
	if results.Changed() || len(results.Failures) > 0 {
		slog.Info("Poll completed",
			"added", len(results.Added),
			"removed", len(results.Removed),
			"skipped", len(results.Skipped),
			"failures", len(results.Failures))
	}
	return nil
}

// runMonitorLoop prints the observed addresses once per interval without
// touching any DNS provider.
func runMonitorLoop(ctx context.Context, w io.Writer, obs addressObserver, interval time.Duration, once bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, a := range obs.Observe(ctx) {
			fmt.Fprintf(w, "%s %s\n", a.Family(), a)
		}
		if once {
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
