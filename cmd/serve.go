package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/callbackd/internal/broker"
	"github.com/teemow/callbackd/internal/instrumentation"
	"github.com/teemow/callbackd/internal/logging"
	"github.com/teemow/callbackd/internal/server"
)

// ServeConfig holds the assembled configuration for the serve command
type ServeConfig struct {
	// HTTPAddr is the listen address for the callback server (e.g., ":8000")
	HTTPAddr string

	// TTL is how long an unconsumed callback result is kept
	TTL time.Duration

	// SweepInterval is the period between expiry sweeps
	SweepInterval time.Duration

	// Debug enables debug-level logging
	Debug bool

	// Storage selects and configures the callback storage backend
	Storage StorageConfig

	// Metrics configures the dedicated metrics server
	Metrics MetricsConfig

	// TLS/HTTPS support
	TLSCertFile string
	TLSKeyFile  string
}

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// StorageConfig holds callback storage backend configuration
type StorageConfig struct {
	// Type is the storage backend type: "memory" or "valkey" (default: "memory")
	Type string

	// Valkey configuration (used when Type is "valkey")
	Valkey ValkeyStorageConfig
}

// ValkeyStorageConfig holds configuration for the Valkey storage backend
type ValkeyStorageConfig struct {
	// URL is the Valkey server address (e.g., "valkey.namespace.svc:6379")
	URL string

	// Password is the optional password for Valkey authentication
	Password string

	// TLSEnabled enables TLS for Valkey connections
	TLSEnabled bool

	// TLSCAFile is the path to a custom CA certificate file for TLS verification.
	// Use this when Valkey uses certificates signed by a private CA.
	TLSCAFile string

	// KeyPrefix is the prefix for all Valkey keys (default: "callbackd:")
	KeyPrefix string

	// DB is the Valkey database number (default: 0)
	DB int
}

// Storage backend types accepted by --storage-type.
const (
	storageTypeMemory = "memory"
	storageTypeValkey = "valkey"
)

func newServeCmd() *cobra.Command {
	var (
		debugMode     bool
		httpAddr      string
		ttl           time.Duration
		sweepInterval time.Duration
		// Storage options
		storageType     string
		valkeyURL       string
		valkeyPassword  string
		valkeyTLS       bool
		valkeyTLSCAFile string
		valkeyKeyPrefix string
		valkeyDB        int
		// TLS/HTTPS support
		tlsCertFile string
		tlsKeyFile  string
		// Metrics server configuration
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the OAuth callback server",
		Long: `Start the OAuth callback server that terminates provider redirects and
hands each outcome to exactly one consumer poll.

Endpoints:
  /callback              provider redirect target (HTML terminal pages)
  /api/callback/{state}  one-shot JSON retrieval for the initiating service
  /health                service health summary
  /healthz, /readyz      Kubernetes liveness and readiness probes

Storage:
  By default results are held in process memory. Use --storage-type valkey
  to share one callback namespace across replicas; expiry is then enforced
  server-side and retrieval stays atomic across instances.

Results expire after --ttl and each one is delivered at most once. Every
environment variable below only applies when the matching flag was not set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config := ServeConfig{
				HTTPAddr:      httpAddr,
				TTL:           ttl,
				SweepInterval: sweepInterval,
				Debug:         debugMode,
				Storage: StorageConfig{
					Type: storageType,
					Valkey: ValkeyStorageConfig{
						URL:        valkeyURL,
						Password:   valkeyPassword,
						TLSEnabled: valkeyTLS,
						TLSCAFile:  valkeyTLSCAFile,
						KeyPrefix:  valkeyKeyPrefix,
						DB:         valkeyDB,
					},
				},
				Metrics: MetricsConfig{
					Enabled: metricsEnabled,
					Addr:    metricsAddr,
				},
				TLSCertFile: tlsCertFile,
				TLSKeyFile:  tlsKeyFile,
			}

			// Environment variables fill in whatever flags left untouched
			loadServeEnvVars(cmd, &config)
			loadStorageEnvVars(cmd, &config.Storage)

			switch config.Storage.Type {
			case storageTypeMemory, storageTypeValkey:
			default:
				return fmt.Errorf("invalid storage type %q, must be one of: memory, valkey", config.Storage.Type)
			}

			return runServe(config)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8000", "Callback server listen address. Can also use OAUTH_CALLBACK_HOST and OAUTH_CALLBACK_PORT env vars.")
	cmd.Flags().DurationVar(&ttl, "ttl", broker.DefaultTTL, "How long an unconsumed callback result is kept. Can also use CALLBACK_TTL env var (duration or seconds).")
	cmd.Flags().DurationVar(&sweepInterval, "sweep-interval", broker.DefaultSweepInterval, "Period between expiry sweeps. Can also use CALLBACK_SWEEP_INTERVAL env var (duration or seconds).")

	// Storage flags
	cmd.Flags().StringVar(&storageType, "storage-type", storageTypeMemory, "Callback storage type: memory or valkey. Can also use CALLBACK_STORAGE_TYPE env var.")
	cmd.Flags().StringVar(&valkeyURL, "valkey-url", "", "Valkey server address (e.g., valkey.namespace.svc:6379). Can also use VALKEY_URL env var.")
	cmd.Flags().StringVar(&valkeyPassword, "valkey-password", "", "Valkey authentication password. Can also use VALKEY_PASSWORD env var.")
	cmd.Flags().BoolVar(&valkeyTLS, "valkey-tls", false, "Enable TLS for Valkey connections. Can also use VALKEY_TLS_ENABLED env var.")
	cmd.Flags().StringVar(&valkeyTLSCAFile, "valkey-tls-ca-file", "", "Path to a custom CA certificate for Valkey TLS verification. Can also use VALKEY_TLS_CA_FILE env var.")
	cmd.Flags().StringVar(&valkeyKeyPrefix, "valkey-key-prefix", broker.DefaultValkeyKeyPrefix, "Prefix for all Valkey keys. Can also use VALKEY_KEY_PREFIX env var.")
	cmd.Flags().IntVar(&valkeyDB, "valkey-db", 0, "Valkey database number. Can also use VALKEY_DB env var.")

	// TLS flags for HTTPS support
	cmd.Flags().StringVar(&tlsCertFile, "tls-cert-file", "", "Path to TLS certificate file (PEM format). If provided with --tls-key-file, enables HTTPS. Can also use TLS_CERT_FILE env var.")
	cmd.Flags().StringVar(&tlsKeyFile, "tls-key-file", "", "Path to TLS private key file (PEM format). If provided with --tls-cert-file, enables HTTPS. Can also use TLS_KEY_FILE env var.")

	// Metrics server flags
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(config ServeConfig) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logLevel := slog.LevelInfo
	if config.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if config.Metrics.Enabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    config.Metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		// Use ready channel to confirm metrics server started successfully
		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		// Wait for metrics server to be ready or fail
		select {
		case <-metricsReady:
			logger.Info("metrics server started", slog.String("addr", metricsServer.Addr()))
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server startup timed out")
		}

		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := metricsServer.Shutdown(stopCtx); err != nil {
				logger.Error("error shutting down metrics server", logging.Err(err))
			}
		}()
	}

	// Build the storage backend
	store, err := buildStore(shutdownCtx, config.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to create %s storage: %w", config.Storage.Type, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("error closing storage", logging.Err(err))
		}
	}()

	// Broker with expiry sweeper, metrics and audit trail
	brokerConfig := broker.Config{
		TTL:           config.TTL,
		SweepInterval: config.SweepInterval,
		Logger:        logger,
	}
	if provider.Enabled() {
		brokerConfig.Metrics = provider.Metrics()
	}
	if instrConfig.AuditLogging.Enabled {
		brokerConfig.Audit = instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)
	}

	b := broker.New(store, brokerConfig)
	defer b.Stop()

	// Callback HTTP server
	callbackServer := server.NewCallbackServer(b, logger)

	healthChecker := server.NewHealthChecker()
	callbackServer.SetHealthChecker(healthChecker)

	if provider.Enabled() {
		callbackServer.SetMetrics(provider.Metrics())
	}
	if config.TLSCertFile != "" && config.TLSKeyFile != "" {
		callbackServer.SetTLS(config.TLSCertFile, config.TLSKeyFile)
	}

	serverReady := make(chan struct{})
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := callbackServer.StartWithReadySignal(config.HTTPAddr, serverReady); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	// Wait for the callback server to be ready or fail
	select {
	case <-serverReady:
	case err := <-serverDone:
		return fmt.Errorf("callback server failed to start: %w", err)
	case <-time.After(5 * time.Second):
		return fmt.Errorf("callback server startup timed out")
	}

	scheme := "http"
	if config.TLSCertFile != "" && config.TLSKeyFile != "" {
		scheme = "https"
	}
	fmt.Printf("OAuth callback server starting on %s (%s)\n", config.HTTPAddr, scheme)
	fmt.Printf("  Callback endpoint: /callback\n")
	fmt.Printf("  Retrieval API:     /api/callback/{state}\n")
	fmt.Printf("  Health endpoints:  /health, /healthz, /readyz\n")
	if metricsServer != nil {
		fmt.Printf("  Metrics endpoint:  %s/metrics\n", metricsServer.Addr())
	}
	fmt.Printf("  Storage backend:   %s\n", config.Storage.Type)
	fmt.Printf("  Result TTL:        %s\n", b.TTL())

	select {
	case <-shutdownCtx.Done():
		fmt.Println("Shutdown signal received, stopping callback server...")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		if err := callbackServer.Shutdown(stopCtx); err != nil {
			return fmt.Errorf("error shutting down callback server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("callback server stopped with error: %w", err)
		}
		fmt.Println("Callback server stopped normally")
	}

	fmt.Println("Callback server gracefully stopped")
	return nil
}

// buildStore creates the callback storage backend selected by config.
func buildStore(ctx context.Context, config StorageConfig, logger *slog.Logger) (broker.Store, error) {
	switch config.Type {
	case storageTypeValkey:
		return broker.NewValkeyStore(ctx, broker.ValkeyConfig{
			URL:        config.Valkey.URL,
			Password:   config.Valkey.Password,
			TLSEnabled: config.Valkey.TLSEnabled,
			TLSCAFile:  config.Valkey.TLSCAFile,
			KeyPrefix:  config.Valkey.KeyPrefix,
			DB:         config.Valkey.DB,
		}, logger)
	default:
		return broker.NewMemoryStore(logger), nil
	}
}

// loadServeEnvVars loads server configuration from environment variables.
// Environment variables only override flag values when the flag was not
// explicitly set. The cmd parameter is used to check if flags were
// explicitly set by the user.
func loadServeEnvVars(cmd *cobra.Command, config *ServeConfig) {
	// Listen address - deployment manifests split it into host and port
	if !cmd.Flags().Changed("http-addr") {
		if addr := listenAddrFromEnv(os.Getenv("OAUTH_CALLBACK_HOST"), os.Getenv("OAUTH_CALLBACK_PORT")); addr != "" {
			config.HTTPAddr = addr
		}
	}

	// Result TTL - accepts a duration string or bare seconds
	if !cmd.Flags().Changed("ttl") {
		if v := os.Getenv("CALLBACK_TTL"); v != "" {
			if d, err := parseDurationOrSeconds(v); err == nil {
				config.TTL = d
			} else {
				slog.Warn("ignoring invalid CALLBACK_TTL", slog.String("value", v))
			}
		}
	}

	// Sweep interval - accepts a duration string or bare seconds
	if !cmd.Flags().Changed("sweep-interval") {
		if v := os.Getenv("CALLBACK_SWEEP_INTERVAL"); v != "" {
			if d, err := parseDurationOrSeconds(v); err == nil {
				config.SweepInterval = d
			} else {
				slog.Warn("ignoring invalid CALLBACK_SWEEP_INTERVAL", slog.String("value", v))
			}
		}
	}

	// Metrics server - env var only applies if flag was not explicitly set
	if !cmd.Flags().Changed("metrics-enabled") {
		if v := os.Getenv("METRICS_ENABLED"); v != "" {
			if enabled, err := strconv.ParseBool(v); err == nil {
				config.Metrics.Enabled = enabled
			}
		}
	}
	if !cmd.Flags().Changed("metrics-addr") {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			config.Metrics.Addr = addr
		}
	}

	// TLS paths
	if config.TLSCertFile == "" {
		config.TLSCertFile = os.Getenv("TLS_CERT_FILE")
	}
	if config.TLSKeyFile == "" {
		config.TLSKeyFile = os.Getenv("TLS_KEY_FILE")
	}
}

// loadStorageEnvVars loads callback storage configuration from environment
// variables. Environment variables only override flag values when the flag
// was not explicitly set.
func loadStorageEnvVars(cmd *cobra.Command, config *StorageConfig) {
	// Storage type - env var only applies if flag was not explicitly set
	if !cmd.Flags().Changed("storage-type") {
		if storageType := os.Getenv("CALLBACK_STORAGE_TYPE"); storageType != "" {
			config.Type = storageType
		}
	}

	// Valkey URL - env var only applies if flag was not explicitly set
	if !cmd.Flags().Changed("valkey-url") {
		if url := os.Getenv("VALKEY_URL"); url != "" && config.Valkey.URL == "" {
			config.Valkey.URL = url
		}
	}

	// Valkey Password - env var only applies if flag was not explicitly set
	if !cmd.Flags().Changed("valkey-password") {
		if password := os.Getenv("VALKEY_PASSWORD"); password != "" && config.Valkey.Password == "" {
			config.Valkey.Password = password
		}
	}

	// Valkey Key Prefix - env var only applies if flag was not explicitly set
	if !cmd.Flags().Changed("valkey-key-prefix") {
		if keyPrefix := os.Getenv("VALKEY_KEY_PREFIX"); keyPrefix != "" {
			config.Valkey.KeyPrefix = keyPrefix
		}
	}

	// Valkey TLS - env var only applies if flag was not explicitly set
	if !cmd.Flags().Changed("valkey-tls") {
		if os.Getenv("VALKEY_TLS_ENABLED") == "true" {
			config.Valkey.TLSEnabled = true
		}
	}

	// Valkey TLS CA File - env var only applies if flag was not explicitly set
	if !cmd.Flags().Changed("valkey-tls-ca-file") {
		if caFile := os.Getenv("VALKEY_TLS_CA_FILE"); caFile != "" && config.Valkey.TLSCAFile == "" {
			config.Valkey.TLSCAFile = caFile
		}
	}

	// Valkey DB - env var only applies if flag was not explicitly set
	if !cmd.Flags().Changed("valkey-db") {
		if dbStr := os.Getenv("VALKEY_DB"); dbStr != "" {
			if db, err := strconv.Atoi(dbStr); err == nil {
				config.Valkey.DB = db
			}
		}
	}
}

// listenAddrFromEnv assembles a listen address from split host and port
// environment values. Returns "" when neither is set; an unset port falls
// back to 8000 so a host-only setting still yields a usable address.
func listenAddrFromEnv(host, port string) string {
	if host == "" && port == "" {
		return ""
	}
	if port == "" {
		port = "8000"
	}
	return net.JoinHostPort(host, port)
}

// parseDurationOrSeconds parses a Go duration string, falling back to a
// bare integer interpreted as seconds, the form deployment manifests
// usually use for TTLs.
func parseDurationOrSeconds(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(secs) * time.Second, nil
}
