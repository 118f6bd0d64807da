package broker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/teemow/callbackd/internal/instrumentation"
	"github.com/teemow/callbackd/internal/logging"
)

// DefaultValkeyKeyPrefix namespaces broker keys so a shared Valkey instance
// can serve other applications.
const DefaultValkeyKeyPrefix = "callbackd:"

// ValkeyConfig holds the connection settings for the Valkey backend.
type ValkeyConfig struct {
	// URL is the host:port address of the Valkey server
	URL string

	// Password authenticates the connection, if the server requires one
	Password string

	// TLSEnabled switches the connection to TLS
	TLSEnabled bool

	// TLSCAFile is an optional PEM bundle for verifying the server certificate
	TLSCAFile string

	// KeyPrefix namespaces all keys written by this store
	KeyPrefix string

	// DB selects the Valkey logical database
	DB int
}

// ValkeyStore persists pending callback results in Valkey so multiple
// broker replicas can share one callback namespace. Expiry is enforced
// server-side through key TTLs, and consumption uses GETDEL so at-most-once
// delivery holds across replicas.
type ValkeyStore struct {
	client    valkey.Client
	keyPrefix string
	logger    *slog.Logger
}

// NewValkeyStore connects to Valkey and verifies the connection with a ping.
func NewValkeyStore(ctx context.Context, cfg ValkeyConfig, logger *slog.Logger) (*ValkeyStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("valkey URL cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	option := valkey.ClientOption{
		InitAddress: []string{cfg.URL},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	}

	if cfg.TLSEnabled {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.TLSCAFile != "" {
			caCert, err := os.ReadFile(cfg.TLSCAFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read valkey CA file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caCert) {
				return nil, fmt.Errorf("failed to parse valkey CA file %s", cfg.TLSCAFile)
			}
			tlsConfig.RootCAs = pool
		}
		option.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey at %s: %w", cfg.URL, err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = DefaultValkeyKeyPrefix
	}

	return &ValkeyStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logging.WithBackend(logger, "valkey"),
	}, nil
}

func (s *ValkeyStore) key(state string) string {
	return s.keyPrefix + state
}

// Put stores a result under its state token with a server-side TTL.
// SET overwrites any pending result for the same token and restarts the
// expiry window.
func (s *ValkeyStore) Put(ctx context.Context, res Result, ttl time.Duration) error {
	ctx, span := instrumentation.StartStoreSpan(ctx, "valkey", "put")
	defer span.End()

	data, err := json.Marshal(res)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return fmt.Errorf("failed to marshal callback result: %w", err)
	}

	cmd := s.client.B().Set().Key(s.key(res.State)).Value(string(data)).Ex(ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		instrumentation.SetSpanError(span, err)
		return fmt.Errorf("failed to store callback result: %w", err)
	}

	instrumentation.SetSpanSuccess(span)

	s.logger.Debug("Stored callback result",
		logging.StateHash(res.State),
		logging.Outcome(res.Outcome()),
		slog.Duration("ttl", ttl),
	)

	return nil
}

// Take retrieves and removes the result for a state token in one round
// trip. GETDEL is atomic on the server, so two concurrent polls for the
// same token can never both win even when they hit different replicas.
func (s *ValkeyStore) Take(ctx context.Context, state string) (Result, bool, error) {
	ctx, span := instrumentation.StartStoreSpan(ctx, "valkey", "take")
	defer span.End()

	cmd := s.client.B().Getdel().Key(s.key(state)).Build()
	data, err := s.client.Do(ctx, cmd).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			instrumentation.SetSpanSuccess(span)
			return Result{}, false, nil
		}
		instrumentation.SetSpanError(span, err)
		return Result{}, false, fmt.Errorf("failed to consume callback result: %w", err)
	}

	var res Result
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		instrumentation.SetSpanError(span, err)
		return Result{}, false, fmt.Errorf("failed to unmarshal callback result: %w", err)
	}

	instrumentation.SetSpanSuccess(span)

	s.logger.Info("Callback result consumed and deleted",
		logging.StateHash(state),
		logging.Outcome(res.Outcome()),
	)

	return res, true, nil
}

// Prune is a no-op for Valkey; key TTLs expire server-side.
func (s *ValkeyStore) Prune(ctx context.Context) (int, error) {
	return 0, nil
}

// Len counts the live results under this store's key prefix.
func (s *ValkeyStore) Len(ctx context.Context) (int, error) {
	ctx, span := instrumentation.StartStoreSpan(ctx, "valkey", "len")
	defer span.End()

	var cursor uint64
	count := 0
	for {
		cmd := s.client.B().Scan().Cursor(cursor).Match(s.keyPrefix + "*").Count(256).Build()
		entry, err := s.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			instrumentation.SetSpanError(span, err)
			return 0, fmt.Errorf("failed to scan callback keys: %w", err)
		}
		count += len(entry.Elements)
		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}

	instrumentation.SetSpanSuccess(span)
	return count, nil
}

// Close releases the Valkey connection.
func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}
