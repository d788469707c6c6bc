package state

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyConfig holds configuration for the Valkey backend.
type ValkeyConfig struct {
	// URL is the Valkey server address (e.g., "valkey.namespace.svc:6379")
	URL string

	// Password is the optional password for Valkey authentication
	Password string

	// TLSEnabled enables TLS for Valkey connections
	TLSEnabled bool

	// TLSCAFile is an optional CA bundle for servers with a private CA.
	TLSCAFile string

	// KeyPrefix is the prefix for all Valkey keys (default: "megasecretaria:")
	KeyPrefix string

	// DB is the Valkey database number (default: 0)
	DB int
}

// DefaultKeyPrefix is used when ValkeyConfig.KeyPrefix is empty.
const DefaultKeyPrefix = "megasecretaria:"

// ValkeyStore is a Store backed by Valkey. Entries are JSON values written
// with SETEX, so expiry is enforced by the server.
type ValkeyStore struct {
	client valkey.Client
	prefix string
	opts   Options
}

// NewValkeyStore connects to Valkey.
func NewValkeyStore(cfg ValkeyConfig, opts Options) (*ValkeyStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("valkey URL is required")
	}

	clientOpt := valkey.ClientOption{
		InitAddress: []string{cfg.URL},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	}

	if cfg.TLSEnabled {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.TLSCAFile != "" {
			pem, err := os.ReadFile(cfg.TLSCAFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read valkey CA file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("no certificates found in %s", cfg.TLSCAFile)
			}
			tlsConfig.RootCAs = pool
		}
		clientOpt.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(clientOpt)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	return NewValkeyStoreWithClient(client, cfg.KeyPrefix, opts), nil
}

// NewValkeyStoreWithClient wraps an existing client.
func NewValkeyStoreWithClient(client valkey.Client, prefix string, opts Options) *ValkeyStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &ValkeyStore{client: client, prefix: prefix, opts: opts.withDefaults()}
}

// Close closes the client.
func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}

// Ping checks connectivity. It backs the readiness check.
func (s *ValkeyStore) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

func (s *ValkeyStore) pendingKey(sender string) string { return s.prefix + "pending:" + sender }
func (s *ValkeyStore) lastKey(sender string) string    { return s.prefix + "last:" + sender }

func (s *ValkeyStore) get(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("valkey get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *ValkeyStore) setex(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	cmd := s.client.B().Setex().Key(key).Seconds(seconds).Value(string(data)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey setex %s: %w", key, err)
	}
	return nil
}

func (s *ValkeyStore) del(ctx context.Context, key string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error(); err != nil {
		return fmt.Errorf("valkey del %s: %w", key, err)
	}
	return nil
}

// Pending implements Store.
func (s *ValkeyStore) Pending(ctx context.Context, sender string) (*PendingConfirmation, error) {
	var p PendingConfirmation
	ok, err := s.get(ctx, s.pendingKey(sender), &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

// SetPending implements Store.
func (s *ValkeyStore) SetPending(ctx context.Context, p PendingConfirmation) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.opts.Now()
	}
	return s.setex(ctx, s.pendingKey(p.Sender), p, s.opts.PendingTTL)
}

// ClearPending implements Store.
func (s *ValkeyStore) ClearPending(ctx context.Context, sender string) error {
	return s.del(ctx, s.pendingKey(sender))
}

// LastCreated implements Store.
func (s *ValkeyStore) LastCreated(ctx context.Context, sender string) (*Fingerprint, error) {
	var f Fingerprint
	ok, err := s.get(ctx, s.lastKey(sender), &f)
	if err != nil || !ok {
		return nil, err
	}
	return &f, nil
}

// SetLastCreated implements Store.
func (s *ValkeyStore) SetLastCreated(ctx context.Context, sender string, f Fingerprint) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.opts.Now()
	}
	return s.setex(ctx, s.lastKey(sender), f, s.opts.FingerprintTTL)
}

// PendingCount implements Store by scanning the pending keys. Expired keys
// are already gone on the server.
func (s *ValkeyStore) PendingCount(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		cmd := s.client.B().Scan().Cursor(cursor).Match(s.pendingKey("*")).Count(100).Build()
		entry, err := s.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return 0, fmt.Errorf("valkey scan pending: %w", err)
		}
		count += len(entry.Elements)
		cursor = entry.Cursor
		if cursor == 0 {
			return count, nil
		}
	}
}
