package app

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/service"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
	"github.com/peterbourgon/ff/v3"
)

// Key modes.
const (
	KeyModeEphemeral  = "ephemeral"
	KeyModePersistent = "persistent"
)

// Store drivers and replay caches.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"

	ReplayMemory = "memory"
	ReplayRedis  = "redis"
)

// Config is the server configuration, read from flags and environment.
type Config struct {
	Issuer              string        // Issuer URL, also the base for endpoint URLs (default: http://localhost:8080)
	Algorithm           string        // Signing algorithm for new keys: PS256, ES256, EdDSA (default: PS256)
	RSABits             int           // RSA modulus size for PS256 (default: 2048)
	KeyMode             string        // ephemeral or persistent (default: ephemeral)
	KeyRotationInterval time.Duration // Age at which the current key is replaced; 0 disables (default: 24h)
	KeyGracePeriod      time.Duration // How long a replaced key stays published (default: 1h)
	KeyEncryptionKey    string        // Inline key encryption material for persistent mode
	KeyEncryptionFile   string        // Path to key encryption material for persistent mode
	OperatorToken       string        // Bearer token for /keys/*; empty disables those endpoints
	ClientsFile         string        // YAML client directory
	TrustedCertsDir     string        // Directory of <client_id>.pem certificates
	MTLSCertHeader      string        // Header carrying a URL-encoded PEM client certificate from a TLS terminator
	SubjectHeader       string        // Header carrying the authenticated subject from the login component

	StoreDriver string // memory or sqlite (default: memory)
	DBPath      string // SQLite database file (default: fapiauth.db)
	ReplayCache string // memory or redis (default: memory)
	RedisURL    string // redis:// URL for the replay cache

	Port        int    // HTTP server port (default: 8080)
	TLSCertFile string // Serve TLS when both cert and key are set
	TLSKeyFile  string

	Env        string // dev, staging, prod (default: dev)
	LogLevel   string // debug, info, warn, error (default: info)
	LogFormat  string // json or text (default: json)
	LogNoColor bool   // Disable colour in text logs

	ShutdownGracePeriod   time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval  time.Duration // Expired artifact sweep interval (default: 5m)
	HousekeepingBatchSize int           // Rows deleted per sweep batch (default: 500)
}

// LoadConfig parses args, falling back to environment variables named after
// each flag (--auth-issuer reads AUTH_ISSUER).
func LoadConfig(args []string) (Config, error) {
	var cfg Config
	fs := flag.NewFlagSet("authserver", flag.ContinueOnError)

	fs.StringVar(&cfg.Issuer, "auth-issuer", "http://localhost:8080", "issuer URL")
	fs.StringVar(&cfg.Algorithm, "auth-algorithm", jwtx.AlgorithmPS256, "signing algorithm (PS256, ES256, EdDSA)")
	fs.IntVar(&cfg.RSABits, "auth-rsa-bits", 2048, "RSA key size for PS256")
	fs.StringVar(&cfg.KeyMode, "auth-key-mode", KeyModeEphemeral, "key mode (ephemeral, persistent)")
	fs.DurationVar(&cfg.KeyRotationInterval, "auth-key-rotation-interval", 24*time.Hour, "signing key rotation interval, 0 disables")
	fs.DurationVar(&cfg.KeyGracePeriod, "auth-key-grace-period", time.Hour, "how long a replaced key stays published")
	fs.StringVar(&cfg.KeyEncryptionKey, "key-encryption-key", "", "key encryption material for persistent keys")
	fs.StringVar(&cfg.KeyEncryptionFile, "key-encryption-key-file", "", "file holding key encryption material")
	fs.StringVar(&cfg.OperatorToken, "auth-operator-token", "", "bearer token for the /keys endpoints")
	fs.StringVar(&cfg.ClientsFile, "auth-clients-file", "", "YAML client directory")
	fs.StringVar(&cfg.TrustedCertsDir, "auth-trusted-certs-dir", "", "directory of <client_id>.pem client certificates")
	fs.StringVar(&cfg.MTLSCertHeader, "auth-mtls-cert-header", "", "header carrying the forwarded client certificate")
	fs.StringVar(&cfg.SubjectHeader, "auth-subject-header", "X-Authenticated-Subject", "header carrying the authenticated subject")

	fs.StringVar(&cfg.StoreDriver, "store-driver", StoreMemory, "store backend (memory, sqlite)")
	fs.StringVar(&cfg.DBPath, "db-path", "fapiauth.db", "SQLite database file")
	fs.StringVar(&cfg.ReplayCache, "replay-cache", ReplayMemory, "replay cache (memory, redis)")
	fs.StringVar(&cfg.RedisURL, "redis-url", "redis://localhost:6379/0", "redis URL for the replay cache")

	fs.IntVar(&cfg.Port, "port", 8080, "HTTP port")
	fs.StringVar(&cfg.TLSCertFile, "tls-cert-file", "", "TLS certificate file")
	fs.StringVar(&cfg.TLSKeyFile, "tls-key-file", "", "TLS private key file")

	fs.StringVar(&cfg.Env, "env", "dev", "environment name")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", "json", "log format (json, text)")
	fs.BoolVar(&cfg.LogNoColor, "log-no-color", false, "disable colour in text logs")

	fs.DurationVar(&cfg.ShutdownGracePeriod, "shutdown-grace-period", 10*time.Second, "graceful shutdown timeout")
	fs.DurationVar(&cfg.HousekeepingInterval, "housekeeping-interval", service.DefaultHousekeepingInterval, "expired artifact sweep interval")
	fs.IntVar(&cfg.HousekeepingBatchSize, "housekeeping-batch-size", service.DefaultHousekeepingBatch, "rows deleted per sweep batch")

	if err := ff.Parse(fs, args, ff.WithEnvVars()); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.Issuer = strings.TrimRight(cfg.Issuer, "/")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.Issuer); err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		errs = append(errs, fmt.Errorf("AUTH_ISSUER must be an absolute http(s) URL, got %q", c.Issuer))
	}
	if !jwtx.IsSupportedAlgorithm(c.Algorithm) {
		errs = append(errs, fmt.Errorf("AUTH_ALGORITHM must be one of %s, got %q",
			strings.Join(jwtx.SupportedAlgorithms, ", "), c.Algorithm))
	}
	if !slices.Contains([]string{KeyModeEphemeral, KeyModePersistent}, c.KeyMode) {
		errs = append(errs, fmt.Errorf("AUTH_KEY_MODE must be ephemeral or persistent, got %q", c.KeyMode))
	}
	if c.KeyMode == KeyModePersistent && c.StoreDriver == StoreMemory {
		errs = append(errs, errors.New("AUTH_KEY_MODE=persistent requires STORE_DRIVER=sqlite"))
	}
	if c.KeyRotationInterval < 0 || c.KeyGracePeriod < 0 {
		errs = append(errs, errors.New("key rotation interval and grace period must not be negative"))
	}
	if !slices.Contains([]string{StoreMemory, StoreSQLite}, c.StoreDriver) {
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be memory or sqlite, got %q", c.StoreDriver))
	}
	if !slices.Contains([]string{ReplayMemory, ReplayRedis}, c.ReplayCache) {
		errs = append(errs, fmt.Errorf("REPLAY_CACHE must be memory or redis, got %q", c.ReplayCache))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		errs = append(errs, errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together"))
	}
	if c.HousekeepingInterval <= 0 || c.HousekeepingBatchSize <= 0 {
		errs = append(errs, errors.New("housekeeping interval and batch size must be positive"))
	}
	if c.ShutdownGracePeriod <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_GRACE_PERIOD must be positive"))
	}

	return errors.Join(errs...)
}

// TLSEnabled reports whether the server terminates TLS itself.
func (c Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}
