package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
	"github.com/aussiebroadwan/fapiauth/pkg/cryptox"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
)

// InitAuthKeys creates the KeyManager for the configured algorithm and key
// mode and loads or generates the first signing key.
//
// Key modes:
//   - "ephemeral": keys live only in memory. Every token issued before a
//     restart stops verifying.
//   - "persistent": keys are sealed with AES-256-GCM and saved through the
//     store. The current key and a retiring key still inside its grace window
//     are restored on startup.
func InitAuthKeys(ctx context.Context, cfg Config, db store.Store, clock clockx.Clock, logger *slog.Logger) (*jwtx.KeyManager, error) {
	opts := jwtx.KeyManagerOptions{
		Algorithm:   cfg.Algorithm,
		RSABits:     cfg.RSABits,
		GracePeriod: cfg.KeyGracePeriod,
		Clock:       clock,
	}

	if cfg.KeyMode == KeyModePersistent {
		cipher, durable, err := cryptox.LoadKeyCipher(cfg.KeyEncryptionFile, cfg.KeyEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("load key encryption key: %w", err)
		}
		if !durable {
			logger.Warn("no KEY_ENCRYPTION_KEY configured; persisted signing keys will not survive a restart")
		}
		opts.Store = store.NewKeyStoreAdapter(db)
		opts.Cipher = cipher
	}

	keys, err := jwtx.NewKeyManager(opts)
	if err != nil {
		return nil, fmt.Errorf("create key manager: %w", err)
	}
	if err := keys.Init(ctx); err != nil {
		return nil, fmt.Errorf("initialize signing keys: %w", err)
	}

	signer, err := keys.Signer()
	if err != nil {
		return nil, err
	}
	logger.Info("signing keys ready",
		"mode", cfg.KeyMode,
		"algorithm", keys.Algorithm(),
		"kid", signer.KID(),
		"published", len(keys.JWKS().Keys),
		"grace_period", keys.GracePeriod(),
	)
	return keys, nil
}
