package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/tabauth/pkg/cryptox"
	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
)

// InitCodec builds the token codec from the configured secrets. A secret
// left unset is replaced by random bytes that only live as long as the
// process, so every token is invalidated by a restart.
func InitCodec(cfg Config, logger *slog.Logger) (*jwtx.Codec, error) {
	access, err := secretOrRandom(cfg.AccessSecret)
	if err != nil {
		return nil, err
	}
	refresh, err := secretOrRandom(cfg.RefreshSecret)
	if err != nil {
		return nil, err
	}

	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		logger.Warn("token secrets not configured, using ephemeral secrets",
			slog.Bool("access_ephemeral", cfg.AccessSecret == ""),
			slog.Bool("refresh_ephemeral", cfg.RefreshSecret == ""),
		)
	}

	codec, err := jwtx.NewCodec(jwtx.CodecConfig{
		Issuer:        cfg.Issuer,
		AccessSecret:  access,
		RefreshSecret: refresh,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build token codec: %w", err)
	}

	logger.Info("token codec ready",
		slog.String("issuer", cfg.Issuer),
		slog.Duration("access_ttl", codec.AccessTTL()),
		slog.Duration("refresh_ttl", codec.RefreshTTL()),
	)
	return codec, nil
}

func secretOrRandom(secret string) ([]byte, error) {
	if secret != "" {
		return []byte(secret), nil
	}
	return cryptox.GenerateSecret(jwtx.MinSecretLength)
}
