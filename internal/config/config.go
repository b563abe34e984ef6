package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`

	// Shared token for the Meta webhook GET handshake.
	WebhookVerifyToken string `env:"WEBHOOK_VERIFY_TOKEN,required"`

	// App signing secrets for X-Hub-Signature-256. WhatsApp uses its own
	// app secret; Messenger and Instagram share the Facebook app secret.
	MetaAppSecret     string `env:"META_APP_SECRET"`
	WhatsAppAppSecret string `env:"WHATSAPP_APP_SECRET"`

	// Per-channel signature failure policy. Instagram defaults to lenient
	// because the platform is known to sign with the alternate app secret
	// depending on which login flow linked the account.
	WhatsAppStrictSignature  bool `env:"WHATSAPP_STRICT_SIGNATURE" envDefault:"true"`
	MessengerStrictSignature bool `env:"MESSENGER_STRICT_SIGNATURE" envDefault:"true"`
	InstagramStrictSignature bool `env:"INSTAGRAM_STRICT_SIGNATURE" envDefault:"false"`

	GraphAPIBaseURL string `env:"GRAPH_API_BASE_URL" envDefault:"https://graph.facebook.com"`
	GraphAPIVersion string `env:"GRAPH_API_VERSION" envDefault:"v19.0"`

	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`

	// Hex-encoded 32-byte key for encrypting page access tokens at rest.
	// Tokens are stored in plaintext when unset.
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`

	RawPayloadRetentionDays int    `env:"RAW_PAYLOAD_RETENTION_DAYS" envDefault:"30"`
	LogLevel                string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) RawPayloadRetention() time.Duration {
	return time.Duration(c.RawPayloadRetentionDays) * 24 * time.Hour
}

func (c *Config) GraphAPIURL() string {
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(c.GraphAPIBaseURL, "/"), c.GraphAPIVersion)
}

func (c *Config) Validate(isProduction bool) error {
	if c.AdminPasswordHash != "" {
		if !strings.HasPrefix(c.AdminPasswordHash, "$2a$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2b$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2y$") {
			return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <password>)")
		}
	}

	if c.TokenEncryptionKey != "" && len(c.TokenEncryptionKey) != 64 {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be 64 hex characters (generate with: openssl rand -hex 32)")
	}

	if isProduction {
		if err := validateSecret("WEBHOOK_VERIFY_TOKEN", c.WebhookVerifyToken); err != nil {
			return err
		}

		if c.MetaAppSecret == "" {
			log.Warn().Msg("META_APP_SECRET is empty in production: messenger/instagram signature verification disabled")
		}
		if c.WhatsAppAppSecret == "" {
			log.Warn().Msg("WHATSAPP_APP_SECRET is empty in production: whatsapp signature verification disabled")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
