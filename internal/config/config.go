package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const placeholderSecret = "changethis"

// Config holds all runtime settings. It is parsed once in main and passed by
// reference into every component; nothing reads the environment after startup.
type Config struct {
	Environment string `env:"STACKPAD_ENV" envDefault:"local"`
	ListenAddr  string `env:"STACKPAD_LISTEN_ADDR" envDefault:":8080"`

	PostgresDSN string `env:"STACKPAD_PG_DSN"`

	AuthSecret     string        `env:"STACKPAD_AUTH_SECRET,required"`
	AccessTokenTTL time.Duration `env:"STACKPAD_ACCESS_TOKEN_TTL" envDefault:"192h"`
	ResetTokenTTL  time.Duration `env:"STACKPAD_RESET_TOKEN_TTL" envDefault:"48h"`
	SessionTTL     time.Duration `env:"STACKPAD_SESSION_TTL" envDefault:"24h"`

	RedisAddr     string        `env:"STACKPAD_REDIS_ADDR"`
	RedisPassword string        `env:"STACKPAD_REDIS_PASSWORD"`
	RedisDB       int           `env:"STACKPAD_REDIS_DB" envDefault:"0"`
	CacheTTL      time.Duration `env:"STACKPAD_CACHE_TTL" envDefault:"5m"`
	CachePrefix   string        `env:"STACKPAD_CACHE_PREFIX" envDefault:"stackpad:cache:"`

	RateLimitEnabled  bool `env:"STACKPAD_RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitPerSec   int  `env:"STACKPAD_RATE_LIMIT_PER_SEC" envDefault:"10"`
	RateLimitBurst    int  `env:"STACKPAD_RATE_LIMIT_BURST" envDefault:"20"`
	LoginPerMinute    int  `env:"STACKPAD_RATE_LIMIT_LOGIN" envDefault:"5"`
	RegisterPerMinute int  `env:"STACKPAD_RATE_LIMIT_REGISTER" envDefault:"3"`
	RecoverPerHour    int  `env:"STACKPAD_RATE_LIMIT_RECOVERY" envDefault:"3"`

	UploadDir         string   `env:"STACKPAD_UPLOAD_DIR" envDefault:"uploads"`
	MaxUploadSize     int64    `env:"STACKPAD_MAX_UPLOAD_SIZE" envDefault:"10485760"`
	AllowedExtensions []string `env:"STACKPAD_ALLOWED_EXTENSIONS" envSeparator:"," envDefault:".jpg,.jpeg,.png,.gif,.pdf,.doc,.docx,.txt"`
	AllowedMIMETypes  []string `env:"STACKPAD_ALLOWED_MIME_TYPES" envSeparator:"," envDefault:"image/jpeg,image/png,image/gif,application/pdf,application/msword,application/vnd.openxmlformats-officedocument.wordprocessingml.document,text/plain"`

	S3Bucket    string `env:"STACKPAD_S3_BUCKET"`
	S3Region    string `env:"STACKPAD_S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"STACKPAD_S3_ENDPOINT"`
	S3AccessKey string `env:"STACKPAD_S3_ACCESS_KEY"`
	S3SecretKey string `env:"STACKPAD_S3_SECRET_KEY"`

	SMTPHost      string `env:"STACKPAD_SMTP_HOST"`
	SMTPPort      int    `env:"STACKPAD_SMTP_PORT" envDefault:"587"`
	SMTPUser      string `env:"STACKPAD_SMTP_USER"`
	SMTPPassword  string `env:"STACKPAD_SMTP_PASSWORD"`
	EmailsFrom    string `env:"STACKPAD_EMAILS_FROM"`
	FrontendHost  string `env:"STACKPAD_FRONTEND_HOST" envDefault:"http://localhost:5173"`
	ProjectName   string `env:"STACKPAD_PROJECT_NAME" envDefault:"stackpad"`
	DefaultLocale string `env:"STACKPAD_DEFAULT_LOCALE" envDefault:"en_US"`

	FirstSuperuser         string `env:"STACKPAD_FIRST_SUPERUSER"`
	FirstSuperuserPassword string `env:"STACKPAD_FIRST_SUPERUSER_PASSWORD"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces settings that cannot be expressed as struct tags.
func (c *Config) Validate() error {
	switch c.Environment {
	case "local", "staging", "production":
	default:
		return fmt.Errorf("config: unknown environment %q", c.Environment)
	}
	if strings.TrimSpace(c.AuthSecret) == "" {
		return errors.New("config: auth secret is required")
	}
	if c.Environment != "local" {
		if c.AuthSecret == placeholderSecret {
			return errors.New("config: auth secret is still the placeholder value")
		}
		if c.FirstSuperuserPassword == placeholderSecret {
			return errors.New("config: first superuser password is still the placeholder value")
		}
	}
	if c.MaxUploadSize <= 0 {
		return errors.New("config: max upload size must be positive")
	}
	if c.AccessTokenTTL <= 0 || c.ResetTokenTTL <= 0 || c.SessionTTL <= 0 {
		return errors.New("config: token and session TTLs must be positive")
	}
	return nil
}

// EmailsEnabled reports whether outbound mail is configured.
func (c *Config) EmailsEnabled() bool {
	return c.SMTPHost != "" && c.EmailsFrom != ""
}

// IsProduction reports whether the service runs with production hardening.
func (c *Config) IsProduction() bool { return c.Environment == "production" }
