package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/jobs"
	"github.com/xenking/storefront/pkg/health"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr            string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL     string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL        string `usage:"Redis URL for task locks and triggers (SHOP_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	APIKeyPepper    string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	SellerGroup     string `default:"seller" usage:"Group whose members act as sellers"`
	TimeZone        string `default:"Europe/Warsaw" usage:"Time zone defining calendar dates"`
	Currency        string `default:"PLN" usage:"Currency shown in notifications"`
	PageSize        int    `default:"20" usage:"List page size"`
	PaymentTermDays int    `default:"5" usage:"Days between order placement and payment due date"`
	Media           MediaConfig
	Mail            MailConfig
	Reminder        ReminderConfig
	Health          health.ReportConfig
	RateLimit       RateLimitConfig
	CORS            CORSConfig
	Graceful        GracefulConfig
}

// MediaConfig controls product image storage.
type MediaConfig struct {
	Root      string `default:"media" usage:"Directory holding uploaded images"`
	BaseURL   string `default:"/media" usage:"URL prefix of stored images in API responses"`
	Serve     bool   `default:"true" usage:"Serve the media directory under /media/"`
	MaxUpload int64  `default:"10485760" usage:"Maximum image upload size in bytes"`
}

// MailConfig selects and configures the notification backend.
type MailConfig struct {
	Backend  string        `default:"console" usage:"Mail backend: console or smtp"`
	From     string        `default:"shop@example.com" usage:"Sender address"`
	Host     string        `usage:"SMTP host"`
	Port     int           `default:"587" usage:"SMTP port"`
	Username string        `usage:"SMTP username"`
	Password string        `usage:"SMTP password"`
	StartTLS bool          `default:"false" usage:"Require STARTTLS"`
	Timeout  time.Duration `default:"10s" usage:"Per-message delivery timeout"`
}

// ReminderConfig controls the payment reminder job.
type ReminderConfig struct {
	Schedule    string        `default:"0 9 * * *" usage:"Cron schedule of the reminder run"`
	ChunkSize   int           `default:"500" usage:"Orders fetched per query"`
	LockTTL     time.Duration `default:"30m" usage:"Lifetime of the single-runner lock"`
	QueueKey    string        `default:"shop:tasks:payment-reminders" usage:"Redis list receiving manual triggers"`
	PollTimeout time.Duration `default:"5s" usage:"Blocking wait for a manual trigger"`
	Retry       jobs.RetryConfig
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"120" usage:"Max requests per window, 0 disables"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s" usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files and platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return errors.Wrapf(err, "time zone %q", c.TimeZone)
	}
	// Postgres resolves the zone by name and knows no "Local".
	if c.TimeZone == "Local" {
		return errors.New(`time zone "Local" is not supported: use an IANA name such as "Europe/Warsaw"`)
	}
	switch c.Mail.Backend {
	case "console":
	case "smtp":
		if c.Mail.Host == "" {
			return errors.New("mail host is required for the smtp backend")
		}
	default:
		return errors.Errorf("unknown mail backend %q", c.Mail.Backend)
	}
	return nil
}

// Location returns the configured time zone. It must only be called on a
// validated Config.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
