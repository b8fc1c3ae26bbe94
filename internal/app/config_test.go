package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Addr:        defaultAddr,
		DatabaseURL: "postgres://localhost/shop",
		TimeZone:    "Europe/Warsaw",
		Mail:        MailConfig{Backend: "console"},
	}
}

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("REDIS_URL", "redis://platform:6379/0")
	t.Setenv("PORT", "9000")

	cfg := &Config{Addr: defaultAddr}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "redis://platform:6379/0", cfg.RedisURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
}

func TestApplyPlatformDefaults_ExplicitWins(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9000")

	cfg := &Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit/db"}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://explicit/db", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())
	assert.Equal(t, "Europe/Warsaw", validConfig().Location().String())

	for name, mutate := range map[string]func(c *Config){
		"NoDatabase":    func(c *Config) { c.DatabaseURL = "" },
		"BadTimeZone":   func(c *Config) { c.TimeZone = "Mars/Olympus" },
		"LocalTimeZone": func(c *Config) { c.TimeZone = "Local" },
		"SMTPNoHost":    func(c *Config) { c.Mail.Backend = "smtp" },
		"UnknownMailer": func(c *Config) { c.Mail.Backend = "pigeon" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
