package session

import (
	"crypto/rand"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Secret       []byte
	TTL          time.Duration
	CookieName   string
	CookieSecure bool
	// Ephemeral is set when no SESSION_SECRET was configured and a random one
	// was generated; sessions then do not survive a restart.
	Ephemeral bool
}

// ConfigFromEnv reads session settings from env vars.
func ConfigFromEnv() Config {
	cfg := Config{
		Secret:       []byte(os.Getenv("SESSION_SECRET")),
		TTL:          24 * time.Hour,
		CookieName:   "session",
		CookieSecure: true,
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.TTL = d
		}
	}
	if v := os.Getenv("SESSION_COOKIE_NAME"); v != "" {
		cfg.CookieName = v
	}
	if v := os.Getenv("SESSION_COOKIE_SECURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.CookieSecure = b
		}
	}
	if len(cfg.Secret) == 0 {
		cfg.Secret = make([]byte, 32)
		_, _ = rand.Read(cfg.Secret)
		cfg.Ephemeral = true
	}
	return cfg
}
