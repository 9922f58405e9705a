package app

import (
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/minimercado-till/internal/domain/cart"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete till configuration, loadable from environment
// variables (TILL_ prefix), flags, YAML config files, or a .env file.
type Config struct {
	Addr     string `default:"0.0.0.0:8080" usage:"HTTP listen address"`
	Commerce CommerceConfig
	Catalog  CatalogConfig
	Session  SessionConfig
	CORS     CORSConfig
	Graceful GracefulConfig
}

// CommerceConfig points the till at the remote commerce service.
type CommerceConfig struct {
	URL     string        `usage:"Commerce service base URL (TILL_COMMERCE_URL)" flag:"commerce-url"`
	Timeout time.Duration `default:"10s" usage:"Per-request timeout for commerce calls" flag:"commerce-timeout"`
	// Catalog fetches only; sale submission is never short-circuited.
	BreakerFailures uint32        `default:"3" usage:"Consecutive catalog fetch failures that open the breaker" flag:"commerce-breaker-failures"`
	BreakerTimeout  time.Duration `default:"30s" usage:"How long the catalog breaker stays open" flag:"commerce-breaker-timeout"`
}

// CatalogConfig controls background catalog refresh.
type CatalogConfig struct {
	RefreshInterval time.Duration `default:"5m" usage:"Catalog refresh interval, 0 disables" flag:"catalog-refresh-interval"`
}

// SessionConfig controls checkout sessions.
type SessionConfig struct {
	IdleTimeout time.Duration `default:"2h" usage:"Evict sessions idle this long, 0 disables" flag:"session-idle-timeout"`
	LineIDs     string        `default:"sequence" usage:"Cart line id scheme: sequence or uuid" flag:"session-line-ids"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads .env (if present), then configuration from environment
// variables and YAML config files, and validates the result.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	return loadConfig(aconfig.Config{
		EnvPrefix: "TILL",
		Files:     []string{"config.yaml", "/etc/till/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(acfg aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, acfg).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults honours the PORT variable set by hosting platforms.
func (c *Config) applyPlatformDefaults() {
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	if c.Commerce.URL == "" {
		return errors.New("commerce URL is required: set TILL_COMMERCE_URL")
	}
	u, err := url.Parse(c.Commerce.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("invalid commerce URL %q", c.Commerce.URL)
	}
	if c.Commerce.Timeout <= 0 {
		return errors.New("commerce timeout must be positive")
	}
	if c.Catalog.RefreshInterval < 0 || c.Session.IdleTimeout < 0 {
		return errors.New("intervals must not be negative")
	}
	if _, err := c.Session.lineIDs(); err != nil {
		return err
	}
	return nil
}

// lineIDs returns the per-session line id generator factory.
func (s SessionConfig) lineIDs() (func() cart.IDGenerator, error) {
	switch s.LineIDs {
	case "", "sequence":
		return func() cart.IDGenerator { return new(cart.Sequence) }, nil
	case "uuid":
		return func() cart.IDGenerator { return cart.UUIDs{} }, nil
	default:
		return nil, errors.Errorf("unknown line id scheme %q (want sequence or uuid)", s.LineIDs)
	}
}
