package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrijs2005/revsearch/internal/client/artifacts"
	"github.com/dmitrijs2005/revsearch/internal/client/models"
	"github.com/dmitrijs2005/revsearch/internal/confx"
)

const EnvPrefix = "REVSEARCH_"

// Config holds runtime settings for the revsearch CLI.
type Config struct {
	Server struct {
		BaseURL string `koanf:"base_url" validate:"required,url"`
	} `koanf:"server"`

	Billing struct {
		// BaseURL defaults to Server.BaseURL when empty.
		BaseURL string `koanf:"base_url" validate:"omitempty,url"`
	} `koanf:"billing"`

	Client struct {
		RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
	} `koanf:"client"`

	Search struct {
		Engines         []string      `koanf:"engines" validate:"min=1,unique,dive,required"`
		PollInterval    time.Duration `koanf:"poll_interval" validate:"gt=0"`
		MaxPollAttempts int           `koanf:"max_poll_attempts" validate:"gt=0"`
		PollTimeout     time.Duration `koanf:"poll_timeout" validate:"gt=0"`
	} `koanf:"search"`

	Storage struct {
		Dir       string `koanf:"dir" validate:"required"`
		Database  string `koanf:"database" validate:"required"`
		Artifacts string `koanf:"artifacts" validate:"oneof=fs s3"`
		// S3 is only checked when Artifacts is "s3".
		S3 artifacts.S3Config `koanf:"s3" validate:"-"`
	} `koanf:"storage"`

	Credentials struct {
		Secret string `koanf:"secret" validate:"required"`
	} `koanf:"credentials"`

	Entitlement struct {
		RefreshInterval time.Duration `koanf:"refresh_interval" validate:"gt=0"`
	} `koanf:"entitlement"`

	Log struct {
		Level string `koanf:"level" validate:"oneof=debug info warn warning error"`
	} `koanf:"log"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.Server.BaseURL = "http://127.0.0.1:8080"
	c.Billing.BaseURL = ""
	c.Client.RequestTimeout = 15 * time.Second
	c.Search.Engines = append([]string(nil), models.DefaultEngines...)
	c.Search.PollInterval = time.Second
	c.Search.MaxPollAttempts = 120
	c.Search.PollTimeout = 3 * time.Minute
	c.Storage.Dir = defaultDataDir()
	c.Storage.Database = "revsearch.db"
	c.Storage.Artifacts = "fs"
	c.Storage.S3 = artifacts.S3Config{Region: "us-east-1", Prefix: "revsearch"}
	c.Credentials.Secret = defaultSecret()
	c.Entitlement.RefreshInterval = 10 * time.Minute
	c.Log.Level = "info"
}

// BillingURL returns the billing endpoint, falling back to the server.
func (c *Config) BillingURL() string {
	if c.Billing.BaseURL != "" {
		return c.Billing.BaseURL
	}
	return c.Server.BaseURL
}

// DatabasePath resolves Storage.Database against Storage.Dir unless it is
// absolute or an in-memory DSN.
func (c *Config) DatabasePath() string {
	db := c.Storage.Database
	if db == ":memory:" || strings.HasPrefix(db, "file:") || filepath.IsAbs(db) {
		return db
	}
	return filepath.Join(c.Storage.Dir, db)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Storage.Artifacts == "s3" {
		if err := validate.Struct(c.Storage.S3); err != nil {
			return fmt.Errorf("invalid storage.s3 config: %w", err)
		}
	}
	return nil
}

// Load builds a Config from defaults, the optional file at path and the
// environment. Flags are applied separately by the caller, see Flags.
func Load(path string) (*Config, error) {
	return load(path, os.Environ)
}

func load(path string, environ func() []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := confx.Load(path, EnvPrefix, environ, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "revsearch")
	}
	return ".revsearch"
}

// defaultSecret ties the credential key to this machine and account when
// no secret is configured.
func defaultSecret() string {
	host, _ := os.Hostname()
	home, _ := os.UserHomeDir()
	return "revsearch:" + host + ":" + home
}
