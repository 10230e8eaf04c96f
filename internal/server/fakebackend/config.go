package fakebackend

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrijs2005/revsearch/internal/client/models"
	"github.com/dmitrijs2005/revsearch/internal/confx"
)

const EnvPrefix = "SEARCHD_"

// Config holds runtime settings for searchd.
type Config struct {
	HTTP struct {
		Addr            string        `koanf:"addr" validate:"required"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
		MaxUploadBytes  int64         `koanf:"max_upload_bytes" validate:"gt=0"`
	} `koanf:"http"`

	Auth struct {
		Secret   string        `koanf:"secret" validate:"required"`
		TokenTTL time.Duration `koanf:"token_ttl" validate:"gt=0"`
	} `koanf:"auth"`

	Search struct {
		Engines []string `koanf:"engines" validate:"min=1,unique,dive,required"`
		// FailEngines end in "failed" instead of "completed".
		FailEngines []string `koanf:"fail_engines" validate:"unique"`
		LinkBase    string   `koanf:"link_base" validate:"required,url"`
	} `koanf:"search"`

	Billing struct {
		// Every purchase fails with this code when set.
		FailPurchase string         `koanf:"fail_purchase" validate:"omitempty,oneof=user_cancelled payment_declined"`
		Offers       []models.Offer `koanf:"-" validate:"dive"`
	} `koanf:"billing"`

	Log struct {
		Level string `koanf:"level" validate:"oneof=debug info warn warning error"`
	} `koanf:"log"`
}

// LoadDefaults populates c with development defaults.
func (c *Config) LoadDefaults() {
	c.HTTP.Addr = ":8080"
	c.HTTP.ShutdownTimeout = 5 * time.Second
	c.HTTP.MaxUploadBytes = 10 << 20
	c.Auth.Secret = "searchd-dev-secret"
	c.Auth.TokenTTL = time.Hour
	c.Search.Engines = append([]string(nil), models.DefaultEngines...)
	c.Search.LinkBase = "https://results.example.test"
	c.Billing.Offers = []models.Offer{
		{ID: "pro.week", DisplayPrice: "$4.99", Price: 4.99, Currency: "USD", Period: models.PeriodWeek},
		{ID: "pro.year", DisplayPrice: "$39.99", Price: 39.99, Currency: "USD", Period: models.PeriodYear},
	}
	c.Log.Level = "info"
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadConfig builds a Config from defaults, the optional file at path and
// SEARCHD_* environment variables, then validates it.
func LoadConfig(path string) (*Config, error) {
	return loadConfig(path, os.Environ)
}

func loadConfig(path string, environ func() []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := confx.Load(path, EnvPrefix, environ, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
