package config

import (
	"github.com/spf13/pflag"
)

// Flags are the command-line overrides shared by all commands.
type Flags struct {
	ConfigFile string
	ServerURL  string
	BillingURL string
	DataDir    string
	LogLevel   string
	Verbose    bool
}

// Register binds the flags to fs.
func (f *Flags) Register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.ConfigFile, "config", "c", "", "path to a YAML or JSON config file")
	fs.StringVarP(&f.ServerURL, "server", "a", "", "search backend base URL")
	fs.StringVar(&f.BillingURL, "billing", "", "billing backend base URL (defaults to --server)")
	fs.StringVarP(&f.DataDir, "data-dir", "d", "", "directory for the local database and images")
	fs.StringVar(&f.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "shorthand for --log-level=debug")
}

// Apply overlays the flags that were set explicitly on fs.
func (f *Flags) Apply(fs *pflag.FlagSet, cfg *Config) {
	if fs.Changed("server") {
		cfg.Server.BaseURL = f.ServerURL
	}
	if fs.Changed("billing") {
		cfg.Billing.BaseURL = f.BillingURL
	}
	if fs.Changed("data-dir") {
		cfg.Storage.Dir = f.DataDir
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = f.LogLevel
	}
	if f.Verbose {
		cfg.Log.Level = "debug"
	}
}

// LoadConfig applies defaults, the file named by --config, the environment
// and finally the flags, then validates the result.
func LoadConfig(fs *pflag.FlagSet, f *Flags) (*Config, error) {
	cfg, err := Load(f.ConfigFile)
	if err != nil {
		return nil, err
	}
	f.Apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
