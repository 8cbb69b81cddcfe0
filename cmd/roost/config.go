package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/birbparty/roost/sessionstore"
)

const (
	defaultBaseURL = "http://localhost:8080"
	defaultTimeout = 30 * time.Second
)

// cliConfig is resolved from flags, ROOST_* variables, the config file and
// defaults, in that order
type cliConfig struct {
	BaseURL      string        `mapstructure:"base-url"`
	APIKey       string        `mapstructure:"api-key"`
	SessionFile  string        `mapstructure:"session-file"`
	SessionStore string        `mapstructure:"session-store"`
	LogLevel     string        `mapstructure:"log-level"`
	OTLPEndpoint string        `mapstructure:"otlp-endpoint"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ConfigPath   string        `mapstructure:"-"`
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "roost", "config.yaml")
}

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.String("base-url", "", "backend base URL (env ROOST_BASE_URL)")
	flags.String("api-key", "", "API key (env ROOST_API_KEY)")
	flags.String("config", "", "config file (default is $XDG_CONFIG_HOME/roost/config.yaml)")
	flags.String("session-file", "", "where the signed-in session is kept")
	flags.String("session-store", "", "session backend: file, redis or postgres")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("otlp-endpoint", "", "OTLP gRPC collector for traces and metrics")
	flags.Duration("timeout", 0, "request timeout")
}

func loadConfig(flags *pflag.FlagSet) (cliConfig, error) {
	var cfg cliConfig

	v := viper.New()
	v.SetEnvPrefix("ROOST")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("base-url", defaultBaseURL)
	v.SetDefault("api-key", "")
	v.SetDefault("session-file", sessionstore.DefaultFilePath())
	v.SetDefault("session-store", "file")
	v.SetDefault("log-level", "warn")
	v.SetDefault("otlp-endpoint", "")
	v.SetDefault("timeout", defaultTimeout)

	// only explicitly set flags override env and file values
	var bindErr error
	flags.Visit(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return cfg, bindErr
	}

	configPath, _ := flags.GetString("config")
	explicit := configPath != ""
	if !explicit {
		configPath = defaultConfigPath()
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			missing := errors.As(err, &notFound) || os.IsNotExist(err)
			if explicit || !missing {
				return cfg, fmt.Errorf("reading config %s: %w", configPath, err)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if cfg.APIKey == "" {
		return cfg, errors.New("an API key is required: pass --api-key or set ROOST_API_KEY")
	}
	if cfg.Timeout <= 0 {
		return cfg, fmt.Errorf("invalid timeout %s", cfg.Timeout)
	}
	return cfg, nil
}
