package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable Load reads.
const EnvPrefix = "SEQWORKER"

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("worker.name", "encrypter")
	v.SetDefault("worker.history_capacity", 100)
	v.SetDefault("cipher.passphrase", "change-me-please")
	v.SetDefault("cipher.delay", "250ms")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.addr", "127.0.0.1:8080")
	v.SetDefault("metrics.poll_interval", "1s")
}

// Load reads configuration. Environment variables take precedence over the file at
// configPath, which takes precedence over defaults. An empty configPath skips the file.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("configuration validation failed: %s fails %q: %w", fe.Namespace(), fe.Tag(), err)
		}
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
