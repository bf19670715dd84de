// Package config loads application configuration from defaults, an optional YAML
// file and SEQWORKER_* environment variables.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Worker  WorkerConfig  `mapstructure:"worker" validate:"required"`
	Cipher  CipherConfig  `mapstructure:"cipher" validate:"required"`
	Log     LogConfig     `mapstructure:"log" validate:"required"`
	Metrics MetricsConfig `mapstructure:"metrics" validate:"required"`
}

// WorkerConfig configures the background worker.
type WorkerConfig struct {
	Name            string `mapstructure:"name" validate:"required"`
	HistoryCapacity int    `mapstructure:"history_capacity" validate:"gte=1,lte=100000"`
}

// CipherConfig configures the encryption transform.
type CipherConfig struct {
	Passphrase string        `mapstructure:"passphrase" validate:"required,min=8"`
	Delay      time.Duration `mapstructure:"delay" validate:"gte=0"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// MetricsConfig configures the HTTP listener and stats polling.
type MetricsConfig struct {
	Addr         string        `mapstructure:"addr" validate:"required,hostname_port"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
}
