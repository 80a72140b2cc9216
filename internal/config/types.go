package config

import "time"

// Config holds all configuration for the application. Backends is the
// one field whose emptiness is fatal; everything else is ambient and
// defaulted.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Server      ServerConfig      `yaml:"server"`
	Proxy       ProxyConfig       `yaml:"proxy"`
	Engineering EngineeringConfig `yaml:"engineering"`
	Backends    []string          `yaml:"backends"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProxyConfig holds the core proxy tuning knobs.
type ProxyConfig struct {
	MetricsCacheTTL        time.Duration `yaml:"metrics_cache_ttl"`
	BackendTimeout         time.Duration `yaml:"backend_timeout"`
	MaxAllowedRequestQueue int           `yaml:"max_allowed_request_queue"`
	MaxAllowedDeferred     int           `yaml:"max_allowed_deferred"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"`
	FileOutput bool   `yaml:"file_output"`
	Pretty     bool   `yaml:"pretty"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// EngineeringConfig holds development/debugging configuration
type EngineeringConfig struct {
	ShowNerdStats bool `yaml:"show_nerdstats"`
}
