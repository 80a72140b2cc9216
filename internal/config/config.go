package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/ensemblehq/inference-proxy/internal/core/domain"
	"github.com/ensemblehq/inference-proxy/internal/logger"
)

const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8080
	DefaultMetricsCacheTTL = 3 * time.Second
	DefaultBackendTimeout  = 300 * time.Second
	DefaultMaxRequestQueue = 4
	DefaultMaxDeferred     = 2

	DefaultFileWriteDelay = 150 * time.Millisecond // windows fires the fsnotify event before the write completes
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns a configuration with sensible defaults. Backends
// is intentionally left empty — it has no sane default.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Proxy: ProxyConfig{
			MetricsCacheTTL:        DefaultMetricsCacheTTL,
			BackendTimeout:         DefaultBackendTimeout,
			MaxAllowedRequestQueue: DefaultMaxRequestQueue,
			MaxAllowedDeferred:     DefaultMaxDeferred,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "./logs",
			FileOutput: false,
			Pretty:     true,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		},
	}
}

// Load reads configuration from an optional YAML file and from the
// environment, then validates it. It starts viper's config-file watch;
// onConfigChange, if non-nil, is invoked (debounced) whenever the
// watched file changes. The returned Config is never updated by such a
// change, so no setting is hot-reloaded; the backend pool in
// particular must stay fixed because the cache's key set is fixed at
// startup.
func Load(onConfigChange func()) (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnv("server.host", "SERVER_HOST")
	bindEnv("server.port", "SERVER_PORT")
	bindEnv("logging.level", "LOG_LEVEL")
	bindEnv("logging.dir", "LOG_DIR")
	bindEnv("logging.file_output", "LOG_FILE_OUTPUT")
	bindEnv("logging.pretty", "LOG_PRETTY")
	bindEnv("logging.max_size", "LOG_MAX_SIZE")
	bindEnv("logging.max_backups", "LOG_MAX_BACKUPS")
	bindEnv("logging.max_age", "LOG_MAX_AGE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, domain.NewConfigError("file", err)
		}
		if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, domain.NewConfigError("CONFIG_FILE="+configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, domain.NewConfigError("unmarshal", err)
	}

	cfg.Backends = parseBackends(os.Getenv("BACKENDS"))
	cfg.Proxy.MetricsCacheTTL = durationSecondsEnv("METRICS_CACHE_TTL_SECONDS", cfg.Proxy.MetricsCacheTTL)
	cfg.Proxy.BackendTimeout = durationSecondsEnv("BACKEND_TIMEOUT_SECONDS", cfg.Proxy.BackendTimeout)
	cfg.Proxy.MaxAllowedRequestQueue = intEnv("MAX_ALLOWED_REQUEST_QUEUE", cfg.Proxy.MaxAllowedRequestQueue)
	cfg.Proxy.MaxAllowedDeferred = intEnv("MAX_ALLOWED_DEFERRED", cfg.Proxy.MaxAllowedDeferred)

	if len(cfg.Backends) == 0 {
		logger.Fatal("no backends configured", "env", "BACKENDS")
	}

	viper.WatchConfig()
	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return
			}
			lastReload = now

			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}

	return cfg, nil
}

func bindEnv(key, env string) {
	_ = viper.BindEnv(key, env)
}

func parseBackends(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	backends := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		backends = append(backends, strings.TrimRight(p, "/"))
	}
	return backends
}

func durationSecondsEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	seconds, err := parseFloatSeconds(raw)
	if err != nil {
		return fallback
	}
	return time.Duration(seconds * float64(time.Second))
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return fallback
	}
	return n
}

func parseFloatSeconds(raw string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(raw, "%g", &f)
	return f, err
}
