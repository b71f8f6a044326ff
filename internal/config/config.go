package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Retention RetentionConfig `mapstructure:"retention"`
}

// SourceConfig selects where page snapshots come from
type SourceConfig struct {
	Type      string `mapstructure:"type"`       // "chrome" or "file"
	ChromeURL string `mapstructure:"chrome_url"` // DevTools endpoint of a running browser
	TargetID  string `mapstructure:"target_id"`  // Optional explicit tab
	File      string `mapstructure:"file"`       // HTML snapshot for the file source
	URL       string `mapstructure:"url"`        // Page URL reported for the file source
}

// TrackingConfig defines poll loop and consent behaviour
type TrackingConfig struct {
	PollInterval     string `mapstructure:"poll_interval"`
	Debounce         string `mapstructure:"debounce"`
	DefaultConsent   string `mapstructure:"default_consent"` // "always", "never" or "ask"
	PreferenceMaxAge string `mapstructure:"preference_max_age"`
	NameCacheSize    int    `mapstructure:"name_cache_size"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type     string      `mapstructure:"type"`     // "bolt", "redis" or "memory"
	Fallback string      `mapstructure:"fallback"` // "memory" or "none"
	Path     string      `mapstructure:"path"`
	Redis    RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	KeyPrefix    string `mapstructure:"key_prefix"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig defines the API and metrics listeners
type ServerConfig struct {
	APIEnabled     bool   `mapstructure:"api_enabled"`
	APIAddress     string `mapstructure:"api_address"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

// RetentionConfig defines how long finished sessions are kept
type RetentionConfig struct {
	MaxAge   string `mapstructure:"max_age"`
	Interval string `mapstructure:"interval"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	v.SetEnvPrefix("ROLLCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			_, notFound := err.(viper.ConfigFileNotFoundError)
			if !notFound && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found, use defaults and environment variables
		}
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Source defaults
	v.SetDefault("source.type", "chrome")
	v.SetDefault("source.chrome_url", "http://127.0.0.1:9222")

	// Tracking defaults
	v.SetDefault("tracking.poll_interval", "5s")
	v.SetDefault("tracking.debounce", "1s")
	v.SetDefault("tracking.default_consent", "ask")
	v.SetDefault("tracking.preference_max_age", "720h")
	v.SetDefault("tracking.name_cache_size", 1024)

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.fallback", "memory")
	v.SetDefault("storage.path", "/var/lib/rollcall/rollcall.bolt")
	v.SetDefault("storage.redis.host", "127.0.0.1")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.key_prefix", "rollcall")
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Server defaults
	v.SetDefault("server.api_enabled", true)
	v.SetDefault("server.api_address", "127.0.0.1:8787")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.metrics_address", "127.0.0.1:9090")

	// Retention defaults
	v.SetDefault("retention.max_age", "168h")
	v.SetDefault("retention.interval", "24h")
}

// validate validates the configuration
func validate(cfg *Config) error {
	switch cfg.Source.Type {
	case "chrome":
		if cfg.Source.ChromeURL == "" {
			return fmt.Errorf("source.chrome_url is required for the chrome source")
		}
	case "file":
		if cfg.Source.File == "" {
			return fmt.Errorf("source.file is required for the file source")
		}
	default:
		return fmt.Errorf("unsupported source type: %s", cfg.Source.Type)
	}

	for name, value := range map[string]string{
		"tracking.poll_interval":      cfg.Tracking.PollInterval,
		"tracking.debounce":           cfg.Tracking.Debounce,
		"tracking.preference_max_age": cfg.Tracking.PreferenceMaxAge,
		"retention.max_age":           cfg.Retention.MaxAge,
		"retention.interval":          cfg.Retention.Interval,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	switch cfg.Tracking.DefaultConsent {
	case "always", "never", "ask":
	default:
		return fmt.Errorf("invalid tracking.default_consent: %s (must be always, never or ask)", cfg.Tracking.DefaultConsent)
	}

	if cfg.Tracking.NameCacheSize <= 0 {
		return fmt.Errorf("tracking.name_cache_size must be positive")
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "bolt"
	}
	switch cfg.Storage.Type {
	case "bolt":
		// Validate storage path
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
		// Ensure storage directory exists
		storageDir := filepath.Dir(cfg.Storage.Path)
		if err := os.MkdirAll(storageDir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("storage.redis.host is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	switch cfg.Storage.Fallback {
	case "memory", "none", "":
	default:
		return fmt.Errorf("unsupported storage fallback: %s (must be memory or none)", cfg.Storage.Fallback)
	}

	if cfg.Server.APIEnabled && cfg.Server.APIAddress == "" {
		return fmt.Errorf("server.api_address is required when the API is enabled")
	}
	if cfg.Server.MetricsEnabled && cfg.Server.MetricsAddress == "" {
		return fmt.Errorf("server.metrics_address is required when metrics are enabled")
	}

	return nil
}

// Default returns the configuration produced by the defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// optionalKeys are valid keys that have no default value.
var optionalKeys = []string{
	"source.target_id",
	"source.file",
	"source.url",
	"storage.redis.password",
	"storage.redis.db",
}

// Keys returns the set of every recognised configuration key.
func Keys() map[string]bool {
	v := viper.New()
	setDefaults(v)

	keys := make(map[string]bool)
	for _, k := range v.AllKeys() {
		keys[k] = true
	}
	for _, k := range optionalKeys {
		keys[k] = true
	}
	return keys
}

// UnknownKeys reads the config file at path and returns the keys it sets
// that rollcall does not recognise, sorted.
func UnknownKeys(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	valid := Keys()
	var unknown []string
	for _, key := range v.AllKeys() {
		if !valid[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown, nil
}

// Duration parses a duration field that validate has already checked.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}
