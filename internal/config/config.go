package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	API     APIConfig     `yaml:"api" envconfig:"API"`
	Cache   CacheConfig   `yaml:"cache" envconfig:"CACHE"`
	Fetch   FetchConfig   `yaml:"fetch" envconfig:"FETCH"`
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
}

// APIConfig describes the fixed remote SDMX REST endpoint
type APIConfig struct {
	BaseURL       string `yaml:"base_url" envconfig:"BASE_URL" default:"https://sdmx.data.unicef.org/ws/public/sdmxapi/rest"`
	DefaultAgency string `yaml:"default_agency" envconfig:"DEFAULT_AGENCY" default:"UNICEF"`
	Format        string `yaml:"format" envconfig:"FORMAT" default:"csv"`
}

// CacheConfig controls the on-disk metadata snapshot
type CacheConfig struct {
	TTL            time.Duration `yaml:"ttl" envconfig:"TTL" default:"168h"`
	MaxSyncHistory int           `yaml:"max_sync_history" envconfig:"MAX_SYNC_HISTORY" default:"20"`
}

// FetchConfig controls HTTP fetch behavior against the remote API
type FetchConfig struct {
	Timeout      time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"60s"`
	MaxRetries   int           `yaml:"max_retries" envconfig:"MAX_RETRIES" default:"3"`
	RetryBackoff time.Duration `yaml:"retry_backoff" envconfig:"RETRY_BACKOFF" default:"500ms"`
	PageSize     int           `yaml:"page_size" envconfig:"PAGE_SIZE" default:"0"`
	RateLimit    float64       `yaml:"rate_limit" envconfig:"RATE_LIMIT" default:"5"`
	RateBurst    int           `yaml:"rate_burst" envconfig:"RATE_BURST" default:"10"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"120s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/sdmxcli.log"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DataDir  string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	CacheDir string `yaml:"cache_dir" envconfig:"CACHE_DIR" default:"data/cache"`
	LogsDir  string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
}

// Load loads configuration from environment variables and config file.
// Environment variables (prefix SDMX) take precedence over the file.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("SDMX", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := configFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileCfg, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// configFilePath returns the config file location, overridable via env
func configFilePath() string {
	if p := os.Getenv("SDMX_CONFIG_FILE"); p != "" {
		return p
	}
	return "sdmxcli.yaml"
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs overlays explicitly-set env values on top of the file
// config. The env struct arrives with defaults already applied, so the
// file wins only for fields the defaults filled.
func mergeConfigs(fileCfg, envCfg Config) Config {
	merged := envCfg

	if fileCfg.API.BaseURL != "" && !envSet("SDMX_API_BASE_URL") {
		merged.API.BaseURL = fileCfg.API.BaseURL
	}
	if fileCfg.API.DefaultAgency != "" && !envSet("SDMX_API_DEFAULT_AGENCY") {
		merged.API.DefaultAgency = fileCfg.API.DefaultAgency
	}
	if fileCfg.API.Format != "" && !envSet("SDMX_API_FORMAT") {
		merged.API.Format = fileCfg.API.Format
	}
	if fileCfg.Cache.TTL != 0 && !envSet("SDMX_CACHE_TTL") {
		merged.Cache.TTL = fileCfg.Cache.TTL
	}
	if fileCfg.Cache.MaxSyncHistory != 0 && !envSet("SDMX_CACHE_MAX_SYNC_HISTORY") {
		merged.Cache.MaxSyncHistory = fileCfg.Cache.MaxSyncHistory
	}
	if fileCfg.Fetch.Timeout != 0 && !envSet("SDMX_FETCH_TIMEOUT") {
		merged.Fetch.Timeout = fileCfg.Fetch.Timeout
	}
	if fileCfg.Fetch.MaxRetries != 0 && !envSet("SDMX_FETCH_MAX_RETRIES") {
		merged.Fetch.MaxRetries = fileCfg.Fetch.MaxRetries
	}
	if fileCfg.Fetch.RetryBackoff != 0 && !envSet("SDMX_FETCH_RETRY_BACKOFF") {
		merged.Fetch.RetryBackoff = fileCfg.Fetch.RetryBackoff
	}
	if fileCfg.Fetch.PageSize != 0 && !envSet("SDMX_FETCH_PAGE_SIZE") {
		merged.Fetch.PageSize = fileCfg.Fetch.PageSize
	}
	if fileCfg.Server.Port != 0 && !envSet("SDMX_SERVER_PORT") {
		merged.Server.Port = fileCfg.Server.Port
	}
	if fileCfg.Logging.Level != "" && !envSet("SDMX_LOGGING_LEVEL") {
		merged.Logging.Level = fileCfg.Logging.Level
	}
	if fileCfg.Logging.Output != "" && !envSet("SDMX_LOGGING_OUTPUT") {
		merged.Logging.Output = fileCfg.Logging.Output
	}
	if fileCfg.Paths.DataDir != "" && !envSet("SDMX_PATHS_DATA_DIR") {
		merged.Paths.DataDir = fileCfg.Paths.DataDir
	}
	if fileCfg.Paths.CacheDir != "" && !envSet("SDMX_PATHS_CACHE_DIR") {
		merged.Paths.CacheDir = fileCfg.Paths.CacheDir
	}

	return merged
}

func envSet(name string) bool {
	_, ok := os.LookupEnv(name)
	return ok
}

// validate checks configuration invariants
func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must not be empty")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive, got %s", c.Fetch.Timeout)
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must not be negative, got %d", c.Fetch.MaxRetries)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}
