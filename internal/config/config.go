// Package config provides configuration management using Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Source  SourceConfig  `mapstructure:"source"`
	Convert ConvertConfig `mapstructure:"convert"`
	CRS     CRSConfig     `mapstructure:"crs"`
	Watch   WatchConfig   `mapstructure:"watch"`
	TLS     TLSConfig     `mapstructure:"tls"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"` // e.g., ["https://example.com", "*.sub.domain.tld"]
}

// Enabled returns true if CORS is configured with at least one allowed origin.
func (c *CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// EngineConfig holds GDAL engine configuration.
type EngineConfig struct {
	Ogr2ogrPath string        `mapstructure:"ogr2ogr_path"`
	OgrinfoPath string        `mapstructure:"ogrinfo_path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	WorkDir     string        `mapstructure:"work_dir"`
}

// SourceConfig holds dataset source configuration for batch runs.
type SourceConfig struct {
	Type      string      `mapstructure:"type"` // s3, azure, http, local
	LocalPath string      `mapstructure:"local_path"`
	S3        S3Config    `mapstructure:"s3"`
	Azure     AzureConfig `mapstructure:"azure"`
	HTTP      HTTPConfig  `mapstructure:"http"`
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// HTTPConfig holds HTTP download configuration.
type HTTPConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	IndexFile string        `mapstructure:"index_file"` // default: index.txt
	Timeout   time.Duration `mapstructure:"timeout"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
}

// ConvertConfig holds conversion defaults.
type ConvertConfig struct {
	DefaultOutputFormat string `mapstructure:"default_output_format"`
	OutputDir           string `mapstructure:"output_dir"`
	KeepZ               bool   `mapstructure:"keep_z"`
	SkipFailures        bool   `mapstructure:"skip_failures"`
}

// CRSConfig holds CRS resolution configuration.
type CRSConfig struct {
	Endpoints []string      `mapstructure:"endpoints"` // %s is replaced with the EPSG code
	Timeout   time.Duration `mapstructure:"timeout"`
}

// WatchConfig holds drop directory watcher configuration.
type WatchConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Dir          string        `mapstructure:"dir"`
	Debounce     time.Duration `mapstructure:"debounce"`
	OutputFormat string        `mapstructure:"output_format"`
}

// TLSConfig holds TLS/CertMagic configuration.
type TLSConfig struct {
	Enabled  bool         `mapstructure:"enabled"`
	Domains  []string     `mapstructure:"domains"`
	Email    string       `mapstructure:"email"`
	CacheDir string       `mapstructure:"cache_dir"`
	Staging  bool         `mapstructure:"staging"` // Use Let's Encrypt staging
	DNS      TLSDNSConfig `mapstructure:"dns"`
}

// TLSDNSConfig holds the Azure DNS provider settings for DNS-01 challenges.
type TLSDNSConfig struct {
	SubscriptionID    string `mapstructure:"subscription_id"`
	ResourceGroupName string `mapstructure:"resource_group_name"`
	ClientID          string `mapstructure:"client_id"` // Managed identity client ID (optional)
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Defaults sets the default configuration values.
func Defaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 5*time.Minute)
	viper.SetDefault("server.write_timeout", 10*time.Minute)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.max_upload_bytes", int64(2<<30))
	viper.SetDefault("server.cors.allowed_origins", []string{})

	// Engine defaults
	viper.SetDefault("engine.ogr2ogr_path", "ogr2ogr")
	viper.SetDefault("engine.ogrinfo_path", "ogrinfo")
	viper.SetDefault("engine.timeout", 10*time.Minute)
	viper.SetDefault("engine.work_dir", "")

	// Source defaults
	viper.SetDefault("source.type", "local")
	viper.SetDefault("source.local_path", "./data")
	viper.SetDefault("source.http.index_file", "index.txt")
	viper.SetDefault("source.http.timeout", 5*time.Minute)

	// Conversion defaults
	viper.SetDefault("convert.default_output_format", "geojson")
	viper.SetDefault("convert.output_dir", "./out")
	viper.SetDefault("convert.keep_z", true)
	viper.SetDefault("convert.skip_failures", false)

	// CRS defaults
	viper.SetDefault("crs.endpoints", []string{
		"https://epsg.io/%s.proj4",
		"https://spatialreference.org/ref/epsg/%s/proj4/",
	})
	viper.SetDefault("crs.timeout", 10*time.Second)

	// Watch defaults
	viper.SetDefault("watch.enabled", false)
	viper.SetDefault("watch.debounce", 2*time.Second)
	viper.SetDefault("watch.output_format", "geojson")

	// TLS defaults
	viper.SetDefault("tls.enabled", false)
	viper.SetDefault("tls.cache_dir", "./.certmagic")
	viper.SetDefault("tls.staging", false)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Load loads configuration from environment and config file.
func Load(configPath string) (*Config, error) {
	Defaults()

	// Environment variable binding
	viper.SetEnvPrefix("VERTO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/verto")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.TLS.Enabled {
		if len(c.TLS.Domains) == 0 {
			return fmt.Errorf("TLS enabled but no domains specified")
		}
		if c.TLS.Email == "" {
			return fmt.Errorf("TLS enabled but no email specified")
		}
	}

	if c.Watch.Enabled && c.Watch.Dir == "" {
		return fmt.Errorf("watch enabled but no directory specified")
	}

	switch c.Source.Type {
	case "local":
		if c.Source.LocalPath == "" {
			return fmt.Errorf("local source path is required")
		}
	case "s3":
		if c.Source.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required")
		}
		if c.Source.S3.Region == "" {
			return fmt.Errorf("S3 region is required")
		}
	case "azure":
		if c.Source.Azure.Container == "" {
			return fmt.Errorf("azure container is required")
		}
		if c.Source.Azure.AccountName == "" && c.Source.Azure.ConnectionString == "" {
			return fmt.Errorf("azure account name or connection string is required")
		}
	case "http":
		if c.Source.HTTP.BaseURL == "" {
			return fmt.Errorf("HTTP base URL is required")
		}
	default:
		return fmt.Errorf("unknown source type: %s", c.Source.Type)
	}

	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
