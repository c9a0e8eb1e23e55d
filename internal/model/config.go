package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultPageSize is the number of summaries requested per folder listing.
const DefaultPageSize = 50

// GatewayConfig holds the remote gateway connection settings.
type GatewayConfig struct {
	// BaseURL is the root URL of the gateway (e.g., https://192.168.1.138).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// PageSize is sent as page_size on folder listings.
	PageSize int `mapstructure:"page_size" yaml:"page_size"`

	// InsecureSkipVerify disables TLS verification for self-signed gateways.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// AccountConfig holds login prefill settings.
type AccountConfig struct {
	// Identity prefills the login form. The matching secret is looked up in
	// the system keyring, never stored in this file.
	Identity string `mapstructure:"identity" yaml:"identity"`
}

// S3Config selects the S3 download target.
type S3Config struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint targets S3-compatible stores (e.g., MinIO).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// DownloadsConfig controls where opened attachments are saved.
type DownloadsConfig struct {
	Dir string   `mapstructure:"dir" yaml:"dir"`
	S3  S3Config `mapstructure:"s3" yaml:"s3"`
}

// SyncConfig controls the optional periodic refresh of the selected folder.
type SyncConfig struct {
	// RefreshIntervalSec of 0 disables the refresher.
	RefreshIntervalSec int `mapstructure:"refresh_interval_sec" yaml:"refresh_interval_sec"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level client configuration.
type AppConfig struct {
	Gateway   GatewayConfig   `mapstructure:"gateway" yaml:"gateway"`
	Account   AccountConfig   `mapstructure:"account" yaml:"account"`
	Downloads DownloadsConfig `mapstructure:"downloads" yaml:"downloads"`
	Sync      SyncConfig      `mapstructure:"sync" yaml:"sync"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// configDir returns ~/.config/mailgate, or the working directory when the
// home directory cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mailgate")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailgate/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func defaultDownloadsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Gateway: GatewayConfig{
			BaseURL:  "https://localhost:5000",
			PageSize: DefaultPageSize,
		},
		Downloads: DownloadsConfig{
			Dir: defaultDownloadsDir(),
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(configDir(), "mailgate.log"),
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with MAILGATE_ override file values
// (e.g., MAILGATE_GATEWAY_BASE_URL). If the file does not exist, the
// defaults plus environment overrides are returned.
func LoadConfig(path string) (*AppConfig, error) {
	def := defaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MAILGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults double as the key registry for AutomaticEnv.
	v.SetDefault("gateway.base_url", def.Gateway.BaseURL)
	v.SetDefault("gateway.page_size", def.Gateway.PageSize)
	v.SetDefault("gateway.insecure_skip_verify", false)
	v.SetDefault("account.identity", "")
	v.SetDefault("downloads.dir", def.Downloads.Dir)
	v.SetDefault("downloads.s3.bucket", "")
	v.SetDefault("downloads.s3.prefix", "")
	v.SetDefault("downloads.s3.region", "")
	v.SetDefault("downloads.s3.endpoint", "")
	v.SetDefault("sync.refresh_interval_sec", 0)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.file", def.Log.File)

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Gateway.PageSize < 1 {
		cfg.Gateway.PageSize = DefaultPageSize
	}
	cfg.Gateway.BaseURL = strings.TrimRight(cfg.Gateway.BaseURL, "/")

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("gateway", cfg.Gateway)
	v.Set("account", cfg.Account)
	v.Set("downloads", cfg.Downloads)
	v.Set("sync", cfg.Sync)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
