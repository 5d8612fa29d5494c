package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                     = "FIELDSYNC"
	defaultHTTPAddress            = "0.0.0.0:8080"
	defaultDatabasePath           = "fieldsync.db"
	defaultLogLevel               = "info"
	defaultTokenTTLMinutes        = 30
	defaultNotifyQuota            = 10
	defaultNotifyWindowSeconds    = 60
	defaultTombstoneRetentionDays = 90
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress            string
	DatabasePath           string
	SigningSecret          string
	TokenTTL               time.Duration
	LogLevel               string
	NotifyQuota            int
	NotifyWindow           time.Duration
	TombstoneRetentionDays int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("notify.quota", defaultNotifyQuota)
	configViper.SetDefault("notify.window_seconds", defaultNotifyWindowSeconds)
	configViper.SetDefault("sync.tombstone_retention_days", defaultTombstoneRetentionDays)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:            configViper.GetString("http.address"),
		DatabasePath:           configViper.GetString("database.path"),
		SigningSecret:          configViper.GetString("auth.signing_secret"),
		TokenTTL:               time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		LogLevel:               configViper.GetString("log.level"),
		NotifyQuota:            configViper.GetInt("notify.quota"),
		NotifyWindow:           time.Duration(configViper.GetInt("notify.window_seconds")) * time.Second,
		TombstoneRetentionDays: configViper.GetInt("sync.tombstone_retention_days"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TombstoneRetentionDays < 0 {
		return fmt.Errorf("sync.tombstone_retention_days must not be negative")
	}
	return nil
}
