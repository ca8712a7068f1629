package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pilab-dev/googleconnector/domain"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendMemory  = "memory"
	BackendRedis   = "redis"
	BackendMongoDB = "mongodb"
	BackendBolt    = "bbolt"
)

// Config holds all configuration for the connector server and CLI.
// Tags use mapstructure for Viper unmarshalling.
type Config struct {
	HTTPAddr        string `mapstructure:"http_addr"`
	CallbackBaseURL string `mapstructure:"callback_base_url"` // e.g. https://app.example.com/api/oauth2client
	LogLevel        string `mapstructure:"log_level"`
	LogPretty       bool   `mapstructure:"log_pretty"`
	TracingEnabled  bool   `mapstructure:"tracing_enabled"`
	OtelServiceName string `mapstructure:"otel_service_name"`

	Session   SessionConfig              `mapstructure:"session"`
	Storage   StorageConfig              `mapstructure:"storage"`
	Providers map[string]ProviderSetting `mapstructure:"providers"`
}

// SessionConfig controls the pending-session cookie and lifetime.
type SessionConfig struct {
	TTL          time.Duration `mapstructure:"ttl"`
	CookieName   string        `mapstructure:"cookie_name"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
}

// StorageConfig selects and configures the session and credential backend.
type StorageConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisPrefix   string        `mapstructure:"redis_prefix"`
	MongoURI      string        `mapstructure:"mongo_uri"`
	MongoDBName   string        `mapstructure:"mongo_db_name"`
	BoltPath      string        `mapstructure:"bolt_path"`
	BoltCleanup   time.Duration `mapstructure:"bolt_cleanup_interval"`
}

// ProviderSetting is the configuration of one provider under providers.<name>.
type ProviderSetting struct {
	Type                    string   `mapstructure:"type"`
	ClientID                string   `mapstructure:"client_id"`
	ClientSecret            string   `mapstructure:"client_secret"`
	RedirectURI             string   `mapstructure:"redirect_uri"`
	Scopes                  []string `mapstructure:"scopes"`
	AccessType              string   `mapstructure:"access_type"`
	HostedDomain            string   `mapstructure:"hosted_domain"`
	UsernameField           string   `mapstructure:"username_field"`
	URLAuthorize            string   `mapstructure:"url_authorize"`
	URLAccessToken          string   `mapstructure:"url_access_token"`
	URLResourceOwnerDetails string   `mapstructure:"url_resource_owner_details"`
}

// LoadConfig reads configuration from file, environment variables and defaults.
// An empty path searches connector.yaml in the usual locations.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("connector")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/googleconnector/")
		v.AddConfigPath("$HOME/.googleconnector")
		v.AddConfigPath(".")
	}

	// GCONN_STORAGE_BACKEND overrides storage.backend and so on.
	v.SetEnvPrefix("GCONN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// ConfigFileNotFoundError is acceptable, means we use defaults/env vars.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("callback_base_url", "http://localhost:8080/api/oauth2client")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("tracing_enabled", false)
	v.SetDefault("otel_service_name", "googleconnector")

	v.SetDefault("session.ttl", 10*time.Minute)
	v.SetDefault("session.cookie_name", "oauth2_session")
	v.SetDefault("session.cookie_secure", true)

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_password", "")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("storage.redis_prefix", "googleconnector")
	v.SetDefault("storage.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("storage.mongo_db_name", "googleconnector")
	v.SetDefault("storage.bolt_path", "./data/connector.db")
	v.SetDefault("storage.bolt_cleanup_interval", time.Minute)
}

// Validate checks settings that do not depend on a provider implementation.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendRedis, BackendMongoDB, BackendBolt:
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive, got %s", c.Session.TTL)
	}
	return nil
}

// ProviderConfigs converts the providers map, sorted by name.
func (c *Config) ProviderConfigs() []domain.ProviderConfig {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]domain.ProviderConfig, 0, len(names))
	for _, name := range names {
		p := c.Providers[name]
		out = append(out, domain.ProviderConfig{
			Name:             name,
			Type:             domain.ProviderType(p.Type),
			ClientID:         p.ClientID,
			ClientSecret:     p.ClientSecret,
			RedirectURI:      p.RedirectURI,
			Scopes:           p.Scopes,
			AccessType:       domain.AccessType(p.AccessType),
			HostedDomain:     p.HostedDomain,
			UsernameField:    p.UsernameField,
			AuthorizeURL:     p.URLAuthorize,
			AccessTokenURL:   p.URLAccessToken,
			ResourceOwnerURL: p.URLResourceOwnerDetails,
		})
	}
	return out
}
