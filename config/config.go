package config

import (
	"errors"
	"fmt"
	"io"

	"github.com/ilyakaznacheev/cleanenv"

	"go-authentica/redis"
)

const DefaultBaseURL = "https://api.authentica.sa"

const (
	StorageMemory        = "memory"
	StorageRedis         = "redis"
	StorageRedisSentinel = "redis_sentinel"
)

var (
	ErrMissingSecret      = errors.New("webhook password is not configured")
	ErrMissingAPIKey      = errors.New("authentica api key is not configured")
	ErrMissingBaseURL     = errors.New("authentica base url is not configured")
	ErrInvalidStorageType = errors.New("invalid storage type")
)

// Config is built once at startup and handed to the server by value.
type Config struct {
	ServerConfig ServerConfig `json:"server_config"`

	LogLevel  string `json:"log_level" env:"LOG_LEVEL" env-default:"info" env-description:"debug, info, warn or error"`
	LogFormat string `json:"log_format" env:"LOG_FORMAT" env-default:"text" env-description:"text or json"`

	Authentica AuthenticaConfig `json:"authentica"`
	Webhook    WebhookConfig    `json:"webhook"`

	StorageType         string                    `json:"storage_type" env:"STORAGE_TYPE" env-default:"memory" env-description:"memory, redis or redis_sentinel"`
	RedisConfig         redis.RedisConfig         `json:"redis_config,omitempty"`
	RedisSentinelConfig redis.RedisSentinelConfig `json:"redis_sentinel_config,omitempty"`
}

type ServerConfig struct {
	Host           string `json:"host" env:"HOST"`
	Port           int    `json:"port" env:"PORT" env-default:"3000"`
	UseTls         bool   `json:"use_tls,omitempty" env:"USE_TLS"`
	TlsPrivKeyPath string `json:"tls_priv_key_path,omitempty" env:"TLS_PRIV_KEY_PATH"`
	TlsCertPath    string `json:"tls_cert_path,omitempty" env:"TLS_CERT_PATH"`
}

type AuthenticaConfig struct {
	BaseURL string `json:"base_url" env:"BASE_URL" env-default:"https://api.authentica.sa"`
	APIKey  string `json:"api_key" env:"AUTHENTICA_API_KEY" env-description:"X-Authorization key for the upstream API"`
}

type WebhookConfig struct {
	Password string `json:"password" env:"WEBHOOK_PASSWORD" env-description:"shared secret expected in webhook payloads"`
}

// Load reads the JSON file at path (if any) and applies environment overrides.
// An empty path reads the environment only.
func Load(path string) (Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("read config from env: %w", err)
		}
		return cfg, nil
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks what the server needs to start. Values are only checked for presence.
func (c Config) Validate() error {
	var errs []error
	if c.Webhook.Password == "" {
		errs = append(errs, ErrMissingSecret)
	}
	if err := c.ValidateClient(); err != nil {
		errs = append(errs, err)
	}
	switch c.StorageType {
	case StorageMemory, StorageRedis, StorageRedisSentinel:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidStorageType, c.StorageType))
	}
	return errors.Join(errs...)
}

// ValidateClient checks only what an upstream API caller needs.
func (c Config) ValidateClient() error {
	var errs []error
	if c.Authentica.APIKey == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	if c.Authentica.BaseURL == "" {
		errs = append(errs, ErrMissingBaseURL)
	}
	return errors.Join(errs...)
}

// Usage writes the supported environment variables.
func Usage(w io.Writer) {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		fmt.Fprintf(w, "failed to describe config: %v\n", err)
		return
	}
	fmt.Fprintln(w, text)
}
