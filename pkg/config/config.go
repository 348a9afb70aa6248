// Package config provides unified configuration for the unillm gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. Config file (YAML, or the JSON registry document)
//  3. Environment variable overrides (UNILLM_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the unillm gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Registry      RegistryConfig      `yaml:"registry" json:"registry"`
	Auth          AuthConfig          `yaml:"auth" json:"auth"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
	Debug         DebugConfig         `yaml:"debug" json:"debug"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`                         // default: ":12345"
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`         // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`       // default: 0 (streams)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"` // default: 10s
}

// RegistryConfig is the persisted model/credential document consumed by the
// provider registry at startup. It can also stand alone as the whole config
// file, in which case every other section keeps its defaults.
type RegistryConfig struct {
	// ProxyURL configures the outbound HTTP proxy used by credential pools
	// marked need_proxy. Empty means no proxy is available.
	ProxyURL string `yaml:"proxy_url" json:"proxy_url"`

	// APIKeys maps a credential pool id to its keys and provider.
	APIKeys map[string]KeyPoolConfig `yaml:"api_keys" json:"api_keys"`

	// Models maps a public model id to the upstream model name and the
	// credential pool that serves it.
	Models map[string]ModelConfig `yaml:"models" json:"models"`
}

// KeyPoolConfig describes one credential pool.
type KeyPoolConfig struct {
	// APIKey is one secret or a list of equivalent secrets rotated
	// round-robin across requests.
	APIKey KeyList `yaml:"api_key" json:"api_key"`

	Provider ProviderRef `yaml:"provider" json:"provider"`

	// NeedProxy routes requests using this pool through the proxied client.
	NeedProxy bool `yaml:"need_proxy" json:"need_proxy"`
}

// ModelConfig binds a public model id to an upstream model.
type ModelConfig struct {
	// Name is the model name sent to the upstream provider.
	Name string `yaml:"name" json:"name"`

	// APIKeyID references an entry in RegistryConfig.APIKeys.
	APIKeyID string `yaml:"api_key_id" json:"api_key_id"`
}

// KeyList accepts either a single scalar secret or a list of secrets.
// A single secret is equivalent to a pool of size one.
type KeyList []string

// UnmarshalJSON accepts a string or an array of strings.
func (k *KeyList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*k = KeyList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("api_key must be a string or a list of strings")
	}
	*k = KeyList(many)
	return nil
}

// UnmarshalYAML accepts a scalar or a sequence.
func (k *KeyList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var one string
		if err := value.Decode(&one); err != nil {
			return err
		}
		*k = KeyList{one}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := value.Decode(&many); err != nil {
			return err
		}
		*k = KeyList(many)
		return nil
	default:
		return fmt.Errorf("api_key must be a string or a list of strings")
	}
}

// ProviderKind identifies an upstream provider adapter.
type ProviderKind string

const (
	ProviderAliyun      ProviderKind = "aliyun"
	ProviderTencent     ProviderKind = "tencent"
	ProviderBytedance   ProviderKind = "bytedance"
	ProviderDeepSeek    ProviderKind = "deepseek"
	ProviderSiliconflow ProviderKind = "siliconflow"
	ProviderGoogle      ProviderKind = "google"
	ProviderCustom      ProviderKind = "custom"
)

// ProviderRef selects a provider kind. A custom provider additionally
// carries the full endpoint URL: `provider: {custom: "https://..."}`.
type ProviderRef struct {
	Kind      ProviderKind
	CustomURL string
}

// UnmarshalJSON accepts a kind string or a {"custom": url} object.
func (p *ProviderRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return p.setKind(s, "")
	}
	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("provider must be a kind name or {custom: url}")
	}
	if url, ok := obj["custom"]; ok {
		return p.setKind(string(ProviderCustom), url)
	}
	return fmt.Errorf("provider object must have a custom key")
}

// UnmarshalYAML accepts a kind scalar or a {custom: url} mapping.
func (p *ProviderRef) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		return p.setKind(s, "")
	case yaml.MappingNode:
		var obj map[string]string
		if err := value.Decode(&obj); err != nil {
			return err
		}
		if url, ok := obj["custom"]; ok {
			return p.setKind(string(ProviderCustom), url)
		}
		return fmt.Errorf("provider mapping must have a custom key")
	default:
		return fmt.Errorf("provider must be a kind name or {custom: url}")
	}
}

// MarshalJSON is the inverse of UnmarshalJSON, used when seeding an
// example config file.
func (p ProviderRef) MarshalJSON() ([]byte, error) {
	if p.Kind == ProviderCustom {
		return json.Marshal(map[string]string{"custom": p.CustomURL})
	}
	return json.Marshal(string(p.Kind))
}

// MarshalYAML mirrors MarshalJSON for YAML output.
func (p ProviderRef) MarshalYAML() (any, error) {
	if p.Kind == ProviderCustom {
		return map[string]string{"custom": p.CustomURL}, nil
	}
	return string(p.Kind), nil
}

func (p *ProviderRef) setKind(s, customURL string) error {
	kind := ProviderKind(strings.ToLower(s))
	switch kind {
	case ProviderAliyun, ProviderTencent, ProviderBytedance, ProviderDeepSeek,
		ProviderSiliconflow, ProviderGoogle:
		p.Kind = kind
		return nil
	case ProviderCustom:
		p.Kind = kind
		p.CustomURL = customURL
		return nil
	default:
		return fmt.Errorf("unknown provider kind %q", s)
	}
}

// AuthConfig holds inbound authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type" json:"type"`         // "none", "apikey", or "jwt", default: "none"
	APIKeys   []AuthKeyConfig `yaml:"api_keys" json:"api_keys"` // entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt" json:"jwt"`           // settings for type=jwt
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig holds per-tier request rate limits. A zero DefaultRPM
// disables rate limiting entirely.
type RateLimitConfig struct {
	DefaultRPM int            `yaml:"default_rpm" json:"default_rpm"`
	Tiers      map[string]int `yaml:"tiers" json:"tiers"` // tier name -> requests per minute
}

// AuthKeyConfig describes a single inbound API key entry.
type AuthKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" json:"subject"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// JWTConfig holds shared-secret JWT validation settings.
type JWTConfig struct {
	Secret     string `yaml:"secret" json:"secret"`
	SecretFile string `yaml:"secret_file" json:"secret_file"` // _file variant for secret
	Issuer     string `yaml:"issuer" json:"issuer"`
	Audience   string `yaml:"audience" json:"audience"`
}

// StorageConfig holds usage-accounting store settings.
type StorageConfig struct {
	Type       string         `yaml:"type" json:"type"`               // "none", "memory", or "postgres", default: "none"
	MaxRecords int            `yaml:"max_records" json:"max_records"` // memory store bound, default: 10000
	Postgres   PostgresConfig `yaml:"postgres" json:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn" json:"dsn"`
	DSNFile        string `yaml:"dsn_file" json:"dsn_file"` // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns" json:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start" json:"migrate_on_start"`
}

// ObservabilityConfig holds monitoring settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"` // default: true
	Path    string `yaml:"path" json:"path"`       // default: "/metrics"
}

// DebugConfig holds debug logging settings.
type DebugConfig struct {
	Categories string `yaml:"categories" json:"categories"`
	Level      string `yaml:"level" json:"level"`
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":12345",
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Storage: StorageConfig{
			Type:       "none",
			MaxRecords: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Example returns a registry document with placeholder credentials, used to
// seed a config file on first run.
func Example() RegistryConfig {
	return RegistryConfig{
		ProxyURL: "http://127.0.0.1:11111",
		APIKeys: map[string]KeyPoolConfig{
			"aliyun": {
				APIKey:   KeyList{"[YOUR-API-KEY]"},
				Provider: ProviderRef{Kind: ProviderAliyun},
			},
			"google": {
				APIKey:    KeyList{"[YOUR-API-KEY]"},
				Provider:  ProviderRef{Kind: ProviderGoogle},
				NeedProxy: true,
			},
		},
		Models: map[string]ModelConfig{
			"aliyun-r1": {
				Name:     "deepseek-r1",
				APIKeyID: "aliyun",
			},
			"gemini-2.0-flash": {
				Name:     "gemini-2.0-flash",
				APIKeyID: "google",
			},
		},
	}
}
