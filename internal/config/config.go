package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models abyss.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret    string        `yaml:"jwt_secret"`
		TokenTTL     time.Duration `yaml:"token_ttl"`
		AllowAPIKeys bool          `yaml:"allow_api_keys"`
	} `yaml:"auth"`
	Coach     CoachConfig     `yaml:"coach"`
	Geocoding GeocodingConfig `yaml:"geocoding"`
	Uploads   struct {
		MaxBytes     int64    `yaml:"max_bytes"`
		AllowedTypes []string `yaml:"allowed_types"`
	} `yaml:"uploads"`
	Quests struct {
		DailyCount  int           `yaml:"daily_count"`
		ExpiryCheck time.Duration `yaml:"expiry_check"`
	} `yaml:"quests"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type CoachConfig struct {
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

type GeocodingConfig struct {
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

type WebhookConfig struct {
	URL     string   `yaml:"url"`
	Events  []string `yaml:"events"`
	Secret  string   `yaml:"secret"`
	Enabled *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with abyss config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := Load(workspace)
	if err != nil {
		if _, statErr := os.Stat(Path(workspace)); os.IsNotExist(statErr) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path must start with /")
	}
	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("auth.token_ttl must not be negative")
	}
	switch c.Coach.Provider {
	case "", "static":
	case "genai":
		if c.Coach.Model == "" {
			return fmt.Errorf("coach.model is required for provider genai")
		}
	default:
		return fmt.Errorf("coach.provider must be static or genai, got %q", c.Coach.Provider)
	}
	if c.Geocoding.BaseURL != "" {
		u, err := url.Parse(c.Geocoding.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("geocoding.base_url must be an absolute URL")
		}
	}
	if c.Uploads.MaxBytes < 0 {
		return fmt.Errorf("uploads.max_bytes must not be negative")
	}
	if c.Quests.DailyCount < 0 || c.Quests.DailyCount > 10 {
		return fmt.Errorf("quests.daily_count must be between 0 and 10")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
		for _, evt := range hook.Events {
			if evt == "" {
				return fmt.Errorf("webhooks[%d] has empty event type", i)
			}
		}
	}
	return nil
}

// ApplyEnv overrides secrets from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("ABYSS_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := getenv("ABYSS_COACH_API_KEY"); v != "" {
		c.Coach.APIKey = v
		if c.Coach.Provider == "" {
			c.Coach.Provider = "genai"
		}
	}
	if v := getenv("ABYSS_GEOCODING_URL"); v != "" {
		c.Geocoding.BaseURL = v
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "abyss.yml")
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Unset fields
// take the defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

auth:
  # set ABYSS_JWT_SECRET instead of committing a secret here
  jwt_secret: ""
  token_ttl: 720h
  allow_api_keys: true

coach:
  # static uses built-in templates; genai calls Gemini (ABYSS_COACH_API_KEY)
  provider: static
  model: gemini-2.5-flash
  timeout: 20s

geocoding:
  base_url: https://nominatim.openstreetmap.org
  user_agent: abyss-climber/0.1
  timeout: 10s

uploads:
  max_bytes: 5242880
  allowed_types: [image/png, image/jpeg, image/webp]

quests:
  daily_count: 3
  expiry_check: 1m

webhooks: []
`
