package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model: storage and cache
// backends, the default OAuth app, AI provider, and job scheduling knobs.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	XApp      XAppConfig      `yaml:"xApp"`
	Security  SecurityConfig  `yaml:"security"`
	LLM       LLMConfig       `yaml:"llm"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Workers   WorkersConfig   `yaml:"workers"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

type RedisConfig struct {
	// URL of the lock/seen-set backend. Empty selects the in-memory
	// degraded mode (single process only).
	URL string `yaml:"url"`
}

// XAppConfig carries the process-wide default OAuth app. Users with their own
// app credentials override the client id/secret per user.
type XAppConfig struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	CallbackURL  string `yaml:"callbackUrl"`
	AuthorizeURL string `yaml:"authorizeUrl"`
	TokenURL     string `yaml:"tokenUrl"`
	APIBaseURL   string `yaml:"apiBaseUrl"`
	Scopes       string `yaml:"scopes"`
}

type SecurityConfig struct {
	// Key material for the token codec. If empty, read from TOKEN_ENCRYPTION_KEY.
	TokenEncryptionKey string `yaml:"tokenEncryptionKey"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"` // "openai" or "none"
	Model    string `yaml:"model"`
	// If empty, read from env OPENAI_API_KEY
	APIKey string `yaml:"apiKey"`
}

type SchedulerConfig struct {
	DiscoveryMinutes  int `yaml:"discoveryMinutes"`
	EngagementMinutes int `yaml:"engagementMinutes"`
	AutoPostMinutes   int `yaml:"autoPostMinutes"`
}

type WorkersConfig struct {
	Discovery  int `yaml:"discovery"`
	Engagement int `yaml:"engagement"`
	AutoPost   int `yaml:"autoPost"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{DBPath: "./xgrowth.db"},
		Redis:   RedisConfig{URL: ""},
		XApp: XAppConfig{
			AuthorizeURL: "https://x.com/i/oauth2/authorize",
			TokenURL:     "https://api.x.com/2/oauth2/token",
			APIBaseURL:   "https://api.x.com/2",
			Scopes:       "tweet.read tweet.write users.read like.write follows.write offline.access",
		},
		LLM:       LLMConfig{Provider: "none", Model: "gpt-4.1-mini"},
		Scheduler: SchedulerConfig{DiscoveryMinutes: 30, EngagementMinutes: 5, AutoPostMinutes: 5},
		Workers:   WorkersConfig{Discovery: 3, Engagement: 3, AutoPost: 2},
		Metrics:   MetricsConfig{Addr: ""},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Redis.URL == "" {
		c.Redis.URL = os.Getenv("REDIS_URL")
	}
	if c.XApp.ClientID == "" {
		c.XApp.ClientID = os.Getenv("X_CLIENT_ID")
	}
	if c.XApp.ClientSecret == "" {
		c.XApp.ClientSecret = os.Getenv("X_CLIENT_SECRET")
	}
	if c.XApp.CallbackURL == "" {
		c.XApp.CallbackURL = os.Getenv("X_CALLBACK_URL")
	}
	if c.Security.TokenEncryptionKey == "" {
		c.Security.TokenEncryptionKey = os.Getenv("TOKEN_ENCRYPTION_KEY")
	}
	if c.LLM.APIKey == "" && c.LLM.Provider == "openai" {
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
