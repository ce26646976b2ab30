// Package config loads and saves the CareRelay configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for CareRelay.
type Config struct {
	General    GeneralConfig    `yaml:"general"`
	Store      StoreConfig      `yaml:"store"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
}

type GeneralConfig struct {
	LogLevel     string `yaml:"logLevel"`     // debug | info | warn | error
	BaseLanguage string `yaml:"baseLanguage"` // reference language; no translation needed
}

type StoreConfig struct {
	DBPath string `yaml:"dbPath"`
}

// BridgeConfig configures the cross-process bridge. The doctor and patient
// commands connect to it when URL is set; the bridge command hosts it.
type BridgeConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	URL  string `yaml:"url,omitempty"` // bridge to attach to, e.g. http://127.0.0.1:8790
}

type EnrichmentConfig struct {
	Translation ServiceConfig `yaml:"translation"`
	Emotion     ServiceConfig `yaml:"emotion"`
}

// ServiceConfig points at one enrichment collaborator. APIKey supports
// ${ENV_VAR} expansion so secrets stay out of the file.
type ServiceConfig struct {
	APIBase string `yaml:"apiBase"`
	APIKey  string `yaml:"apiKey,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// DefaultConfigDir returns ~/.carerelay.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".carerelay"
	}
	return filepath.Join(home, ".carerelay")
}

// DefaultConfigPath returns ~/.carerelay/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Defaults returns a working configuration for a single-machine setup.
func Defaults() Config {
	return Config{
		General: GeneralConfig{
			LogLevel:     "info",
			BaseLanguage: "en",
		},
		Store: StoreConfig{
			DBPath: filepath.Join(DefaultConfigDir(), "state.db"),
		},
		Bridge: BridgeConfig{
			Host: "127.0.0.1",
			Port: 8790,
			URL:  "http://127.0.0.1:8790",
		},
		Enrichment: EnrichmentConfig{
			Translation: ServiceConfig{
				APIBase: "https://api.example.com/v1",
				APIKey:  "${CARERELAY_TRANSLATE_KEY}",
			},
			Emotion: ServiceConfig{
				APIBase: "https://api.example.com/v1",
				APIKey:  "${CARERELAY_EMOTION_KEY}",
			},
		},
	}
}

// Load reads and validates the configuration at path, expanding ${ENV_VAR}
// references in API keys.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Enrichment.Translation.APIKey = os.ExpandEnv(cfg.Enrichment.Translation.APIKey)
	cfg.Enrichment.Emotion.APIKey = os.ExpandEnv(cfg.Enrichment.Emotion.APIKey)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating the directory if needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Validate checks the fields every command depends on.
func (c Config) Validate() error {
	if c.General.BaseLanguage == "" {
		return fmt.Errorf("general.baseLanguage must not be empty")
	}
	if c.Store.DBPath == "" {
		return fmt.Errorf("store.dbPath must not be empty")
	}
	if c.Bridge.Port <= 0 || c.Bridge.Port > 65535 {
		return fmt.Errorf("bridge.port %d out of range", c.Bridge.Port)
	}
	return nil
}
