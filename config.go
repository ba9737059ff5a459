package codelet

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	defaults "github.com/Paranoid-AF/codelet/default"
)

// Supported generation backends.
const (
	BackendLangchain = "langchain"
	BackendOpenAI    = "openai"
)

// Config represents the user's codelet configuration.
type Config struct {
	Version    int              `toml:"version" json:"version"`
	Generation GenerationConfig `toml:"generation" json:"generation"`
	Completion CompletionConfig `toml:"completion" json:"completion"`
	Files      FilesConfig      `toml:"files" json:"files"`
}

// GenerationConfig holds settings for the remote model.
type GenerationConfig struct {
	Backend string `toml:"backend" json:"backend"`
	BaseURL string `toml:"base_url" json:"base_url"`
	// APIKey is never sent back to the host.
	APIKey            string  `toml:"api_key" json:"-"`
	Model             string  `toml:"model" json:"model"`
	Temperature       float64 `toml:"temperature" json:"temperature"`
	MaxTokens         int     `toml:"max_tokens" json:"max_tokens"`
	TimeoutSeconds    int     `toml:"timeout_seconds" json:"timeout_seconds"`
	RequestsPerMinute int     `toml:"requests_per_minute" json:"requests_per_minute"`
}

// CompletionConfig holds prompt settings.
type CompletionConfig struct {
	Language        string `toml:"language" json:"language"`
	Suggestions     int    `toml:"suggestions" json:"suggestions"`
	MaxPromptTokens int    `toml:"max_prompt_tokens" json:"max_prompt_tokens"`
	RedactSecrets   bool   `toml:"redact_secrets" json:"redact_secrets"`
}

// FilesConfig bounds the open-file table.
type FilesConfig struct {
	MaxOpen        int `toml:"max_open" json:"max_open"`
	IdleTTLMinutes int `toml:"idle_ttl_minutes" json:"idle_ttl_minutes"`
}

// Timeout returns the deadline applied to a single remote call.
func (g GenerationConfig) Timeout() time.Duration {
	if g.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// IdleTTL returns how long an untouched file stays in the open-file table.
func (f FilesConfig) IdleTTL() time.Duration {
	return time.Duration(f.IdleTTLMinutes) * time.Minute
}

// ConfigDir returns the config directory path.
// Resolution order: $CODELET_CONFIG_DIR > $XDG_CONFIG_HOME/codelet > ~/.config/codelet
func ConfigDir() string {
	if dir := os.Getenv("CODELET_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "codelet")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "codelet-config")
	}
	return filepath.Join(home, ".config", "codelet")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// PromptPath returns the custom prompt template path.
func PromptPath() string {
	return filepath.Join(ConfigDir(), "prompt.md")
}

// DefaultConfig returns the default configuration from the embedded default_config.toml.
func DefaultConfig() *Config {
	var cfg Config
	if _, err := toml.Decode(defaults.DefaultConfigTOML, &cfg); err != nil {
		panic("codelet: invalid embedded default_config.toml: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(ConfigPath())
}

// LoadConfigFrom loads the config file at path. Keys missing from the file
// keep their default values.
func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// LoadCustomPrompt returns the user's prompt template, or "" when none exists.
func LoadCustomPrompt() string {
	data, err := os.ReadFile(PromptPath())
	if err != nil {
		return ""
	}
	return string(data)
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	switch cfg.Generation.Backend {
	case BackendLangchain, BackendOpenAI:
	default:
		warnings = append(warnings, "unknown generation backend "+quote(cfg.Generation.Backend)+"; expected langchain or openai")
	}
	if ResolveModel(cfg) == "" {
		warnings = append(warnings, "generation model is empty")
	}
	if ResolveAPIKey(cfg) == "" {
		warnings = append(warnings, "API key not configured; set CODELET_API_KEY or OPENAI_API_KEY")
	}
	if n := cfg.Completion.Suggestions; n < 1 || n > 10 {
		warnings = append(warnings, "completion.suggestions should be between 1 and 10")
	}
	if strings.TrimSpace(cfg.Completion.Language) == "" {
		warnings = append(warnings, "completion.language is empty; the prompt will not name a language")
	}
	if cfg.Files.MaxOpen < 1 {
		warnings = append(warnings, "files.max_open must be positive; the default will be used")
	}
	return warnings
}

func quote(s string) string {
	return "\"" + s + "\""
}

// ResolveAPIKey returns the API key for the remote model.
// Priority: $CODELET_API_KEY env > $OPENAI_API_KEY env > config value.
func ResolveAPIKey(cfg *Config) string {
	if key := os.Getenv("CODELET_API_KEY"); key != "" {
		return key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}
	if cfg != nil {
		return cfg.Generation.APIKey
	}
	return ""
}

// ResolveModel returns the generation model name.
// Priority: $CODELET_MODEL env > config value.
func ResolveModel(cfg *Config) string {
	if model := os.Getenv("CODELET_MODEL"); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Generation.Model
	}
	return ""
}

// ResolveBaseURL returns the generation API base URL.
// Priority: $CODELET_BASE_URL env > config value.
func ResolveBaseURL(cfg *Config) string {
	if url := os.Getenv("CODELET_BASE_URL"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.Generation.BaseURL
	}
	return ""
}
