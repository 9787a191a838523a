package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for askbot.
type Config struct {
	General  GeneralConfig  `yaml:"general"`
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Tools    ToolsConfig    `yaml:"tools"`
}

type GeneralConfig struct {
	LogLevel string `yaml:"logLevel"`
	// MaxGenerations caps model generation steps per request. The loop
	// forces termination with a truncated answer when it is exceeded.
	MaxGenerations int `yaml:"maxGenerations"`
	// MaxParallelTools bounds concurrent tool executions in one batch.
	MaxParallelTools int `yaml:"maxParallelTools"`
	// LogDroppedToolCalls raises extraction-noise logging from debug to
	// warn, for debugging malformed model output.
	LogDroppedToolCalls bool `yaml:"logDroppedToolCalls"`
}

type ServerConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	RequestTimeoutSeconds int    `yaml:"requestTimeoutSeconds"`
}

type ProviderConfig struct {
	Name           string  `yaml:"name"` // "openai"
	APIBase        string  `yaml:"apiBase,omitempty"`
	APIKey         string  `yaml:"apiKey,omitempty"`
	Model          string  `yaml:"model,omitempty"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeoutSeconds"`
}

type ToolsConfig struct {
	// CachePath is the SQLite file backing the scraper response cache.
	// Empty disables caching.
	CachePath       string       `yaml:"cachePath,omitempty"`
	CacheTTLSeconds int          `yaml:"cacheTTLSeconds"`
	Search          SearchConfig `yaml:"search"`
}

type SearchConfig struct {
	// BrowserFallback retries blocked search requests through a headless
	// Chrome instance. Requires a local Chrome install.
	BrowserFallback bool `yaml:"browserFallback"`
}

// DefaultConfigDir returns the default config directory (~/.askbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".askbot"
	}
	return filepath.Join(home, ".askbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads a config file (YAML, or JSON since YAML is a superset),
// expands ${VAR} references, applies defaults, and validates.
func Load(path string) (*Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	cfg.Tools.CachePath = expandPath(cfg.Tools.CachePath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Save writes the config as YAML, creating the directory when needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// envVarPattern matches ${VAR} and ${VAR:-default} in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// Validate checks that the config has usable values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.MaxGenerations < 1 || cfg.General.MaxGenerations > 100 {
		errs = append(errs, "general.maxGenerations must be between 1 and 100")
	}
	if cfg.General.MaxParallelTools < 1 || cfg.General.MaxParallelTools > 50 {
		errs = append(errs, "general.maxParallelTools must be between 1 and 50")
	}
	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Server.RequestTimeoutSeconds < 1 {
		errs = append(errs, "server.requestTimeoutSeconds must be >= 1")
	}

	if cfg.Provider.Name == "" {
		errs = append(errs, "provider.name is required")
	}
	if cfg.Provider.TimeoutSeconds < 1 {
		errs = append(errs, "provider.timeoutSeconds must be >= 1")
	}
	if cfg.Provider.Temperature < 0 || cfg.Provider.Temperature > 2 {
		errs = append(errs, "provider.temperature must be between 0 and 2")
	}

	if cfg.Tools.CacheTTLSeconds < 0 {
		errs = append(errs, "tools.cacheTTLSeconds must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
