package provider

import (
	"fmt"
	"log/slog"
	"time"

	"askbot/internal/config"
	"askbot/internal/domain"
)

// New builds the configured provider. Unknown names are a startup error,
// not a runtime one: the registry of providers is fixed at compile time.
func New(cfg config.ProviderConfig, logger *slog.Logger) (domain.Provider, error) {
	switch cfg.Name {
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:      cfg.APIKey,
			APIBase:     cfg.APIBase,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
			Logger:      logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Name)
	}
}
