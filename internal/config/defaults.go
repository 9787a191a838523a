package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:         "info",
			MaxGenerations:   8,
			MaxParallelTools: 5,
		},
		Server: ServerConfig{
			Host:                  "0.0.0.0",
			Port:                  8000,
			RequestTimeoutSeconds: 120,
		},
		Provider: ProviderConfig{
			Name:           "openai",
			APIBase:        "https://api.openai.com/v1",
			Model:          "gpt-3.5-turbo",
			Temperature:    0.7,
			TimeoutSeconds: 120,
		},
		Tools: ToolsConfig{
			CacheTTLSeconds: 300,
		},
	}
}
