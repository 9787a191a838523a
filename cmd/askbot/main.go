package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"askbot/internal/agent"
	"askbot/internal/browser"
	"askbot/internal/config"
	"askbot/internal/provider"
	"askbot/internal/server"
	"askbot/internal/store"
	"askbot/internal/tool"
)

var (
	version    = "0.1.0"
	configPath string // overridable via --config flag
)

func main() {
	root := &cobra.Command{
		Use:     "askbot",
		Short:   "askbot: tool-using question answering service",
		Long:    "askbot answers questions by alternating LLM generation with web search and hot-list lookups.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.askbot/config.yaml)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(askCmd())
	root.AddCommand(toolsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		return config.Defaults()
	}
	return cfg
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// app holds everything wired together from config.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *tool.Registry
	loop     *agent.Loop
	cache    *store.Cache
}

func (a *app) close() {
	if a.cache != nil {
		a.cache.Close()
	}
}

// buildApp wires tools, provider, and loop from the config.
func buildApp(cfg *config.Config) (*app, error) {
	logger := newLogger(cfg.General.LogLevel)

	var cache *store.Cache
	var respCache tool.ResponseCache
	if cfg.Tools.CachePath != "" {
		c, err := store.Open(cfg.Tools.CachePath, logger)
		if err != nil {
			return nil, fmt.Errorf("open response cache: %w", err)
		}
		cache = c
		respCache = c
		logger.Info("response cache enabled", "path", cfg.Tools.CachePath)
	}

	var fallback tool.PageFetcher
	if cfg.Tools.Search.BrowserFallback {
		fallback = browser.NewFetcher(browser.FetcherConfig{Logger: logger})
		logger.Info("browser fallback enabled for search")
	}

	registry := tool.NewRegistry(logger)
	registry.Register(tool.NewSearchTool(logger, fallback))
	registry.Register(tool.NewZhihuHotTool(logger, respCache,
		time.Duration(cfg.Tools.CacheTTLSeconds)*time.Second))

	prov, err := provider.New(cfg.Provider, logger)
	if err != nil {
		return nil, err
	}

	loop := agent.NewLoop(agent.LoopConfig{
		Provider:       prov,
		Dispatcher:     agent.NewDispatcher(registry, logger, cfg.General.MaxParallelTools),
		Prompt:         agent.NewPromptBuilder(registry),
		Extractor:      agent.NewExtractor(logger, cfg.General.LogDroppedToolCalls),
		Logger:         logger,
		MaxGenerations: cfg.General.MaxGenerations,
	})

	return &app{cfg: cfg, logger: logger, registry: registry, loop: loop, cache: cache}, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			fmt.Println("wrote", cfgPath)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(server.Config{
				Host:           cfg.Server.Host,
				Port:           cfg.Server.Port,
				RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
				Loop:           a.loop,
				Registry:       a.registry,
				Logger:         a.logger,
			})
			return srv.Start(ctx)
		},
	}
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Server.RequestTimeoutSeconds)*time.Second)
			defer cancel()

			question := strings.Join(args, " ")
			answer, err := a.loop.Run(ctx, question, nil)
			if err != nil {
				return err
			}

			fmt.Println(answer.Answer)
			if answer.Truncated {
				fmt.Fprintln(os.Stderr, "(answer truncated: generation budget exceeded)")
			}
			return nil
		},
	}
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List registered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			logger := newLogger(cfg.General.LogLevel)

			registry := tool.NewRegistry(logger)
			registry.Register(tool.NewSearchTool(logger, nil))
			registry.Register(tool.NewZhihuHotTool(logger, nil, 0))

			data, err := json.MarshalIndent(registry.Infos(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}
