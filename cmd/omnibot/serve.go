package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mkravets/omnibot/internal/agent"
	"github.com/mkravets/omnibot/internal/bus"
	"github.com/mkravets/omnibot/internal/channels"
	"github.com/mkravets/omnibot/internal/channels/telegram"
	"github.com/mkravets/omnibot/internal/config"
	"github.com/mkravets/omnibot/internal/llm"
	"github.com/mkravets/omnibot/internal/logger"
	"github.com/mkravets/omnibot/internal/retry"
	"github.com/mkravets/omnibot/internal/scheduler"
	"github.com/mkravets/omnibot/internal/session"
	"github.com/mkravets/omnibot/internal/tools"
	"github.com/mkravets/omnibot/internal/workers"
)

const metricsNamespace = "omnibot"

var (
	serveConfigPath string
	serveLogLevel   string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agent (main command)",
	Long: `Start the agent with the given configuration. This initializes all
components (logger, message bus, sessions, scheduler, channels, executor)
and handles graceful shutdown.`,
	Run: serveHandler,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to configuration file (default: ./config.toml)")
	serveCmd.Flags().StringVarP(&serveLogLevel, "log-level", "l", "", "Override log level (debug, info, warn, error)")
}

func serveHandler(cmd *cobra.Command, args []string) {
	configPath := serveConfigPath
	if configPath == "" {
		configPath = "./config.toml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Fprintln(os.Stderr, "configuration validation failed:")
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  - %v\n", e)
		}
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	log.Info("starting omnibot",
		logger.Field{Key: "version", Value: Version},
		logger.Field{Key: "config", Value: configPath},
		logger.Field{Key: "workspace", Value: cfg.Workspace.Path},
		logger.Field{Key: "provider", Value: cfg.Agent.Provider})

	if err := os.MkdirAll(cfg.Workspace.Path, 0755); err != nil {
		log.Error("failed to create workspace directory", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Metrics
	registry := prometheus.NewRegistry()
	busMetrics := bus.NewMetrics(metricsNamespace, registry)
	poolMetrics := workers.NewMetrics(metricsNamespace, registry)
	agentMetrics := agent.NewMetrics(metricsNamespace, registry)

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			log.Info("metrics endpoint listening",
				logger.Field{Key: "addr", Value: cfg.Metrics.ListenAddr})
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", err)
			}
		}()
	}

	// Message bus
	messageBus := bus.New(cfg.MessageBus.Capacity, cfg.MessageBus.QueueSize, busMetrics, log)
	if err := messageBus.Start(ctx); err != nil {
		log.Error("failed to start message bus", err)
		os.Exit(1)
	}

	// Worker pool
	pool := workers.NewPool(cfg.Workers.PoolSize, cfg.Workers.QueueSize, poolMetrics, log)
	pool.Start()

	// Sessions
	sessions, err := session.NewManager(cfg.SessionsDir(),
		time.Duration(cfg.Sessions.IdleMinutes)*time.Minute, log)
	if err != nil {
		log.Error("failed to create session manager", err)
		os.Exit(1)
	}
	go sessions.Run(ctx, time.Duration(cfg.Sessions.SweepMinutes)*time.Minute)

	// Scheduler
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		storage := scheduler.NewStorage(cfg.JobsDir(), log)
		sched = scheduler.New(log, messageBus, storage, pool,
			time.Duration(cfg.Scheduler.TickSeconds)*time.Second)
		if err := sched.Start(ctx); err != nil {
			log.Error("failed to start scheduler", err)
			os.Exit(1)
		}
	}

	// Provider
	var provider llm.Provider
	switch cfg.Agent.Provider {
	case "openai":
		provider = llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:         cfg.LLM.OpenAI.APIKey,
			BaseURL:        cfg.LLM.OpenAI.BaseURL,
			Model:          cfg.LLM.OpenAI.Model,
			TimeoutSeconds: cfg.LLM.OpenAI.TimeoutSeconds,
		}, log)
	case "mock":
		provider = llm.NewMockProvider()
	default:
		log.Error("unsupported provider", nil,
			logger.Field{Key: "provider", Value: cfg.Agent.Provider})
		os.Exit(1)
	}

	// Tools
	registryTools, factories, err := buildTools(cfg, sched, sessions)
	if err != nil {
		log.Error("failed to build tools", err)
		os.Exit(1)
	}
	log.Info("tools registered",
		logger.Field{Key: "tools", Value: registryTools.Names()})

	// Executor
	executor, err := agent.New(agent.Config{
		Provider:      provider,
		Sessions:      sessions,
		Tools:         registryTools,
		ToolFactories: factories,
		Bus:           messageBus,
		Logger:        log,
		Metrics:       agentMetrics,
		Model:         cfg.Agent.Model,
		SystemPrompt:  cfg.Agent.SystemPrompt,
		MaxIterations: cfg.Agent.MaxIterations,
		ContextBudget: cfg.Agent.ContextBudgetChars,

		ProviderTimeout: time.Duration(cfg.Agent.TimeoutSeconds) * time.Second,
		ToolTimeout:     time.Duration(cfg.Tools.Shell.TimeoutSeconds) * time.Second,
		Retry: retry.Config{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		},
	})
	if err != nil {
		log.Error("failed to create executor", err)
		os.Exit(1)
	}
	if err := executor.Start(ctx); err != nil {
		log.Error("failed to start executor", err)
		os.Exit(1)
	}

	// Channels
	var active []channels.Channel
	if cfg.Channels.Telegram.Enabled {
		conn := telegram.New(cfg.Channels.Telegram, log, messageBus, sessions)
		if err := conn.Start(ctx); err != nil {
			log.Error("failed to start telegram connector", err)
			os.Exit(1)
		}
		active = append(active, conn)
	} else {
		log.Warn("no channels enabled")
	}

	log.Info("omnibot is running")

	sig := <-sigChan
	log.Info("received shutdown signal",
		logger.Field{Key: "signal", Value: sig.String()})

	for _, ch := range active {
		if err := ch.Stop(); err != nil {
			log.Error("failed to stop channel", err,
				logger.Field{Key: "channel", Value: ch.Name()})
		}
	}
	if err := executor.Stop(); err != nil {
		log.Error("failed to stop executor", err)
	}
	if sched != nil {
		if err := sched.Stop(); err != nil {
			log.Error("failed to stop scheduler", err)
		}
	}
	pool.Stop()
	if err := messageBus.Stop(); err != nil {
		log.Error("failed to stop message bus", err)
	}
	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to stop metrics server", err)
		}
	}
	cancel()

	log.Info("omnibot stopped gracefully")
}

// buildTools assembles the shared tool registry and the conversation-scoped
// factories from config.
func buildTools(cfg *config.Config, sched *scheduler.Scheduler, sessions *session.Manager) (*tools.Registry, []agent.ToolFactory, error) {
	registry := tools.NewRegistry()

	if err := registry.Register(tools.NewSystemTimeTool()); err != nil {
		return nil, nil, err
	}

	paths, err := tools.NewPathGuard(cfg.Workspace.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create path guard: %w", err)
	}

	if cfg.Tools.File.Enabled {
		if err := registry.Register(tools.NewFileTool(paths)); err != nil {
			return nil, nil, err
		}
	}

	if cfg.Tools.Shell.Enabled {
		guard := tools.NewCommandGuard(cfg.Tools.Shell.AllowedCommands)
		shellTool := tools.NewShellTool(guard, paths,
			time.Duration(cfg.Tools.Shell.TimeoutSeconds)*time.Second)
		if err := registry.Register(shellTool); err != nil {
			return nil, nil, err
		}
	}

	if cfg.Tools.Fetch.Enabled {
		fetchTool := tools.NewFetchTool(time.Duration(cfg.Tools.Fetch.TimeoutSeconds) * time.Second)
		if err := registry.Register(fetchTool); err != nil {
			return nil, nil, err
		}
	}

	if cfg.Tools.Search.Enabled {
		searchTool := tools.NewSearchTool(cfg.Tools.Search.APIKey,
			time.Duration(cfg.Tools.Search.TimeoutSeconds)*time.Second)
		if err := registry.Register(searchTool); err != nil {
			return nil, nil, err
		}
	}

	factories := []agent.ToolFactory{
		func(channel, chatID string) tools.Tool {
			return tools.NewMemoryTool(sessions, channel, chatID)
		},
	}
	if sched != nil {
		factories = append(factories, func(channel, chatID string) tools.Tool {
			return tools.NewRemindTool(sched, channel, chatID)
		})
	}

	return registry, factories, nil
}
