package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/mkravets/omnibot/internal/constants"
)

// Load reads the configuration from a TOML file, applies defaults, and
// expands environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	expandEnvVars(&cfg)

	return &cfg, nil
}

// Validate checks the configuration and returns all problems found.
func (c *Config) Validate() []error {
	var errs []error

	if c.Workspace.Path == "" {
		errs = append(errs, fmt.Errorf("workspace.path is required"))
	} else if err := validatePath(c.Workspace.Path, "workspace.path"); err != nil {
		errs = append(errs, err)
	}

	switch c.Agent.Provider {
	case "":
		errs = append(errs, fmt.Errorf("agent.provider is required"))
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm.openai.api_key is required when provider is 'openai'"))
		} else if len(c.LLM.OpenAI.APIKey) < 10 {
			errs = append(errs, fmt.Errorf("llm.openai.api_key is too short (minimum 10 characters, got %d)", len(c.LLM.OpenAI.APIKey)))
		}
	case "mock":
		// No credentials required.
	default:
		errs = append(errs, fmt.Errorf("invalid agent.provider: %s (expected: openai, mock)", c.Agent.Provider))
	}

	if c.Channels.Telegram.Enabled {
		if c.Channels.Telegram.Token == "" {
			errs = append(errs, fmt.Errorf("channels.telegram.token is required when telegram is enabled"))
		} else if err := validateTelegramToken(c.Channels.Telegram.Token); err != nil {
			errs = append(errs, err)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
	}

	if c.Tools.Shell.Enabled && len(c.Tools.Shell.AllowedCommands) == 0 {
		errs = append(errs, fmt.Errorf("tools.shell.allowed_commands cannot be empty when shell tool is enabled"))
	}
	for _, cmd := range c.Tools.Shell.AllowedCommands {
		if cmd == "" {
			errs = append(errs, fmt.Errorf("tools.shell.allowed_commands contains empty command"))
		}
	}

	if c.Tools.Search.Enabled && c.Tools.Search.APIKey == "" {
		errs = append(errs, fmt.Errorf("tools.search.api_key is required when search tool is enabled"))
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		errs = append(errs, fmt.Errorf("metrics.listen_addr is required when metrics are enabled"))
	}

	return errs
}

func validateTelegramToken(token string) error {
	parts := strings.Split(token, ":")
	if len(parts) != 2 {
		return fmt.Errorf("telegram token has invalid format (expected <bot_id>:<token>, got: %s)", maskSecret(token))
	}

	botID := parts[0]
	if len(botID) < 3 || len(botID) > 15 {
		return fmt.Errorf("telegram token has invalid bot ID length (expected 3-15 digits, got %d)", len(botID))
	}
	for _, r := range botID {
		if r < '0' || r > '9' {
			return fmt.Errorf("telegram token has invalid bot ID (expected digits only, got: %s)", botID)
		}
	}

	if len(parts[1]) < 10 {
		return fmt.Errorf("telegram token is too short")
	}

	return nil
}

func validatePath(path, fieldName string) error {
	if strings.HasPrefix(path, "~") {
		return nil
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("%s contains path traversal sequence", fieldName)
	}
	return nil
}

// maskSecret hides all but the first and last two characters of a secret
// so it can appear in error messages and logs.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func applyDefaults(c *Config) {
	if c.Workspace.Path == "" {
		c.Workspace.Path = "~/.omnibot"
	}

	if c.Agent.Provider == "" {
		c.Agent.Provider = "openai"
	}
	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = constants.DefaultMaxToolIterations
	}
	if c.Agent.ContextBudgetChars == 0 {
		c.Agent.ContextBudgetChars = constants.DefaultContextBudget
	}
	if c.Agent.TimeoutSeconds == 0 {
		c.Agent.TimeoutSeconds = int(constants.DefaultProviderTimeout.Seconds())
	}

	if c.LLM.OpenAI.BaseURL == "" {
		c.LLM.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.OpenAI.TimeoutSeconds == 0 {
		c.LLM.OpenAI.TimeoutSeconds = int(constants.DefaultProviderTimeout.Seconds())
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Channels.Telegram.PollTimeoutSeconds == 0 {
		c.Channels.Telegram.PollTimeoutSeconds = 30
	}
	if c.Channels.Telegram.SendTimeoutSeconds == 0 {
		c.Channels.Telegram.SendTimeoutSeconds = 10
	}

	if c.Tools.Shell.TimeoutSeconds == 0 {
		c.Tools.Shell.TimeoutSeconds = int(constants.DefaultToolTimeout.Seconds())
	}
	if c.Tools.Fetch.TimeoutSeconds == 0 {
		c.Tools.Fetch.TimeoutSeconds = int(constants.DefaultToolTimeout.Seconds())
	}
	if c.Tools.Search.TimeoutSeconds == 0 {
		c.Tools.Search.TimeoutSeconds = int(constants.DefaultToolTimeout.Seconds())
	}

	if c.Scheduler.TickSeconds == 0 {
		c.Scheduler.TickSeconds = int(constants.DefaultSchedulerTick.Seconds())
	}

	if c.Sessions.IdleMinutes == 0 {
		c.Sessions.IdleMinutes = int(constants.DefaultSessionIdleWindow.Minutes())
	}
	if c.Sessions.SweepMinutes == 0 {
		c.Sessions.SweepMinutes = int(constants.DefaultSessionSweepInterval.Minutes())
	}

	if c.Workers.PoolSize == 0 {
		c.Workers.PoolSize = constants.DefaultPoolSize
	}
	if c.Workers.QueueSize == 0 {
		c.Workers.QueueSize = constants.DefaultQueueSize
	}

	if c.MessageBus.Capacity == 0 {
		c.MessageBus.Capacity = constants.DefaultBusCapacity
	}
	if c.MessageBus.QueueSize == 0 {
		c.MessageBus.QueueSize = constants.DefaultSubscriberQueueSize
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialBackoffMs == 0 {
		c.Retry.InitialBackoffMs = 500
	}
	if c.Retry.MaxBackoffMs == 0 {
		c.Retry.MaxBackoffMs = 10000
	}
}

func expandEnvVars(c *Config) {
	c.LLM.OpenAI.APIKey = expandEnv(c.LLM.OpenAI.APIKey)
	c.Channels.Telegram.Token = expandEnv(c.Channels.Telegram.Token)
	c.Tools.Search.APIKey = expandEnv(c.Tools.Search.APIKey)
	c.Workspace.Path = expandHome(expandEnv(c.Workspace.Path))
}

// expandEnv expands a ${VAR} or ${VAR:default} reference.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	if parts := strings.SplitN(content, ":", 2); len(parts) == 2 {
		if val := os.Getenv(parts[0]); val != "" {
			return val
		}
		return parts[1]
	}

	return os.Getenv(content)
}

// expandHome expands a leading ~ in a path.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
