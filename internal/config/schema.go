// Package config provides configuration loading and validation for Omnibot.
// It supports TOML configuration files with environment variable expansion,
// default values, and validation.
//
// Configuration structure:
//   - [workspace]: Workspace directory for sessions, jobs, and tool access
//   - [agent]: Executor model and behavior configuration
//   - [llm]: LLM provider configuration (OpenAI-compatible)
//   - [logging]: Logging level, format, and output
//   - [channels]: Channel configurations (Telegram)
//   - [tools]: Tool configurations (file, shell, fetch, search)
//   - [scheduler]: Durable job scheduler settings
//   - [sessions]: Session store and archival settings
//   - [workers]: Worker pool sizing
//   - [message_bus]: Message bus capacity settings
//   - [metrics]: Prometheus endpoint settings
//
// Environment variables can be referenced using ${VAR} or ${VAR:default}
// syntax. For example: api_key = "${OPENAI_API_KEY}"
package config

import "path/filepath"

// Config represents the main application configuration.
type Config struct {
	Workspace  WorkspaceConfig  `toml:"workspace"`
	Agent      AgentConfig      `toml:"agent"`
	LLM        LLMConfig        `toml:"llm"`
	Logging    LoggingConfig    `toml:"logging"`
	Channels   ChannelsConfig   `toml:"channels"`
	Tools      ToolsConfig      `toml:"tools"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Sessions   SessionsConfig   `toml:"sessions"`
	Workers    WorkersConfig    `toml:"workers"`
	MessageBus MessageBusConfig `toml:"message_bus"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Retry      RetryConfig      `toml:"retry"`
}

// WorkspaceConfig holds the workspace directory settings.
type WorkspaceConfig struct {
	Path string `toml:"path"`
}

// AgentConfig holds executor behavior settings.
type AgentConfig struct {
	Provider           string `toml:"provider"`
	Model              string `toml:"model"`
	SystemPrompt       string `toml:"system_prompt"`
	MaxIterations      int    `toml:"max_iterations"`
	ContextBudgetChars int    `toml:"context_budget_chars"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
}

// LLMConfig holds provider credentials and endpoints.
type LLMConfig struct {
	OpenAI OpenAIConfig `toml:"openai"`
}

// OpenAIConfig holds settings for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// ChannelsConfig holds per-channel settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

// TelegramConfig holds the Telegram channel settings.
type TelegramConfig struct {
	Enabled            bool     `toml:"enabled"`
	Token              string   `toml:"token"`
	AllowedUsers       []string `toml:"allowed_users"`
	PollTimeoutSeconds int      `toml:"poll_timeout_seconds"`
	SendTimeoutSeconds int      `toml:"send_timeout_seconds"`
}

// ToolsConfig holds per-tool settings.
type ToolsConfig struct {
	File   FileToolConfig   `toml:"file"`
	Shell  ShellToolConfig  `toml:"shell"`
	Fetch  FetchToolConfig  `toml:"fetch"`
	Search SearchToolConfig `toml:"search"`
}

// FileToolConfig holds the file tool settings.
type FileToolConfig struct {
	Enabled bool `toml:"enabled"`
}

// ShellToolConfig holds the shell tool settings.
type ShellToolConfig struct {
	Enabled         bool     `toml:"enabled"`
	AllowedCommands []string `toml:"allowed_commands"`
	TimeoutSeconds  int      `toml:"timeout_seconds"`
}

// FetchToolConfig holds the fetch tool settings.
type FetchToolConfig struct {
	Enabled        bool `toml:"enabled"`
	TimeoutSeconds int  `toml:"timeout_seconds"`
}

// SearchToolConfig holds the web search tool settings.
type SearchToolConfig struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// SchedulerConfig holds the job scheduler settings.
type SchedulerConfig struct {
	Enabled     bool `toml:"enabled"`
	TickSeconds int  `toml:"tick_seconds"`
}

// SessionsConfig holds session store and archival settings.
type SessionsConfig struct {
	IdleMinutes  int `toml:"idle_minutes"`
	SweepMinutes int `toml:"sweep_minutes"`
}

// WorkersConfig holds worker pool sizing.
type WorkersConfig struct {
	PoolSize  int `toml:"pool_size"`
	QueueSize int `toml:"queue_size"`
}

// MessageBusConfig holds message bus capacity settings.
type MessageBusConfig struct {
	Capacity  int `toml:"capacity"`
	QueueSize int `toml:"queue_size"`
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// RetryConfig holds provider retry settings.
type RetryConfig struct {
	MaxAttempts      int `toml:"max_attempts"`
	InitialBackoffMs int `toml:"initial_backoff_ms"`
	MaxBackoffMs     int `toml:"max_backoff_ms"`
}

// SessionsDir returns the directory session logs are stored in.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.Workspace.Path, "sessions")
}

// JobsDir returns the directory scheduler state is stored in.
func (c *Config) JobsDir() string {
	return filepath.Join(c.Workspace.Path, "jobs")
}
