// Package config defines the service configuration: a JSON file with
// PAYMESH_ environment overrides, defaults for every tunable, and
// aggregate validation so a broken file reports all problems at once.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"

	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/skyfire"
)

// Config aggregates every tunable of the service.
type Config struct {
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`
	Runner   RunnerConfig   `json:"runner" mapstructure:"runner"`
	Model    ModelConfig    `json:"model" mapstructure:"model"`
	Skyfire  SkyfireConfig  `json:"skyfire" mapstructure:"skyfire"`
	Dappier  DappierConfig  `json:"dappier" mapstructure:"dappier"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// SessionsConfig bounds the session registry.
type SessionsConfig struct {
	MaxSessions         int           `json:"max_sessions" mapstructure:"max_sessions"`
	IdleTimeout         time.Duration `json:"idle_timeout" mapstructure:"idle_timeout"`
	SweepInterval       time.Duration `json:"sweep_interval" mapstructure:"sweep_interval"`
	MaintenanceSchedule string        `json:"maintenance_schedule" mapstructure:"maintenance_schedule"`
}

// RunnerConfig bounds the orchestration loop.
type RunnerConfig struct {
	MaxHops            int           `json:"max_hops" mapstructure:"max_hops"`
	ToolTimeout        time.Duration `json:"tool_timeout" mapstructure:"tool_timeout"`
	MaxHistoryMessages int           `json:"max_history_messages" mapstructure:"max_history_messages"`
	EventBuffer        int           `json:"event_buffer" mapstructure:"event_buffer"`
}

// ModelConfig selects and tunes the LLM provider.
type ModelConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"`
	Name        string  `json:"name" mapstructure:"name"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
}

// SkyfireConfig configures the payment network client.
type SkyfireConfig struct {
	APIKey  string `json:"api_key" mapstructure:"api_key"`
	BaseURL string `json:"base_url" mapstructure:"base_url"`
	Mock    bool   `json:"mock" mapstructure:"mock"`
}

// DappierConfig configures the data marketplace client.
type DappierConfig struct {
	APIKey      string `json:"api_key" mapstructure:"api_key"`
	CatalogPath string `json:"catalog_path" mapstructure:"catalog_path"`
	Mock        bool   `json:"mock" mapstructure:"mock"`
}

// LoggingConfig configures the service logger.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
	File   string `json:"file" mapstructure:"file"`
}

// DefaultConfig returns the configuration used when no file and no
// environment overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0, // streaming responses must not be cut off
			ShutdownTimeout: 10 * time.Second,
		},
		Sessions: SessionsConfig{
			MaxSessions:   100,
			IdleTimeout:   time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Runner: RunnerConfig{
			MaxHops:            10,
			ToolTimeout:        30 * time.Second,
			MaxHistoryMessages: 20,
			EventBuffer:        64,
		},
		Model: ModelConfig{
			Provider:    "openai",
			Name:        "gpt-4o",
			Temperature: 0.1,
		},
		Skyfire: SkyfireConfig{
			BaseURL: skyfire.DefaultBaseURL,
		},
		Dappier: DappierConfig{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

var validProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"mock":      true,
}

var validLogLevels = map[string]bool{
	"":      true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"":        true,
	"console": true,
	"json":    true,
}

// Validate checks every tunable and aggregates all violations, so a
// broken file surfaces everything in one startup failure.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("server.read_timeout must not be negative, got %s", c.Server.ReadTimeout))
	}
	if c.Server.WriteTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("server.write_timeout must not be negative, got %s", c.Server.WriteTimeout))
	}
	if c.Server.ShutdownTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("server.shutdown_timeout must be positive, got %s", c.Server.ShutdownTimeout))
	}

	if c.Sessions.MaxSessions <= 0 {
		result = multierror.Append(result, fmt.Errorf("sessions.max_sessions must be positive, got %d", c.Sessions.MaxSessions))
	}
	if c.Sessions.IdleTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("sessions.idle_timeout must be positive, got %s", c.Sessions.IdleTimeout))
	}
	if c.Sessions.SweepInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("sessions.sweep_interval must be positive, got %s", c.Sessions.SweepInterval))
	}
	if c.Sessions.MaintenanceSchedule != "" {
		if _, err := cron.ParseStandard(c.Sessions.MaintenanceSchedule); err != nil {
			result = multierror.Append(result, fmt.Errorf("sessions.maintenance_schedule is not a valid cron expression: %w", err))
		}
	}

	if c.Runner.MaxHops <= 0 {
		result = multierror.Append(result, fmt.Errorf("runner.max_hops must be positive, got %d", c.Runner.MaxHops))
	}
	if c.Runner.ToolTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("runner.tool_timeout must be positive, got %s", c.Runner.ToolTimeout))
	}
	if c.Runner.MaxHistoryMessages < 0 {
		result = multierror.Append(result, fmt.Errorf("runner.max_history_messages must not be negative, got %d", c.Runner.MaxHistoryMessages))
	}
	if c.Runner.EventBuffer <= 0 {
		result = multierror.Append(result, fmt.Errorf("runner.event_buffer must be positive, got %d", c.Runner.EventBuffer))
	}

	if !validProviders[c.Model.Provider] {
		result = multierror.Append(result, fmt.Errorf("model.provider must be one of openai, anthropic, mock, got %q", c.Model.Provider))
	}
	if c.Model.Name == "" {
		result = multierror.Append(result, fmt.Errorf("model.name must not be empty"))
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		result = multierror.Append(result, fmt.Errorf("model.temperature must be between 0 and 2, got %g", c.Model.Temperature))
	}

	if !validLogLevels[c.Logging.Level] {
		result = multierror.Append(result, fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level))
	}
	if !validLogFormats[c.Logging.Format] {
		result = multierror.Append(result, fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format))
	}

	if err := result.ErrorOrNil(); err != nil {
		return core.WrapError(core.KindConfiguration, err, "invalid configuration")
	}

	return nil
}
