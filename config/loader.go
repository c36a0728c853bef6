package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/hupe1980/paymesh/core"
)

const (
	envPrefix       = "PAYMESH"
	defaultDirName  = ".paymesh"
	defaultFileName = "paymesh.json"
)

// Loader handles configuration loading.
type Loader struct {
	configPath string
}

// NewLoader creates a config loader. An empty configPath falls back to
// $HOME/.paymesh/paymesh.json.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file, applies PAYMESH_ environment overrides
// and validates the result. A missing default file is not an error; a
// missing explicit file is.
func (l *Loader) Load() (*Config, error) {
	configPath := l.configPath
	if configPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configPath = filepath.Join(home, defaultDirName, defaultFileName)
		}
	}

	v := viper.New()
	v.SetConfigType("json")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only surfaces variables for keys viper already
	// knows, so every key gets its default registered up front.
	bindDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)

			if err := v.ReadInConfig(); err != nil {
				return nil, core.WrapError(core.KindConfiguration, err, "failed to read config file %s", configPath)
			}
		} else if l.configPath != "" {
			return nil, core.Errorf(core.KindConfiguration, "config file %s does not exist", l.configPath)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, core.WrapError(core.KindConfiguration, err, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// GetConfigPath returns the config file path the loader resolves to.
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, defaultDirName, defaultFileName)
}

// Load is a convenience function that creates a loader and loads the config.
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}

func bindDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("sessions.max_sessions", d.Sessions.MaxSessions)
	v.SetDefault("sessions.idle_timeout", d.Sessions.IdleTimeout)
	v.SetDefault("sessions.sweep_interval", d.Sessions.SweepInterval)
	v.SetDefault("sessions.maintenance_schedule", d.Sessions.MaintenanceSchedule)

	v.SetDefault("runner.max_hops", d.Runner.MaxHops)
	v.SetDefault("runner.tool_timeout", d.Runner.ToolTimeout)
	v.SetDefault("runner.max_history_messages", d.Runner.MaxHistoryMessages)
	v.SetDefault("runner.event_buffer", d.Runner.EventBuffer)

	v.SetDefault("model.provider", d.Model.Provider)
	v.SetDefault("model.name", d.Model.Name)
	v.SetDefault("model.temperature", d.Model.Temperature)
	v.SetDefault("model.api_key", d.Model.APIKey)

	v.SetDefault("skyfire.api_key", d.Skyfire.APIKey)
	v.SetDefault("skyfire.base_url", d.Skyfire.BaseURL)
	v.SetDefault("skyfire.mock", d.Skyfire.Mock)

	v.SetDefault("dappier.api_key", d.Dappier.APIKey)
	v.SetDefault("dappier.catalog_path", d.Dappier.CatalogPath)
	v.SetDefault("dappier.mock", d.Dappier.Mock)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
}
