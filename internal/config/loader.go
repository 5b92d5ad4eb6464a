package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// ConfigFileName is the default config file looked up in the working
// directory when no path is given.
const ConfigFileName = "sundew.yaml"

// Load reads configuration from the given file (or ConfigFileName when
// empty), layers SUNDEW_* environment variables on top of the defaults, and
// validates the result. Unknown keys in the file are an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SUNDEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultConfig()
	bindDefaults(v, cfg)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName(strings.TrimSuffix(ConfigFileName, ".yaml"))
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// A missing default file means defaults apply; a malformed one
			// is still fatal.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
	}); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// bindDefaults registers every recognized key so environment overrides work
// without a config file.
func bindDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.timeout_seconds", cfg.Server.TimeoutSeconds)
	v.SetDefault("traps.mcp_server", cfg.Traps.MCPServer)
	v.SetDefault("traps.rest_api", cfg.Traps.RESTAPI)
	v.SetDefault("traps.ai_discovery", cfg.Traps.AIDiscovery)
	v.SetDefault("persona", cfg.Persona)
	v.SetDefault("llm.provider", cfg.LLM.Provider)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.base_url", cfg.LLM.BaseURL)
	v.SetDefault("llm.api_key", cfg.LLM.APIKey)
	v.SetDefault("llm.temperature", cfg.LLM.Temperature)
	v.SetDefault("llm.max_tokens", cfg.LLM.MaxTokens)
	v.SetDefault("storage.database", cfg.Storage.Database)
	v.SetDefault("storage.log_file", cfg.Storage.LogFile)
	v.SetDefault("session.idle_seconds", cfg.Session.IdleSeconds)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.enable_file", cfg.Logging.EnableFile)
	v.SetDefault("logging.enable_console", cfg.Logging.EnableConsole)
	v.SetDefault("logging.filename", cfg.Logging.Filename)
	v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)
	v.SetDefault("logging.max_age", cfg.Logging.MaxAge)
	v.SetDefault("logging.compress", cfg.Logging.Compress)
	v.SetDefault("observability.metrics_enabled", cfg.Observability.MetricsEnabled)
	v.SetDefault("observability.metrics_listen", cfg.Observability.MetricsListen)
}
