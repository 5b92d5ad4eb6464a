// Package config defines the validated configuration record for the
// service. Recognized keys are fixed; unknown keys in the config file are a
// startup error.
package config

import (
	"fmt"
	"path/filepath"
)

// PersonaAuto selects a freshly generated persona instead of a persisted one.
const PersonaAuto = "auto"

// Config is the full configuration surface.
type Config struct {
	Server        ServerConfig        `json:"server" mapstructure:"server"`
	Traps         TrapsConfig         `json:"traps" mapstructure:"traps"`
	Persona       string              `json:"persona" mapstructure:"persona"`
	LLM           LLMConfig           `json:"llm" mapstructure:"llm"`
	Storage       StorageConfig       `json:"storage" mapstructure:"storage"`
	Session       SessionConfig       `json:"session" mapstructure:"session"`
	Logging       LogConfig           `json:"logging" mapstructure:"logging"`
	Observability ObservabilityConfig `json:"observability" mapstructure:"observability"`
}

// ServerConfig is the trap listener surface.
type ServerConfig struct {
	Host           string `json:"host" mapstructure:"host"`
	Port           int    `json:"port" mapstructure:"port"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// TrapsConfig toggles the three trap surfaces.
type TrapsConfig struct {
	MCPServer   bool `json:"mcp_server" mapstructure:"mcp_server"`
	RESTAPI     bool `json:"rest_api" mapstructure:"rest_api"`
	AIDiscovery bool `json:"ai_discovery" mapstructure:"ai_discovery"`
}

// LLMConfig selects the optional template generation backend.
type LLMConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"`
	Model       string  `json:"model" mapstructure:"model"`
	BaseURL     string  `json:"base_url" mapstructure:"base_url"`
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// StorageConfig locates the database and the optional JSONL event log.
type StorageConfig struct {
	Database string `json:"database" mapstructure:"database"`
	LogFile  string `json:"log_file" mapstructure:"log_file"`
}

// SessionConfig tunes session aggregation.
type SessionConfig struct {
	IdleSeconds int `json:"idle_seconds" mapstructure:"idle_seconds"`
}

// LogConfig configures operator logging. Trap responses are never affected
// by it.
type LogConfig struct {
	Level         string `json:"level" mapstructure:"level"`
	EnableFile    bool   `json:"enable_file" mapstructure:"enable_file"`
	EnableConsole bool   `json:"enable_console" mapstructure:"enable_console"`
	Filename      string `json:"filename" mapstructure:"filename"`
	MaxSize       int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxBackups    int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAge        int    `json:"max_age" mapstructure:"max_age"` // days
	Compress      bool   `json:"compress" mapstructure:"compress"`
}

// ObservabilityConfig configures the optional loopback metrics listener.
// Metrics are never exposed on the trap port.
type ObservabilityConfig struct {
	MetricsEnabled bool   `json:"metrics_enabled" mapstructure:"metrics_enabled"`
	MetricsListen  string `json:"metrics_listen" mapstructure:"metrics_listen"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			TimeoutSeconds: 30,
		},
		Traps: TrapsConfig{
			MCPServer:   true,
			RESTAPI:     true,
			AIDiscovery: true,
		},
		Persona: PersonaAuto,
		LLM: LLMConfig{
			Provider:    "none",
			Model:       "",
			BaseURL:     "",
			APIKey:      "",
			Temperature: 0.8,
			MaxTokens:   2048,
		},
		Storage: StorageConfig{
			Database: filepath.Join("data", "sundew.db"),
			LogFile:  "",
		},
		Session: SessionConfig{
			IdleSeconds: 3600,
		},
		Logging: LogConfig{
			Level:         "info",
			EnableFile:    false,
			EnableConsole: true,
			Filename:      "sundew.log",
			MaxSize:       10,
			MaxBackups:    5,
			MaxAge:        30,
			Compress:      true,
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: false,
			MetricsListen:  "127.0.0.1:9090",
		},
	}
}

// Validate fails fast on configuration the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d outside [1,65535]", c.Server.Port)
	}
	if c.Server.TimeoutSeconds < 1 {
		return fmt.Errorf("server.timeout_seconds must be positive, got %d", c.Server.TimeoutSeconds)
	}
	switch c.LLM.Provider {
	case "", "none", "ollama", "anthropic", "openai":
	default:
		return fmt.Errorf("llm.provider %q is not one of none, ollama, anthropic, openai", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature %g outside [0,2]", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.Storage.Database == "" {
		return fmt.Errorf("storage.database is empty")
	}
	if c.Session.IdleSeconds < 1 {
		return fmt.Errorf("session.idle_seconds must be positive, got %d", c.Session.IdleSeconds)
	}
	if c.Persona == "" {
		return fmt.Errorf("persona must be %q or a file path", PersonaAuto)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Observability.MetricsEnabled && c.Observability.MetricsListen == "" {
		return fmt.Errorf("observability.metrics_listen is empty with metrics enabled")
	}
	return nil
}
