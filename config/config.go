package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the assistant
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Retention RetentionConfig `mapstructure:"retention"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	AutoApprove    bool          `mapstructure:"auto_approve"` // skip human approval of answers
	JWTSecret      string        `mapstructure:"jwt_secret"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type    string              `mapstructure:"type"` // openai, anthropic
	APIKey  string              `mapstructure:"api_key"`
	BaseURL string              `mapstructure:"base_url"`
	Models  map[string]LLMModel `mapstructure:"models"`
	Timeout time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name        string  `mapstructure:"name"`
	APIName     string  `mapstructure:"api_name"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// LLMRoutingConfig defines which model to use for different tasks
type LLMRoutingConfig struct {
	Planning  string `mapstructure:"planning"`  // tool selection
	Synthesis string `mapstructure:"synthesis"` // final answers
	Summary   string `mapstructure:"summary"`   // conversation summaries
	Fallback  string `mapstructure:"fallback"`
}

// ToolsConfig contains lookup tool settings
type ToolsConfig struct {
	Weather WeatherToolConfig `mapstructure:"weather"`
	Stock   StockToolConfig   `mapstructure:"stock"`
}

// WeatherToolConfig contains weatherapi.com settings
type WeatherToolConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// StockToolConfig contains Yahoo Finance settings
type StockToolConfig struct {
	SearchEndpoint string        `mapstructure:"search_endpoint"`
	QuoteEndpoint  string        `mapstructure:"quote_endpoint"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Sessions SessionsConfig `mapstructure:"sessions"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// SessionsConfig selects the session store backend
type SessionsConfig struct {
	Backend string        `mapstructure:"backend"` // inmemory, redis
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// Normalize applies defaults for unset session store values.
func (s SessionsConfig) Normalize() SessionsConfig {
	if s.Backend == "" {
		s.Backend = "inmemory"
	}
	if s.TTL <= 0 {
		s.TTL = 12 * time.Hour
	}
	return s
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Addr() string {
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return host + ":" + port
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a postgres connection string from the configured fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	LogFile      string `mapstructure:"log_file"`
	PeriodicLogs bool   `mapstructure:"periodic_logs"`
}

// RetentionConfig controls pruning of expired sessions and unapproved turns
type RetentionConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ScheduleCron string `mapstructure:"schedule_cron"`
	MaxTurnAge   string `mapstructure:"max_turn_age"` // e.g. "720h"
}

func (r RetentionConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if strings.TrimSpace(r.ScheduleCron) == "" {
		return fmt.Errorf("retention.schedule_cron required when retention is enabled")
	}
	if _, err := time.ParseDuration(r.MaxTurnAge); r.MaxTurnAge != "" && err != nil {
		return fmt.Errorf("retention.max_turn_age invalid: %w", err)
	}
	return nil
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetDefault("general.auto_approve", false)
	viper.SetDefault("general.default_timeout", "60s")
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("storage.sessions.backend", "inmemory")
	viper.SetDefault("storage.sessions.ttl", "12h")
	viper.SetDefault("tools.weather.endpoint", "http://api.weatherapi.com/v1")
	viper.SetDefault("tools.stock.search_endpoint", "https://query1.finance.yahoo.com/v1/finance/search")
	viper.SetDefault("tools.stock.quote_endpoint", "https://query1.finance.yahoo.com/v7/finance/quote")
	viper.SetDefault("retention.schedule_cron", "0 * * * *")
	viper.SetDefault("retention.max_turn_age", "720h")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("CONCIERGE")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv() // read in environment variables that match (CONCIERGE_*)

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.Storage.Sessions = config.Storage.Sessions.Normalize()

	if err := config.Retention.Validate(); err != nil {
		panic(err)
	}
	return &config
}
