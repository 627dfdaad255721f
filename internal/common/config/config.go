// Package config provides configuration management for the dialogue/parser/graph/
// suggestion services: environment variables, an optional config file, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections shared by the four services. Each
// service only reads the sections relevant to it, but all four load the same
// struct so operators have one env-var surface to reason about.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Crypto   CryptoConfig   `mapstructure:"crypto"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Parser   ParserConfig     `mapstructure:"parser"`
	Graph    GraphConfig      `mapstructure:"graph"`
	Services ServiceURLConfig `mapstructure:"services"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig holds persistence backend configuration. Driver selects
// between "memory" (default) and "postgres" for both the session store and
// the job store; the graph service additionally reads it to select its
// repository backend.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds NATS JetStream messaging configuration. An empty URL
// selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
	StreamPrefix  string `mapstructure:"streamPrefix"`
	ConsumerGroup string `mapstructure:"consumerGroup"`
}

// AuthConfig holds tenant authentication configuration.
type AuthConfig struct {
	// Required turns Mode "none" into "api_key" verification. With Mode "none"
	// and Required false, the tenant is taken from the header alone; the
	// "api_key" and "jwt" modes verify credentials whether or not it is set.
	Required bool `mapstructure:"required"`
	// Mode selects the verification scheme: "none", "api_key", or "jwt".
	Mode string `mapstructure:"mode"`
	// TenantAPIKeys maps tenant_id -> expected X-API-Key value.
	TenantAPIKeys map[string]string `mapstructure:"tenantApiKeys"`
	JWTSecret     string            `mapstructure:"jwtSecret"`
	JWTAudience   string            `mapstructure:"jwtAudience"`
	JWTIssuer     string            `mapstructure:"jwtIssuer"`
	// JWTAlgorithm pins the accepted signing algorithm (e.g. "HS256"). The
	// parser rejects any token signed with a different algorithm, even if it
	// verifies against the same secret.
	JWTAlgorithm string `mapstructure:"jwtAlgorithm"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// CryptoConfig holds the content-at-rest encryption configuration.
type CryptoConfig struct {
	// ContentEncryptionKey, when set, enables ChaCha20-Poly1305 encryption of
	// turn content. Empty means plaintext storage (development mode).
	ContentEncryptionKey string `mapstructure:"contentEncryptionKey"`
}

// PipelineConfig holds the dialogue pipeline and async-worker tunables.
type PipelineConfig struct {
	AsyncEnabled          bool    `mapstructure:"asyncEnabled"`
	HistoryWindow         int     `mapstructure:"historyWindow"`
	DownstreamTimeoutMS   int     `mapstructure:"downstreamTimeoutMs"`
	RetryMaxAttempts      int     `mapstructure:"retryMaxAttempts"`
	RetryBaseDelaySeconds float64 `mapstructure:"retryBaseDelaySeconds"`
	JobTTLSeconds         int     `mapstructure:"jobTtlSeconds"`
	ConsumeBatchSize      int     `mapstructure:"consumeBatchSize"`
	ConsumeBlockMS        int     `mapstructure:"consumeBlockMs"`
	ConsumerName          string  `mapstructure:"consumerName"`
	ShutdownTimeoutMS     int     `mapstructure:"shutdownTimeoutMs"`
}

// ParserConfig holds the parser service's backend selection.
type ParserConfig struct {
	// Backend is "heuristic" (default) or "transformer".
	Backend        string `mapstructure:"backend"`
	TransformerURL string `mapstructure:"transformerUrl"`
}

// GraphConfig holds the Graph service's repository backend selection. It is
// independent of DatabaseConfig.Driver: a deployment can run the dialogue
// session store on Postgres while keeping the graph in memory, or vice versa.
type GraphConfig struct {
	// Backend is "memory" (default) or "postgres".
	Backend string `mapstructure:"backend"`
}

// ServiceURLConfig holds the base URLs the Dialogue service uses to reach its
// three downstream collaborators.
type ServiceURLConfig struct {
	ParserURL     string `mapstructure:"parserUrl"`
	GraphURL      string `mapstructure:"graphUrl"`
	SuggestionURL string `mapstructure:"suggestionUrl"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// DownstreamTimeout returns the per-call downstream HTTP deadline.
func (p *PipelineConfig) DownstreamTimeout() time.Duration {
	return time.Duration(p.DownstreamTimeoutMS) * time.Millisecond
}

// RetryBaseDelay returns the base retry delay as a time.Duration.
func (p *PipelineConfig) RetryBaseDelay() time.Duration {
	return time.Duration(p.RetryBaseDelaySeconds * float64(time.Second))
}

// ConsumeBlock returns the consumer long-poll block duration.
func (p *PipelineConfig) ConsumeBlock() time.Duration {
	return time.Duration(p.ConsumeBlockMS) * time.Millisecond
}

// ShutdownTimeout returns the bounded worker-join timeout on shutdown.
func (p *PipelineConfig) ShutdownTimeout() time.Duration {
	return time.Duration(p.ShutdownTimeoutMS) * time.Millisecond
}

// JobTTL returns the job-record TTL as a time.Duration.
func (p *PipelineConfig) JobTTL() time.Duration {
	return time.Duration(p.JobTTLSeconds) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" if running in Kubernetes or other production environments.
// Returns "text" for terminal/development use (human-readable console format).
func detectDefaultLogFormat() string {
	// Check if running in Kubernetes
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}

	// Check for explicit production environment
	if env := os.Getenv("OPENTREE_ENV"); env == "production" || env == "prod" {
		return "json"
	}

	// Default to text format for terminal use (more readable than JSON)
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Database defaults - memory requires nothing further; postgres fields
	// below only matter when driver=postgres.
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "opentree")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "opentree")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "opentree-client")
	v.SetDefault("nats.maxReconnects", 10)
	v.SetDefault("nats.streamPrefix", "opentree")
	v.SetDefault("nats.consumerGroup", "dialogue-service")

	// Auth defaults - auth disabled unless explicitly configured
	v.SetDefault("auth.required", false)
	v.SetDefault("auth.mode", "none")
	v.SetDefault("auth.tenantApiKeys", map[string]string{})
	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.jwtAudience", "")
	v.SetDefault("auth.jwtIssuer", "")
	v.SetDefault("auth.jwtAlgorithm", "HS256")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	// Crypto defaults - empty key means plaintext dev mode
	v.SetDefault("crypto.contentEncryptionKey", "")

	// Pipeline defaults
	v.SetDefault("pipeline.asyncEnabled", false)
	v.SetDefault("pipeline.historyWindow", 12)
	v.SetDefault("pipeline.downstreamTimeoutMs", 2000)
	v.SetDefault("pipeline.retryMaxAttempts", 3)
	v.SetDefault("pipeline.retryBaseDelaySeconds", 0.25)
	v.SetDefault("pipeline.jobTtlSeconds", 86400)
	v.SetDefault("pipeline.consumeBatchSize", 20)
	v.SetDefault("pipeline.consumeBlockMs", 500)
	v.SetDefault("pipeline.consumerName", "")
	v.SetDefault("pipeline.shutdownTimeoutMs", 2000)

	// Parser defaults
	v.SetDefault("parser.backend", "heuristic")
	v.SetDefault("parser.transformerUrl", "")

	// Graph defaults
	v.SetDefault("graph.backend", "memory")

	// Downstream service URL defaults (same-host, default ports convention)
	v.SetDefault("services.parserUrl", "http://localhost:8081")
	v.SetDefault("services.graphUrl", "http://localhost:8082")
	v.SetDefault("services.suggestionUrl", "http://localhost:8083")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix OPENTREE_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory or /etc/opentree/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("OPENTREE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for snake_case env vars (camelCase config keys)
	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion,
	// so we explicitly bind keys where env var naming differs from config key naming.
	_ = v.BindEnv("logging.level", "OPENTREE_LOG_LEVEL")
	_ = v.BindEnv("crypto.contentEncryptionKey", "OPENTREE_CONTENT_ENCRYPTION_KEY")
	_ = v.BindEnv("pipeline.asyncEnabled", "OPENTREE_ASYNC_PIPELINE_ENABLED")
	_ = v.BindEnv("database.dbName", "OPENTREE_DATABASE_DB_NAME")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/opentree/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
// In development mode (default), most fields are optional.
func validate(cfg *Config) error {
	var errs []string

	// Server validation - always required
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	// Database validation
	if cfg.Database.Driver != "memory" && cfg.Database.Driver != "postgres" {
		errs = append(errs, "database.driver must be one of: memory, postgres")
	}
	if cfg.Database.Driver == "postgres" {
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "database.port must be between 1 and 65535")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required for postgres driver")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required for postgres driver")
		}
	}

	// NATS validation - optional (uses in-memory event bus if not set)
	// No validation needed - empty URL means use in-memory

	// Auth validation
	validModes := map[string]bool{"none": true, "api_key": true, "jwt": true}
	if !validModes[cfg.Auth.Mode] {
		errs = append(errs, "auth.mode must be one of: none, api_key, jwt")
	}
	if cfg.Auth.Mode == "jwt" && cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = generateDevSecret()
	}
	if cfg.Auth.Mode == "jwt" && cfg.Auth.JWTAlgorithm == "" {
		cfg.Auth.JWTAlgorithm = "HS256"
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text, console")
	}

	// Pipeline validation
	if cfg.Pipeline.HistoryWindow <= 0 {
		errs = append(errs, "pipeline.historyWindow must be positive")
	}
	if cfg.Pipeline.RetryMaxAttempts <= 0 {
		errs = append(errs, "pipeline.retryMaxAttempts must be positive")
	}
	if cfg.Pipeline.RetryBaseDelaySeconds < 0.05 {
		errs = append(errs, "pipeline.retryBaseDelaySeconds must be >= 0.05")
	}
	if cfg.Pipeline.JobTTLSeconds <= 0 {
		errs = append(errs, "pipeline.jobTtlSeconds must be positive")
	}

	// Parser validation
	if cfg.Parser.Backend != "heuristic" && cfg.Parser.Backend != "transformer" {
		errs = append(errs, "parser.backend must be one of: heuristic, transformer")
	}

	// Graph validation
	if cfg.Graph.Backend != "memory" && cfg.Graph.Backend != "postgres" {
		errs = append(errs, "graph.backend must be one of: memory, postgres")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// generateDevSecret generates a random secret for development mode.
func generateDevSecret() string {
	// Use a fixed dev secret with a warning prefix
	// In production, users should set OPENTREE_AUTH_JWTSECRET
	return "dev-secret-change-in-production-" + fmt.Sprintf("%d", time.Now().UnixNano())
}
