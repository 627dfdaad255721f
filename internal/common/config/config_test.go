package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "", cfg.NATS.URL)
	assert.Equal(t, "none", cfg.Auth.Mode)
	assert.Equal(t, "heuristic", cfg.Parser.Backend)
	assert.Equal(t, "memory", cfg.Graph.Backend)
	assert.Equal(t, 12, cfg.Pipeline.HistoryWindow)
	assert.Equal(t, "http://localhost:8081", cfg.Services.ParserURL)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("OPENTREE_SERVER_PORT", "9090")
	t.Setenv("OPENTREE_ASYNC_PIPELINE_ENABLED", "true")
	t.Setenv("OPENTREE_DATABASE_DRIVER", "postgres")
	t.Setenv("OPENTREE_DATABASE_USER", "svc")
	t.Setenv("OPENTREE_DATABASE_DB_NAME", "opentree_test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Pipeline.AsyncEnabled)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "opentree_test", cfg.Database.DBName)
}

func TestLoadWithPath_ReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	configYAML := "server:\n  port: 9191\nparser:\n  backend: heuristic\n"
	require.NoError(t, os.WriteFile(dir+"/config.yaml", []byte(configYAML), 0644))

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestValidate_RejectsBadPort(t *testing.T) {
	cfg := defaultConfigForValidation()
	cfg.Server.Port = 0

	err := validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidate_PostgresRequiresUserAndDBName(t *testing.T) {
	cfg := defaultConfigForValidation()
	cfg.Database.Driver = "postgres"
	cfg.Database.User = ""
	cfg.Database.DBName = ""

	err := validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.user")
	assert.Contains(t, err.Error(), "database.dbName")
}

func TestValidate_JWTModeFillsDevSecret(t *testing.T) {
	cfg := defaultConfigForValidation()
	cfg.Auth.Mode = "jwt"
	cfg.Auth.JWTSecret = ""
	cfg.Auth.JWTAlgorithm = ""

	require.NoError(t, validate(cfg))
	assert.NotEmpty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, "HS256", cfg.Auth.JWTAlgorithm)
}

func TestValidate_RejectsUnknownParserBackend(t *testing.T) {
	cfg := defaultConfigForValidation()
	cfg.Parser.Backend = "magic"

	err := validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parser.backend")
}

func TestPipelineConfig_DurationHelpers(t *testing.T) {
	p := PipelineConfig{
		DownstreamTimeoutMS:   2000,
		RetryBaseDelaySeconds: 0.25,
		ConsumeBlockMS:        500,
		ShutdownTimeoutMS:     2000,
		JobTTLSeconds:         86400,
	}

	assert.Equal(t, 2*time.Second, p.DownstreamTimeout())
	assert.Equal(t, 250*time.Millisecond, p.RetryBaseDelay())
	assert.Equal(t, 500*time.Millisecond, p.ConsumeBlock())
	assert.Equal(t, 2*time.Second, p.ShutdownTimeout())
	assert.Equal(t, 24*time.Hour, p.JobTTL())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db.internal", Port: 5432, User: "opentree",
		Password: "secret", DBName: "opentree", SSLMode: "disable",
	}
	assert.Equal(t, "host=db.internal port=5432 user=opentree password=secret dbname=opentree sslmode=disable", d.DSN())
}

func defaultConfigForValidation() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Driver: "memory"},
		Auth:     AuthConfig{Mode: "none"},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Pipeline: PipelineConfig{HistoryWindow: 12, RetryMaxAttempts: 3, RetryBaseDelaySeconds: 0.25, JobTTLSeconds: 86400},
		Parser:   ParserConfig{Backend: "heuristic"},
		Graph:    GraphConfig{Backend: "memory"},
	}
}
