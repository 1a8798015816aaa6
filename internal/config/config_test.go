package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/econtract/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad_YAML(t *testing.T) {
	p := writeFile(t, "config.yaml", `
server:
  http_addr: ":9090"
  allow_origins: ["http://localhost:5173"]
store:
  driver: sqlite
  dsn: "file:econtract.db"
auth:
  jwt_key: "k"
  leeway: 1m
service:
  signing_rule: all_parties
  strict_transitions: true
  max_list: 20
reconcile:
  interval: 30s
storage:
  endpoint: "localhost:9000"
  expire_days: 3
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.HTTPAddr)
	require.Equal(t, ":8443", cfg.Server.GRPCAddr)
	require.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowOrigins)
	require.Equal(t, DriverSQLite, cfg.Store.Driver)
	require.Equal(t, time.Minute, cfg.Auth.Leeway)
	require.Equal(t, model.AllParties, cfg.SigningRule())
	require.True(t, cfg.Service.StrictTransitions)
	require.Equal(t, 20, cfg.Service.MaxList)
	require.Equal(t, 30*time.Second, cfg.Reconcile.Interval)
	require.Equal(t, "econtract", cfg.Storage.Bucket)
	require.Equal(t, 3, cfg.Storage.ExpireDays)
	require.Equal(t, 5, cfg.Limiter.MaxFails)
}

func TestLoad_EnvOverrides(t *testing.T) {
	p := writeFile(t, "config.yaml", "auth:\n  jwt_key: from-file\n")
	envFile := writeFile(t, ".env", "ECONTRACT_JWT_KEY=from-dotenv\nECONTRACT_REDIS_ADDR=redis:6379\n")
	t.Setenv(EnvDSN, "postgres://u:p@db/econtract")
	t.Setenv(EnvDriver, "postgres")
	t.Setenv(EnvRedisAddr, "localhost:6380")

	cfg, err := Load(p, envFile, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", cfg.Auth.JWTKey)
	require.Equal(t, DriverPostgres, cfg.Store.Driver)
	require.Equal(t, "postgres://u:p@db/econtract", cfg.Store.DSN)
	// process environment wins over the env file
	require.Equal(t, "localhost:6380", cfg.Events.RedisAddr)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "server: [\n"))
	require.Error(t, err)
}

func TestLoad_DefersValidation(t *testing.T) {
	t.Setenv(EnvDriver, "postgres")
	t.Setenv(EnvJWTKey, "k")

	// the DSN arrives later, e.g. from a command-line flag
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DriverPostgres, cfg.Store.Driver)
	require.Error(t, cfg.Validate())

	cfg.Store.DSN = "postgres://u:p@db/econtract"
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Parallel()
	ok := Default()
	ok.Auth.JWTKey = "k"
	require.NoError(t, ok.Validate())
	withProxies := ok
	withProxies.Server.TrustedProxies = []string{"10.0.0.1", "172.16.0.0/12"}
	require.NoError(t, withProxies.Validate())

	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"no jwt key", func(c *Config) { c.Auth.JWTKey = "" }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = DriverPostgres }},
		{"bad signing rule", func(c *Config) { c.Service.SigningRule = "majority" }},
		{"half tls", func(c *Config) { c.Server.TLSCert = "cert.pem" }},
		{"negative interval", func(c *Config) { c.Reconcile.Interval = -time.Second }},
		{"bad trusted proxy", func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/33"} }},
	}
	for _, tt := range tests {
		c := ok
		tt.mut(&c)
		require.Error(t, c.Validate(), tt.name)
	}
}
