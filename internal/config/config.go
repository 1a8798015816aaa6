// Package config loads server configuration from YAML, .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/and161185/econtract/internal/model"
)

// Environment overrides.
const (
	EnvDSN         = "ECONTRACT_DSN"
	EnvDriver      = "ECONTRACT_STORE_DRIVER"
	EnvJWTKey      = "ECONTRACT_JWT_KEY"
	EnvRedisAddr   = "ECONTRACT_REDIS_ADDR"
	EnvHTTPAddr    = "ECONTRACT_HTTP_ADDR"
	EnvGRPCAddr    = "ECONTRACT_GRPC_ADDR"
	EnvMinioAccess = "ECONTRACT_MINIO_ACCESS_KEY"
	EnvMinioSecret = "ECONTRACT_MINIO_SECRET_KEY"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Server    Server    `yaml:"server"`
	Store     Store     `yaml:"store"`
	Auth      Auth      `yaml:"auth"`
	Log       Log       `yaml:"log"`
	Service   Service   `yaml:"service"`
	Limiter   Limiter   `yaml:"limiter"`
	Reconcile Reconcile `yaml:"reconcile"`
	Events    Events    `yaml:"events"`
	Storage   Storage   `yaml:"storage"`
	Tracing   Tracing   `yaml:"tracing"`
}

type Server struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	TLSCert         string        `yaml:"tls_cert"`
	TLSKey          string        `yaml:"tls_key"`
	Dev             bool          `yaml:"dev"` // enables gRPC reflection
	AllowOrigins    []string      `yaml:"allow_origins"`
	TrustedProxies  []string      `yaml:"trusted_proxies"` // IPs or CIDRs allowed to set X-Forwarded-For
	MaxUploadMB     int64         `yaml:"max_upload_mb"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Store struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	Migrate bool   `yaml:"migrate"`
}

type Auth struct {
	JWTKey string        `yaml:"jwt_key"`
	Leeway time.Duration `yaml:"leeway"`
}

type Log struct {
	Mode string `yaml:"mode"` // prod | dev
}

type Service struct {
	SigningRule       string `yaml:"signing_rule"`
	StrictTransitions bool   `yaml:"strict_transitions"`
	AutoActivate      bool   `yaml:"auto_activate"`
	MaxList           int    `yaml:"max_list"`
}

// Limiter bounds rejected signing attempts per actor and address.
type Limiter struct {
	Enabled  bool          `yaml:"enabled"`
	Window   time.Duration `yaml:"window"`
	MaxFails int           `yaml:"max_fails"`
	BlockFor time.Duration `yaml:"block_for"`
}

type Reconcile struct {
	Interval time.Duration `yaml:"interval"` // zero disables the job
}

type Events struct {
	RedisAddr string `yaml:"redis_addr"` // empty disables publishing
	Channel   string `yaml:"channel"`
}

type Storage struct {
	Endpoint      string `yaml:"endpoint"` // empty disables uploads
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Bucket        string `yaml:"bucket"`
	Region        string `yaml:"region"`
	UseSSL        bool   `yaml:"use_ssl"`
	ExpireDays    int    `yaml:"expire_days"`     // lifetime of presigned download links
	PublicBaseURL string `yaml:"public_base_url"` // prefix of stored file URLs; default endpoint/bucket
}

type Tracing struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"` // OTLP/HTTP; empty exports to stdout
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: Server{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":8443",
			MaxUploadMB:     32,
			ShutdownTimeout: 5 * time.Second,
		},
		Store:     Store{Driver: DriverMemory, Migrate: true},
		Auth:      Auth{Leeway: 30 * time.Second},
		Log:       Log{Mode: "prod"},
		Service:   Service{SigningRule: string(model.SignatoriesOnly), MaxList: 100},
		Limiter:   Limiter{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute},
		Reconcile: Reconcile{Interval: time.Minute},
		Events:    Events{Channel: "econtract.events"},
		Storage:   Storage{Bucket: "econtract", ExpireDays: 7},
		Tracing:   Tracing{SampleRatio: 1},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. Variables from envFiles fill in only what the
// process environment does not set; missing env files are skipped. An
// empty path skips the YAML step. The result is not validated: callers
// apply their own overrides first and then call Validate.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	fileEnv := map[string]string{}
	for _, f := range envFiles {
		m, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read env file %s: %w", f, err)
		}
		for k, v := range m {
			if _, set := fileEnv[k]; !set {
				fileEnv[k] = v
			}
		}
	}
	cfg.applyEnv(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	})
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvDSN, &c.Store.DSN)
	set(EnvDriver, &c.Store.Driver)
	set(EnvJWTKey, &c.Auth.JWTKey)
	set(EnvRedisAddr, &c.Events.RedisAddr)
	set(EnvHTTPAddr, &c.Server.HTTPAddr)
	set(EnvGRPCAddr, &c.Server.GRPCAddr)
	set(EnvMinioAccess, &c.Storage.AccessKey)
	set(EnvMinioSecret, &c.Storage.SecretKey)
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Auth.JWTKey == "" {
		return fmt.Errorf("auth.jwt_key is required (or %s)", EnvJWTKey)
	}
	if _, err := model.ParseSigningRule(c.Service.SigningRule); err != nil {
		return fmt.Errorf("service.signing_rule: %w", err)
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return errors.New("server.tls_cert and server.tls_key must be set together")
	}
	for _, p := range c.Server.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("server.trusted_proxies: %q is not an IP or CIDR", p)
			}
		}
	}
	if c.Reconcile.Interval < 0 {
		return errors.New("reconcile.interval must not be negative")
	}
	return nil
}

// SigningRule returns the parsed signing rule. Call after Validate.
func (c *Config) SigningRule() model.SigningRule {
	r, _ := model.ParseSigningRule(c.Service.SigningRule)
	return r
}
