// Package config implements the gateway's configuration surface:
// viper-backed YAML with env-var overlay, single-level config
// inheritance, and CLI flag binding.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the gateway's top-level configuration.
type Config struct {
	AppName string `mapstructure:"app_name" jsonschema:"title=Application Name"`

	// Production makes the "auto" log format select the JSON encoder
	// (see ShouldUseJSONLogs).
	Production bool `jsonschema:"title=Production Mode,default=false"`

	SchemaPath string `mapstructure:"schema_path" jsonschema:"title=Schema Directory"`

	LogLevel  string `mapstructure:"log_level" jsonschema:"title=Log Level,enum=debug,enum=info,enum=warn,enum=error"`
	LogFormat string `mapstructure:"log_format" jsonschema:"title=Log Format,enum=auto,enum=json,enum=console"`

	HostPort string `mapstructure:"host_port" jsonschema:"title=Host and Port"`

	BaseURL string `mapstructure:"base_url" jsonschema:"title=Public Base URL"`

	AllowedOrigins []string `mapstructure:"cors_allowed_origins" jsonschema:"title=HTTP CORS Allowed Origins"`
	DebugCORS      bool     `mapstructure:"cors_debug" jsonschema:"title=Log CORS"`

	RateLimiter RateLimiter `mapstructure:"rate_limiter" jsonschema:"title=API Rate Limiting"`

	DB Database `mapstructure:"database" jsonschema:"title=Database"`

	Prefetch PrefetchConfig `mapstructure:"prefetch" jsonschema:"title=Relation Prefetch Cache"`

	// WatchAndReload is decoded from the config file but not read by the
	// gateway; schema reload is triggered by SIGHUP (cmd/cmd_serv.go).
	WatchAndReload bool `mapstructure:"reload_on_schema_change" jsonschema:"title=Reload Schema on Change"`

	viper *viper.Viper
}

// Database holds the connection settings for the drivers this gateway
// ships (postgres, mysql, sqlite).
type Database struct {
	Type            string        `jsonschema:"title=Type,enum=postgres,enum=mysql,enum=sqlite"`
	ConnString      string        `mapstructure:"connection_string" jsonschema:"title=Connection String"`
	Host            string        `jsonschema:"title=Host"`
	Port            uint16        `jsonschema:"title=Port"`
	DBName          string        `mapstructure:"db_name" jsonschema:"title=Database Name"`
	User            string        `jsonschema:"title=User"`
	Password        string        `jsonschema:"title=Password"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" jsonschema:"title=Max Open Connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" jsonschema:"title=Max Idle Connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" jsonschema:"title=Max Connection Lifetime"`
}

// RateLimiter configures golang.org/x/time/rate's token bucket per
// client.
type RateLimiter struct {
	Enable            bool    `jsonschema:"title=Enable Rate Limiting,default=false"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" jsonschema:"title=Requests per Second"`
	Burst             int     `jsonschema:"title=Burst Size"`
}

// PrefetchConfig bounds internal/render's relation-prefetch LRU.
type PrefetchConfig struct {
	MaxEntries int           `mapstructure:"max_entries" jsonschema:"title=Max Cache Entries"`
	TTL        time.Duration `jsonschema:"title=Entry TTL"`
}

// ReadInConfig reads the config file named by configFile (and, if it
// declares `inherits`, its parent) from the real filesystem.
func ReadInConfig(configFile string) (*Config, error) {
	return readInConfig(configFile, nil)
}

// ReadInConfigFS is the same as ReadInConfig but reads through fs — an
// afero.Fs — so tests can supply an in-memory filesystem.
func ReadInConfigFS(configFile string, fs afero.Fs) (*Config, error) {
	return readInConfig(configFile, fs)
}

func readInConfig(configFile string, fs afero.Fs) (*Config, error) {
	cp := filepath.Dir(configFile)
	vi := newViper(cp, filepath.Base(configFile))
	if fs != nil {
		vi.SetFs(fs)
	}

	if err := vi.ReadInConfig(); err != nil {
		return nil, err
	}

	if pcf := vi.GetString("inherits"); pcf != "" {
		cf := vi.ConfigFileUsed()
		vi = newViper(cp, pcf)
		if fs != nil {
			vi.SetFs(fs)
		}
		if err := vi.ReadInConfig(); err != nil {
			return nil, err
		}
		if value := vi.GetString("inherits"); value != "" {
			return nil, fmt.Errorf("inherited config %q cannot itself inherit %q", pcf, value)
		}
		vi.SetConfigFile(cf)
		if err := vi.MergeInConfig(); err != nil {
			return nil, err
		}
	}

	applyEnvOverlay(vi)

	cfg := &Config{viper: vi}
	if err := vi.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverlay lets DSO_-prefixed environment variables override any
// config key; a double underscore separates nested keys.
func applyEnvOverlay(vi *viper.Viper) {
	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, "DSO_") {
			continue
		}
		kv := strings.SplitN(e, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(kv[0], "DSO_"))
		key = strings.ReplaceAll(key, "__", ".")
		vi.Set(key, kv[1])
	}
}

// BindFlags wires a pflag.FlagSet (as built by the CLI) into the
// viper instance so CLI flags take precedence over file/env config.
func (c *Config) BindFlags(fs *pflag.FlagSet) error {
	return c.viper.BindPFlags(fs)
}

func newViperWithDefaults() *viper.Viper {
	vi := viper.New()

	vi.SetDefault("host_port", "0.0.0.0:8080")
	vi.SetDefault("log_level", "info")
	vi.SetDefault("log_format", "auto")
	vi.SetDefault("schema_path", "./schemas")

	vi.SetDefault("database.type", "postgres")
	vi.SetDefault("database.host", "localhost")
	vi.SetDefault("database.port", 5432)
	vi.SetDefault("database.max_open_conns", 10)
	vi.SetDefault("database.max_idle_conns", 5)
	vi.SetDefault("database.max_conn_lifetime", 30*time.Minute)

	vi.SetDefault("rate_limiter.enable", false)
	vi.SetDefault("rate_limiter.requests_per_second", 20.0)
	vi.SetDefault("rate_limiter.burst", 40)

	vi.SetDefault("prefetch.max_entries", 5000)
	vi.SetDefault("prefetch.ttl", 5*time.Minute)

	vi.BindEnv("host_port", "HOST_PORT") //nolint:errcheck

	return vi
}

func newViper(configPath, configFile string) *viper.Viper {
	vi := newViperWithDefaults()
	vi.SetConfigName(strings.TrimSuffix(configFile, filepath.Ext(configFile)))
	if configPath == "" {
		vi.AddConfigPath("./config")
	} else {
		vi.AddConfigPath(configPath)
	}
	return vi
}

// ShouldUseJSONLogs picks the log encoder: explicit "json"/"console"
// win, "auto" picks JSON in production.
func (c *Config) ShouldUseJSONLogs() bool {
	switch c.LogFormat {
	case "json":
		return true
	case "console":
		return false
	default:
		return c.Production
	}
}
