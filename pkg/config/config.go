// Package config loads blockd's configuration from defaults, a YAML file,
// and environment variables, in that increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is blockd's static configuration. Per-block and per-peer state
// lives in the metadata store and peer registry, not here.
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry" yaml:"telemetry"`
	Profiling   ProfilingConfig   `mapstructure:"profiling" yaml:"profiling"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Meta        MetaConfig        `mapstructure:"meta" yaml:"meta"`
	RPC         RPCConfig         `mapstructure:"rpc" yaml:"rpc"`
	Admin       AdminConfig       `mapstructure:"admin" yaml:"admin"`
	ISCSI       ISCSIConfig       `mapstructure:"iscsi" yaml:"iscsi"`
	Registry    RegistryConfig    `mapstructure:"registry" yaml:"registry"`
	Archive     ArchiveConfig     `mapstructure:"archive" yaml:"archive"`
	Capability  CapabilityConfig  `mapstructure:"capability" yaml:"capability"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls internal/logger's output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// TelemetryConfig controls OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name" yaml:"service_name"`
	SampleFraction float64 `mapstructure:"sample_fraction" yaml:"sample_fraction"`
}

// ProfilingConfig controls continuous profiling export.
type ProfilingConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	ServerAddress  string `mapstructure:"server_address" yaml:"server_address"`
	ApplicationName string `mapstructure:"application_name" yaml:"application_name"`
}

// MetricsConfig controls the Prometheus HTTP exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// MetaConfig points at the shared filesystem root the metadata store uses.
type MetaConfig struct {
	Root     string `mapstructure:"root" validate:"required" yaml:"root"`
	Prealloc bool   `mapstructure:"prealloc" yaml:"prealloc"`
}

// RPCConfig controls the peer RPC client and the admin/peer listeners.
type RPCConfig struct {
	Port           int           `mapstructure:"port" validate:"required,gt=0" yaml:"port"`
	AdminAddr      string        `mapstructure:"admin_addr" yaml:"admin_addr"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout" validate:"gt=0" yaml:"dial_timeout"`
	CallTimeout    time.Duration `mapstructure:"call_timeout" validate:"gt=0" yaml:"call_timeout"`
	LockTimeout    time.Duration `mapstructure:"lock_timeout" validate:"gt=0" yaml:"lock_timeout"`
}

// AdminConfig sets the comma-separated default server list. blockctl has
// no flag that overrides it.
type AdminConfig struct {
	ServerList string `mapstructure:"server_list" yaml:"server_list"`
	HTTPAddr   string `mapstructure:"http_addr" yaml:"http_addr"`
}

// ISCSIConfig controls the node-local iSCSI target backend the peer RPC
// server invokes to export, unexport, and toggle CHAP auth on blocks.
type ISCSIConfig struct {
	Fake            bool          `mapstructure:"fake" yaml:"fake"`
	TargetCLIPath   string        `mapstructure:"targetcli_path" yaml:"targetcli_path"`
	Host            string        `mapstructure:"host" validate:"required" yaml:"host"`
	Port            int           `mapstructure:"port" validate:"required,gt=0" yaml:"port"`
	CommandTimeout  time.Duration `mapstructure:"command_timeout" validate:"gt=0" yaml:"command_timeout"`
	NamingAuthority string        `mapstructure:"naming_authority" yaml:"naming_authority"`
}

// RegistryConfig connects the peer registry's Postgres backend.
type RegistryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// ArchiveConfig connects S3-compatible object storage used to archive
// deleted blocks' final metadata snapshot.
type ArchiveConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Bucket   string `mapstructure:"bucket" yaml:"bucket"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
	Region   string `mapstructure:"region" yaml:"region"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// CapabilityConfig controls the badger-backed capability negotiation cache.
type CapabilityConfig struct {
	CacheDir string        `mapstructure:"cache_dir" yaml:"cache_dir"`
	TTL      time.Duration `mapstructure:"ttl" validate:"gt=0" yaml:"ttl"`
}

// Load reads configuration from configPath (or the default search path).
// BLOCKD_* environment variables override the keys present in that file,
// and ApplyDefaults then fills any field still unset. When no config file
// is found, Load returns DefaultConfig() without consulting the
// environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := DefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// SaveConfig writes cfg to path in YAML form.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("BLOCKD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(defaultConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read config file: %w", err)
	}
	return true, nil
}

func defaultConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "blockd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/blockd"
	}
	return filepath.Join(home, ".config", "blockd")
}

// DefaultConfigPath is where blockctl looks when --config is not given.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}
