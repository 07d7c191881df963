package config

import "time"

// DefaultConfig returns a complete, usable configuration for local
// single-node development: metadata rooted at /block-meta, no registry or
// archive backends enabled.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg with defaults. It is safe
// to call on a partially populated Config loaded from file or environment.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "blockd"
	}
	if cfg.Telemetry.SampleFraction == 0 {
		cfg.Telemetry.SampleFraction = 0.1
	}

	if cfg.Profiling.ApplicationName == "" {
		cfg.Profiling.ApplicationName = "blockd"
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Meta.Root == "" {
		cfg.Meta.Root = "/block-meta"
	}

	if cfg.RPC.Port == 0 {
		cfg.RPC.Port = 24010
	}
	if cfg.RPC.AdminAddr == "" {
		cfg.RPC.AdminAddr = "127.0.0.1:24009"
	}
	if cfg.RPC.DialTimeout == 0 {
		cfg.RPC.DialTimeout = 5 * time.Second
	}
	if cfg.RPC.CallTimeout == 0 {
		cfg.RPC.CallTimeout = 30 * time.Second
	}
	if cfg.RPC.LockTimeout == 0 {
		cfg.RPC.LockTimeout = 60 * time.Second
	}

	if cfg.Admin.HTTPAddr == "" {
		cfg.Admin.HTTPAddr = ":8080"
	}

	if cfg.ISCSI.TargetCLIPath == "" {
		cfg.ISCSI.TargetCLIPath = "targetcli"
	}
	if cfg.ISCSI.Host == "" {
		cfg.ISCSI.Host = "127.0.0.1"
	}
	if cfg.ISCSI.Port == 0 {
		cfg.ISCSI.Port = 3260
	}
	if cfg.ISCSI.CommandTimeout == 0 {
		cfg.ISCSI.CommandTimeout = 10 * time.Second
	}
	if cfg.ISCSI.NamingAuthority == "" {
		cfg.ISCSI.NamingAuthority = "com.blockd"
	}

	if cfg.Capability.CacheDir == "" {
		cfg.Capability.CacheDir = "/var/lib/blockd/capcache"
	}
	if cfg.Capability.TTL == 0 {
		cfg.Capability.TTL = 5 * time.Minute
	}

	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "blocks/"
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}
