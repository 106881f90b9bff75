package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/caffeineduck/creek/internal/bytesize"
)

// Defaults applied to unset fields.
const (
	DefaultBackend         = "process"
	DefaultPython          = "python3"
	DefaultScriptsDir      = "./scripts"
	DefaultPackageIndex    = "https://pypi.org/pypi"
	DefaultListen          = "127.0.0.1:8080"
	DefaultChannel         = "com.creek.ui/methods"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultHTTPMaxBody     = 10 * bytesize.MiB
	DefaultFSMaxFileSize   = 10 * bytesize.MiB
)

// ApplyDefaults fills zero-valued fields. Explicit values are kept.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyRuntimeDefaults(&cfg.Runtime)
	applyHostDefaults(&cfg.Host)
	applyServerDefaults(&cfg.Server)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	cfg.Format = strings.ToLower(cfg.Format)
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyRuntimeDefaults(cfg *RuntimeConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultBackend
	}
	cfg.Backend = strings.ToLower(cfg.Backend)
	if cfg.Python == "" {
		cfg.Python = DefaultPython
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = DefaultScriptsDir
	}
	if cfg.PackagesDir == "" {
		cfg.PackagesDir = filepath.Join(ConfigDir(), "packages")
	}
	if cfg.PackageIndex == "" {
		cfg.PackageIndex = DefaultPackageIndex
	}
}

func applyHostDefaults(cfg *HostConfig) {
	if cfg.HTTPMaxBody == 0 {
		cfg.HTTPMaxBody = DefaultHTTPMaxBody
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}
	if cfg.FSMaxFileSize == 0 {
		cfg.FSMaxFileSize = DefaultFSMaxFileSize
	}
	for i := range cfg.Mounts {
		if cfg.Mounts[i].Mode == "" {
			cfg.Mounts[i].Mode = "ro"
		}
	}
	if cfg.KV.MaxEntries == 0 {
		cfg.KV.MaxEntries = 1024
	}
	if cfg.KV.MaxKeySize == 0 {
		cfg.KV.MaxKeySize = 256
	}
	if cfg.KV.MaxValueSize == 0 {
		cfg.KV.MaxValueSize = bytesize.MiB
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// GetDefaultConfig returns a complete configuration with every default set.
// It is what `creek config init` writes.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Host: HostConfig{
			KV: KVConfig{Enabled: true},
		},
		Metrics: MetricsConfig{Enabled: true},
	}
	ApplyDefaults(cfg)
	return cfg
}
