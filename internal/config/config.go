// Package config loads creek configuration from a YAML file, CREEK_*
// environment variables and built-in defaults, in that order of precedence
// (environment wins over the file).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/caffeineduck/creek/internal/bytesize"
)

// EnvPrefix prefixes every environment override, e.g. CREEK_RUNTIME_BACKEND.
const EnvPrefix = "CREEK"

// Config is the complete creek configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Runtime RuntimeConfig `mapstructure:"runtime" yaml:"runtime"`
	Host    HostConfig    `mapstructure:"host" yaml:"host"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is DEBUG, INFO, WARN or ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR" yaml:"level"`
	// Format is text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// RuntimeConfig selects and configures the interpreter.
type RuntimeConfig struct {
	// Backend is "process" (a python3 child) or "wasm" (WASI python in wazero).
	Backend string `mapstructure:"backend" validate:"required,oneof=process wasm" yaml:"backend"`

	// Python is the interpreter executable for the process backend.
	Python string `mapstructure:"python" yaml:"python"`

	// ScriptsDir holds the analysis modules. It is put on PYTHONPATH, or
	// mounted read-only at /scripts for the wasm backend.
	ScriptsDir string `mapstructure:"scripts_dir" validate:"required" yaml:"scripts_dir"`

	// PackagesDir holds pure-Python wheels installed with `creek deps`. It
	// is appended to the search path after ScriptsDir.
	PackagesDir string `mapstructure:"packages_dir" yaml:"packages_dir"`

	// PackageIndex is the PyPI JSON API root used by `creek deps install`.
	PackageIndex string `mapstructure:"package_index" validate:"omitempty,url" yaml:"package_index"`

	// DataDir is where images are read and downloads written. The wasm
	// backend mounts it at /data.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// WasmModule is the python.wasm path, required for the wasm backend.
	WasmModule string `mapstructure:"wasm_module" validate:"required_if=Backend wasm" yaml:"wasm_module,omitempty"`

	// WasmStdlib is the host directory holding the WASI python standard
	// library, mounted at /usr/local/lib.
	WasmStdlib string `mapstructure:"wasm_stdlib" yaml:"wasm_stdlib,omitempty"`

	// CacheDir enables wazero's compilation cache.
	CacheDir string `mapstructure:"cache_dir" yaml:"cache_dir,omitempty"`

	// MemoryLimit caps wasm guest memory, at most 4Gi. Zero means the wazero
	// default.
	MemoryLimit bytesize.ByteSize `mapstructure:"memory_limit" validate:"lte=4294967296" yaml:"memory_limit"`

	// StartTimeout bounds interpreter startup. Zero waits forever.
	StartTimeout time.Duration `mapstructure:"start_timeout" validate:"gte=0" yaml:"start_timeout"`

	// Lazy defers interpreter startup until the first call. By default the
	// interpreter starts in the background as soon as the host is up.
	Lazy bool `mapstructure:"lazy" yaml:"lazy"`
}

// HostConfig controls the host functions scripts may call.
type HostConfig struct {
	// AllowedHosts enables http_request/http_get for these hosts. Empty
	// disables HTTP.
	AllowedHosts []string `mapstructure:"allowed_hosts" yaml:"allowed_hosts"`

	HTTPMaxBody bytesize.ByteSize `mapstructure:"http_max_body" yaml:"http_max_body"`
	HTTPTimeout time.Duration     `mapstructure:"http_timeout" validate:"gte=0" yaml:"http_timeout"`

	// Mounts expose host directories through the fs_* functions.
	Mounts []MountConfig `mapstructure:"mounts" validate:"dive" yaml:"mounts"`

	FSMaxFileSize bytesize.ByteSize `mapstructure:"fs_max_file_size" yaml:"fs_max_file_size"`

	KV KVConfig `mapstructure:"kv" yaml:"kv"`
}

// MountConfig is one fs mount.
type MountConfig struct {
	Virtual string `mapstructure:"virtual" validate:"required,startswith=/" yaml:"virtual"`
	Host    string `mapstructure:"host" validate:"required" yaml:"host"`
	Mode    string `mapstructure:"mode" validate:"required,oneof=ro rw rwc" yaml:"mode"`
}

// KVConfig controls the kv_* functions.
type KVConfig struct {
	Enabled      bool              `mapstructure:"enabled" yaml:"enabled"`
	MaxEntries   int               `mapstructure:"max_entries" validate:"gte=0" yaml:"max_entries"`
	MaxKeySize   int               `mapstructure:"max_key_size" validate:"gte=0" yaml:"max_key_size"`
	MaxValueSize bytesize.ByteSize `mapstructure:"max_value_size" yaml:"max_value_size"`
}

// ServerConfig controls the method channel transports.
type ServerConfig struct {
	// Listen is the HTTP listen address of `creek serve`.
	Listen string `mapstructure:"listen" validate:"required,hostname_port" yaml:"listen"`

	// Channel names the method channel in logs.
	Channel string `mapstructure:"channel" validate:"required" yaml:"channel"`

	// Component is the launch component reported by getShareSource until a
	// new intent replaces it.
	Component string `mapstructure:"component" yaml:"component"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// MetricsConfig toggles prometheus metrics and the /metrics route.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load reads configuration from path (or the default location when empty),
// overlays environment variables, applies defaults and validates the result.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, path string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v, reflect.TypeOf(Config{}), "")

	if path != "" {
		v.SetConfigFile(path)
		return
	}
	v.AddConfigPath(ConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// bindEnv registers every leaf key so environment variables apply even when
// no config file mentions them.
func bindEnv(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key := f.Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)) {
			bindEnv(v, f.Type, key)
			continue
		}
		_ = v.BindEnv(key)
	}
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s: failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return errors.New(strings.Join(msgs, "; "))
}

// ConfigDir is $XDG_CONFIG_HOME/creek, or the platform equivalent.
func ConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".creek"
	}
	return filepath.Join(dir, "creek")
}

// DefaultConfigPath is where `creek config init` writes by default.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// SaveConfig writes cfg as YAML, creating the parent directory.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
