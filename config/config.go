package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables recognized by Load.
// SQLMAPPER_DATASOURCE_MASTERURL maps to datasource.masterurl.
const EnvPrefix = "SQLMAPPER_"

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. YAML configuration file at path (skipped when path is empty)
// 3. Default values (lowest priority)
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := loadEnv(k, os.Environ); err != nil {
		return nil, err
	}

	return build(k)
}

// LoadBytes loads configuration from an in-memory YAML document layered over
// the defaults. Environment variables are not consulted.
func LoadBytes(data []byte) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	return build(k)
}

func loadEnv(k *koanf.Koanf, environ func() []string) error {
	provider := env.Provider(".", env.Opt{
		Prefix:      EnvPrefix,
		EnvironFunc: environ,
		TransformFunc: func(key, value string) (string, any) {
			// SQLMAPPER_POOL_MAXOPEN -> pool.maxopen
			key = strings.TrimPrefix(key, EnvPrefix)
			return strings.ReplaceAll(strings.ToLower(key), "_", "."), value
		},
	})
	if err := k.Load(provider, nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	return nil
}

func build(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Store the Koanf instance for flexible access
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name": "go-sqlmapper",
		"app.env":  EnvDevelopment,

		"log.level":  "info",
		"log.pretty": false,

		// Endpoints are never defaulted; a datasource must be configured explicitly
		"datasource.name":             "default",
		"datasource.autocommit":       true,
		"datasource.draintimeout":     "30s",
		"datasource.pool.maxopen":     25,
		"datasource.pool.maxidle":     5,
		"datasource.pool.maxlifetime": "30m",
		"datasource.pool.maxidletime": "5m",
		"datasource.pool.pingtimeout": "5s",

		"pagination.dialect": "mysql",

		"mapping.camelcase": true,

		"tracking.slowthreshold":  "200ms",
		"tracking.maxquerylength": 1000,
		"tracking.logparameters":  false,

		"observability.enabled":        false,
		"observability.endpoint":       "stdout",
		"observability.protocol":       "http",
		"observability.samplerate":     1.0,
		"observability.metricinterval": "60s",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}

// IsConfigError reports whether err carries a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
