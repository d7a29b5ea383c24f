package config

import (
	"time"

	"github.com/knadh/koanf/v2"
)

// Config represents the overall configuration of a go-sqlmapper engine.
// The embedded koanf.Koanf instance allows flexible access to
// custom keys not explicitly defined in the struct.
type Config struct {
	App        AppConfig        `koanf:"app" json:"app" yaml:"app"`
	Log        LogConfig        `koanf:"log" json:"log" yaml:"log"`
	DataSource DataSourceConfig `koanf:"datasource" json:"datasource" yaml:"datasource"`
	Pagination PaginationConfig `koanf:"pagination" json:"pagination" yaml:"pagination"`
	Mapping    MappingConfig    `koanf:"mapping" json:"mapping" yaml:"mapping"`
	Tracking   TrackingConfig   `koanf:"tracking" json:"tracking" yaml:"tracking"`

	Observability ObservabilityConfig `koanf:"observability" json:"observability" yaml:"observability"`

	k *koanf.Koanf `json:"-" yaml:"-"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name string `koanf:"name" json:"name" yaml:"name" validate:"required"`
	Env  string `koanf:"env" json:"env" yaml:"env" validate:"oneof=development staging production"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" validate:"oneof=debug info warn error disabled"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty"`
}

// DataSourceConfig describes a primary/replica endpoint pair.
// This is the payload delivered on every configuration change.
type DataSourceConfig struct {
	// Name identifies the datasource in logs and pool names
	Name string `koanf:"name" json:"name" yaml:"name" validate:"required"`
	// Driver selects the pool opener (mysql, pgx, postgresql, oracle, sqlite)
	Driver string `koanf:"driver" json:"driver" yaml:"driver" validate:"required"`
	// MasterURL is the primary (read/write) endpoint
	MasterURL string `koanf:"masterurl" json:"masterurl" yaml:"masterurl" validate:"required"`
	// SlaveURL is the replica endpoint; empty means "same as MasterURL"
	SlaveURL string `koanf:"slaveurl" json:"slaveurl" yaml:"slaveurl"`
	Username string `koanf:"username" json:"username" yaml:"username"`
	Password string `koanf:"password" json:"password" yaml:"password"`
	// AutoCommit is the initial autocommit flag of connections handed out by the datasource
	AutoCommit bool `koanf:"autocommit" json:"autocommit" yaml:"autocommit"`
	// DrainTimeout bounds how long a replaced pair waits for in-flight connections before closing
	DrainTimeout time.Duration `koanf:"draintimeout" json:"draintimeout" yaml:"draintimeout" validate:"gte=0"`
	Pool         PoolConfig    `koanf:"pool" json:"pool" yaml:"pool"`
}

// ReplicaURL returns the replica endpoint, falling back to the primary.
func (c *DataSourceConfig) ReplicaURL() string {
	if c.SlaveURL == "" {
		return c.MasterURL
	}
	return c.SlaveURL
}

// PoolConfig holds database/sql pool settings applied to both pools of a pair.
type PoolConfig struct {
	MaxOpen     int           `koanf:"maxopen" json:"maxopen" yaml:"maxopen" validate:"gte=0"`
	MaxIdle     int           `koanf:"maxidle" json:"maxidle" yaml:"maxidle" validate:"gte=0"`
	MaxLifetime time.Duration `koanf:"maxlifetime" json:"maxlifetime" yaml:"maxlifetime" validate:"gte=0"`
	MaxIdleTime time.Duration `koanf:"maxidletime" json:"maxidletime" yaml:"maxidletime" validate:"gte=0"`
	// PingTimeout bounds the connectivity check performed when a pool is built; 0 skips the check
	PingTimeout time.Duration `koanf:"pingtimeout" json:"pingtimeout" yaml:"pingtimeout" validate:"gte=0"`
}

// PaginationConfig selects the SQL dialect used to rewrite paged SELECTs.
type PaginationConfig struct {
	Dialect string `koanf:"dialect" json:"dialect" yaml:"dialect" validate:"required"`
}

// MappingConfig holds the default name mapping policy.
type MappingConfig struct {
	// CamelCase enables camelCase to snake_case conversion of undeclared table and column names
	CamelCase bool `koanf:"camelcase" json:"camelcase" yaml:"camelcase"`
}

// TrackingConfig controls per-operation query tracking.
type TrackingConfig struct {
	SlowThreshold  time.Duration `koanf:"slowthreshold" json:"slowthreshold" yaml:"slowthreshold" validate:"gte=0"`
	MaxQueryLength int           `koanf:"maxquerylength" json:"maxquerylength" yaml:"maxquerylength" validate:"gte=0"`
	LogParameters  bool          `koanf:"logparameters" json:"logparameters" yaml:"logparameters"`
}

// ObservabilityConfig selects where statement spans and metrics are exported.
// When disabled the global no-op providers stay in place.
type ObservabilityConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled" yaml:"enabled"`
	// ServiceName defaults to app.name
	ServiceName    string `koanf:"servicename" json:"servicename" yaml:"servicename"`
	ServiceVersion string `koanf:"serviceversion" json:"serviceversion" yaml:"serviceversion"`
	// Endpoint is "stdout" or an OTLP collector address
	Endpoint string            `koanf:"endpoint" json:"endpoint" yaml:"endpoint"`
	Protocol string            `koanf:"protocol" json:"protocol" yaml:"protocol" validate:"omitempty,oneof=http grpc"`
	Insecure bool              `koanf:"insecure" json:"insecure" yaml:"insecure"`
	Headers  map[string]string `koanf:"headers" json:"headers" yaml:"headers"`
	// SampleRate is the fraction of traces recorded
	SampleRate     float64       `koanf:"samplerate" json:"samplerate" yaml:"samplerate" validate:"gte=0,lte=1"`
	MetricInterval time.Duration `koanf:"metricinterval" json:"metricinterval" yaml:"metricinterval" validate:"gte=0"`
}

// Koanf exposes the underlying koanf instance for custom keys.
func (c *Config) Koanf() *koanf.Koanf {
	return c.k
}
