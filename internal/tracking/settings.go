// Package tracking records every mapped statement execution: a structured
// log line (warning above the slow threshold), an OpenTelemetry client span
// and call/duration/row metrics.
package tracking

import (
	"time"

	"github.com/gaborage/go-sqlmapper/config"
)

const (
	// DefaultSlowQueryThreshold defines the default threshold for slow statement detection
	DefaultSlowQueryThreshold = 200 * time.Millisecond
	// DefaultMaxQueryLength defines the default maximum SQL length for logging
	DefaultMaxQueryLength = 1000
)

// Settings holds configuration for statement tracking and logging.
type Settings struct {
	slowQueryThreshold time.Duration
	maxQueryLength     int
	logQueryParameters bool
}

// NewSettings creates Settings from the tracking configuration.
// Non-positive numeric fields fall back to the defaults.
func NewSettings(cfg *config.TrackingConfig) Settings {
	settings := Settings{
		slowQueryThreshold: DefaultSlowQueryThreshold,
		maxQueryLength:     DefaultMaxQueryLength,
	}
	if cfg == nil {
		return settings
	}

	if cfg.SlowThreshold > 0 {
		settings.slowQueryThreshold = cfg.SlowThreshold
	}
	if cfg.MaxQueryLength > 0 {
		settings.maxQueryLength = cfg.MaxQueryLength
	}
	settings.logQueryParameters = cfg.LogParameters

	return settings
}

// SlowQueryThreshold returns the threshold for slow statement detection
func (s Settings) SlowQueryThreshold() time.Duration {
	return s.slowQueryThreshold
}

// MaxQueryLength returns the maximum SQL length for logging
func (s Settings) MaxQueryLength() int {
	return s.maxQueryLength
}

// LogQueryParameters returns whether statement arguments should be logged
func (s Settings) LogQueryParameters() bool {
	return s.logQueryParameters
}
