package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-sqlmapper/logger"
)

const validYAML = `
app:
  name: orders
datasource:
  name: orders-db
  driver: mysql
  masterurl: "root:secret@tcp(db-1:3306)/orders"
  slaveurl: "root:secret@tcp(db-2:3306)/orders"
  pool:
    maxopen: 10
    maxidle: 2
pagination:
  dialect: mysql
`

func TestLoadBytesAppliesDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "orders", cfg.App.Name)
	assert.Equal(t, EnvDevelopment, cfg.App.Env)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "orders-db", cfg.DataSource.Name)
	assert.True(t, cfg.DataSource.AutoCommit)
	assert.Equal(t, 30*time.Second, cfg.DataSource.DrainTimeout)
	assert.Equal(t, 10, cfg.DataSource.Pool.MaxOpen)
	assert.Equal(t, 2, cfg.DataSource.Pool.MaxIdle)
	assert.Equal(t, 30*time.Minute, cfg.DataSource.Pool.MaxLifetime)
	assert.True(t, cfg.Mapping.CamelCase)
	assert.Equal(t, 200*time.Millisecond, cfg.Tracking.SlowThreshold)
	assert.Equal(t, 1000, cfg.Tracking.MaxQueryLength)
	require.NotNil(t, cfg.Koanf())
	assert.Equal(t, "orders", cfg.Koanf().String("app.name"))
}

func TestReplicaURLFallsBackToMaster(t *testing.T) {
	ds := DataSourceConfig{MasterURL: "m"}
	assert.Equal(t, "m", ds.ReplicaURL())

	ds.SlaveURL = "s"
	assert.Equal(t, "s", ds.ReplicaURL())
}

func TestLoadBytesMissingMasterURL(t *testing.T) {
	_, err := LoadBytes([]byte("datasource:\n  driver: mysql\n"))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "config_missing: datasource.masterurl")
	assert.Contains(t, err.Error(), "SQLMAPPER_DATASOURCE_MASTERURL")
}

func TestLoadBytesRejectsUnknownDriver(t *testing.T) {
	_, err := LoadBytes([]byte("datasource:\n  driver: db2\n  masterurl: x\n"))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "datasource.driver")
	assert.Contains(t, err.Error(), "must be one of")
}

func TestLoadBytesRejectsUnsupportedDialect(t *testing.T) {
	_, err := LoadBytes([]byte("datasource:\n  driver: mysql\n  masterurl: x\npagination:\n  dialect: db2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pagination.dialect")
	assert.Contains(t, err.Error(), `unsupported dialect "db2"`)
}

func TestLoadBytesDialectIsCaseInsensitive(t *testing.T) {
	cfg, err := LoadBytes([]byte("datasource:\n  driver: oracle\n  masterurl: x\npagination:\n  dialect: Oracle\n"))
	require.NoError(t, err)
	assert.Equal(t, "Oracle", cfg.Pagination.Dialect)
}

func TestLoadBytesRejectsIdleAboveOpen(t *testing.T) {
	_, err := LoadBytes([]byte("datasource:\n  driver: mysql\n  masterurl: x\n  pool:\n    maxopen: 2\n    maxidle: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "datasource.pool.maxidle")
}

func TestLoadBytesRejectsInvalidLogLevel(t *testing.T) {
	_, err := LoadBytes([]byte("log:\n  level: chatty\ndatasource:\n  driver: mysql\n  masterurl: x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
	assert.Contains(t, err.Error(), "debug, info, warn, error, disabled")
}

func TestLoadBytesObservabilityDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte(validYAML))
	require.NoError(t, err)

	assert.False(t, cfg.Observability.Enabled)
	assert.Equal(t, "stdout", cfg.Observability.Endpoint)
	assert.Equal(t, "http", cfg.Observability.Protocol)
	assert.Equal(t, 1.0, cfg.Observability.SampleRate)
	assert.Equal(t, time.Minute, cfg.Observability.MetricInterval)
}

func TestLoadBytesRejectsObservabilityProtocol(t *testing.T) {
	_, err := LoadBytes([]byte(validYAML + "observability:\n  protocol: udp\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "observability.protocol")
}

func TestLoadBytesRejectsSampleRateAboveOne(t *testing.T) {
	_, err := LoadBytes([]byte(validYAML + "observability:\n  samplerate: 1.5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "observability.samplerate")
}

func TestLoadEnvOverridesKeys(t *testing.T) {
	k := koanf.New(".")
	require.NoError(t, loadDefaults(k))

	environ := func() []string {
		return []string{
			"SQLMAPPER_DATASOURCE_MASTERURL=env-master",
			"SQLMAPPER_DATASOURCE_DRIVER=sqlite",
			"SQLMAPPER_PAGINATION_DIALECT=sqlite",
			"UNRELATED_VALUE=ignored",
		}
	}
	require.NoError(t, loadEnv(k, environ))

	cfg, err := build(k)
	require.NoError(t, err)
	assert.Equal(t, "env-master", cfg.DataSource.MasterURL)
	assert.Equal(t, "sqlite", cfg.DataSource.Driver)
	assert.Equal(t, "sqlite", cfg.Pagination.Dialect)
	assert.False(t, k.Exists("unrelated.value"))
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "root:secret@tcp(db-2:3306)/orders", cfg.DataSource.SlaveURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestConfigErrorFormatting(t *testing.T) {
	err := NewInvalidFieldError("log.level", "invalid value", []string{"a", "b"})
	assert.Equal(t, "config_invalid: log.level invalid value must be one of: a, b", err.Error())

	assert.Equal(t, "config_invalid: x bad", NewInvalidFieldError("x", "bad", nil).Error())
}

func TestWatchPushesChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	var (
		mu   sync.Mutex
		seen []string
	)
	w, err := Watch(path, logger.New("disabled", false), func(cfg *Config) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, cfg.DataSource.MasterURL)
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	mu.Lock()
	require.Len(t, seen, 1)
	mu.Unlock()

	updated := []byte("datasource:\n  driver: mysql\n  masterurl: new-master\n")
	require.NoError(t, os.WriteFile(path, updated, 0o600))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 1 && seen[len(seen)-1] == "new-master"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatchRequiresListener(t *testing.T) {
	_, err := Watch("unused.yaml", logger.New("disabled", false), nil)
	assert.Error(t, err)
}
