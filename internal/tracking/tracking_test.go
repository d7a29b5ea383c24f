package tracking

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/gaborage/go-sqlmapper/config"
	"github.com/gaborage/go-sqlmapper/logger"
)

const selectUsers = "SELECT id, name FROM users WHERE id = ?"

func newBufferLogger(buf *bytes.Buffer) logger.Logger {
	return logger.NewWithWriter(buf, "debug", false, nil)
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var out map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &out))
	return out
}

func setupProviders(t *testing.T) (*tracetest.InMemoryExporter, *sdkmetric.ManualReader) {
	t.Helper()
	originalTP := otel.GetTracerProvider()
	originalMP := otel.GetMeterProvider()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
		otel.SetTracerProvider(originalTP)
		otel.SetMeterProvider(originalMP)
	})
	return exporter, reader
}

func TestNewSettingsDefaults(t *testing.T) {
	s := NewSettings(nil)
	assert.Equal(t, DefaultSlowQueryThreshold, s.SlowQueryThreshold())
	assert.Equal(t, DefaultMaxQueryLength, s.MaxQueryLength())
	assert.False(t, s.LogQueryParameters())

	s = NewSettings(&config.TrackingConfig{SlowThreshold: time.Second, MaxQueryLength: 20, LogParameters: true})
	assert.Equal(t, time.Second, s.SlowQueryThreshold())
	assert.Equal(t, 20, s.MaxQueryLength())
	assert.True(t, s.LogQueryParameters())

	s = NewSettings(&config.TrackingConfig{SlowThreshold: -1, MaxQueryLength: 0})
	assert.Equal(t, DefaultSlowQueryThreshold, s.SlowQueryThreshold())
	assert.Equal(t, DefaultMaxQueryLength, s.MaxQueryLength())
}

func TestTrackLogsSuccessAtDebug(t *testing.T) {
	var buf bytes.Buffer
	tc := New(newBufferLogger(&buf), "mysql", NewSettings(nil))
	ctx := logger.WithDBCounter(context.Background())

	Track(ctx, tc, &Operation{StatementID: "users.findById", Query: selectUsers, Route: "replica", Start: time.Now()})

	line := lastLine(t, &buf)
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "Statement executed", line["message"])
	assert.Equal(t, "users.findById", line["statement"])
	assert.Equal(t, "replica", line["route"])
	assert.Equal(t, selectUsers, line["query"])
	assert.Equal(t, int64(1), logger.GetDBCounter(ctx))
}

func TestTrackSlowStatementWarns(t *testing.T) {
	var buf bytes.Buffer
	settings := NewSettings(&config.TrackingConfig{SlowThreshold: time.Millisecond})
	tc := New(newBufferLogger(&buf), "mysql", settings)

	Track(context.Background(), tc, &Operation{Query: selectUsers, Start: time.Now().Add(-time.Second)})

	line := lastLine(t, &buf)
	assert.Equal(t, "warn", line["level"])
	assert.Contains(t, line["message"], "Slow statement detected")
}

func TestTrackErrorAndNoRows(t *testing.T) {
	var buf bytes.Buffer
	tc := New(newBufferLogger(&buf), "mysql", NewSettings(nil))

	Track(context.Background(), tc, &Operation{Query: selectUsers, Start: time.Now(), Err: errors.New("boom")})
	line := lastLine(t, &buf)
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "boom", line["error"])

	Track(context.Background(), tc, &Operation{Query: selectUsers, Start: time.Now(), Err: sql.ErrNoRows})
	line = lastLine(t, &buf)
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "Statement returned no rows", line["message"])
}

func TestTrackArgsAndTruncation(t *testing.T) {
	var buf bytes.Buffer
	settings := NewSettings(&config.TrackingConfig{MaxQueryLength: 10, LogParameters: true})
	tc := New(newBufferLogger(&buf), "mysql", settings)

	Track(context.Background(), tc, &Operation{
		Query: selectUsers,
		Args:  []any{"a very long argument", []byte{1, 2, 3}, 42},
		Start: time.Now(),
	})

	line := lastLine(t, &buf)
	assert.Equal(t, "SELECT ...", line["query"])
	assert.Equal(t, []any{"a very ...", "<bytes len=3>", "42"}, line["args"])
}

func TestTrackNilSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		Track(context.Background(), nil, &Operation{})
		Track(context.Background(), &Context{}, &Operation{})
		Track(context.Background(), New(logger.New("disabled", false), "mysql", NewSettings(nil)), nil)
	})
}

func TestTrackCreatesSpan(t *testing.T) {
	exporter, _ := setupProviders(t)
	tc := New(logger.New("disabled", false), "pgx", NewSettings(nil))

	Track(context.Background(), tc, &Operation{
		StatementID: "users.findById",
		Query:       selectUsers,
		Route:       "primary",
		Start:       time.Now().Add(-10 * time.Millisecond),
		Err:         errors.New("boom"),
	})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "db.select", span.Name)
	assert.Equal(t, codes.Error, span.Status.Code)

	attrs := map[string]string{}
	for _, kv := range span.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "postgresql", attrs["db.system"])
	assert.Equal(t, "users.findById", attrs[attrStatementID])
	assert.Equal(t, "primary", attrs[attrRoute])
	assert.Equal(t, "select", attrs["db.operation.name"])
}

func TestTrackNoRowsDoesNotFailSpan(t *testing.T) {
	exporter, _ := setupProviders(t)
	tc := New(logger.New("disabled", false), "mysql", NewSettings(nil))

	Track(context.Background(), tc, &Operation{Query: selectUsers, Start: time.Now(), Err: sql.ErrNoRows})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestTrackRecordsMetrics(t *testing.T) {
	_, reader := setupProviders(t)
	tc := New(logger.New("disabled", false), "mysql", NewSettings(nil))

	Track(context.Background(), tc, &Operation{Query: "UPDATE users SET name = ?", Start: time.Now(), RowsAffected: 3})
	Track(context.Background(), tc, &Operation{Query: selectUsers, Start: time.Now()})

	metrics := collect(t, reader)

	calls, ok := metrics[metricDBCalls].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range calls.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)

	rows, ok := metrics[metricRowsAffected].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, rows.DataPoints, 1)
	assert.Equal(t, int64(3), rows.DataPoints[0].Value)

	_, ok = metrics[metricDBDuration].Data.(metricdata.Histogram[float64])
	assert.True(t, ok)
}

type fakePool struct{ stats sql.DBStats }

func (p fakePool) Stats() sql.DBStats { return p.stats }

func TestRegisterPoolObservesStats(t *testing.T) {
	_, reader := setupProviders(t)
	tc := New(logger.New("disabled", false), "mysql", NewSettings(nil))

	unregister := tc.RegisterPool("orders", "replica", fakePool{stats: sql.DBStats{InUse: 2, Idle: 3, MaxOpenConnections: 10}})
	defer unregister()

	metrics := collect(t, reader)
	active, ok := metrics[metricPoolActive].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, active.DataPoints, 1)
	assert.Equal(t, int64(2), active.DataPoints[0].Value)

	total, ok := metrics[metricPoolTotal].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	assert.Equal(t, int64(10), total.DataPoints[0].Value)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", TruncateString("abc", 0))
	assert.Equal(t, "abc", TruncateString("abc", 3))
	assert.Equal(t, "ab", TruncateString("abcd", 2))
	assert.Equal(t, "a...", TruncateString("abcdef", 4))
	assert.Equal(t, "hé...", TruncateString("héllo wörld", 5))
}

func TestExtractDBOperation(t *testing.T) {
	assert.Equal(t, "select", extractDBOperation("  select 1"))
	assert.Equal(t, "insert", extractDBOperation("INSERT INTO t VALUES (?)"))
	assert.Equal(t, defaultOperation, extractDBOperation(""))
	assert.Equal(t, defaultOperation, extractDBOperation("WITH x AS (SELECT 1) SELECT * FROM x"))
}
