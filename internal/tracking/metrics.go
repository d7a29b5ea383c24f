package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "go-sqlmapper/session"

	metricDBCalls      = "db.client.calls"
	metricDBDuration   = "db.client.operation.duration"
	metricRowsAffected = "db.rows.affected"

	metricPoolActive = "db.connection.pool.active"
	metricPoolIdle   = "db.connection.pool.idle"
	metricPoolTotal  = "db.connection.pool.total"
)

type instruments struct {
	meter        metric.Meter
	calls        metric.Int64Counter
	duration     metric.Float64Histogram
	rowsAffected metric.Int64Counter
}

// logMetricError reports instrument failures on stderr; metrics never break statement execution.
func logMetricError(name string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize metric %s: %v\n", name, err)
	}
}

func newInstruments(meter metric.Meter) *instruments {
	in := &instruments{meter: meter}
	if meter == nil {
		return in
	}

	var err error
	in.calls, err = meter.Int64Counter(metricDBCalls,
		metric.WithDescription("Total number of mapped statement executions"))
	logMetricError(metricDBCalls, err)

	in.duration, err = meter.Float64Histogram(metricDBDuration,
		metric.WithDescription("Duration of mapped statement executions in milliseconds"),
		metric.WithUnit("ms"))
	logMetricError(metricDBDuration, err)

	in.rowsAffected, err = meter.Int64Counter(metricRowsAffected,
		metric.WithDescription("Number of rows affected by write statements"))
	logMetricError(metricRowsAffected, err)

	return in
}

func (in *instruments) record(ctx context.Context, vendor string, op *Operation, elapsed time.Duration) {
	if in == nil {
		return
	}
	isError := op.Err != nil && !errors.Is(op.Err, sql.ErrNoRows)

	attrs := []attribute.KeyValue{
		attribute.String("db.system", vendor),
		attribute.String("db.operation.name", extractDBOperation(op.Query)),
		attribute.String(attrStatementID, op.StatementID),
	}

	if in.calls != nil {
		callAttrs := append(append([]attribute.KeyValue{}, attrs...), attribute.Bool("error", isError))
		in.calls.Add(ctx, 1, metric.WithAttributes(callAttrs...))
	}
	if in.duration != nil {
		in.duration.Record(ctx, float64(elapsed.Nanoseconds())/1e6, metric.WithAttributes(attrs...))
	}
	if in.rowsAffected != nil && op.RowsAffected > 0 && !isError {
		in.rowsAffected.Add(ctx, op.RowsAffected, metric.WithAttributes(attrs...))
	}
}

// StatsSource is satisfied by *sql.DB.
type StatsSource interface {
	Stats() sql.DBStats
}

// RegisterPool registers observable gauges reporting in-use, idle and
// maximum connections of a pool. name and role ("primary", "replica")
// are attached as attributes. The returned function unregisters the callback.
func (tc *Context) RegisterPool(name, role string, pool StatsSource) func() {
	noop := func() {}
	if tc == nil || tc.metrics == nil || tc.metrics.meter == nil || pool == nil {
		return noop
	}
	meter := tc.metrics.meter

	active, err := meter.Int64ObservableGauge(metricPoolActive, metric.WithDescription("Number of connections in use"))
	logMetricError(metricPoolActive, err)
	idle, err := meter.Int64ObservableGauge(metricPoolIdle, metric.WithDescription("Number of idle connections"))
	logMetricError(metricPoolIdle, err)
	total, err := meter.Int64ObservableGauge(metricPoolTotal, metric.WithDescription("Maximum number of open connections"))
	logMetricError(metricPoolTotal, err)
	if active == nil || idle == nil || total == nil {
		return noop
	}

	attrs := metric.WithAttributes(
		attribute.String("db.system", normalizeDBVendor(tc.Vendor)),
		attribute.String("db.pool.name", name),
		attribute.String(attrRoute, role),
	)
	registration, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := pool.Stats()
		o.ObserveInt64(active, int64(stats.InUse), attrs)
		o.ObserveInt64(idle, int64(stats.Idle), attrs)
		o.ObserveInt64(total, int64(stats.MaxOpenConnections), attrs)
		return nil
	}, active, idle, total)
	if err != nil {
		logMetricError("pool_metrics_callback", err)
		return noop
	}

	return func() {
		if err := registration.Unregister(); err != nil {
			logMetricError("pool_metrics_unregister", err)
		}
	}
}
