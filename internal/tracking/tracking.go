package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/go-sqlmapper/logger"
)

const (
	defaultOperation = "query"

	tracerName        = "go-sqlmapper/session"
	maxDBQueryAttrLen = 2000

	attrStatementID = "db.statement.id"
	attrRoute       = "db.route"
)

// Context groups what every tracked operation needs: the logger, the
// database vendor, the settings and the OpenTelemetry instruments.
type Context struct {
	Logger   logger.Logger
	Vendor   string
	Settings Settings

	tracer  trace.Tracer
	metrics *instruments
}

// New builds a tracking Context using the global tracer and meter providers.
// Providers installed after New are not picked up.
func New(log logger.Logger, vendor string, settings Settings) *Context {
	return &Context{
		Logger:   log,
		Vendor:   vendor,
		Settings: settings,
		tracer:   otel.Tracer(tracerName),
		metrics:  newInstruments(otel.Meter(meterName)),
	}
}

// Operation describes one completed statement execution.
type Operation struct {
	StatementID  string
	Query        string
	Args         []any
	Route        string
	Start        time.Time
	RowsAffected int64
	Err          error
}

// Track records a completed operation. It is a no-op when tc or its logger
// is nil. sql.ErrNoRows is reported at debug level and never marks the span
// as failed.
func Track(ctx context.Context, tc *Context, op *Operation) {
	if tc == nil || tc.Logger == nil || op == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	elapsed := time.Since(op.Start)

	logger.IncrementDBCounter(ctx)
	logger.AddDBElapsed(ctx, elapsed.Nanoseconds())

	tc.span(ctx, op)
	tc.metrics.record(ctx, normalizeDBVendor(tc.Vendor), op, elapsed)

	query := op.Query
	if tc.Settings.MaxQueryLength() > 0 {
		query = TruncateString(query, tc.Settings.MaxQueryLength())
	}

	fields := map[string]any{
		"vendor":      tc.Vendor,
		"statement":   op.StatementID,
		"duration_ms": elapsed.Milliseconds(),
		"query":       query,
	}
	if op.Route != "" {
		fields["route"] = op.Route
	}
	if tc.Settings.LogQueryParameters() && len(op.Args) > 0 {
		fields["args"] = SanitizeArgs(op.Args, tc.Settings.MaxQueryLength())
	}
	log := tc.Logger.WithContext(ctx).WithFields(fields)

	switch {
	case op.Err != nil && errors.Is(op.Err, sql.ErrNoRows):
		log.Debug().Msg("Statement returned no rows")
	case op.Err != nil:
		log.Error().Err(op.Err).Msg("Statement failed")
	case elapsed > tc.Settings.SlowQueryThreshold():
		log.Warn().Msgf("Slow statement detected (%s)", elapsed)
	default:
		log.Debug().Msg("Statement executed")
	}
}

func (tc *Context) span(ctx context.Context, op *Operation) {
	if tc.tracer == nil {
		return
	}
	operation := extractDBOperation(op.Query)

	_, span := tc.tracer.Start(ctx, "db."+operation,
		trace.WithTimestamp(op.Start),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("db.system", normalizeDBVendor(tc.Vendor)),
		semconv.DBQueryText(TruncateString(op.Query, maxDBQueryAttrLen)),
	}
	if operation != defaultOperation {
		attrs = append(attrs, semconv.DBOperationName(operation))
	}
	if op.StatementID != "" {
		attrs = append(attrs, attribute.String(attrStatementID, op.StatementID))
	}
	if op.Route != "" {
		attrs = append(attrs, attribute.String(attrRoute, op.Route))
	}
	span.SetAttributes(attrs...)

	if op.Err != nil && !errors.Is(op.Err, sql.ErrNoRows) {
		span.RecordError(op.Err)
		span.SetStatus(codes.Error, op.Err.Error())
	}
}

// TruncateString truncates value to at most maxLen runes, ending with "..."
// when maxLen leaves room for it. maxLen <= 0 disables truncation.
func TruncateString(value string, maxLen int) string {
	if maxLen <= 0 {
		return value
	}
	r := []rune(value)
	if len(r) <= maxLen {
		return value
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// SanitizeArgs returns a log-safe copy of args. Strings are truncated,
// byte slices are replaced by a length placeholder and everything else is
// formatted with %v and truncated.
func SanitizeArgs(args []any, maxLen int) []any {
	if len(args) == 0 {
		return nil
	}
	sanitized := make([]any, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case string:
			sanitized[i] = TruncateString(v, maxLen)
		case []byte:
			sanitized[i] = fmt.Sprintf("<bytes len=%d>", len(v))
		default:
			sanitized[i] = TruncateString(fmt.Sprintf("%v", v), maxLen)
		}
	}
	return sanitized
}

func extractDBOperation(query string) string {
	parts := strings.Fields(query)
	if len(parts) == 0 {
		return defaultOperation
	}

	operation := strings.ToLower(parts[0])
	switch operation {
	case "select", "insert", "update", "delete", "replace", "truncate", "begin", "commit", "rollback":
		return operation
	default:
		return defaultOperation
	}
}

func normalizeDBVendor(vendor string) string {
	vendor = strings.ToLower(vendor)
	switch vendor {
	case "postgres", "pgx", "postgresql":
		return "postgresql"
	case "sqlite3", "sqlite":
		return "sqlite"
	default:
		return vendor
	}
}
