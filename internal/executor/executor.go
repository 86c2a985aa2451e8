// Package executor binds parameters and runs catalog entries against the
// database. It is the only place SQL reaches the wire, and the SQL it sends
// is always a catalog constant plus bound parameters.
package executor

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"insight-engine/internal/catalog"
	inerrors "insight-engine/internal/common/errors"
	"insight-engine/internal/common/logger"
	"insight-engine/internal/common/metrics"
	"insight-engine/internal/models"
)

// Fragment is one query's typed result, keyed by the entry's output ref.
// Exactly one of the payload fields is set, matching Kind.
type Fragment struct {
	Kind string `json:"kind"`
	Ref  string `json:"ref"`

	KPIs       map[string]float64  `json:"kpis,omitempty"`
	Series     *models.TimeSeries  `json:"series,omitempty"`
	Top        *models.TopItems    `json:"top,omitempty"`
	Table      *models.Table       `json:"table,omitempty"`
	Comparison *comparisonFragment `json:"comparison,omitempty"`

	Meta models.DatasetMeta `json:"meta"`
}

// comparisonFragment carries the raw two-period KPI rows; the data agent
// attaches labels, dates and deltas.
type comparisonFragment struct {
	Current  map[string]float64 `json:"current"`
	Previous map[string]float64 `json:"previous"`
}

// Empty reports whether the fragment carries no usable data.
func (f *Fragment) Empty() bool {
	switch f.Kind {
	case catalog.KindKPI:
		return len(f.KPIs) == 0
	case catalog.KindTimeSeries:
		return f.Series == nil || len(f.Series.Points) == 0
	case catalog.KindTopItems:
		return f.Top == nil || len(f.Top.Items) == 0
	case catalog.KindTable:
		return f.Table == nil || len(f.Table.Rows) == 0
	case catalog.KindComparison:
		return f.Comparison == nil
	}
	return true
}

// Executor runs catalog queries.
type Executor struct {
	db      *sql.DB
	cat     *catalog.Catalog
	timeout time.Duration
	logger  logger.Logger
	clock   func() time.Time
}

func New(db *sql.DB, cat *catalog.Catalog, timeout time.Duration, log logger.Logger) *Executor {
	return &Executor{
		db:      db,
		cat:     cat,
		timeout: timeout,
		logger:  log.With(map[string]interface{}{"component": "executor"}),
		clock:   time.Now,
	}
}

// WithClock overrides the clock used for date defaults. Tests only.
func (e *Executor) WithClock(clock func() time.Time) *Executor {
	e.clock = clock
	return e
}

// Key canonicalizes params and returns the cache key for (id, params).
func (e *Executor) Key(id string, userParams map[string]interface{}) (string, error) {
	entry, ok := e.cat.Lookup(id)
	if !ok {
		return "", inerrors.NewUnknownQueryError(id)
	}
	params, _, err := Canonicalize(entry, userParams, e.clock())
	if err != nil {
		return "", inerrors.NewInvalidParamsError(id, err.Error())
	}
	return CacheKey(id, params), nil
}

// Execute validates and canonicalizes params, runs the entry and marshals
// rows into the entry's output shape. A shape violation (a KPI query with
// zero rows) reports EMPTY_RESULT, which is not a stage failure.
func (e *Executor) Execute(ctx context.Context, id string, userParams map[string]interface{}) (*Fragment, error) {
	entry, ok := e.cat.Lookup(id)
	if !ok {
		metrics.QueryExecutionsTotal.WithLabelValues(id, "unknown_query").Inc()
		return nil, inerrors.NewUnknownQueryError(id)
	}

	params, dropped, err := Canonicalize(entry, userParams, e.clock())
	if err != nil {
		metrics.QueryExecutionsTotal.WithLabelValues(id, "invalid_params").Inc()
		return nil, inerrors.NewInvalidParamsError(id, err.Error())
	}
	if len(dropped) > 0 {
		e.logger.Warn("dropping unknown parameters", map[string]interface{}{
			"queryId": id,
			"params":  dropped,
		})
	}

	args, err := BindArgs(entry, params)
	if err != nil {
		metrics.QueryExecutionsTotal.WithLabelValues(id, "invalid_params").Inc()
		return nil, inerrors.NewInvalidParamsError(id, err.Error())
	}

	e.logger.Debug("executing catalog query", map[string]interface{}{
		"queryId": id,
		"params":  loggableParams(entry, params),
	})

	qctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	rows, err := e.db.QueryContext(qctx, entry.SQL, args...)
	if err != nil {
		return nil, e.classify(id, qctx, err)
	}
	defer rows.Close()

	raw, err := scanRows(rows)
	if err != nil {
		return nil, e.classify(id, qctx, err)
	}
	elapsed := time.Since(start)

	metrics.QueryExecutionsTotal.WithLabelValues(id, "success").Inc()
	metrics.QueryDuration.WithLabelValues(id).Observe(elapsed.Seconds())

	frag, err := marshal(entry, raw)
	if err != nil {
		return nil, err
	}
	frag.Meta = models.DatasetMeta{
		QueryID:         id,
		RowCount:        len(raw),
		ExecutionTimeMS: elapsed.Milliseconds(),
		ExecutedAt:      time.Now().UTC(),
	}
	return frag, nil
}

func (e *Executor) classify(id string, ctx context.Context, err error) error {
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		metrics.QueryExecutionsTotal.WithLabelValues(id, "timeout").Inc()
		return inerrors.NewUpstreamTimeoutError(id)
	case ctx.Err() == context.Canceled:
		metrics.QueryExecutionsTotal.WithLabelValues(id, "cancelled").Inc()
		return inerrors.NewRequestCancelledError(id)
	case isTransportError(err):
		metrics.QueryExecutionsTotal.WithLabelValues(id, "unavailable").Inc()
		return inerrors.NewUpstreamUnavailableError(err)
	default:
		metrics.QueryExecutionsTotal.WithLabelValues(id, "error").Inc()
		return inerrors.NewUpstreamError(id, err)
	}
}

func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "bad connection") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "broken pipe")
}

// loggableParams redacts values whose spec is flagged sensitive.
func loggableParams(entry *catalog.Entry, params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		if spec := entry.Param(k); spec != nil && spec.Sensitive {
			out[k] = "[redacted]"
			continue
		}
		out[k] = v
	}
	return out
}
