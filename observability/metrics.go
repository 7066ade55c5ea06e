// CLAUDE:SUMMARY Buffered SQLite recorder for feed-build timings and item counts, with query, summary and retention.
// Package observability records how feed builds perform: duration, item
// counts and outcome, one datapoint per build, in a SQLite table.
//
// Recording never blocks a request. Datapoints are buffered and written in
// batches by a background goroutine; a full buffer is flushed inline.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Metric names.
const (
	MetricBuildDuration = "feed_build_ms"
	MetricItems         = "feed_items_count"
	MetricSourceItems   = "feed_source_items_count"
)

// Build outcomes.
const (
	OutcomeBuilt  = "built"
	OutcomeCached = "cached"
	OutcomeFailed = "failed"
)

// Metric is a single datapoint.
type Metric struct {
	Name      string
	Timestamp time.Time
	Value     float64
	Labels    map[string]string
	Unit      string
}

// Build describes one MakeFeed call.
type Build struct {
	Keyed       bool
	PageMode    bool
	Outcome     string
	Duration    time.Duration
	SourceItems int
	Items       int
}

// Recorder buffers metrics and flushes them to SQLite in batches.
type Recorder struct {
	db            *sql.DB
	logger        *slog.Logger
	now           func() time.Time
	bufferSize    int
	flushInterval time.Duration

	mu     sync.Mutex
	buffer []Metric

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithBuffer sets the number of datapoints held before an inline flush.
func WithBuffer(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.bufferSize = n
		}
	}
}

// WithFlushInterval sets the background flush period.
func WithFlushInterval(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.flushInterval = d
		}
	}
}

// WithLogger sets the logger used for write failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder starts a recorder writing to db. The db must carry Schema.
func NewRecorder(db *sql.DB, opts ...Option) *Recorder {
	r := &Recorder{
		db:            db,
		logger:        slog.Default(),
		now:           time.Now,
		bufferSize:    100,
		flushInterval: 5 * time.Second,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.buffer = make([]Metric, 0, r.bufferSize)
	go r.flushLoop()
	return r
}

// Record queues m. A zero Timestamp is replaced by the current time.
func (r *Recorder) Record(m Metric) {
	if m.Timestamp.IsZero() {
		m.Timestamp = r.now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = append(r.buffer, m)
	if len(r.buffer) >= r.bufferSize {
		r.flushLocked()
	}
}

// ObserveBuild records the duration of b and, for built feeds, its item
// counts. Every datapoint carries tier, mode and outcome labels.
func (r *Recorder) ObserveBuild(b Build) {
	ts := r.now()
	labels := map[string]string{
		"tier":    "unkeyed",
		"mode":    "feed",
		"outcome": b.Outcome,
	}
	if b.Keyed {
		labels["tier"] = "keyed"
	}
	if b.PageMode {
		labels["mode"] = "page"
	}
	r.Record(Metric{
		Name:      MetricBuildDuration,
		Timestamp: ts,
		Value:     float64(b.Duration.Microseconds()) / 1000,
		Labels:    labels,
		Unit:      "milliseconds",
	})
	if b.Outcome != OutcomeBuilt {
		return
	}
	r.Record(Metric{Name: MetricItems, Timestamp: ts, Value: float64(b.Items), Labels: labels, Unit: "count"})
	if !b.PageMode {
		r.Record(Metric{Name: MetricSourceItems, Timestamp: ts, Value: float64(b.SourceItems), Labels: labels, Unit: "count"})
	}
}

// Filter narrows Query. Zero fields are unbounded.
type Filter struct {
	Name  string
	Since time.Time
	Until time.Time
	Limit int
}

// Query returns flushed datapoints, newest first.
func (r *Recorder) Query(ctx context.Context, f Filter) ([]Metric, error) {
	var (
		where []string
		args  []any
	)
	if f.Name != "" {
		where = append(where, "metric_name = ?")
		args = append(args, f.Name)
	}
	if !f.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, f.Since.Unix())
	}
	if !f.Until.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, f.Until.Unix())
	}
	q := "SELECT metric_name, timestamp, value, labels, unit FROM feed_metrics"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY timestamp DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query: %w", err)
	}
	defer rows.Close()

	var out []Metric
	for rows.Next() {
		var (
			m      Metric
			ts     int64
			labels sql.NullString
			unit   sql.NullString
		)
		if err := rows.Scan(&m.Name, &ts, &m.Value, &labels, &unit); err != nil {
			return nil, fmt.Errorf("observability: scan: %w", err)
		}
		m.Timestamp = time.Unix(ts, 0)
		m.Unit = unit.String
		if labels.Valid {
			if err := json.Unmarshal([]byte(labels.String), &m.Labels); err != nil {
				r.logger.Warn("observability: bad labels", "metric", m.Name, "error", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Summary aggregates one metric name over a window.
type Summary struct {
	Name  string
	Unit  string
	Count int
	Avg   float64
	Min   float64
	Max   float64
}

// Summarize aggregates every metric recorded since the given time, sorted
// by name.
func (r *Recorder) Summarize(ctx context.Context, since time.Time) ([]Summary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT metric_name, COALESCE(MAX(unit), ''), COUNT(*), AVG(value), MIN(value), MAX(value)
		 FROM feed_metrics WHERE timestamp >= ? GROUP BY metric_name`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("observability: summarize: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.Name, &s.Unit, &s.Count, &s.Avg, &s.Min, &s.Max); err != nil {
			return nil, fmt.Errorf("observability: scan summary: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Cleanup deletes datapoints older than retention and returns the count
// removed.
func (r *Recorder) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := r.now().Add(-retention).Unix()
	res, err := r.db.ExecContext(ctx, "DELETE FROM feed_metrics WHERE timestamp < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Flush writes buffered datapoints now.
func (r *Recorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
}

// Close flushes what remains and stops the background goroutine. It does
// not close the database.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.stop)
		<-r.done
	})
	return nil
}

func (r *Recorder) flushLoop() {
	defer close(r.done)
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			r.Flush()
			return
		case <-ticker.C:
			r.Flush()
		}
	}
}

func (r *Recorder) flushLocked() {
	if len(r.buffer) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Dropped on failure; metrics never hold back the buffer.
	defer func() { r.buffer = r.buffer[:0] }()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("observability: begin tx", "error", err)
		return
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO feed_metrics (metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		r.logger.Error("observability: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, m := range r.buffer {
		var labels sql.NullString
		if len(m.Labels) > 0 {
			if b, err := json.Marshal(m.Labels); err == nil {
				labels = sql.NullString{String: string(b), Valid: true}
			}
		}
		if _, err := stmt.ExecContext(ctx, m.Name, m.Timestamp.Unix(), m.Value, labels, m.Unit); err != nil {
			r.logger.Error("observability: insert", "metric", m.Name, "error", err)
		}
	}
	if err := tx.Commit(); err != nil {
		r.logger.Error("observability: commit", "error", err)
	}
}
