package observability

// Schema is the DDL for the feed metrics table. Pass it to
// dbopen.WithSchema when opening the metrics database.
const Schema = `
CREATE TABLE IF NOT EXISTS feed_metrics (
    metric_id TEXT PRIMARY KEY DEFAULT ('met_' || hex(randomblob(16))),
    metric_name TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    value REAL NOT NULL,
    labels TEXT,
    unit TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_feed_metrics_name_time
    ON feed_metrics(metric_name, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_feed_metrics_timestamp
    ON feed_metrics(timestamp DESC);
`
