package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"AirView/internal/domain/models"
	"AirView/internal/domain/repository"
	applogger "AirView/pkg/logger"
)

const insightColumns = "time, site_id, frequency, pm2_5, pm10, empty, forecast"

// insightRow is the VALUES tuple for insightArgs. The driver renders bound
// time.Time values at whole seconds, so times travel as unix milliseconds.
var insightRow = "(" + repository.TimeParam + ", ?, ?, ?, ?, ?, ?)"

// InsightSchema returns the DDL for the insights table. ReplacingMergeTree
// keyed on (site_id, frequency, time) gives SaveAll its replace semantics;
// readers use FINAL to see the latest version only.
func InsightSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            time       DateTime64(3, 'UTC'),
            site_id    String,
            frequency  LowCardinality(String),
            pm2_5      Float64,
            pm10       Float64,
            empty      Bool,
            forecast   Bool,
            updated_at DateTime64(3, 'UTC') DEFAULT now64(3)
        ) ENGINE = ReplacingMergeTree(updated_at)
        PARTITION BY toYYYYMM(time)
        ORDER BY (site_id, frequency, time)`, database, table),
	}
}

// ClickHouseInsightRepository implements InsightRepository for ClickHouse.
type ClickHouseInsightRepository struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewClickHouseInsightRepository creates the repository over a fully qualified table.
func NewClickHouseInsightRepository(db *sql.DB, table string, l *applogger.Logger) *ClickHouseInsightRepository {
	if l == nil {
		l = applogger.NewNop()
	}
	return &ClickHouseInsightRepository{db: db, table: table, l: l}
}

func (r *ClickHouseInsightRepository) FindAll(ctx context.Context, filter repository.InsightFilter) ([]models.Insight, error) {
	if filter.MatchesNothing() {
		return []models.Insight{}, nil
	}
	where, args := filter.Where()
	return r.query(ctx, "find_all", where, args)
}

func (r *ClickHouseInsightRepository) FindAllByTimeBeforeAndForecast(ctx context.Context, before time.Time, forecast bool) ([]models.Insight, error) {
	return r.query(ctx, "find_before_forecast", "time < "+repository.TimeParam+" AND forecast = ?", []interface{}{before.UnixMilli(), forecast})
}

func (r *ClickHouseInsightRepository) query(ctx context.Context, op, where string, args []interface{}) ([]models.Insight, error) {
	start := time.Now()
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE %s ORDER BY time ASC, site_id ASC", insightColumns, r.table, where)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		r.l.Error("clickhouse insights query error", applogger.String("op", op), applogger.Error(err))
		return nil, fmt.Errorf("query insights: %w", err)
	}
	defer rows.Close()

	out := make([]models.Insight, 0, 256)
	for rows.Next() {
		var in models.Insight
		var freq string
		if err := rows.Scan(&in.Time, &in.SiteID, &freq, &in.PM2_5, &in.PM10, &in.Empty, &in.Forecast); err != nil {
			r.l.Error("clickhouse insights scan error", applogger.String("op", op), applogger.Error(err))
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		in.Frequency = models.Frequency(freq)
		in.Time = in.Time.UTC()
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	r.l.Debug("clickhouse insights query ok",
		applogger.String("op", op),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// SaveAll writes in multi-row chunks; rows sharing an identity collapse to
// the newest on merge.
func (r *ClickHouseInsightRepository) SaveAll(ctx context.Context, insights []models.Insight) error {
	const chunkSize = 2000
	for start := 0; start < len(insights); start += chunkSize {
		end := start + chunkSize
		if end > len(insights) {
			end = len(insights)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, in := range insights[start:end] {
			values = append(values, insightRow)
			args = append(args, insightArgs(in)...)
		}

		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", r.table, insightColumns, strings.Join(values, ","))
		if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("save insights [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}

// Insert adds one record unless its identity already exists. The check and
// the write are not atomic; concurrent inserts of one identity can both land
// and are collapsed by the table engine.
func (r *ClickHouseInsightRepository) Insert(ctx context.Context, in models.Insight) error {
	id := in.ID()
	var n uint64
	q := fmt.Sprintf("SELECT count() FROM %s FINAL WHERE site_id = ? AND frequency = ? AND time = %s", r.table, repository.TimeParam)
	if err := r.db.QueryRowContext(ctx, q, id.SiteID, string(id.Frequency), id.Time.UnixMilli()).Scan(&n); err != nil {
		return fmt.Errorf("insert insight %s: %w", id, err)
	}
	if n > 0 {
		return fmt.Errorf("insert insight %s: %w", id, repository.ErrDuplicateInsight)
	}

	q = fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", r.table, insightColumns, insightRow)
	if _, err := r.db.ExecContext(ctx, q, insightArgs(in)...); err != nil {
		return fmt.Errorf("insert insight %s: %w", id, err)
	}
	return nil
}

func (r *ClickHouseInsightRepository) DeleteAllByTimeBefore(ctx context.Context, before time.Time) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE time < %s", r.table, repository.TimeParam)
	if _, err := r.db.ExecContext(ctx, q, before.UnixMilli()); err != nil {
		return fmt.Errorf("delete insights before %s: %w", before.Format(time.RFC3339), err)
	}
	return nil
}

func (r *ClickHouseInsightRepository) Health(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (r *ClickHouseInsightRepository) Close() error {
	return nil
}

func insightArgs(in models.Insight) []interface{} {
	return []interface{}{
		in.Time.UnixMilli(),
		in.SiteID,
		string(in.Frequency),
		in.PM2_5,
		in.PM10,
		in.Empty,
		in.Forecast,
	}
}

var _ repository.InsightRepository = (*ClickHouseInsightRepository)(nil)
