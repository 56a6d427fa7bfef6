package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"AirView/internal/domain/models"
	"AirView/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	query string
	args  []interface{}
}

// recorder is a database/sql driver that records statements instead of
// talking to ClickHouse. count() queries answer with count.
type recorder struct {
	mu    sync.Mutex
	calls []recordedCall
	count int64
}

func (r *recorder) record(query string, args []driver.NamedValue) {
	vals := make([]interface{}, len(args))
	for i, a := range args {
		vals[i] = a.Value
	}
	r.mu.Lock()
	r.calls = append(r.calls, recordedCall{query: query, args: vals})
	r.mu.Unlock()
}

func (r *recorder) last() recordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func (r *recorder) Connect(context.Context) (driver.Conn, error) { return &recConn{r: r}, nil }
func (r *recorder) Driver() driver.Driver                        { return recDriver{r: r} }

type recDriver struct{ r *recorder }

func (d recDriver) Open(string) (driver.Conn, error) { return &recConn{r: d.r}, nil }

type recConn struct{ r *recorder }

func (c *recConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}
func (c *recConn) Close() error              { return nil }
func (c *recConn) Begin() (driver.Tx, error) { return nil, errors.New("tx not supported") }

func (c *recConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.r.record(query, args)
	return driver.RowsAffected(1), nil
}

func (c *recConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.r.record(query, args)
	if strings.Contains(query, "count()") {
		return &recRows{cols: []string{"count()"}, data: [][]driver.Value{{c.r.count}}}, nil
	}
	return &recRows{cols: strings.Split(insightColumns, ", ")}, nil
}

type recRows struct {
	cols []string
	data [][]driver.Value
}

func (r *recRows) Columns() []string { return r.cols }
func (r *recRows) Close() error      { return nil }
func (r *recRows) Next(dest []driver.Value) error {
	if len(r.data) == 0 {
		return io.EOF
	}
	copy(dest, r.data[0])
	r.data = r.data[1:]
	return nil
}

func newRecordingRepo(t *testing.T) (*ClickHouseInsightRepository, *recorder) {
	t.Helper()
	rec := &recorder{}
	db := sql.OpenDB(rec)
	t.Cleanup(func() { _ = db.Close() })
	return NewClickHouseInsightRepository(db, "airview.insights", nil), rec
}

var subSecond = time.Date(2024, 3, 1, 12, 0, 0, 500_000_000, time.UTC)

func TestClickHouseDeleteBeforeBindsMilliseconds(t *testing.T) {
	repo, rec := newRecordingRepo(t)

	require.NoError(t, repo.DeleteAllByTimeBefore(context.Background(), subSecond))

	call := rec.last()
	assert.Equal(t, "DELETE FROM airview.insights WHERE time < fromUnixTimestamp64Milli(toInt64(?))", call.query)
	assert.Equal(t, []interface{}{subSecond.UnixMilli()}, call.args)
	assert.Equal(t, int64(500), call.args[0].(int64)%1000)
}

func TestClickHouseForecastBeforeBindsMilliseconds(t *testing.T) {
	repo, rec := newRecordingRepo(t)

	got, err := repo.FindAllByTimeBeforeAndForecast(context.Background(), subSecond, true)
	require.NoError(t, err)
	assert.Empty(t, got)

	call := rec.last()
	assert.Contains(t, call.query, "FROM airview.insights FINAL WHERE time < fromUnixTimestamp64Milli(toInt64(?)) AND forecast = ?")
	assert.Equal(t, []interface{}{subSecond.UnixMilli(), true}, call.args)
}

func TestClickHouseFindAllUsesFilterBounds(t *testing.T) {
	repo, rec := newRecordingRepo(t)
	f := repository.NewFilter(repository.WithSites("a"), repository.WithTimeFrom(subSecond))

	_, err := repo.FindAll(context.Background(), f)
	require.NoError(t, err)

	call := rec.last()
	assert.Contains(t, call.query, "WHERE site_id IN (?) AND time >= fromUnixTimestamp64Milli(toInt64(?)) ORDER BY time ASC, site_id ASC")
	assert.Equal(t, []interface{}{"a", subSecond.UnixMilli()}, call.args)

	n := len(rec.calls)
	none := repository.NewFilter(repository.WithForecast(true)).And(repository.NewFilter(repository.WithForecast(false)))
	got, err := repo.FindAll(context.Background(), none)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Len(t, rec.calls, n, "an unsatisfiable filter never reaches the store")
}

func TestClickHouseSaveAllKeepsMilliseconds(t *testing.T) {
	repo, rec := newRecordingRepo(t)
	in := insight("a", 0, false)
	in.Time = subSecond

	require.NoError(t, repo.SaveAll(context.Background(), []models.Insight{in, insight("b", time.Hour, true)}))

	call := rec.last()
	assert.True(t, strings.HasPrefix(call.query, "INSERT INTO airview.insights (time, site_id, frequency, pm2_5, pm10, empty, forecast) VALUES (fromUnixTimestamp64Milli(toInt64(?)), ?, ?, ?, ?, ?, ?),("))
	require.Len(t, call.args, 14)
	assert.Equal(t, subSecond.UnixMilli(), call.args[0])
	assert.Equal(t, "a", call.args[1])
	assert.Equal(t, t0.Add(time.Hour).UnixMilli(), call.args[7])
}

func TestClickHouseInsertChecksIdentityAtMilliseconds(t *testing.T) {
	repo, rec := newRecordingRepo(t)
	in := insight("a", 0, false)
	in.Time = subSecond

	require.NoError(t, repo.Insert(context.Background(), in))
	require.Len(t, rec.calls, 2)
	assert.Contains(t, rec.calls[0].query, "time = fromUnixTimestamp64Milli(toInt64(?))")
	assert.Equal(t, []interface{}{"a", "HOURLY", subSecond.UnixMilli()}, rec.calls[0].args)
	assert.Equal(t, subSecond.UnixMilli(), rec.calls[1].args[0])

	rec.count = 1
	err := repo.Insert(context.Background(), in)
	assert.ErrorIs(t, err, repository.ErrDuplicateInsight)
	assert.Len(t, rec.calls, 3, "a duplicate is not written")
}
