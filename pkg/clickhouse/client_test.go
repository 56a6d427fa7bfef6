package clickhouse

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(ClientConfig{
		Host:         "ch",
		Port:         9000,
		Database:     "airview",
		User:         "reader",
		Password:     "p@ss",
		DialTimeout:  5 * time.Second,
		MaxExecTime:  time.Minute,
		AsyncInsert:  true,
		WaitForAsync: true,
	})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "clickhouse", u.Scheme)
	assert.Equal(t, "ch:9000", u.Host)
	assert.Equal(t, "/airview", u.Path)
	assert.Equal(t, "reader", u.User.Username())
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss", pw)

	q := u.Query()
	assert.Equal(t, "5s", q.Get("dial_timeout"))
	assert.Equal(t, "60", q.Get("max_execution_time"))
	assert.Equal(t, "1", q.Get("async_insert"))
	assert.Equal(t, "1", q.Get("wait_for_async_insert"))
	assert.Empty(t, q.Get("read_timeout"))
}

func TestBuildDSNHTTP(t *testing.T) {
	dsn := buildDSN(ClientConfig{Host: "ch", Port: 8123, Database: "db", User: "default", UseHTTP: true})
	assert.Contains(t, dsn, "http://")
	assert.NotContains(t, dsn, "async_insert")
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient(WithDatabase("db"))
	assert.Error(t, err)

	_, err = NewClient(WithHost("ch"))
	assert.Error(t, err)
}
