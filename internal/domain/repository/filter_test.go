package repository

import (
	"testing"
	"time"

	"AirView/internal/domain/models"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func insight(site string, hour int, forecast bool) models.Insight {
	return models.Insight{
		SiteID:    site,
		Frequency: models.FrequencyHourly,
		Time:      t0.Add(time.Duration(hour) * time.Hour),
		Forecast:  forecast,
	}
}

func TestZeroFilterMatchesEverything(t *testing.T) {
	f := NewFilter()
	assert.True(t, f.Matches(insight("a", 0, false)))
	assert.Equal(t, "all", f.Key())

	where, args := f.Where()
	assert.Equal(t, "1 = 1", where)
	assert.Empty(t, args)
}

func TestFilterMatches(t *testing.T) {
	f := NewFilter(
		WithSites("b", "a"),
		WithFrequency(models.FrequencyHourly),
		WithForecast(true),
		WithTimeFrom(t0.Add(time.Hour)),
		WithTimeBefore(t0.Add(3*time.Hour)),
	)

	assert.False(t, f.Matches(insight("a", 0, true)), "before lower bound")
	assert.True(t, f.Matches(insight("a", 1, true)), "lower bound inclusive")
	assert.True(t, f.Matches(insight("b", 2, true)))
	assert.False(t, f.Matches(insight("a", 3, true)), "upper bound exclusive")
	assert.False(t, f.Matches(insight("c", 2, true)), "other site")
	assert.False(t, f.Matches(insight("a", 2, false)), "observed")

	daily := insight("a", 2, true)
	daily.Frequency = models.FrequencyDaily
	assert.False(t, f.Matches(daily))
}

func TestFilterKeyIsCanonical(t *testing.T) {
	a := NewFilter(WithSites("x", "y", "x"), WithForecast(false))
	b := NewFilter(WithForecast(false), WithSites(" y", "x"))
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "site=x,y|forecast=false", a.Key())

	c := NewFilter(WithSites("x", "y"), WithForecast(true))
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestFilterAnd(t *testing.T) {
	a := NewFilter(WithSites("a", "b", "c"), WithTimeFrom(t0))
	b := NewFilter(WithSites("b", "c", "d"), WithTimeFrom(t0.Add(time.Hour)), WithTimeBefore(t0.Add(5*time.Hour)))

	got := a.And(b)
	assert.False(t, got.MatchesNothing())
	assert.Equal(t, NewFilter(WithSites("b", "c"), WithTimeFrom(t0.Add(time.Hour)), WithTimeBefore(t0.Add(5*time.Hour))).Key(), got.Key())

	assert.True(t, NewFilter(WithSites("a")).And(NewFilter(WithSites("b"))).MatchesNothing())
	assert.True(t, NewFilter(WithForecast(true)).And(NewFilter(WithForecast(false))).MatchesNothing())
	assert.True(t, NewFilter(WithFrequency(models.FrequencyDaily)).And(NewFilter(WithFrequency(models.FrequencyHourly))).MatchesNothing())
	assert.True(t, NewFilter(WithTimeFrom(t0)).And(NewFilter(WithTimeBefore(t0))).MatchesNothing())

	none := NewFilter(WithSites("a")).And(NewFilter(WithSites("b")))
	assert.False(t, none.Matches(insight("a", 0, false)))
	where, _ := none.Where()
	assert.Equal(t, "1 = 0", where)
}

func TestFilterWhere(t *testing.T) {
	f := NewFilter(
		WithSites("s2", "s1"),
		WithFrequency(models.FrequencyDaily),
		WithEmpty(false),
		WithTimeBefore(t0),
	)
	where, args := f.Where()
	assert.Equal(t, "site_id IN (?, ?) AND frequency = ? AND empty = ? AND time < fromUnixTimestamp64Milli(toInt64(?))", where)
	assert.Equal(t, []interface{}{"s1", "s2", "DAILY", false, t0.UnixMilli()}, args)
}

func TestFilterWhereKeepsMilliseconds(t *testing.T) {
	from := t0.Add(1500 * time.Millisecond)
	to := t0.Add(2*time.Second + 250*time.Millisecond)
	where, args := NewFilter(WithTimeFrom(from), WithTimeBefore(to)).Where()

	assert.Equal(t, "time >= fromUnixTimestamp64Milli(toInt64(?)) AND time < fromUnixTimestamp64Milli(toInt64(?))", where)
	assert.Equal(t, []interface{}{t0.UnixMilli() + 1500, t0.UnixMilli() + 2250}, args)
}
