package repository

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"AirView/internal/domain/models"
)

// InsightFilter is a set of optional conditions over insights. The zero value
// matches everything. Filters are values; combining them never mutates either side.
type InsightFilter struct {
	sites     []string // sorted, deduplicated; nil means any site
	frequency models.Frequency
	forecast  *bool
	empty     *bool
	from      time.Time // inclusive
	to        time.Time // exclusive
	none      bool      // set when an intersection can match nothing
}

// TimeParam is the SQL placeholder for a time bound given as unix milliseconds.
const TimeParam = "fromUnixTimestamp64Milli(toInt64(?))"

// FilterOption sets one condition on a filter.
type FilterOption func(*InsightFilter)

// NewFilter builds a filter from options.
func NewFilter(opts ...FilterOption) InsightFilter {
	var f InsightFilter
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// WithSites restricts to the given site ids. Empty ids are ignored.
func WithSites(ids ...string) FilterOption {
	return func(f *InsightFilter) {
		f.sites = normalizeSites(ids)
	}
}

// WithFrequency restricts to one aggregation window.
func WithFrequency(freq models.Frequency) FilterOption {
	return func(f *InsightFilter) { f.frequency = freq }
}

// WithForecast restricts to forecast (true) or observed (false) insights.
func WithForecast(forecast bool) FilterOption {
	return func(f *InsightFilter) { f.forecast = &forecast }
}

// WithEmpty restricts on the empty flag.
func WithEmpty(empty bool) FilterOption {
	return func(f *InsightFilter) { f.empty = &empty }
}

// WithTimeFrom keeps insights with Time >= t.
func WithTimeFrom(t time.Time) FilterOption {
	return func(f *InsightFilter) { f.from = t.UTC() }
}

// WithTimeBefore keeps insights with Time < t.
func WithTimeBefore(t time.Time) FilterOption {
	return func(f *InsightFilter) { f.to = t.UTC() }
}

func normalizeSites(ids []string) []string {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			set[id] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// And returns the intersection of f and g.
func (f InsightFilter) And(g InsightFilter) InsightFilter {
	out := InsightFilter{none: f.none || g.none}

	switch {
	case f.sites == nil:
		out.sites = g.sites
	case g.sites == nil:
		out.sites = f.sites
	default:
		for _, s := range f.sites {
			if i := sort.SearchStrings(g.sites, s); i < len(g.sites) && g.sites[i] == s {
				out.sites = append(out.sites, s)
			}
		}
		if out.sites == nil {
			out.none = true
		}
	}

	out.frequency = f.frequency
	if g.frequency != "" {
		if out.frequency != "" && out.frequency != g.frequency {
			out.none = true
		}
		out.frequency = g.frequency
	}

	out.forecast, out.none = andFlag(f.forecast, g.forecast, out.none)
	out.empty, out.none = andFlag(f.empty, g.empty, out.none)

	out.from = f.from
	if g.from.After(out.from) {
		out.from = g.from
	}
	out.to = f.to
	if !g.to.IsZero() && (out.to.IsZero() || g.to.Before(out.to)) {
		out.to = g.to
	}
	if !out.from.IsZero() && !out.to.IsZero() && !out.from.Before(out.to) {
		out.none = true
	}
	return out
}

func andFlag(a, b *bool, none bool) (*bool, bool) {
	switch {
	case a == nil:
		return b, none
	case b == nil:
		return a, none
	case *a != *b:
		return a, true
	default:
		return a, none
	}
}

// MatchesNothing reports whether the filter can match no insight at all.
func (f InsightFilter) MatchesNothing() bool {
	return f.none
}

// Key renders the filter canonically: equal filters give equal keys.
func (f InsightFilter) Key() string {
	if f.none {
		return "none"
	}
	parts := make([]string, 0, 6)
	if f.sites != nil {
		parts = append(parts, "site="+strings.Join(f.sites, ","))
	}
	if f.frequency != "" {
		parts = append(parts, "freq="+string(f.frequency))
	}
	if f.forecast != nil {
		parts = append(parts, "forecast="+strconv.FormatBool(*f.forecast))
	}
	if f.empty != nil {
		parts = append(parts, "empty="+strconv.FormatBool(*f.empty))
	}
	if !f.from.IsZero() {
		parts = append(parts, "from="+f.from.Format(time.RFC3339Nano))
	}
	if !f.to.IsZero() {
		parts = append(parts, "to="+f.to.Format(time.RFC3339Nano))
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, "|")
}

func (f InsightFilter) String() string { return f.Key() }

// Matches evaluates the filter against one insight.
func (f InsightFilter) Matches(in models.Insight) bool {
	if f.none {
		return false
	}
	if f.sites != nil {
		i := sort.SearchStrings(f.sites, in.SiteID)
		if i == len(f.sites) || f.sites[i] != in.SiteID {
			return false
		}
	}
	if f.frequency != "" && in.Frequency != f.frequency {
		return false
	}
	if f.forecast != nil && in.Forecast != *f.forecast {
		return false
	}
	if f.empty != nil && in.Empty != *f.empty {
		return false
	}
	if !f.from.IsZero() && in.Time.Before(f.from) {
		return false
	}
	if !f.to.IsZero() && !in.Time.Before(f.to) {
		return false
	}
	return true
}

// Where renders the filter as a SQL condition with positional arguments.
// Column names follow the insights table. Time bounds are bound as unix
// milliseconds so the DateTime64(3) comparison keeps sub-second precision.
func (f InsightFilter) Where() (string, []interface{}) {
	if f.none {
		return "1 = 0", nil
	}
	conds := make([]string, 0, 6)
	args := make([]interface{}, 0, 6)

	if f.sites != nil {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(f.sites)), ", ")
		conds = append(conds, fmt.Sprintf("site_id IN (%s)", marks))
		for _, s := range f.sites {
			args = append(args, s)
		}
	}
	if f.frequency != "" {
		conds = append(conds, "frequency = ?")
		args = append(args, string(f.frequency))
	}
	if f.forecast != nil {
		conds = append(conds, "forecast = ?")
		args = append(args, *f.forecast)
	}
	if f.empty != nil {
		conds = append(conds, "empty = ?")
		args = append(args, *f.empty)
	}
	if !f.from.IsZero() {
		conds = append(conds, "time >= "+TimeParam)
		args = append(args, f.from.UnixMilli())
	}
	if !f.to.IsZero() {
		conds = append(conds, "time < "+TimeParam)
		args = append(args, f.to.UnixMilli())
	}
	if len(conds) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(conds, " AND "), args
}
