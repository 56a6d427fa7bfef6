package models

import (
	"fmt"
	"time"
)

// Frequency is the aggregation window of an insight.
type Frequency string

const (
	FrequencyHourly Frequency = "HOURLY"
	FrequencyDaily  Frequency = "DAILY"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	return f == FrequencyHourly || f == FrequencyDaily
}

// Insight is an air quality reading for one site over one window, either
// observed or forecast.
type Insight struct {
	Time      time.Time `json:"time"`
	SiteID    string    `json:"siteId"`
	Frequency Frequency `json:"frequency"`
	PM2_5     float64   `json:"pm2_5"`
	PM10      float64   `json:"pm10"`
	Empty     bool      `json:"empty"`
	Forecast  bool      `json:"forecast"`
}

// InsightID identifies an insight in the store; at most one record exists per id.
type InsightID struct {
	SiteID    string
	Frequency Frequency
	Time      time.Time
}

func (id InsightID) String() string {
	return fmt.Sprintf("%s/%s/%s", id.SiteID, id.Frequency, id.Time.UTC().Format(time.RFC3339))
}

// ID returns the identity of i.
func (i Insight) ID() InsightID {
	return InsightID{SiteID: i.SiteID, Frequency: i.Frequency, Time: i.Time.UTC()}
}

// Validate checks the fields the service relies on.
func (i Insight) Validate() error {
	if i.Time.IsZero() {
		return fmt.Errorf("insight time is required")
	}
	if i.SiteID == "" {
		return fmt.Errorf("insight siteId is required")
	}
	if !i.Frequency.Valid() {
		return fmt.Errorf("insight frequency %q is invalid", i.Frequency)
	}
	return nil
}
