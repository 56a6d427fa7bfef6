package models

// Requests for the insight HTTP endpoints. Times are RFC3339, a plain date
// or unix seconds.

type InsightsQueryRequest struct {
	SiteIDs       []string `query:"siteId"`
	Frequency     string   `query:"frequency" validate:"omitempty,oneof=HOURLY DAILY"`
	Forecast      string   `query:"forecast" validate:"omitempty,oneof=true false"`
	Empty         string   `query:"empty" validate:"omitempty,oneof=true false"`
	StartDateTime string   `query:"startDateTime"`
	EndDateTime   string   `query:"endDateTime"`
}

type ForecastsBeforeRequest struct {
	Before string `query:"before" validate:"required"`
}

type DeleteBeforeRequest struct {
	Before string `query:"before" validate:"required"`
}

// IngestResponse acknowledges an accepted ingestion batch.
type IngestResponse struct {
	Accepted int    `json:"accepted"`
	Route    string `json:"route"`
}
