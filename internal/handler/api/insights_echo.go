package api

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	models "AirView/internal/domain/models"
	domrepo "AirView/internal/domain/repository"
	"AirView/internal/usecase"
	xhttp "AirView/pkg/http"
	xmw "AirView/pkg/http/middleware"
	xlogger "AirView/pkg/logger"

	"github.com/labstack/echo/v4"
)

// InsightsEchoHandler serves the insight endpoints.
type InsightsEchoHandler struct {
	logger  *xlogger.Logger
	svc     *usecase.InsightService
	ingest  *usecase.InsightIngestor
	limiter xmw.Limiter
}

// NewInsightsEchoHandler creates the handler. A nil limiter leaves write
// endpoints unthrottled.
func NewInsightsEchoHandler(logger *xlogger.Logger, svc *usecase.InsightService, ingest *usecase.InsightIngestor, limiter xmw.Limiter) *InsightsEchoHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &InsightsEchoHandler{logger: logger, svc: svc, ingest: ingest, limiter: limiter}
}

func (h *InsightsEchoHandler) RegisterRoutes(e *echo.Echo) {
	var write []echo.MiddlewareFunc
	if h.limiter != nil {
		write = append(write, xmw.RateLimit(h.limiter))
	}

	g := e.Group("/api/v1/insights")
	g.GET("", h.Query)
	g.GET("/forecasts", h.Forecasts)
	g.POST("", h.Ingest, write...)
	g.PUT("", h.Save, write...)
	g.DELETE("", h.DeleteBefore)

	e.GET("/healthz", h.Health)
}

// Query handles GET /api/v1/insights.
func (h *InsightsEchoHandler) Query(c echo.Context) error {
	req := &models.InsightsQueryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	filter, err := filterFromRequest(req)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	res, err := h.svc.QueryInsights(c.Request().Context(), filter)
	if err != nil {
		h.logger.Error("query insights error", xlogger.String("filter", filter.Key()), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("query insights failed").WithError(err))
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

// Forecasts handles GET /api/v1/insights/forecasts?before=.
func (h *InsightsEchoHandler) Forecasts(c echo.Context) error {
	req := &models.ForecastsBeforeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	before, ok := xhttp.ParseTime(req.Before)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("before", "invalid time %q", req.Before))
	}

	res, err := h.svc.ForecastInsightsBefore(c.Request().Context(), before)
	if err != nil {
		h.logger.Error("forecast insights error", xlogger.Time("before", before), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("forecast query failed").WithError(err))
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

// Ingest handles POST /api/v1/insights: best-effort insert or Kafka publish.
func (h *InsightsEchoHandler) Ingest(c echo.Context) error {
	insights, err := readInsights(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	route, err := h.ingest.IngestInsights(c.Request().Context(), insights)
	if err != nil {
		h.logger.Error("ingest insights error", xlogger.Int("count", len(insights)), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("ingestion backend unavailable").WithError(err))
	}
	return xhttp.AcceptedResponse(c, models.IngestResponse{Accepted: len(insights), Route: route})
}

// Save handles PUT /api/v1/insights: bulk upsert.
func (h *InsightsEchoHandler) Save(c echo.Context) error {
	insights, err := readInsights(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	if err := h.svc.SaveInsights(c.Request().Context(), insights); err != nil {
		h.logger.Error("save insights error", xlogger.Int("count", len(insights)), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("save insights failed").WithError(err))
	}
	return xhttp.NoContentResponse(c)
}

// DeleteBefore handles DELETE /api/v1/insights?before=.
func (h *InsightsEchoHandler) DeleteBefore(c echo.Context) error {
	req := &models.DeleteBeforeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	before, ok := xhttp.ParseTime(req.Before)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("before", "invalid time %q", req.Before))
	}

	if err := h.svc.DeleteInsightsBefore(c.Request().Context(), before); err != nil {
		h.logger.Error("delete insights error", xlogger.Time("before", before), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("delete insights failed").WithError(err))
	}
	return xhttp.NoContentResponse(c)
}

// Health handles GET /healthz.
func (h *InsightsEchoHandler) Health(c echo.Context) error {
	if err := h.svc.Health(c.Request().Context()); err != nil {
		h.logger.Warn("health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("store unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func filterFromRequest(req *models.InsightsQueryRequest) (domrepo.InsightFilter, error) {
	opts := make([]domrepo.FilterOption, 0, 6)

	var sites []string
	for _, s := range req.SiteIDs {
		sites = append(sites, strings.Split(s, ",")...)
	}
	if len(sites) > 0 {
		opts = append(opts, domrepo.WithSites(sites...))
	}
	if req.Frequency != "" {
		opts = append(opts, domrepo.WithFrequency(models.Frequency(req.Frequency)))
	}
	if req.Forecast != "" {
		v, _ := strconv.ParseBool(req.Forecast)
		opts = append(opts, domrepo.WithForecast(v))
	}
	if req.Empty != "" {
		v, _ := strconv.ParseBool(req.Empty)
		opts = append(opts, domrepo.WithEmpty(v))
	}
	if req.StartDateTime != "" {
		t, ok := xhttp.ParseTime(req.StartDateTime)
		if !ok {
			return domrepo.InsightFilter{}, xhttp.BadRequestErrorf("startDateTime", "invalid time %q", req.StartDateTime)
		}
		opts = append(opts, domrepo.WithTimeFrom(t))
	}
	if req.EndDateTime != "" {
		t, ok := xhttp.ParseTime(req.EndDateTime)
		if !ok {
			return domrepo.InsightFilter{}, xhttp.BadRequestErrorf("endDateTime", "invalid time %q", req.EndDateTime)
		}
		opts = append(opts, domrepo.WithTimeBefore(t))
	}
	return domrepo.NewFilter(opts...), nil
}

// readInsights decodes the request body and validates every record.
func readInsights(c echo.Context) ([]models.Insight, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, xhttp.BadRequestError("", "cannot read request body").WithError(err)
	}
	insights, err := usecase.DecodeInsights(body)
	if err != nil {
		return nil, xhttp.BadRequestError("", "body must be an insight or an array of insights").WithError(err)
	}
	for i, in := range insights {
		if err := in.Validate(); err != nil {
			return nil, xhttp.BadRequestError(fmt.Sprintf("[%d]", i), err.Error()).WithParam("index", i)
		}
	}
	return insights, nil
}
