package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// MetricsOverviewResponse represents the overview response of request metrics.
type MetricsOverviewResponse struct {
	TotalRequests int64                    `json:"total_requests"`
	SuccessRate   float64                  `json:"success_rate"`
	ErrorCount    int64                    `json:"error_count"`
	P50LatencyMs  int64                    `json:"p50_latency_ms"`
	P95LatencyMs  int64                    `json:"p95_latency_ms"`
	Routes        map[string]RouteOverview `json:"routes"`
}

// RouteOverview holds the figures of one route.
type RouteOverview struct {
	Count        int64 `json:"count"`
	ErrorCount   int64 `json:"error_count"`
	AvgLatencyMs int64 `json:"avg_latency_ms"`
}

// GetMetricsOverview returns the request metrics since process start.
// GET /api/v1/system/metrics/overview
func (s *APIV1Service) GetMetricsOverview(c echo.Context) error {
	snap := s.Metrics.Snapshot()

	routes := make(map[string]RouteOverview, len(snap.Routes))
	for name, r := range snap.Routes {
		routes[name] = RouteOverview{Count: r.Count, ErrorCount: r.ErrorCount, AvgLatencyMs: r.AverageMs}
	}
	return c.JSON(http.StatusOK, MetricsOverviewResponse{
		TotalRequests: snap.RequestTotal,
		SuccessRate:   snap.SuccessRate(),
		ErrorCount:    snap.RequestFailed,
		P50LatencyMs:  snap.P50Ms,
		P95LatencyMs:  snap.P95Ms,
		Routes:        routes,
	})
}
