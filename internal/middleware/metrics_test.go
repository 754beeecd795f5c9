package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/plan-export-api/internal/models"
	"github.com/noah-isme/plan-export-api/internal/service"
)

func scrape(t *testing.T, metrics *service.MetricsService) string {
	t.Helper()
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetricsLabelsExportKindAndRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.POST("/plans/export", func(c *gin.Context) {
		TagExportKind(c, models.ExportKindClass)
		c.Status(http.StatusOK)
	})
	r.GET("/plans/download/:token", func(c *gin.Context) { c.Status(http.StatusForbidden) })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/plans/export", nil),
		httptest.NewRequest(http.MethodGet, "/plans/download/abc", nil),
		httptest.NewRequest(http.MethodGet, "/plans/download/def", nil),
		httptest.NewRequest(http.MethodGet, "/no/such/route", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	body := scrape(t, metrics)
	assert.Contains(t, body, `http_requests_total{export_kind="class",method="POST",path="/plans/export",status="200"} 1`)
	assert.Contains(t, body, `http_requests_total{export_kind="none",method="GET",path="/plans/download/:token",status="403"} 2`)
	assert.Contains(t, body, `http_requests_total{export_kind="none",method="GET",path="unmatched",status="404"} 1`)
	assert.NotContains(t, body, "/no/such/route")
	assert.Equal(t, uint64(4), metrics.Snapshot().RequestsTotal)
}

func TestMetricsWithoutServicePassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(nil))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
