package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/plan-export-api/internal/models"
	"github.com/noah-isme/plan-export-api/internal/service"
)

// ExportKindKey holds the export kind a handler resolved for the request.
const ExportKindKey = "export_kind"

const (
	noExportKind   = "none"
	unmatchedRoute = "unmatched"
)

// TagExportKind labels the current request with the export it triggers.
func TagExportKind(c *gin.Context, kind models.ExportKind) {
	c.Set(ExportKindKey, string(kind))
}

// Metrics records one observation per request, labelled by route template
// and export kind. Unrouted paths share one label.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		kind := c.GetString(ExportKindKey)
		if kind == "" {
			kind = noExportKind
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, kind, c.Writer.Status(), time.Since(start))
	}
}
