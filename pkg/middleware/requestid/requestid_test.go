package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, header string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var seen string
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		seen = Value(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(HeaderKey, header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, seen
}

func TestMiddlewareGeneratesID(t *testing.T) {
	w, seen := serve(t, "")
	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, w.Header().Get(HeaderKey))
}

func TestMiddlewareKeepsInboundID(t *testing.T) {
	w, seen := serve(t, "edge-42")
	assert.Equal(t, "edge-42", seen)
	assert.Equal(t, "edge-42", w.Header().Get(HeaderKey))
}

func TestMiddlewareReplacesMalformedID(t *testing.T) {
	_, seen := serve(t, strings.Repeat("x", 200))
	assert.NotEqual(t, strings.Repeat("x", 200), seen)

	_, seen = serve(t, "has space")
	assert.NotEqual(t, "has space", seen)
}
