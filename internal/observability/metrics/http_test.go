package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGinMiddlewareRecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, Config{ServiceName: "settlr-test", Environment: "test"})

	router := gin.New()
	router.Use(GinMiddleware(m))
	router.GET("/v1/payments/:reference", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	for _, ref := range []string{"a", "b"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/v1/payments/"+ref, nil))
		require.Equal(t, http.StatusNotFound, resp.Code)
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/v1/payments/:reference", "404")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestNewHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := newHTTPMetrics(registry, Config{})
	second := newHTTPMetrics(registry, Config{})

	first.requests.WithLabelValues(http.MethodPost, "/v1/checkout", "201").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(second.requests.WithLabelValues(http.MethodPost, "/v1/checkout", "201")))
}
