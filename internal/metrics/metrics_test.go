package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMiddleware_CountsByRoute(t *testing.T) {
	m := New()
	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/items/:id", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	for _, path := range []string{"/items/1", "/items/2", "/nowhere"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.requestCount.WithLabelValues("/items/:id", "GET", "200")); got != 2 {
		t.Errorf("expected 2 requests for /items/:id, got %v", got)
	}
	if got := testutil.ToFloat64(m.requestCount.WithLabelValues("unmatched", "GET", "404")); got != 1 {
		t.Errorf("expected 1 unmatched request, got %v", got)
	}
}

func TestMiddleware_LabelsPrefixServedOutsideRouter(t *testing.T) {
	m := New()
	router := gin.New()
	router.Use(m.Middleware("/assets"))
	router.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/assets/app.js" {
			c.String(http.StatusOK, "js")
			c.Abort()
		}
	})

	for _, path := range []string{"/assets/app.js", "/assets/missing.js", "/assetsx"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.requestCount.WithLabelValues("/assets", "GET", "200")); got != 1 {
		t.Errorf("expected 1 request for /assets, got %v", got)
	}
	if got := testutil.ToFloat64(m.requestCount.WithLabelValues("unmatched", "GET", "404")); got != 2 {
		t.Errorf("expected 2 unmatched requests, got %v", got)
	}
}

func TestObservePrediction(t *testing.T) {
	m := New()
	m.ObservePrediction(OutcomeOK, 10*time.Millisecond)
	m.ObservePrediction(OutcomeOK, 20*time.Millisecond)
	m.ObservePrediction(OutcomeFetchError, 0)

	if got := testutil.ToFloat64(m.predictions.WithLabelValues(OutcomeOK)); got != 2 {
		t.Errorf("expected 2 ok predictions, got %v", got)
	}
	if got := testutil.ToFloat64(m.predictions.WithLabelValues(OutcomeFetchError)); got != 1 {
		t.Errorf("expected 1 fetch error, got %v", got)
	}
	if got := testutil.CollectAndCount(m.inferenceDuration); got != 1 {
		t.Errorf("expected 1 histogram series, got %d", got)
	}
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.ObservePrediction(OutcomeOK, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `predictions_total{outcome="ok"} 1`) {
		t.Errorf("exposition missing predictions_total, got:\n%s", body)
	}
}
