package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type observation struct {
	method string
	route  string
	status int
}

type recorderFunc func(method, route string, status int, duration time.Duration)

func (f recorderFunc) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	f(method, route, status, duration)
}

func newEngine(log *zap.Logger, seen *[]observation) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.Use(Logger(log))
	r.Use(Recovery(log))
	r.Use(Metrics(recorderFunc(func(method, route string, status int, _ time.Duration) {
		*seen = append(*seen, observation{method, route, status})
	})))
	r.GET("/items/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	r.GET("/boom", func(c *gin.Context) {
		panic("exploded")
	})
	return r
}

func TestRequestID(t *testing.T) {
	var seen []observation
	r := newEngine(zap.NewNop(), &seen)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/1", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)

	req := httptest.NewRequest(http.MethodGet, "/items/1", nil)
	req.Header.Set(RequestIDHeader, "client-id")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "client-id", w.Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	var seen []observation
	r := newEngine(zap.New(core), &seen)

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "req-7", body["request_id"])

	panics := logs.FilterMessage("Handler panicked").All()
	require.Len(t, panics, 1)
	assert.Equal(t, "/boom", panics[0].ContextMap()["route"])
}

func TestMetricsRouteTemplate(t *testing.T) {
	var seen []observation
	r := newEngine(zap.NewNop(), &seen)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/42", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Len(t, seen, 2)
	assert.Equal(t, observation{http.MethodGet, "/items/:id", http.StatusOK}, seen[0])
	assert.Equal(t, observation{http.MethodGet, "unmatched", http.StatusNotFound}, seen[1])
}
