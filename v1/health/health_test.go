package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fleetkit/workerstd/v1/logger"
	"github.com/fleetkit/workerstd/v1/metrics"
)

func healthy(context.Context) map[string]string { return nil }

func unhealthy(context.Context) map[string]string {
	return map[string]string{"orders-db": "connection refused"}
}

func TestHealthyReturns200(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := NewHandler(healthy, logger.NewWithCore(core, false), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Zero(t, logs.Len())
}

func TestUnhealthyReturns500AndLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := NewHandler(unhealthy, logger.NewWithCore(core, false), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "connection refused", body["orders-db"])

	entries := logs.FilterMessage("health check failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "connection refused", entries[0].ContextMap()["orders-db"])
}

func TestOtherPathsReturnEmpty200(t *testing.T) {
	called := false
	check := func(context.Context) map[string]string {
		called = true
		return map[string]string{"x": "down"}
	}
	core, _ := observer.New(zapcore.DebugLevel)
	h := NewHandler(check, logger.NewWithCore(core, false), nil)

	for _, path := range []string{"/", "/ready", "/health/deep"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Empty(t, rec.Body.String(), path)
	}
	assert.False(t, called)
}

func TestNonGetHealthRequestsSkipTheCheck(t *testing.T) {
	called := false
	check := func(context.Context) map[string]string {
		called = true
		return map[string]string{"x": "down"}
	}
	core, logs := observer.New(zapcore.DebugLevel)
	h := NewHandler(check, logger.NewWithCore(core, false), nil)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodHead} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code, method)
		assert.Empty(t, rec.Body.String(), method)
	}
	assert.False(t, called)
	assert.Zero(t, logs.Len())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, called)
}

func TestRequestsAreRecorded(t *testing.T) {
	m := metrics.NewMetrics(metrics.Config{ServiceName: "orders-worker"})
	core, _ := observer.New(zapcore.DebugLevel)
	h := NewHandler(unhealthy, logger.NewWithCore(core, false), m)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	count, err := testutil.GatherAndCount(m.Registry, "requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per status")
}

func TestAddress(t *testing.T) {
	assert.Equal(t, ":8080", Config{}.Address())
	assert.Equal(t, "127.0.0.1:9000", Config{Host: "127.0.0.1", Port: 9000}.Address())
}

func TestFXModuleServesHealth(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	log := logger.NewWithCore(core, false)

	var server *Server
	app := fxtest.New(t,
		FXModule,
		fx.Provide(
			func() Config { return Config{Enabled: true, Host: "127.0.0.1", Port: 18081} },
			func() CheckFunc { return healthy },
			func() logger.Logger { return log },
		),
		fx.Populate(&server),
	)
	app.RequireStart()
	defer app.RequireStop()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + server.Addr() + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)
}

func TestFXModuleDisabled(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	log := logger.NewWithCore(core, false)

	var server *Server
	app := fxtest.New(t,
		FXModule,
		fx.Provide(
			func() Config { return Config{} },
			func() CheckFunc { return healthy },
			func() logger.Logger { return log },
		),
		fx.Populate(&server),
	)
	app.RequireStart()
	app.RequireStop()
	assert.Nil(t, server)
}
