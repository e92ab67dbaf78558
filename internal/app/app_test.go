package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munesh14/first-exchange-hub-sub000/internal/observability"
	"github.com/munesh14/first-exchange-hub-sub000/internal/shared"
	_ "github.com/munesh14/first-exchange-hub-sub000/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LPO_FX_RATES", "usd:3.6725,EUR:4.01")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 3*time.Second, cfg.LPOLockWait)
	assert.Equal(t, 168*time.Hour, cfg.AssetReminderAge)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.IsProduction())

	policy, err := cfg.LPOPolicy()
	require.NoError(t, err)
	assert.Equal(t, "AED", policy.BaseCurrency)
	assert.Equal(t, "100", policy.GMThreshold.String())
	assert.Equal(t, "3.6725", policy.Rates["USD"].String())
	assert.Equal(t, "4.01", policy.Rates["EUR"].String())
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"threshold": {"LPO_GM_THRESHOLD": "lots"},
		"negative":  {"LPO_GM_THRESHOLD": "-1"},
		"rate":      {"LPO_FX_RATES": "USD:zero"},
		"lock ttl":  {"LPO_LOCK_WAIT": "10s", "LPO_LOCK_TTL": "5s"},
		"duration":  {"LPO_LOCK_WAIT": "soon"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "WARN", line["level"])
}

func TestActorMiddleware(t *testing.T) {
	var seen shared.Actor
	var present bool
	h := ActorMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, present = shared.ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderActorID, "12")
	req.Header.Set(HeaderActorRoles, "hod, store ,")
	req.Header.Set(HeaderActorDepartment, "10")
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	require.True(t, present)
	assert.Equal(t, shared.Actor{ID: 12, Roles: []string{"HOD", "STORE"}, DepartmentID: 10}, seen)

	present = false
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, present)

	for _, hdr := range []map[string]string{
		{HeaderActorID: "abc"},
		{HeaderActorID: "-4"},
		{HeaderActorID: "4", HeaderActorDepartment: "sales"},
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		for k, v := range hdr {
			req.Header.Set(k, v)
		}
		res := httptest.NewRecorder()
		h.ServeHTTP(res, req)
		assert.Equal(t, http.StatusBadRequest, res.Code)
	}
}

func TestRouterHealthAndMetrics(t *testing.T) {
	require.True(t, InTestMode())

	failing := PingFunc(func(context.Context) error { return errors.New("down") })
	healthy := PingFunc(func(context.Context) error { return nil })
	router := NewRouter(RouterParams{
		Config:    &Config{AppEnv: "test"},
		Metrics:   observability.NewMetrics(),
		Readiness: map[string]Pinger{"postgres": healthy, "redis": failing},
	})

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "nosniff", res.Header().Get("X-Content-Type-Options"))

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	var ready map[string]string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &ready))
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "unavailable"}, ready)

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "hub_http_requests_total")

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/lpo/orders/1", nil))
	assert.Equal(t, http.StatusNotFound, res.Code)
}
