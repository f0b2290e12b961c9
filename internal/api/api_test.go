package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeclock/internal/config"
	"timeclock/internal/models"
	"timeclock/internal/repository"
	"timeclock/internal/service"
	"timeclock/internal/timetrack"
)

const testAPIKey = "valid-key"

type testServer struct {
	*HTTPServer
	handler http.Handler
	now     time.Time
}

func santiago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)
	return loc
}

func newTestServer(t *testing.T, httpCfg config.HTTPConfig, rl config.RateLimitConfig) *testServer {
	t.Helper()
	logger := zerolog.New(io.Discard)
	policy := timetrack.DefaultPolicy()
	policy.Location = santiago(t)

	svc := service.NewClockService(repository.NewMemoryRepository(), nil, nil, policy, 2, &logger)
	srv := NewHTTPServer(httpCfg, rl, svc, &logger)

	ts := &testServer{HTTPServer: srv, handler: srv.Handler()}
	ts.now = time.Date(2024, 1, 15, 8, 0, 0, 0, policy.Location)
	srv.now = func() time.Time { return ts.now }
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestClockActions(t *testing.T) {
	ts := newTestServer(t, config.HTTPConfig{}, config.RateLimitConfig{})
	loc := santiago(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/users/u1/clock-in", nil, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	result := decode[service.ActionResult](t, rec)
	assert.Equal(t, models.StatusActive, result.Session.Status)
	assert.Equal(t, models.KindClockIn, result.Event.Kind)
	assert.True(t, result.Gate.ClockOut.Enabled)
	assert.False(t, result.Gate.ClockIn.Enabled)

	t.Run("LunchOutsideWindow", func(t *testing.T) {
		at := time.Date(2024, 1, 15, 8, 5, 0, 0, loc)
		rec := ts.do(t, http.MethodPost, "/api/v1/users/u1/lunch/start", ActionRequest{Timestamp: &at}, nil)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		body := decode[validationResponse](t, rec)
		assert.Equal(t, "validation", body.Error)
		require.Len(t, body.Violations, 1)
		assert.Equal(t, timetrack.CodeLunchWindow, body.Violations[0].Code)
	})

	t.Run("SecondClockIn", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/users/u1/clock-in", nil, nil)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		body := decode[validationResponse](t, rec)
		assert.Equal(t, timetrack.CodeSessionOpen, body.Violations[0].Code)
	})

	t.Run("LunchRoundTrip", func(t *testing.T) {
		start := time.Date(2024, 1, 15, 13, 0, 0, 0, loc)
		rec := ts.do(t, http.MethodPost, "/api/v1/users/u1/lunch/start", ActionRequest{Timestamp: &start}, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, models.StatusOnLunch, decode[service.ActionResult](t, rec).Session.Status)

		end := start.Add(45 * time.Minute)
		rec = ts.do(t, http.MethodPost, "/api/v1/users/u1/lunch/end", ActionRequest{Timestamp: &end}, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		res := decode[service.ActionResult](t, rec)
		assert.Equal(t, models.StatusActive, res.Session.Status)
		assert.Equal(t, 45, res.Session.TotalLunchMinutes)
	})

	t.Run("Status", func(t *testing.T) {
		ts.now = time.Date(2024, 1, 15, 15, 0, 0, 0, loc)
		rec := ts.do(t, http.MethodGet, "/api/v1/users/u1/status", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		status := decode[service.Status](t, rec)
		require.NotNil(t, status.Projection)
		assert.Equal(t, 7*60-45, status.Projection.WorkMinutes)
		assert.True(t, status.Gate.ClockOut.Enabled)
		assert.False(t, status.Gate.StartLunch.Enabled)

		rec = ts.do(t, http.MethodGet, "/api/v1/users/u1/sessions/today", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 7*60-45, decode[models.WorkSession](t, rec).TotalWorkMinutes)
	})

	t.Run("Activities", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/users/u1/activities?limit=2", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode[map[string][]models.TimeEvent](t, rec)
		require.Len(t, body["events"], 2)
		assert.Equal(t, models.KindResumeShift, body["events"][0].Kind)
	})

	t.Run("Sessions", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/users/u1/sessions?from=2024-01-15&to=2024-01-21", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		page := decode[service.SessionPage](t, rec)
		assert.Equal(t, 1, page.Total)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 20, page.Limit)
	})
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, config.HTTPConfig{}, config.RateLimitConfig{})

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantError  string
	}{
		{"ClockOutWithoutSession", http.MethodPost, "/api/v1/users/u2/clock-out", nil, http.StatusNotFound, "not_found"},
		{"TodayWithoutSession", http.MethodGet, "/api/v1/users/u2/sessions/today", nil, http.StatusNotFound, "not_found"},
		{"UnknownField", http.MethodPost, "/api/v1/users/u2/clock-in", map[string]string{"when": "now"}, http.StatusBadRequest, "invalid_input"},
		{"BadDate", http.MethodGet, "/api/v1/users/u2/sessions?from=15-01-2024", nil, http.StatusBadRequest, "invalid_input"},
		{"InvertedRange", http.MethodGet, "/api/v1/users/u2/sessions?from=2024-01-20&to=2024-01-10", nil, http.StatusBadRequest, "invalid_input"},
		{"NegativeLimit", http.MethodGet, "/api/v1/users/u2/activities?limit=-1", nil, http.StatusBadRequest, "invalid_input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.body, nil)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantError, decode[errorResponse](t, rec).Error)
		})
	}
}

func TestAPIKey(t *testing.T) {
	ts := newTestServer(t, config.HTTPConfig{APIKey: testAPIKey}, config.RateLimitConfig{})

	rec := ts.do(t, http.MethodGet, "/api/v1/users/u1/status", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/users/u1/status", nil, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/users/u1/status", nil, map[string]string{"X-API-Key": testAPIKey})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, config.HTTPConfig{}, config.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 2})

	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodGet, "/api/v1/users/u1/status", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := ts.do(t, http.MethodGet, "/api/v1/users/u1/status", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// buckets are per user
	rec = ts.do(t, http.MethodGet, "/api/v1/users/u2/status", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUserLimiter_ForgetsIdleUsers(t *testing.T) {
	l := newUserLimiter(1, 1)
	now := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
	assert.Equal(t, 2, l.Len())

	now = now.Add(limiterIdleTTL + time.Minute)
	assert.True(t, l.Allow("c"))
	assert.Equal(t, 1, l.Len())
}

type panicService struct {
	ClockService
}

func (panicService) GetCurrentStatus(context.Context, string, time.Time) (*service.Status, error) {
	panic("boom")
}

func TestRecoverMiddleware(t *testing.T) {
	logger := zerolog.New(io.Discard)
	srv := NewHTTPServer(config.HTTPConfig{}, config.RateLimitConfig{}, panicService{}, &logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/u1/status", nil)
	req.Header.Set(requestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(requestIDHeader))
}
