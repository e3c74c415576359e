package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthHandlerStatuses(t *testing.T) {
	cases := []struct {
		name       string
		checkErr   error
		wantCode   int
		wantStatus Status
	}{
		{"all checks pass", nil, http.StatusOK, StatusHealthy},
		{"one check fails", errors.New("connection refused"), http.StatusServiceUnavailable, StatusUnhealthy},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHandler("v1.0.0")
			handler.RegisterChecker("storage", NewSimpleChecker("storage", func() error {
				return tc.checkErr
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if w.Code != tc.wantCode {
				t.Errorf("status code: want %d, got %d", tc.wantCode, w.Code)
			}

			var response Response
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if response.Status != tc.wantStatus {
				t.Errorf("overall status: want %s, got %s", tc.wantStatus, response.Status)
			}
			if response.Version != "v1.0.0" {
				t.Errorf("version: want v1.0.0, got %s", response.Version)
			}
			if len(response.Checks) != 1 {
				t.Errorf("checks: want 1, got %d", len(response.Checks))
			}
		})
	}
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status code: want 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("body: want 'ok', got %q", w.Body.String())
	}
}

func TestReadinessHandler(t *testing.T) {
	cases := []struct {
		name     string
		checkErr error
		wantCode int
		wantBody string
	}{
		{"ready", nil, http.StatusOK, "ready"},
		{"not ready", errors.New("not ready"), http.StatusServiceUnavailable, "not ready"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHandler("v1.0.0")
			handler.RegisterChecker("storage", NewSimpleChecker("storage", func() error {
				return tc.checkErr
			}))

			w := httptest.NewRecorder()
			handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if w.Code != tc.wantCode {
				t.Errorf("status code: want %d, got %d", tc.wantCode, w.Code)
			}
			if w.Body.String() != tc.wantBody {
				t.Errorf("body: want %q, got %q", tc.wantBody, w.Body.String())
			}
		})
	}
}

func TestSimpleChecker(t *testing.T) {
	checker := NewSimpleChecker("slow", func() error {
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	check := checker.Check()
	if check.Status != StatusHealthy {
		t.Errorf("status: want healthy, got %s", check.Status)
	}
	if check.DurationMs < 10 {
		t.Errorf("duration: want >= 10ms, got %dms", check.DurationMs)
	}
}

func TestSimpleChecker_Error(t *testing.T) {
	checker := NewSimpleChecker("broken", func() error {
		return errors.New("test error")
	})

	check := checker.Check()
	if check.Status != StatusUnhealthy {
		t.Errorf("status: want unhealthy, got %s", check.Status)
	}
	if check.Message != "test error" {
		t.Errorf("message: want 'test error', got %q", check.Message)
	}
}

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(_ context.Context) error {
	return s.err
}

func TestPingChecker(t *testing.T) {
	healthy := NewPingChecker("postgres", stubPinger{}, time.Second)
	if check := healthy.Check(); check.Status != StatusHealthy {
		t.Errorf("expected healthy ping, got %s", check.Status)
	}

	broken := NewPingChecker("postgres", stubPinger{err: errors.New("down")}, time.Second)
	if check := broken.Check(); check.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy ping, got %s", check.Status)
	}
}
