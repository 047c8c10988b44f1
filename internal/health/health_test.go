package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandler_NoProbes(t *testing.T) {
	handler := NewHandler("v-test")

	report := handler.Run(context.Background())
	if report.State != StateOK {
		t.Fatalf("state = %s, want ok", report.State)
	}
	if report.Version != "v-test" {
		t.Fatalf("version = %q", report.Version)
	}
	if len(report.Probes) != 0 {
		t.Fatalf("probes = %+v", report.Probes)
	}
}

func TestHandler_AggregatesProbeStates(t *testing.T) {
	handler := NewHandler("v-test")
	handler.Register("postgres", func(context.Context) error { return nil })
	handler.Register("redis", func(context.Context) error { return errors.New("connection refused") })

	report := handler.Run(context.Background())
	if report.State != StateDown {
		t.Fatalf("state = %s, want down", report.State)
	}
	if len(report.Probes) != 2 {
		t.Fatalf("probes = %+v", report.Probes)
	}
	// Результаты отсортированы по имени.
	if report.Probes[0].Name != "postgres" || report.Probes[0].State != StateOK {
		t.Fatalf("postgres probe = %+v", report.Probes[0])
	}
	if report.Probes[1].Name != "redis" || report.Probes[1].Error != "connection refused" {
		t.Fatalf("redis probe = %+v", report.Probes[1])
	}
}

func TestHandler_RegisterReplacesByName(t *testing.T) {
	handler := NewHandler("v-test")
	handler.Register("postgres", func(context.Context) error { return errors.New("down") })
	handler.Register("postgres", func(context.Context) error { return nil })

	report := handler.Run(context.Background())
	if report.State != StateOK || len(report.Probes) != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestHandler_ServeHTTP(t *testing.T) {
	handler := NewHandler("v-test")
	handler.Register("postgres", func(context.Context) error { return errors.New("down") })

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", recorder.Code)
	}
	var report Report
	if err := json.Unmarshal(recorder.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if report.State != StateDown {
		t.Fatalf("state = %s, want down", report.State)
	}
}

func TestHandler_Readiness(t *testing.T) {
	handler := NewHandler("v-test")
	handler.Register("postgres", func(context.Context) error { return nil })

	recorder := httptest.NewRecorder()
	handler.Readiness(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}

	handler.Register("postgres", func(context.Context) error { return errors.New("down") })
	recorder = httptest.NewRecorder()
	handler.Readiness(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", recorder.Code)
	}
}
