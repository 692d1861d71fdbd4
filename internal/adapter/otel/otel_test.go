package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Strob0t/Conductor/internal/config"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.OTel{ServiceName: "conductor"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestMetricsRecord(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.Claimed(ctx, "analyst", 2)
	m.Finished(ctx, "analyst", "analysis", false, true, 1.5)
	m.LLMCall(ctx, "analyst", "assess")
	m.Negotiation(ctx, "open", 1)
	m.Anomalies(ctx, 3)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.Claimed(ctx, "a", 1)
	m.Finished(ctx, "a", "analysis", true, false, 0)
	m.LLMCall(ctx, "a", "analyze")
	m.Negotiation(ctx, "closed", 1)
	m.Anomalies(ctx, 1)
}

func TestSpans(t *testing.T) {
	ctx, span := StartTaskSpan(context.Background(), "t1", "analysis", "analyst")
	_, stage := StartStageSpan(ctx, "assess")
	stage.End()
	span.End()
}

func TestHTTPMiddlewarePassesThrough(t *testing.T) {
	called := false
	h := HTTPMiddleware("conductor")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/x", nil))
	if !called || rec.Code != http.StatusTeapot {
		t.Fatalf("handler not reached: called=%v code=%d", called, rec.Code)
	}
}
