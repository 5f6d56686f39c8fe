package telemetry

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewHandlerExposesRegisteredCounters(t *testing.T) {
	handler, err := NewHandler()
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	TunnelSessionsOpened.Add(context.Background(), 1)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "zexio_tunnel_sessions_opened_total") {
		t.Fatalf("scrape output missing registered counter:\n%s", rec.Body.String())
	}
}
