package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"", "/"},
		{"/api/testimonials", "/api/testimonials"},
		{"/api/categories/", "/api/categories"},
		{"/api/categories/9f86d081-8292-4a5e-b1a2-446655440000", "/api/categories/:id"},
		{"/api/users/42abc99/verify-admin", "/api/users/:id/verify-admin"},
	}
	for _, tc := range cases {
		if got := normalizePath(tc.path); got != tc.want {
			t.Fatalf("normalizePath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestRecorderWriteIsStable(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("get", "/api/testimonials", http.StatusOK, 20*time.Millisecond)
	recorder.ObserveRequest("GET", "/api/testimonials", http.StatusOK, 30*time.Millisecond)
	recorder.ObserveDocument("testimonial", "submit")
	recorder.ObserveAuthEvent("login_success")
	recorder.ObserveSessionPurge()

	var out strings.Builder
	recorder.Write(&out)
	rendered := out.String()

	expected := []string{
		`folio_http_requests_total{method="GET",path="/api/testimonials",status="200"} 2`,
		`folio_http_request_duration_seconds_count{method="GET",path="/api/testimonials",status="200"} 2`,
		`folio_document_events_total{collection="testimonial",action="submit"} 1`,
		`folio_auth_events_total{event="login_success"} 1`,
		"folio_session_purges_total 1",
	}
	for _, line := range expected {
		if !strings.Contains(rendered, line) {
			t.Fatalf("expected %q in output:\n%s", line, rendered)
		}
	}
}

func TestRecorderReset(t *testing.T) {
	recorder := New()
	recorder.ObserveAuthEvent("signup")
	if counts := recorder.AuthEventCounts(); counts["signup"] != 1 {
		t.Fatalf("expected signup count 1, got %v", counts)
	}
	recorder.Reset()
	if counts := recorder.AuthEventCounts(); len(counts) != 0 {
		t.Fatalf("expected empty counts after reset, got %v", counts)
	}
}

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	recorder := New()
	handler := HTTPMiddleware(recorder, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var out strings.Builder
	recorder.Write(&out)
	if !strings.Contains(out.String(), `folio_http_requests_total{method="GET",path="/api/clients",status="404"} 1`) {
		t.Fatalf("expected recorded 404, got:\n%s", out.String())
	}
}
