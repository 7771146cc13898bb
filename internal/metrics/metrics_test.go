package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRegistration("started")
	c.RecordRegistration("started")
	c.RecordOTPVerification("email", "invalid")
	c.RecordScan("virustotal", "ok")

	if got := testutil.ToFloat64(c.registrations.WithLabelValues("started")); got != 2 {
		t.Errorf("registrations{started} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.otpChecks.WithLabelValues("email", "invalid")); got != 1 {
		t.Errorf("otp{email,invalid} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.scans.WithLabelValues("virustotal", "ok")); got != 1 {
		t.Errorf("scans{virustotal,ok} = %v, want 1", got)
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordHTTP("/auth/login", http.MethodPost, http.StatusOK, 15*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `onego_http_requests_total{method="POST",route="/auth/login",status="200"} 1`) {
		t.Errorf("metrics output missing request counter:\n%s", body)
	}
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	r.RecordRegistration("started")
	r.RecordOTPVerification("mobile", "approved")
	r.RecordScan("zap", "error")
}
