package scan

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		url     string
		allowed bool
	}{
		{"https://example.com/page", true},
		{"http://93.184.216.34/", true},
		{"ftp://example.com", false},
		{"javascript:alert(1)", false},
		{"", false},
		{"https://", false},
		{"http://localhost:8080", false},
		{"http://LOCALHOST.", false},
		{"http://127.0.0.1/", false},
		{"http://10.1.2.3/", false},
		{"http://192.168.0.10/", false},
		{"http://169.254.169.254/latest/meta-data", false},
		{"http://[::1]/", false},
		{"http://metadata.google.internal/", false},
	}
	for _, tt := range tests {
		err := ValidateTarget(tt.url)
		if tt.allowed && err != nil {
			t.Errorf("ValidateTarget(%q) = %v, want nil", tt.url, err)
		}
		if !tt.allowed && !errors.Is(err, ErrBlockedTarget) {
			t.Errorf("ValidateTarget(%q) = %v, want ErrBlockedTarget", tt.url, err)
		}
	}
}

func TestSpeedTester_Run(t *testing.T) {
	payload := strings.Repeat("x", 125000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(20 * time.Millisecond), base.Add(time.Second)}
	i := 0
	tester := &SpeedTester{URL: srv.URL, Client: srv.Client(), now: func() time.Time {
		tm := ticks[i]
		i++
		return tm
	}}

	res, err := tester.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Bytes != 125000 {
		t.Errorf("Bytes = %d", res.Bytes)
	}
	if res.LatencyMs != 20 || res.DurationMs != 1000 {
		t.Errorf("latency/duration = %d/%d", res.LatencyMs, res.DurationMs)
	}
	if res.Mbps != 1 {
		t.Errorf("Mbps = %v, want 1", res.Mbps)
	}
}

func TestSpeedTester_Errors(t *testing.T) {
	if _, err := (&SpeedTester{}).Run(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("no URL: err = %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	if _, err := (&SpeedTester{URL: srv.URL, Client: srv.Client()}).Run(context.Background()); !errors.Is(err, ErrUpstream) {
		t.Errorf("503: err = %v", err)
	}
}

func TestSpeedTester_SafeClientRefusesLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("loopback server must not be reached")
	}))
	t.Cleanup(srv.Close)

	if _, err := NewSpeedTester(srv.URL).Run(context.Background()); !errors.Is(err, ErrUpstream) {
		t.Errorf("err = %v, want ErrUpstream", err)
	}
}

func TestPasswordEvaluator(t *testing.T) {
	ctx := context.Background()
	e, err := NewPasswordEvaluator(ctx)
	if err != nil {
		t.Fatalf("NewPasswordEvaluator: %v", err)
	}
	if err := e.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}

	tests := []struct {
		password string
		score    int
		label    string
	}{
		{"password", 0, "very weak"},
		{"abcdefgh", 0, "very weak"},
		{"aaaaaaaaaa", 0, "very weak"},
		{"Ab1!", 1, "weak"},
		{"kitchenmagnet", 2, "fair"},
		{"Summer2024", 2, "fair"},
		{"Summer2024!", 3, "strong"},
		{"Tr0ub4dor&3xyzQ", 4, "very strong"},
	}
	for _, tt := range tests {
		got, err := e.Evaluate(ctx, tt.password)
		if err != nil {
			t.Fatalf("Evaluate(%q): %v", tt.password, err)
		}
		if got.Score != tt.score || got.Label != tt.label {
			t.Errorf("Evaluate(%q) = %d %q, want %d %q", tt.password, got.Score, got.Label, tt.score, tt.label)
		}
	}
}

func TestPasswordEvaluator_Suggestions(t *testing.T) {
	e, err := NewPasswordEvaluator(context.Background())
	if err != nil {
		t.Fatalf("NewPasswordEvaluator: %v", err)
	}

	got, err := e.Evaluate(context.Background(), "kitchenmagnet")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := []string{"Add numbers", "Add symbols", "Add uppercase letters"}
	if !reflect.DeepEqual(got.Suggestions, want) {
		t.Errorf("Suggestions = %v, want %v", got.Suggestions, want)
	}

	got, err = e.Evaluate(context.Background(), "Tr0ub4dor&3xyzQ")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(got.Suggestions) != 0 {
		t.Errorf("Suggestions = %v, want none", got.Suggestions)
	}

	got, err = e.Evaluate(context.Background(), "password")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	found := false
	for _, s := range got.Suggestions {
		if s == "Avoid common passwords" {
			found = true
		}
	}
	if !found {
		t.Errorf("Suggestions = %v, want common-password hint", got.Suggestions)
	}
}

func TestPasswordFeatures_OmitsPassword(t *testing.T) {
	f := passwordFeatures("S3cret!")
	for k, v := range f {
		if s, ok := v.(string); ok && s == "S3cret!" {
			t.Errorf("feature %q carries the password", k)
		}
	}
	if f["length"] != 7 || f["has_symbol"] != true || f["has_digit"] != true {
		t.Errorf("features = %v", f)
	}
}
