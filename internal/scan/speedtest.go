package scan

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxSpeedTestBytes caps how much of the download is read.
const maxSpeedTestBytes = 50 << 20

// SpeedResult is one download measurement.
type SpeedResult struct {
	LatencyMs  int64   `json:"latencyMs"`
	Bytes      int64   `json:"bytes"`
	DurationMs int64   `json:"durationMs"`
	Mbps       float64 `json:"mbps"`
	TestedAt   string  `json:"testedAt"`
}

// SpeedTester downloads URL and reports time to first byte and throughput.
type SpeedTester struct {
	URL    string
	Client *http.Client
	now    func() time.Time
}

// NewSpeedTester returns a tester for target using the SSRF-safe client.
func NewSpeedTester(target string) *SpeedTester {
	return &SpeedTester{URL: target, Client: NewSafeClient(30 * time.Second), now: time.Now}
}

// Run performs one measurement.
func (s *SpeedTester) Run(ctx context.Context) (*SpeedResult, error) {
	if s == nil || s.URL == "" {
		return nil, ErrNotConfigured
	}
	now := s.now
	if now == nil {
		now = time.Now
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	start := now()
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	firstByte := now()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status=%d", ErrUpstream, resp.StatusCode)
	}
	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxSpeedTestBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	end := now()

	elapsed := end.Sub(start)
	result := &SpeedResult{
		LatencyMs:  firstByte.Sub(start).Milliseconds(),
		Bytes:      n,
		DurationMs: elapsed.Milliseconds(),
		TestedAt:   end.UTC().Format(time.RFC3339),
	}
	if secs := elapsed.Seconds(); secs > 0 {
		result.Mbps = float64(n*8) / secs / 1e6
	}
	return result, nil
}
