// Package scan holds the clients for the third-party security tools proxied by the API:
// VirusTotal URL reputation, MetaDefender file scanning, OWASP ZAP page scanning,
// a network speed probe and the OPA password-strength policy.
package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrNotConfigured means the tool has no API key or base URL.
	ErrNotConfigured = errors.New("scan: tool not configured")
	// ErrUpstream wraps any transport or protocol failure talking to a tool.
	ErrUpstream = errors.New("scan: upstream failure")
	// ErrNotFound means the tool does not know the requested scan id.
	ErrNotFound = errors.New("scan: result not found")
	// ErrBlockedTarget means the target URL points at a private or disallowed address.
	ErrBlockedTarget = errors.New("scan: target not allowed")
)

const (
	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 1 << 20
)

// doJSON issues req and decodes a 2xx JSON body into out. 404 maps to ErrNotFound;
// any other non-2xx status maps to ErrUpstream.
func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status=%d", ErrUpstream, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	return nil
}

func newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}
