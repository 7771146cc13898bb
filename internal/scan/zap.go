package scan

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// maxAlerts bounds the alerts returned for one page scan.
const maxAlerts = 100

// Alert is one finding reported by ZAP.
type Alert struct {
	Name        string `json:"name"`
	Risk        string `json:"risk"`
	Confidence  string `json:"confidence"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Solution    string `json:"solution,omitempty"`
	CWEID       string `json:"cweId,omitempty"`
}

// ZAPClient drives an OWASP ZAP daemon through its JSON API.
type ZAPClient struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewZAPClient returns a client for the ZAP daemon at baseURL. An empty baseURL leaves it unconfigured.
func NewZAPClient(apiKey, baseURL string) *ZAPClient {
	return &ZAPClient{
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type zapScanResponse struct {
	Scan string `json:"scan"`
}

type zapStatusResponse struct {
	Status string `json:"status"`
}

type zapAlertsResponse struct {
	Alerts []struct {
		Alert       string `json:"alert"`
		Risk        string `json:"risk"`
		Confidence  string `json:"confidence"`
		URL         string `json:"url"`
		Description string `json:"description"`
		Solution    string `json:"solution"`
		CWEID       string `json:"cweid"`
	} `json:"alerts"`
}

// StartSpider starts a spider scan of target and returns its scan id.
func (c *ZAPClient) StartSpider(ctx context.Context, target string) (string, error) {
	var out zapScanResponse
	if err := c.get(ctx, "/JSON/spider/action/scan/", url.Values{"url": {target}, "recurse": {"true"}}, &out); err != nil {
		return "", err
	}
	if out.Scan == "" {
		return "", fmt.Errorf("%w: missing scan id", ErrUpstream)
	}
	return out.Scan, nil
}

// SpiderProgress returns the completion percentage of scanID.
func (c *ZAPClient) SpiderProgress(ctx context.Context, scanID string) (int, error) {
	var out zapStatusResponse
	if err := c.get(ctx, "/JSON/spider/view/status/", url.Values{"scanId": {scanID}}, &out); err != nil {
		return 0, err
	}
	progress, err := strconv.Atoi(out.Status)
	if err != nil {
		return 0, fmt.Errorf("%w: status %q", ErrUpstream, out.Status)
	}
	return progress, nil
}

// Alerts returns up to maxAlerts findings recorded under baseURL.
func (c *ZAPClient) Alerts(ctx context.Context, baseURL string) ([]Alert, error) {
	var out zapAlertsResponse
	q := url.Values{"baseurl": {baseURL}, "start": {"0"}, "count": {strconv.Itoa(maxAlerts)}}
	if err := c.get(ctx, "/JSON/core/view/alerts/", q, &out); err != nil {
		return nil, err
	}
	alerts := make([]Alert, 0, len(out.Alerts))
	for _, a := range out.Alerts {
		alerts = append(alerts, Alert{
			Name:        a.Alert,
			Risk:        a.Risk,
			Confidence:  a.Confidence,
			URL:         a.URL,
			Description: a.Description,
			Solution:    a.Solution,
			CWEID:       a.CWEID,
		})
	}
	return alerts, nil
}

func (c *ZAPClient) get(ctx context.Context, path string, q url.Values, out any) error {
	if c == nil || c.BaseURL == "" {
		return ErrNotConfigured
	}
	req, err := newRequest(ctx, http.MethodGet, c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	if c.APIKey != "" {
		req.Header.Set("X-ZAP-API-Key", c.APIKey)
	}
	return doJSON(c.HTTPClient, req, out)
}
