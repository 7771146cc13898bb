package scan

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// URL report statuses.
const (
	URLStatusCompleted = "completed"
	URLStatusQueued    = "queued"
)

// Verdicts derived from the analysis stats.
const (
	VerdictClean      = "clean"
	VerdictSuspicious = "suspicious"
	VerdictMalicious  = "malicious"
)

// AnalysisStats counts engine results for a URL.
type AnalysisStats struct {
	Harmless   int `json:"harmless"`
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
	Undetected int `json:"undetected"`
	Timeout    int `json:"timeout"`
}

// URLReport is the reputation of a single URL. Queued reports carry only AnalysisID.
type URLReport struct {
	URL          string         `json:"url"`
	Status       string         `json:"status"`
	Verdict      string         `json:"verdict,omitempty"`
	Stats        *AnalysisStats `json:"stats,omitempty"`
	Reputation   int            `json:"reputation"`
	AnalyzedAt   *time.Time     `json:"analyzedAt,omitempty"`
	AnalysisID   string         `json:"analysisId,omitempty"`
	PermalinkURL string         `json:"permalink,omitempty"`
}

// VirusTotalClient talks to the VirusTotal v3 API.
type VirusTotalClient struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewVirusTotalClient returns a client for baseURL (defaults to the public v3 endpoint).
func NewVirusTotalClient(apiKey, baseURL string) *VirusTotalClient {
	if baseURL == "" {
		baseURL = "https://www.virustotal.com/api/v3"
	}
	return &VirusTotalClient{
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type vtURLObject struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			LastAnalysisStats AnalysisStats `json:"last_analysis_stats"`
			LastAnalysisDate  int64         `json:"last_analysis_date"`
			Reputation        int           `json:"reputation"`
		} `json:"attributes"`
	} `json:"data"`
}

type vtAnalysisRef struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// URLIdentifier is the VirusTotal id for rawURL: unpadded base64url of the URL.
func URLIdentifier(rawURL string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(rawURL))
}

// URLReport returns the last analysis for rawURL. A URL VirusTotal has never seen is submitted
// for analysis and reported as queued.
func (c *VirusTotalClient) URLReport(ctx context.Context, rawURL string) (*URLReport, error) {
	if c == nil || c.APIKey == "" {
		return nil, ErrNotConfigured
	}
	id := URLIdentifier(rawURL)
	req, err := newRequest(ctx, http.MethodGet, c.BaseURL+"/urls/"+id, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-apikey", c.APIKey)
	var obj vtURLObject
	err = doJSON(c.HTTPClient, req, &obj)
	if errors.Is(err, ErrNotFound) {
		return c.submit(ctx, rawURL)
	}
	if err != nil {
		return nil, err
	}
	attrs := obj.Data.Attributes
	report := &URLReport{
		URL:          rawURL,
		Status:       URLStatusCompleted,
		Verdict:      verdictFor(attrs.LastAnalysisStats),
		Stats:        &attrs.LastAnalysisStats,
		Reputation:   attrs.Reputation,
		PermalinkURL: "https://www.virustotal.com/gui/url/" + obj.Data.ID,
	}
	if attrs.LastAnalysisDate > 0 {
		t := time.Unix(attrs.LastAnalysisDate, 0).UTC()
		report.AnalyzedAt = &t
	}
	return report, nil
}

func (c *VirusTotalClient) submit(ctx context.Context, rawURL string) (*URLReport, error) {
	form := url.Values{"url": {rawURL}}
	req, err := newRequest(ctx, http.MethodPost, c.BaseURL+"/urls", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-apikey", c.APIKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	var ref vtAnalysisRef
	if err := doJSON(c.HTTPClient, req, &ref); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUpstream
		}
		return nil, err
	}
	return &URLReport{URL: rawURL, Status: URLStatusQueued, AnalysisID: ref.Data.ID}, nil
}

func verdictFor(s AnalysisStats) string {
	switch {
	case s.Malicious > 0:
		return VerdictMalicious
	case s.Suspicious > 0:
		return VerdictSuspicious
	default:
		return VerdictClean
	}
}
