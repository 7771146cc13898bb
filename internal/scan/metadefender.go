package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// MaxFileBytes bounds uploads forwarded to MetaDefender.
const MaxFileBytes = 32 << 20

// FileReport is the MetaDefender progress and verdict for one submitted file.
type FileReport struct {
	DataID        string `json:"dataId"`
	FileName      string `json:"fileName,omitempty"`
	FileSize      int64  `json:"fileSize,omitempty"`
	SHA256        string `json:"sha256,omitempty"`
	Progress      int    `json:"progress"`
	Completed     bool   `json:"completed"`
	Result        string `json:"result,omitempty"`
	TotalDetected int    `json:"totalDetected"`
	TotalEngines  int    `json:"totalEngines"`
}

// MetaDefenderClient talks to the MetaDefender Cloud v4 API.
type MetaDefenderClient struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewMetaDefenderClient returns a client for baseURL (defaults to the public v4 endpoint).
func NewMetaDefenderClient(apiKey, baseURL string) *MetaDefenderClient {
	if baseURL == "" {
		baseURL = "https://api.metadefender.com/v4"
	}
	return &MetaDefenderClient{
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type mdSubmitResponse struct {
	DataID string `json:"data_id"`
}

type mdFileResponse struct {
	DataID      string `json:"data_id"`
	ScanResults struct {
		ScanAllResultA     string `json:"scan_all_result_a"`
		ProgressPercentage int    `json:"progress_percentage"`
		TotalDetectedAVs   int    `json:"total_detected_avs"`
		TotalAVs           int    `json:"total_avs"`
	} `json:"scan_results"`
	FileInfo struct {
		DisplayName string `json:"display_name"`
		FileSize    int64  `json:"file_size"`
		SHA256      string `json:"sha256"`
	} `json:"file_info"`
}

// Submit uploads the file body and returns the data id used to poll for the result.
func (c *MetaDefenderClient) Submit(ctx context.Context, filename string, body io.Reader) (string, error) {
	if c == nil || c.APIKey == "" {
		return "", ErrNotConfigured
	}
	req, err := newRequest(ctx, http.MethodPost, c.BaseURL+"/file", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("apikey", c.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")
	if filename != "" {
		req.Header.Set("filename", url.PathEscape(filename))
	}
	var out mdSubmitResponse
	if err := doJSON(c.HTTPClient, req, &out); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrUpstream
		}
		return "", err
	}
	if out.DataID == "" {
		return "", fmt.Errorf("%w: missing data_id", ErrUpstream)
	}
	return out.DataID, nil
}

// Result fetches the scan progress for dataID.
func (c *MetaDefenderClient) Result(ctx context.Context, dataID string) (*FileReport, error) {
	if c == nil || c.APIKey == "" {
		return nil, ErrNotConfigured
	}
	req, err := newRequest(ctx, http.MethodGet, c.BaseURL+"/file/"+url.PathEscape(dataID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.APIKey)
	var out mdFileResponse
	if err := doJSON(c.HTTPClient, req, &out); err != nil {
		return nil, err
	}
	sr := out.ScanResults
	report := &FileReport{
		DataID:        dataID,
		FileName:      out.FileInfo.DisplayName,
		FileSize:      out.FileInfo.FileSize,
		SHA256:        out.FileInfo.SHA256,
		Progress:      sr.ProgressPercentage,
		Completed:     sr.ProgressPercentage >= 100,
		TotalDetected: sr.TotalDetectedAVs,
		TotalEngines:  sr.TotalAVs,
	}
	if report.Completed {
		report.Result = sr.ScanAllResultA
	}
	return report, nil
}
