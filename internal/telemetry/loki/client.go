// Package loki pushes activity events to Grafana Loki's push API.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNoBaseURL is returned by Push when the client has no Loki URL.
var ErrNoBaseURL = errors.New("loki: base URL is empty")

const pushPath = "/loki/api/v1/push"

// Entry is one log line with its stream labels. The job label is added by the client.
type Entry struct {
	Time   time.Time
	Line   string
	Labels map[string]string
}

type pushRequest struct {
	Streams []stream `json:"streams"`
}

type stream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"` // [unix nanos, line]
}

var invalidLabelChars = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// eventFields is the part of an activity event that becomes labels and the timestamp.
// User ids stay in the line, not in labels, to keep stream cardinality low.
type eventFields struct {
	EventType string    `json:"eventType"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}

// Client pushes entries to one Loki instance.
type Client struct {
	BaseURL string
	// Job is the job label on every stream.
	Job        string
	HTTPClient *http.Client
}

// NewClient returns a Client for baseURL (e.g. http://localhost:3100).
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Job:        "onego",
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// EntryFromEvent turns an activity event JSON document into an Entry. The raw JSON is the line.
// An undecodable document is still pushed, stamped with now and without extra labels.
func EntryFromEvent(raw []byte, now time.Time) Entry {
	e := Entry{Time: now, Line: string(raw), Labels: map[string]string{}}
	var f eventFields
	if err := json.Unmarshal(raw, &f); err != nil {
		return e
	}
	if f.EventType != "" {
		e.Labels["event_type"] = f.EventType
	}
	if f.Source != "" {
		e.Labels["source"] = f.Source
	}
	if !f.CreatedAt.IsZero() {
		e.Time = f.CreatedAt
	}
	return e
}

// Push sends entries in one request, grouped into one stream per distinct label set.
func (c *Client) Push(ctx context.Context, entries []Entry) error {
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	if len(entries) == 0 {
		return nil
	}
	payload, err := json.Marshal(c.buildRequest(entries))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+pushPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("loki: push returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (c *Client) buildRequest(entries []Entry) pushRequest {
	byKey := map[string]*stream{}
	var order []string
	for _, e := range entries {
		labels := c.labels(e.Labels)
		key := labelKey(labels)
		s, ok := byKey[key]
		if !ok {
			s = &stream{Stream: labels}
			byKey[key] = s
			order = append(order, key)
		}
		s.Values = append(s.Values, [2]string{strconv.FormatInt(e.Time.UnixNano(), 10), e.Line})
	}
	req := pushRequest{Streams: make([]stream, 0, len(order))}
	for _, k := range order {
		s := byKey[k]
		// Loki rejects out-of-order lines within a stream.
		sort.SliceStable(s.Values, func(i, j int) bool {
			a, _ := strconv.ParseInt(s.Values[i][0], 10, 64)
			b, _ := strconv.ParseInt(s.Values[j][0], 10, 64)
			return a < b
		})
		req.Streams = append(req.Streams, *s)
	}
	return req
}

func (c *Client) labels(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+1)
	for k, v := range in {
		if v = invalidLabelChars.ReplaceAllString(strings.TrimSpace(v), "_"); v != "" {
			out[k] = v
		}
	}
	out["job"] = c.Job
	return out
}

func labelKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}
