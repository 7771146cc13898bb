package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultSMSLocalURL = "https://app.smslocal.in/api/smsapi"
)

// ErrNotConfigured is returned by SMSLocalClient.SendOTP when no API key is set.
var ErrNotConfigured = errors.New("sms: API key not configured")

// SMSLocalClient sends OTP messages through the SMS Local API (route "otp").
type SMSLocalClient struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

func NewSMSLocalClient(apiKey, baseURL, sender string) *SMSLocalClient {
	if baseURL == "" {
		baseURL = defaultSMSLocalURL
	}
	return &SMSLocalClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type smsLocalRequest struct {
	Route     string `json:"route"`
	Numbers   string `json:"numbers"`
	Variables string `json:"variables"`
	SenderID  string `json:"sender_id,omitempty"`
}

type smsLocalResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SendOTP texts code to phone. The API wants digits only, so the "+" of an E.164 number is
// dropped. A 200 whose body reports status "error" is a failure too. The code is never logged.
func (c *SMSLocalClient) SendOTP(ctx context.Context, phone, code string) error {
	if c.APIKey == "" {
		return ErrNotConfigured
	}
	raw, err := json.Marshal(smsLocalRequest{
		Route:     "otp",
		Numbers:   strings.TrimPrefix(phone, "+"),
		Variables: code,
		SenderID:  c.Sender,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: smslocal status=%d body=%s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out smsLocalResponse
	if json.Unmarshal(body, &out) == nil && strings.EqualFold(out.Status, "error") {
		return fmt.Errorf("%w: smslocal rejected message: %s", ErrUnavailable, out.Message)
	}
	return nil
}
