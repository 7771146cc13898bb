package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Twilio error codes returned by the Verify v2 API.
const (
	twilioCodeNotFound         = 20404
	twilioCodeMaxCheckAttempts = 60202
	twilioCodeMaxSendAttempts  = 60203
)

// TwilioVerifier delegates code generation and checking to Twilio Verify.
type TwilioVerifier struct {
	AccountSID string
	AuthToken  string
	ServiceSID string
	BaseURL    string
	HTTPClient *http.Client
}

// NewTwilioVerifier returns a verifier for the given Verify service.
func NewTwilioVerifier(accountSID, authToken, serviceSID, baseURL string) *TwilioVerifier {
	if baseURL == "" {
		baseURL = "https://verify.twilio.com/v2"
	}
	return &TwilioVerifier{
		AccountSID: accountSID,
		AuthToken:  authToken,
		ServiceSID: serviceSID,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type twilioVerification struct {
	Status string `json:"status"`
	Valid  bool   `json:"valid"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Send starts an SMS verification for phone.
func (v *TwilioVerifier) Send(ctx context.Context, phone string) error {
	form := url.Values{"To": {phone}, "Channel": {"sms"}}
	_, err := v.post(ctx, "Verifications", form)
	return err
}

// Check submits code for phone. "approved" means verified; "pending" means the code was wrong.
func (v *TwilioVerifier) Check(ctx context.Context, phone, code string) (bool, error) {
	form := url.Values{"To": {phone}, "Code": {code}}
	res, err := v.post(ctx, "VerificationCheck", form)
	if err != nil {
		return false, err
	}
	switch res.Status {
	case "approved":
		return true, nil
	case "pending":
		return false, nil
	case "canceled", "expired":
		return false, ErrCodeExpired
	default:
		return false, fmt.Errorf("%w: unexpected status %q", ErrUnavailable, res.Status)
	}
}

func (v *TwilioVerifier) post(ctx context.Context, resource string, form url.Values) (*twilioVerification, error) {
	if v.AccountSID == "" || v.AuthToken == "" || v.ServiceSID == "" {
		return nil, fmt.Errorf("%w: twilio credentials not configured", ErrUnavailable)
	}
	endpoint := fmt.Sprintf("%s/Services/%s/%s", v.BaseURL, url.PathEscape(v.ServiceSID), resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(v.AccountSID, v.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := v.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 300 {
		var te twilioError
		_ = json.Unmarshal(raw, &te)
		switch te.Code {
		case twilioCodeNotFound:
			return nil, ErrCodeExpired
		case twilioCodeMaxCheckAttempts, twilioCodeMaxSendAttempts:
			return nil, ErrTooManyAttempts
		}
		return nil, fmt.Errorf("%w: status=%d code=%d", ErrUnavailable, resp.StatusCode, te.Code)
	}
	var out twilioVerification
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &out, nil
}
