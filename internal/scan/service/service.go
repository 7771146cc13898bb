// Package service runs the security tools on behalf of an authenticated user and records every
// call in the activity log.
package service

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"onego-security/backend/internal/activity"
	activitydomain "onego-security/backend/internal/activity/domain"
	"onego-security/backend/internal/metrics"
	"onego-security/backend/internal/scan"
	userdomain "onego-security/backend/internal/user/domain"
	"onego-security/backend/internal/validation"
)

// ErrUserNotFound is returned when the caller's account no longer exists.
var ErrUserNotFound = errors.New("user not found")

// Tool names used for metrics labels.
const (
	ToolVirusTotal       = "virustotal"
	ToolMetaDefender     = "metadefender"
	ToolZAP              = "zap"
	ToolSpeedTest        = "speedtest"
	ToolPasswordStrength = "password_strength"
)

const resourceSecurity = "security"

// URLScanner looks up URL reputation.
type URLScanner interface {
	URLReport(ctx context.Context, rawURL string) (*scan.URLReport, error)
}

// FileScanner submits files and polls their verdicts.
type FileScanner interface {
	Submit(ctx context.Context, filename string, body io.Reader) (string, error)
	Result(ctx context.Context, dataID string) (*scan.FileReport, error)
}

// PageScanner spiders a page and reports alerts.
type PageScanner interface {
	StartSpider(ctx context.Context, target string) (string, error)
	SpiderProgress(ctx context.Context, scanID string) (int, error)
	Alerts(ctx context.Context, baseURL string) ([]scan.Alert, error)
}

// SpeedProbe measures download speed.
type SpeedProbe interface {
	Run(ctx context.Context) (*scan.SpeedResult, error)
}

// StrengthEvaluator scores a password.
type StrengthEvaluator interface {
	Evaluate(ctx context.Context, password string) (*scan.Strength, error)
}

// AdBlockStore reads and persists the ad-block preference.
type AdBlockStore interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	SetAdBlock(ctx context.Context, userID string, enabled bool) error
}

// Deps groups the collaborators of Service. Nil tools report scan.ErrNotConfigured.
type Deps struct {
	URLs     URLScanner
	Files    FileScanner
	Pages    PageScanner
	Speed    SpeedProbe
	Strength StrengthEvaluator
	Users    AdBlockStore
	Metrics  metrics.Recorder
	Activity activity.ActivityLogger
	Log      *zap.Logger
}

// FileSubmission is the accepted upload.
type FileSubmission struct {
	DataID   string `json:"dataId"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
}

// PageScan is a started spider scan.
type PageScan struct {
	ScanID string `json:"scanId"`
	URL    string `json:"url"`
}

// PageScanStatus is the progress of a spider scan. Alerts are filled once the scan completes
// and a target URL was supplied.
type PageScanStatus struct {
	ScanID    string       `json:"scanId"`
	Progress  int          `json:"progress"`
	Completed bool         `json:"completed"`
	Alerts    []scan.Alert `json:"alerts"`
}

// AdBlockState is the persisted preference.
type AdBlockState struct {
	Enabled bool `json:"enabled"`
}

// Service proxies the security tools.
type Service struct {
	urls     URLScanner
	files    FileScanner
	pages    PageScanner
	speed    SpeedProbe
	strength StrengthEvaluator
	users    AdBlockStore
	metrics  metrics.Recorder
	activity activity.ActivityLogger
	log      *zap.Logger
}

// NewService returns a Service.
func NewService(d Deps) *Service {
	s := &Service{
		urls:     d.URLs,
		files:    d.Files,
		pages:    d.Pages,
		speed:    d.Speed,
		strength: d.Strength,
		users:    d.Users,
		metrics:  d.Metrics,
		activity: d.Activity,
		log:      d.Log,
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// ScanURL returns the VirusTotal reputation of rawURL.
func (s *Service) ScanURL(ctx context.Context, userID, rawURL string) (*scan.URLReport, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := validateHTTPURL(rawURL); err != nil {
		return nil, err
	}
	if s.urls == nil {
		return nil, scan.ErrNotConfigured
	}
	report, err := s.urls.URLReport(ctx, rawURL)
	s.record(ToolVirusTotal, err)
	if err != nil {
		return nil, err
	}
	s.logActivity(ctx, userID, activitydomain.ActionScanURL, map[string]any{
		"url": rawURL, "status": report.Status, "verdict": report.Verdict,
	})
	return report, nil
}

// SubmitFile forwards an upload of size bytes to MetaDefender.
func (s *Service) SubmitFile(ctx context.Context, userID, filename string, size int64, body io.Reader) (*FileSubmission, error) {
	if size <= 0 {
		return nil, validation.Invalid("file", "File is empty")
	}
	if size > scan.MaxFileBytes {
		return nil, validation.Invalid("file", "File exceeds the 32 MiB limit")
	}
	if s.files == nil {
		return nil, scan.ErrNotConfigured
	}
	dataID, err := s.files.Submit(ctx, filename, io.LimitReader(body, scan.MaxFileBytes))
	s.record(ToolMetaDefender, err)
	if err != nil {
		return nil, err
	}
	s.logActivity(ctx, userID, activitydomain.ActionScanFile, map[string]any{
		"fileName": filename, "size": size, "dataId": dataID,
	})
	return &FileSubmission{DataID: dataID, FileName: filename, Size: size}, nil
}

// FileResult returns the MetaDefender progress for dataID.
func (s *Service) FileResult(ctx context.Context, userID, dataID string) (*scan.FileReport, error) {
	dataID = strings.TrimSpace(dataID)
	if dataID == "" {
		return nil, validation.Invalid("dataId", "dataId is required")
	}
	if s.files == nil {
		return nil, scan.ErrNotConfigured
	}
	report, err := s.files.Result(ctx, dataID)
	s.record(ToolMetaDefender, err)
	if err != nil {
		return nil, err
	}
	s.logActivity(ctx, userID, activitydomain.ActionScanFile, map[string]any{
		"dataId": dataID, "progress": report.Progress, "result": report.Result,
	})
	return report, nil
}

// StartPageScan spiders target with ZAP. Private and loopback targets are rejected.
func (s *Service) StartPageScan(ctx context.Context, userID, target string) (*PageScan, error) {
	target = strings.TrimSpace(target)
	if err := scan.ValidateTarget(target); err != nil {
		return nil, validation.Invalid("url", "URL must be a public http or https address")
	}
	if s.pages == nil {
		return nil, scan.ErrNotConfigured
	}
	scanID, err := s.pages.StartSpider(ctx, target)
	s.record(ToolZAP, err)
	if err != nil {
		return nil, err
	}
	s.logActivity(ctx, userID, activitydomain.ActionScanPage, map[string]any{"url": target, "scanId": scanID})
	return &PageScan{ScanID: scanID, URL: target}, nil
}

// PageScanStatus reports spider progress, and the alerts for target once complete.
func (s *Service) PageScanStatus(ctx context.Context, userID, scanID, target string) (*PageScanStatus, error) {
	scanID = strings.TrimSpace(scanID)
	if scanID == "" {
		return nil, validation.Invalid("scanId", "scanId is required")
	}
	target = strings.TrimSpace(target)
	if target != "" {
		if err := scan.ValidateTarget(target); err != nil {
			return nil, validation.Invalid("url", "URL must be a public http or https address")
		}
	}
	if s.pages == nil {
		return nil, scan.ErrNotConfigured
	}
	progress, err := s.pages.SpiderProgress(ctx, scanID)
	if err != nil {
		s.record(ToolZAP, err)
		return nil, err
	}
	status := &PageScanStatus{ScanID: scanID, Progress: progress, Completed: progress >= 100, Alerts: []scan.Alert{}}
	if status.Completed && target != "" {
		alerts, err := s.pages.Alerts(ctx, target)
		if err != nil {
			s.record(ToolZAP, err)
			return nil, err
		}
		status.Alerts = alerts
	}
	s.record(ToolZAP, nil)
	s.logActivity(ctx, userID, activitydomain.ActionScanPage, map[string]any{
		"scanId": scanID, "progress": progress, "alerts": len(status.Alerts),
	})
	return status, nil
}

// SpeedTest runs one download measurement.
func (s *Service) SpeedTest(ctx context.Context, userID string) (*scan.SpeedResult, error) {
	if s.speed == nil {
		return nil, scan.ErrNotConfigured
	}
	res, err := s.speed.Run(ctx)
	s.record(ToolSpeedTest, err)
	if err != nil {
		return nil, err
	}
	s.logActivity(ctx, userID, activitydomain.ActionSpeedTest, map[string]any{
		"latencyMs": res.LatencyMs, "mbps": res.Mbps,
	})
	return res, nil
}

// PasswordStrength scores password. Only the score reaches the activity log.
func (s *Service) PasswordStrength(ctx context.Context, userID, password string) (*scan.Strength, error) {
	if password == "" {
		return nil, validation.Invalid("password", "password is required")
	}
	if len(password) > 256 {
		return nil, validation.Invalid("password", "password must be at most 256 characters")
	}
	if s.strength == nil {
		return nil, scan.ErrNotConfigured
	}
	res, err := s.strength.Evaluate(ctx, password)
	s.record(ToolPasswordStrength, err)
	if err != nil {
		return nil, err
	}
	s.logActivity(ctx, userID, activitydomain.ActionPasswordStrength, map[string]any{"score": res.Score})
	return res, nil
}

// AdBlock returns the caller's ad-block preference.
func (s *Service) AdBlock(ctx context.Context, userID string) (*AdBlockState, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return &AdBlockState{Enabled: u.AdBlockEnabled}, nil
}

// SetAdBlock persists the caller's ad-block preference.
func (s *Service) SetAdBlock(ctx context.Context, userID string, enabled bool) (*AdBlockState, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	if err := s.users.SetAdBlock(ctx, userID, enabled); err != nil {
		return nil, err
	}
	s.logActivity(ctx, userID, activitydomain.ActionAdBlockToggle, map[string]any{"enabled": enabled})
	return &AdBlockState{Enabled: enabled}, nil
}

func (s *Service) record(tool string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, scan.ErrNotConfigured):
		outcome = "not_configured"
	case errors.Is(err, scan.ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
		s.log.Warn("scan: tool call failed", zap.String("tool", tool), zap.Error(err))
	}
	s.metrics.RecordScan(tool, outcome)
}

func (s *Service) logActivity(ctx context.Context, userID, action string, metadata map[string]any) {
	if s.activity != nil {
		s.activity.LogEvent(ctx, userID, action, resourceSecurity, metadata)
	}
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return validation.Invalid("url", "url is required")
	}
	if len(raw) > 2048 {
		return validation.Invalid("url", "url must be at most 2048 characters")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return validation.Invalid("url", "url must be an absolute http or https URL")
	}
	return nil
}
