package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	activitydomain "onego-security/backend/internal/activity/domain"
	"onego-security/backend/internal/scan"
	userdomain "onego-security/backend/internal/user/domain"
	"onego-security/backend/internal/validation"
)

type loggedEvent struct {
	userID   string
	action   string
	resource string
	metadata map[string]any
}

type recordingActivity struct {
	mu     sync.Mutex
	events []loggedEvent
}

func (r *recordingActivity) LogEvent(ctx context.Context, userID, action, resource string, metadata map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, loggedEvent{userID, action, resource, metadata})
}

func (r *recordingActivity) last(t *testing.T) loggedEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.events, "no activity logged")
	return r.events[len(r.events)-1]
}

type scanCount struct{ tool, outcome string }

type recordingMetrics struct {
	scans []scanCount
}

func (m *recordingMetrics) RecordRegistration(string)           {}
func (m *recordingMetrics) RecordOTPVerification(string, string) {}
func (m *recordingMetrics) RecordScan(tool, outcome string) {
	m.scans = append(m.scans, scanCount{tool, outcome})
}

type fakeURLs struct {
	report *scan.URLReport
	err    error
	got    string
}

func (f *fakeURLs) URLReport(ctx context.Context, rawURL string) (*scan.URLReport, error) {
	f.got = rawURL
	return f.report, f.err
}

type fakeFiles struct {
	body   string
	report *scan.FileReport
	err    error
}

func (f *fakeFiles) Submit(ctx context.Context, filename string, body io.Reader) (string, error) {
	b, _ := io.ReadAll(body)
	f.body = string(b)
	if f.err != nil {
		return "", f.err
	}
	return "d-1", nil
}

func (f *fakeFiles) Result(ctx context.Context, dataID string) (*scan.FileReport, error) {
	return f.report, f.err
}

type fakePages struct {
	progress    int
	alerts      []scan.Alert
	alertsAsked bool
}

func (f *fakePages) StartSpider(ctx context.Context, target string) (string, error) {
	return "9", nil
}

func (f *fakePages) SpiderProgress(ctx context.Context, scanID string) (int, error) {
	if scanID == "missing" {
		return 0, scan.ErrUpstream
	}
	return f.progress, nil
}

func (f *fakePages) Alerts(ctx context.Context, baseURL string) ([]scan.Alert, error) {
	f.alertsAsked = true
	return f.alerts, nil
}

type fakeSpeed struct{ err error }

func (f fakeSpeed) Run(ctx context.Context) (*scan.SpeedResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &scan.SpeedResult{LatencyMs: 12, Bytes: 1000, Mbps: 42.5}, nil
}

type fakeStrength struct{ got string }

func (f *fakeStrength) Evaluate(ctx context.Context, password string) (*scan.Strength, error) {
	f.got = password
	return &scan.Strength{Score: 3, Label: "strong", Suggestions: []string{}}, nil
}

type memUsers struct {
	users map[string]*userdomain.User
}

func (m *memUsers) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	return m.users[id], nil
}

func (m *memUsers) SetAdBlock(ctx context.Context, userID string, enabled bool) error {
	m.users[userID].AdBlockEnabled = enabled
	return nil
}

type env struct {
	svc      *Service
	urls     *fakeURLs
	files    *fakeFiles
	pages    *fakePages
	strength *fakeStrength
	users    *memUsers
	activity *recordingActivity
	metrics  *recordingMetrics
}

func newEnv() *env {
	e := &env{
		urls:     &fakeURLs{report: &scan.URLReport{Status: scan.URLStatusCompleted, Verdict: scan.VerdictClean}},
		files:    &fakeFiles{},
		pages:    &fakePages{},
		strength: &fakeStrength{},
		users:    &memUsers{users: map[string]*userdomain.User{"u1": {ID: "u1"}}},
		activity: &recordingActivity{},
		metrics:  &recordingMetrics{},
	}
	e.svc = NewService(Deps{
		URLs:     e.urls,
		Files:    e.files,
		Pages:    e.pages,
		Speed:    fakeSpeed{},
		Strength: e.strength,
		Users:    e.users,
		Metrics:  e.metrics,
		Activity: e.activity,
	})
	return e
}

func TestScanURL(t *testing.T) {
	e := newEnv()

	report, err := e.svc.ScanURL(context.Background(), "u1", "  https://example.com  ")
	require.NoError(t, err)
	assert.Equal(t, scan.VerdictClean, report.Verdict)
	assert.Equal(t, "https://example.com", e.urls.got)

	ev := e.activity.last(t)
	assert.Equal(t, "u1", ev.userID)
	assert.Equal(t, activitydomain.ActionScanURL, ev.action)
	assert.Equal(t, "security", ev.resource)
	assert.Equal(t, []scanCount{{ToolVirusTotal, "ok"}}, e.metrics.scans)
}

func TestScanURL_Validation(t *testing.T) {
	e := newEnv()
	for _, raw := range []string{"", "not a url", "ftp://example.com", "https://", strings.Repeat("a", 2100)} {
		_, err := e.svc.ScanURL(context.Background(), "u1", raw)
		assert.ErrorIs(t, err, validation.ErrInvalid, "url %q", raw)
	}
	assert.Empty(t, e.activity.events)
}

func TestScanURL_UpstreamFailure(t *testing.T) {
	e := newEnv()
	e.urls.err = scan.ErrUpstream

	_, err := e.svc.ScanURL(context.Background(), "u1", "https://example.com")
	assert.ErrorIs(t, err, scan.ErrUpstream)
	assert.Empty(t, e.activity.events)
	assert.Equal(t, []scanCount{{ToolVirusTotal, "error"}}, e.metrics.scans)
}

func TestScanURL_NotConfigured(t *testing.T) {
	svc := NewService(Deps{})
	_, err := svc.ScanURL(context.Background(), "u1", "https://example.com")
	assert.ErrorIs(t, err, scan.ErrNotConfigured)
}

func TestSubmitFile(t *testing.T) {
	e := newEnv()

	sub, err := e.svc.SubmitFile(context.Background(), "u1", "a.txt", 5, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "d-1", sub.DataID)
	assert.Equal(t, "hello", e.files.body)
	assert.Equal(t, activitydomain.ActionScanFile, e.activity.last(t).action)

	_, err = e.svc.SubmitFile(context.Background(), "u1", "a.txt", 0, strings.NewReader(""))
	assert.ErrorIs(t, err, validation.ErrInvalid)
	_, err = e.svc.SubmitFile(context.Background(), "u1", "big.bin", scan.MaxFileBytes+1, strings.NewReader("x"))
	assert.ErrorIs(t, err, validation.ErrInvalid)
}

func TestFileResult(t *testing.T) {
	e := newEnv()
	e.files.report = &scan.FileReport{DataID: "d-1", Progress: 100, Completed: true, Result: "No Threat Detected"}

	report, err := e.svc.FileResult(context.Background(), "u1", "d-1")
	require.NoError(t, err)
	assert.True(t, report.Completed)

	e.files.err = scan.ErrNotFound
	_, err = e.svc.FileResult(context.Background(), "u1", "d-x")
	assert.ErrorIs(t, err, scan.ErrNotFound)
	assert.Equal(t, scanCount{ToolMetaDefender, "not_found"}, e.metrics.scans[len(e.metrics.scans)-1])

	_, err = e.svc.FileResult(context.Background(), "u1", " ")
	assert.ErrorIs(t, err, validation.ErrInvalid)
}

func TestStartPageScan_RejectsPrivateTargets(t *testing.T) {
	e := newEnv()
	for _, target := range []string{"http://localhost", "http://10.0.0.1", "file:///etc/passwd"} {
		_, err := e.svc.StartPageScan(context.Background(), "u1", target)
		assert.ErrorIs(t, err, validation.ErrInvalid, target)
	}

	ps, err := e.svc.StartPageScan(context.Background(), "u1", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "9", ps.ScanID)
	assert.Equal(t, activitydomain.ActionScanPage, e.activity.last(t).action)
}

func TestPageScanStatus(t *testing.T) {
	e := newEnv()
	e.pages.progress = 50

	st, err := e.svc.PageScanStatus(context.Background(), "u1", "9", "https://example.com")
	require.NoError(t, err)
	assert.False(t, st.Completed)
	assert.Empty(t, st.Alerts)
	assert.False(t, e.pages.alertsAsked)

	e.pages.progress = 100
	e.pages.alerts = []scan.Alert{{Name: "CSP Header Not Set", Risk: "Medium"}}
	st, err = e.svc.PageScanStatus(context.Background(), "u1", "9", "https://example.com")
	require.NoError(t, err)
	assert.True(t, st.Completed)
	assert.Len(t, st.Alerts, 1)

	_, err = e.svc.PageScanStatus(context.Background(), "u1", "missing", "")
	assert.ErrorIs(t, err, scan.ErrUpstream)
}

func TestSpeedTest(t *testing.T) {
	e := newEnv()

	res, err := e.svc.SpeedTest(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 42.5, res.Mbps)
	assert.Equal(t, activitydomain.ActionSpeedTest, e.activity.last(t).action)

	failing := NewService(Deps{Speed: fakeSpeed{err: scan.ErrUpstream}})
	_, err = failing.SpeedTest(context.Background(), "u1")
	assert.True(t, errors.Is(err, scan.ErrUpstream))
}

func TestPasswordStrength_KeepsPasswordOutOfActivity(t *testing.T) {
	e := newEnv()

	res, err := e.svc.PasswordStrength(context.Background(), "u1", "Hunter2!secret")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Score)
	assert.Equal(t, "Hunter2!secret", e.strength.got)

	ev := e.activity.last(t)
	assert.Equal(t, activitydomain.ActionPasswordStrength, ev.action)
	assert.Equal(t, map[string]any{"score": 3}, ev.metadata)

	_, err = e.svc.PasswordStrength(context.Background(), "u1", "")
	assert.ErrorIs(t, err, validation.ErrInvalid)
}

func TestAdBlock(t *testing.T) {
	e := newEnv()

	st, err := e.svc.AdBlock(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, st.Enabled)

	st, err = e.svc.SetAdBlock(context.Background(), "u1", true)
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.True(t, e.users.users["u1"].AdBlockEnabled)
	ev := e.activity.last(t)
	assert.Equal(t, activitydomain.ActionAdBlockToggle, ev.action)
	assert.Equal(t, map[string]any{"enabled": true}, ev.metadata)

	_, err = e.svc.AdBlock(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = e.svc.SetAdBlock(context.Background(), "ghost", true)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
