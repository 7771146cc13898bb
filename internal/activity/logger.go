// Package activity records user-visible account and security-tool activity.
package activity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"onego-security/backend/internal/activity/domain"
	activityrepo "onego-security/backend/internal/activity/repository"
	"onego-security/backend/internal/telemetry"
	telemetrydomain "onego-security/backend/internal/telemetry/domain"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// SessionExtractor returns the auth session bound to the request, or "".
type SessionExtractor func(context.Context) string

// ActivityLogger writes a single activity entry. Used by every service that performs a user action.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type ActivityLogger interface {
	LogEvent(ctx context.Context, userID, action, resource string, metadata map[string]any)
}

// Logger implements ActivityLogger using the activity repository and an optional event emitter.
type Logger struct {
	repo        activityrepo.Repository
	emitter     telemetry.EventEmitter
	ipExtractor IPExtractor
	sessionOf   SessionExtractor
	log         *zap.Logger
}

// NewLogger returns an ActivityLogger that persists to repo and publishes to emitter.
// emitter and ipExtractor may be nil; without an extractor the IP is recorded as "unknown".
func NewLogger(repo activityrepo.Repository, emitter telemetry.EventEmitter, ipExtractor IPExtractor, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{repo: repo, emitter: emitter, ipExtractor: ipExtractor, log: log}
}

// WithSessionExtractor makes published events carry the caller's session id.
// The stored entry does not keep it.
func (l *Logger) WithSessionExtractor(fn SessionExtractor) *Logger {
	l.sessionOf = fn
	return l
}

// LogEvent writes one activity entry and publishes it as an event. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource string, metadata map[string]any) {
	if l == nil || userID == "" {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	meta := json.RawMessage("{}")
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			l.log.Warn("activity: metadata not serialisable", zap.String("action", action), zap.Error(err))
		} else {
			meta = raw
		}
	}
	entry := &domain.Entry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
	if l.repo != nil {
		if err := l.repo.Create(ctx, entry); err != nil {
			l.log.Error("activity: failed to log event",
				zap.String("action", action), zap.String("resource", resource), zap.Error(err))
		}
	}
	var sessionID string
	if l.sessionOf != nil {
		sessionID = l.sessionOf(ctx)
	}
	telemetry.EmitAsync(l.log, l.emitter, &telemetrydomain.Event{
		UserID:    userID,
		SessionID: sessionID,
		EventType: action,
		Source:    "activity",
		IP:        ip,
		Metadata:  meta,
		CreatedAt: entry.CreatedAt,
	})
}
