package otel

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"onego-security/backend/internal/telemetry"
	"onego-security/backend/internal/telemetry/domain"
)

const (
	instrumentationName = "onego.activity"
	eventNamePrefix     = "onego."
)

// Account-level changes are emitted at WARN so they stand out in the log backend.
var warnEvents = map[string]bool{
	"account_delete": true,
	"password_reset": true,
	"session_revoke": true,
}

// NewEventEmitter returns an emitter writing activity events as OTel log records through
// provider. A nil provider gives an emitter that drops everything.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return NewEventEmitterWithLogger(provider.Logger(instrumentationName))
}

func NewEventEmitterWithLogger(logger otellog.Logger) telemetry.EventEmitter {
	return &logEmitter{logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.Event) error { return nil }

type logEmitter struct {
	logger otellog.Logger
	now    func() time.Time
}

// Emit builds one record per event: the event type becomes the event name and an attribute,
// metadata objects become a map body and anything else is kept as raw bytes.
func (e *logEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return nil
	}
	sev, sevText := otellog.SeverityInfo, "INFO"
	if warnEvents[event.EventType] {
		sev, sevText = otellog.SeverityWarn, "WARN"
	}
	if !e.logger.Enabled(ctx, otellog.EnabledParameters{Severity: sev}) {
		return nil
	}

	var rec otellog.Record
	rec.SetSeverity(sev)
	rec.SetSeverityText(sevText)
	rec.SetObservedTimestamp(e.now())
	if event.CreatedAt.IsZero() {
		rec.SetTimestamp(e.now())
	} else {
		rec.SetTimestamp(event.CreatedAt)
	}
	if event.EventType != "" {
		rec.SetEventName(eventNamePrefix + event.EventType)
	}
	if body, ok := metadataBody(event.Metadata); ok {
		rec.SetBody(body)
	}

	attrs := make([]otellog.KeyValue, 0, 5)
	for _, kv := range []otellog.KeyValue{
		otellog.String("event_type", event.EventType),
		otellog.String("source", event.Source),
		otellog.String("user_id", event.UserID),
		otellog.String("session_id", event.SessionID),
		otellog.String("client_ip", event.IP),
	} {
		if kv.Value.AsString() != "" {
			attrs = append(attrs, kv)
		}
	}
	rec.AddAttributes(attrs...)
	e.logger.Emit(ctx, rec)
	return nil
}

// metadataBody converts event metadata to a log body. Keys are sorted so records are stable.
func metadataBody(raw json.RawMessage) (otellog.Value, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return otellog.Value{}, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return otellog.BytesValue(raw), true
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kvs := make([]otellog.KeyValue, 0, len(keys))
	for _, k := range keys {
		kvs = append(kvs, otellog.KeyValue{Key: k, Value: scalarValue(obj[k])})
	}
	return otellog.MapValue(kvs...), true
}

// scalarValue maps JSON scalars to typed values; arrays and objects stay as their JSON text.
func scalarValue(raw json.RawMessage) otellog.Value {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return otellog.StringValue(string(raw))
	}
	switch t := v.(type) {
	case string:
		return otellog.StringValue(t)
	case bool:
		return otellog.BoolValue(t)
	case float64:
		if t == float64(int64(t)) {
			return otellog.Int64Value(int64(t))
		}
		return otellog.Float64Value(t)
	case nil:
		return otellog.Value{}
	default:
		return otellog.StringValue(string(raw))
	}
}
