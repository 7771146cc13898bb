package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		l := New(tt.level, "development")
		if !l.Core().Enabled(tt.want) {
			t.Errorf("New(%q): level %v should be enabled", tt.level, tt.want)
		}
		if tt.want > zapcore.DebugLevel && l.Core().Enabled(tt.want-1) {
			t.Errorf("New(%q): level %v should be disabled", tt.level, tt.want-1)
		}
	}
}

func TestNew_Production(t *testing.T) {
	l := New("info", "production")
	if l == nil {
		t.Fatal("New returned nil")
	}
	WithComponent(l, "test").Info("hello")
}
