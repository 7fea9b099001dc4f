package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		env, level string
		want       zapcore.Level
	}{
		{"production", "info", zapcore.InfoLevel},
		{"development", "debug", zapcore.DebugLevel},
		{"development", " WARN ", zapcore.WarnLevel},
	}
	for _, tt := range tests {
		log, err := New(tt.env, tt.level)
		if err != nil {
			t.Fatalf("New(%q, %q): %v", tt.env, tt.level, err)
		}
		if !log.Core().Enabled(tt.want) {
			t.Fatalf("%s logger does not enable %v", tt.env, tt.want)
		}
		if tt.want > zapcore.DebugLevel && log.Core().Enabled(tt.want-1) {
			t.Fatalf("%s logger enables %v below %v", tt.env, tt.want-1, tt.want)
		}
	}
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	if _, err := New("production", "loud"); err == nil {
		t.Fatalf("expected an error for an unknown level")
	}
}
