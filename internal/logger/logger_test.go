package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewModes(t *testing.T) {
	l, err := New("prod", "warn")
	if err != nil {
		t.Fatalf("prod: %v", err)
	}
	if l.Core().Enabled(zapcore.InfoLevel) || !l.Core().Enabled(zapcore.WarnLevel) {
		t.Fatalf("expected warn level")
	}
	dev, err := New("", "")
	if err != nil {
		t.Fatalf("dev: %v", err)
	}
	if !dev.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("development logger should log debug")
	}
	nop, err := New("off", "")
	if err != nil || nop.Core().Enabled(zapcore.ErrorLevel) {
		t.Fatalf("expected nop logger, got err %v", err)
	}
	if _, err := New("dev", "loud"); err == nil {
		t.Fatalf("expected invalid level error")
	}
}
