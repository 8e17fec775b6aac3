package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLoggerParsesLevel(t *testing.T) {
	if got := NewLogger("debug").GetLevel(); got != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", got)
	}
	if got := NewLogger("nonsense").GetLevel(); got != logrus.InfoLevel {
		t.Fatalf("expected info fallback, got %s", got)
	}
}

func TestWithComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("info")
	l.SetOutput(&buf)
	WithComponent(l, "search").Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json log line: %v", err)
	}
	if entry["component"] != "search" {
		t.Fatalf("expected component field, got %v", entry)
	}
}

func TestWithComponentNilLogger(t *testing.T) {
	if WithComponent(nil, "x") == nil {
		t.Fatalf("expected non-nil entry")
	}
}
