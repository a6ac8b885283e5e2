package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerFunctions(t *testing.T) {
	Init("invalid") // should default to info
	if log == nil {
		t.Fatal("log not initialized")
	}
	// Avoid os.Exit on Fatal
	log.ExitFunc = func(int) {}

	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")
	Debugf("%s", "debugf")
	Infof("%s", "infof")
	Warnf("%s", "warnf")
	Errorf("%s", "errorf")
	Fatal("fatal")
	Fatalf("%s", "fatalf")
}

func TestEnabled(t *testing.T) {
	Init("warn")
	if Enabled("debug") {
		t.Fatal("debug should be disabled at warn level")
	}
	if !Enabled("error") {
		t.Fatal("error should be enabled at warn level")
	}
	if Enabled("nonsense") {
		t.Fatal("unknown level should report disabled")
	}
}

func TestWithFieldsWritesStructuredKeys(t *testing.T) {
	Init("debug")
	var buf bytes.Buffer
	log.SetOutput(&buf)

	WithFields(Fields{"parser": "mbr", "offset": 512}).Debug("candidate rejected")

	out := buf.String()
	if !strings.Contains(out, "parser=mbr") || !strings.Contains(out, "offset=512") {
		t.Fatalf("expected structured fields in output, got %q", out)
	}
}
