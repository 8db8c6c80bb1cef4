package log

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/omahs/hotmoka/errors"
)

func TestPrintkv(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	Printkv(context.Background(), "msg", "hello", "n", 42)
	got := buf.String()
	if !strings.Contains(got, "msg=hello") {
		t.Errorf("output %q does not contain msg=hello", got)
	}
	if !strings.Contains(got, "n=42") {
		t.Errorf("output %q does not contain n=42", got)
	}
	if !strings.Contains(got, "at=log_test.go:") {
		t.Errorf("output %q does not contain caller", got)
	}
}

func TestPrintkvOddArgs(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	Printkv(context.Background(), "k")
	if !strings.Contains(buf.String(), keyLogError) {
		t.Errorf("odd-length args should log %s, got %q", keyLogError, buf.String())
	}
}

func TestError(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	Error(context.Background(), errors.Wrap(errors.New("boom"), "ctx"))
	got := buf.String()
	if !strings.Contains(got, "error=") {
		t.Errorf("output %q does not contain error=", got)
	}
	if !strings.Contains(got, "boom") {
		t.Errorf("output %q does not contain the root cause", got)
	}
}

func TestFormatValueQuoting(t *testing.T) {
	if got := formatValue("a b"); got != `"a b"` {
		t.Errorf("formatValue(%q) = %s", "a b", got)
	}
	if got := formatValue("ab"); got != "ab" {
		t.Errorf("formatValue(%q) = %s", "ab", got)
	}
}
