package nlog_test

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/dashrun/dash/cmn/nlog"
)

func TestInfofWritesTaggedLine(t *testing.T) {
	var buf bytes.Buffer
	nlog.SetOutput(&buf)
	defer nlog.SetOutput(os.Stderr)

	nlog.Infof("node %d spawned", 7)
	line := buf.String()
	if !strings.HasPrefix(line, "I") {
		t.Errorf("Infof line should start with the 'I' severity tag, got %q", line)
	}
	if !strings.Contains(line, "node 7 spawned") {
		t.Errorf("Infof line missing formatted message: %q", line)
	}
}

func TestErrorfUsesErrorTag(t *testing.T) {
	var buf bytes.Buffer
	nlog.SetOutput(&buf)
	defer nlog.SetOutput(os.Stderr)

	nlog.Errorf("run failed: %v", "boom")
	if !strings.HasPrefix(buf.String(), "E") {
		t.Errorf("Errorf line should start with the 'E' severity tag, got %q", buf.String())
	}
}

func TestSetTitleIsPrefixedOnEveryLine(t *testing.T) {
	var buf bytes.Buffer
	nlog.SetOutput(&buf)
	nlog.SetTitle("server[10.0.0.2:9000]")
	defer func() {
		nlog.SetOutput(os.Stderr)
		nlog.SetTitle("")
	}()

	nlog.Infof("listening")
	if !strings.Contains(buf.String(), "server[10.0.0.2:9000]") {
		t.Errorf("log line missing title: %q", buf.String())
	}
}
