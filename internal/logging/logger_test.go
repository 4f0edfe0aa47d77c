// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", "json", &buf)
	logger.Info("hello")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New("debug", "text", &buf)
	logger.Debug("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("expected text output, got %q", buf.String())
	}
}

func TestNew_UnknownFormatFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", "unknown", &buf)
	logger.Info("hello")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("expected JSON fallback, got %q", buf.String())
	}
}

func TestNew_AllLevels(t *testing.T) {
	levels := []string{"debug", "info", "warn", "warning", "error", "unknown"}
	for _, level := range levels {
		var buf bytes.Buffer
		logger := New(level, "json", &buf)
		if logger == nil {
			t.Errorf("expected non-nil logger for level %q", level)
		}
	}
}

func TestNew_ErrorLevelFiltersInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New("error", "json", &buf)
	logger.Info("should be filtered")
	if buf.Len() != 0 {
		t.Fatalf("expected no output at error level for an info log, got %q", buf.String())
	}
}

func TestNew_NilWriterFallsBackToStderr(t *testing.T) {
	logger := New("info", "json", nil)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}
