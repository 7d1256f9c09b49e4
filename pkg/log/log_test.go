package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	scierrors "github.com/YuminosukeSato/airq/pkg/errors"
)

func TestTestLoggerLevels(t *testing.T) {
	logger, _ := NewTestLogger(LevelInfo)

	logger.Debug("hidden")
	logger.Info("info message", "key1", "value1", "number", 42)
	logger.Warn("warning message")
	logger.Error("error message", fmt.Errorf("boom"), ErrorCodeKey, ErrorInvalidInput)

	if logger.ContainsMessage("hidden") {
		t.Error("Debug message should not appear when level is Info")
	}
	for _, msg := range []string{"info message", "warning message", "error message"} {
		if !logger.ContainsMessage(msg) {
			t.Errorf("%q not found", msg)
		}
	}
	if !logger.ContainsField("number", 42.0) {
		t.Error("Expected field number=42 not found")
	}
	if !logger.ContainsField("error", "boom") {
		t.Error("leading error should be logged under 'error'")
	}
	if !logger.ContainsField(ErrorCodeKey, ErrorInvalidInput) {
		t.Error("fields after the error should be kept")
	}
}

func TestTestLoggerWith(t *testing.T) {
	logger, _ := NewTestLogger(LevelDebug)

	child := logger.With(ModelNameKey, "RandomForestRegressor", ComponentKey, "ensemble")
	child.Info("fit", OperationKey, OperationFit, SamplesKey, 1000)

	entries, err := logger.GetLogEntries()
	if err != nil {
		t.Fatalf("Failed to parse log entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}

	expected := map[string]interface{}{
		ModelNameKey: "RandomForestRegressor",
		ComponentKey: "ensemble",
		OperationKey: OperationFit,
		SamplesKey:   1000.0,
	}
	for key, want := range expected {
		if got := entries[0][key]; got != want {
			t.Errorf("Field %s: expected %v, got %v", key, want, got)
		}
	}
}

func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelInfo)

	if logger.Enabled(context.Background(), LevelDebug) {
		t.Error("debug should be disabled at info level")
	}
	if !logger.Enabled(context.Background(), LevelError) {
		t.Error("error should be enabled at info level")
	}

	logger.With(ComponentKey, "aqi").Info("trained", SamplesKey, 12)
	logger.Debug("dropped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["message"] != "trained" || entry[ComponentKey] != "aqi" || entry[SamplesKey] != 12.0 {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestZerologLoggerErrorDetail(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelDebug)

	err := scierrors.NewInputShapeError("prediction", []int{1, 5}, []int{1, 3})
	logger.Error("predict failed", err, OperationKey, OperationPredict)

	var entry map[string]interface{}
	if jerr := json.Unmarshal(buf.Bytes(), &entry); jerr != nil {
		t.Fatal(jerr)
	}
	if !strings.Contains(entry["error"].(string), "input shape mismatch") {
		t.Errorf("error message missing: %v", entry["error"])
	}
	detail, ok := entry["error.detail"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected structured error detail, got %v", entry["error.detail"])
	}
	if detail["type"] != "InputShapeError" {
		t.Errorf("detail type = %v", detail["type"])
	}
	if entry[OperationKey] != OperationPredict {
		t.Errorf("operation field missing: %v", entry)
	}
}

func TestSetupRoutesWarnings(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Setup("debug", "json", &buf); err != nil {
		t.Fatal(err)
	}
	defer scierrors.SetZerologWarnFunc(nil)

	GetLoggerWithName("dataset").Info("loaded")
	scierrors.Warn(scierrors.NewDataConversionWarning("string", "float64", "2 rows dropped"))

	out := buf.String()
	if !strings.Contains(out, `"ml.component":"dataset"`) {
		t.Errorf("named logger output missing component: %s", out)
	}
	if !strings.Contains(out, "2 rows dropped") || !strings.Contains(out, "DataConversionWarning") {
		t.Errorf("warning not routed to zerolog: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := Setup("info", "xml", &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown format")
	}
}
