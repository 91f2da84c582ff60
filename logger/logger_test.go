package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestConfigureReportLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("report", "text", "stderr", 0); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if got := log.GetLevel().String(); got != "info" {
		t.Fatalf("level = %s, want info", got)
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "feed.log")
	log := Logger()
	if err := log.Configure("info", "json", path, 0); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	log.WithComponent("feed").Info("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var line map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(data), &line); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, data)
	}
	if line["message"] != "hello" || line["component"] != "feed" {
		t.Fatalf("unexpected log line: %v", line)
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("timestamp key missing: %v", line)
	}
}

func TestWithEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	log := Logger()
	entry := log.WithEnv("FOO")
	if v, ok := entry.Entry.Data["FOO"]; !ok || v != "bar" {
		t.Fatalf("env field not set: %v", entry.Entry.Data)
	}
}

func TestCallerPointsOutsideLogger(t *testing.T) {
	var buf bytes.Buffer
	log := Logger()
	log.SetOutput(&buf)
	log.WithComponent("x").Info("where")

	var line map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := line["file"]; !ok {
		t.Fatalf("file key missing: %v", line)
	}
}

func TestCounters(t *testing.T) {
	IncrementCounter("test_counter")
	IncrementCounter("test_counter")
	if got := Counter("test_counter"); got != 2 {
		t.Fatalf("Counter = %d, want 2", got)
	}
	if got := Counter("never_touched"); got != 0 {
		t.Fatalf("Counter(unknown) = %d, want 0", got)
	}

	RecordChannelMessage("test_channel", 10)
	RecordChannelMessage("test_channel", 5)
	msgs, n := ChannelStats("test_channel")
	if msgs != 2 || n != 15 {
		t.Fatalf("ChannelStats = (%d, %d), want (2, 15)", msgs, n)
	}
}

func TestWarnRecordsComponent(t *testing.T) {
	var buf bytes.Buffer
	log := Logger()
	log.SetOutput(&buf)
	log.WithComponent("warn_test").Warn("careful")

	if got := snapshot(&warns)["warn_test"]; got != 1 {
		t.Fatalf("warns[warn_test] = %d, want 1", got)
	}
}
