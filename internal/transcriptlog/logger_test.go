package transcriptlog

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesPerSessionNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Log(Event{
		SessionID:  "sess-1",
		Channel:    "chat_http",
		Direction:  "outbound",
		EventType:  "user_message",
		ContentRaw: "基礎を\x1b[1m学びたい\x1b[0m",
	})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	line := waitForLogLine(t, filepath.Join(dir, "sess-1.ndjson"))
	var got Event
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.Content != "基礎を学びたい" {
		t.Fatalf("unexpected cleaned content: %q", got.Content)
	}
}

func TestLoggerSanitizesSessionFileName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{Enabled: true, Dir: dir, QueueSize: 4}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Log(Event{SessionID: "../escape", ContentRaw: "x"})
	_ = logger.Close()

	waitForLogLine(t, filepath.Join(dir, ".._escape.ndjson"))
}

func TestLogAfterCloseIsDropped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{Enabled: true, Dir: dir, QueueSize: 4}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Log(Event{SessionID: "sess-1", ContentRaw: "before"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	logger.Log(Event{SessionID: "sess-1", ContentRaw: "after"})
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "sess-1.ndjson"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 1 {
		t.Fatalf("expected only the event logged before Close, got %d lines", len(lines))
	}
}

func TestNewDisabledIsNoop(t *testing.T) {
	logger, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := logger.(Noop); !ok {
		t.Fatalf("expected Noop, got %T", logger)
	}
}

func TestCleanForReadabilityStripsANSI(t *testing.T) {
	t.Parallel()

	raw := "\x1b[31merror\x1b[0m plain\n\tnext"
	clean := CleanForReadability(raw)
	if strings.Contains(clean, "\x1b") {
		t.Fatalf("expected ANSI sequence to be stripped: %q", clean)
	}
	if clean != "error plain next" {
		t.Fatalf("unexpected clean text: %q", clean)
	}
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}
