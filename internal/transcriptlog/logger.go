// Package transcriptlog writes coaching conversations as NDJSON files.
package transcriptlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
)

// Config controls conversation logging.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Event is one logged conversation entry.
type Event struct {
	Timestamp  string         `json:"ts"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	Role       string         `json:"role,omitempty"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Logger records conversation events without blocking the caller.
type Logger interface {
	Log(event Event)
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Log(Event)    {}
func (Noop) Close() error { return nil }

var (
	ansiPattern      = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07]*(\x07|\x1b\\)`)
	safeSessionChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

type fileLogger struct {
	cfg     Config
	logger  *slog.Logger
	queue   chan Event
	wg      sync.WaitGroup
	dropped atomic.Int64

	// mu guards closed and the send on queue against Close.
	mu     sync.RWMutex
	closed bool
}

// New returns a Logger for cfg. A disabled config yields Noop.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return Noop{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Enabled {
		if cfg.Dir == "" {
			return nil, errors.New("conversation log dir is empty")
		}
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create conversation log dir: %w", err)
		}
	}
	if cfg.GlobalEnabled {
		if cfg.GlobalPath == "" {
			return nil, errors.New("conversation log global path is empty")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("create conversation log global dir: %w", err)
		}
	}

	l := &fileLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Event, cfg.QueueSize),
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Log enqueues event. Events are dropped when the queue is full or the
// logger is closed.
func (l *fileLogger) Log(event Event) {
	if event.Content == "" {
		event.Content = CleanForReadability(event.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
			l.logger.Warn("conversation log queue full, dropping events", "dropped_total", n)
		}
	}
}

// Close drains the queue and stops the writer.
func (l *fileLogger) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()
	l.wg.Wait()
	return nil
}

func (l *fileLogger) run() {
	defer l.wg.Done()
	for event := range l.queue {
		line, err := json.Marshal(event)
		if err != nil {
			l.logger.Warn("failed to marshal conversation event", "error", err)
			continue
		}
		line = append(line, '\n')

		if l.cfg.Enabled {
			name := safeSessionChars.ReplaceAllString(event.SessionID, "_")
			if name == "" {
				name = "unknown"
			}
			if err := appendLine(filepath.Join(l.cfg.Dir, name+".ndjson"), line); err != nil {
				l.logger.Warn("failed to write session conversation log", "session_id", event.SessionID, "error", err)
			}
		}
		if l.cfg.GlobalEnabled {
			if err := appendLine(l.cfg.GlobalPath, line); err != nil {
				l.logger.Warn("failed to write global conversation log", "error", err)
			}
		}
	}
}

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// CleanForReadability strips terminal escape sequences and control characters
// and collapses runs of whitespace.
func CleanForReadability(raw string) string {
	s := ansiPattern.ReplaceAllString(raw, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
