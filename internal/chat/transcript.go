package chat

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"github.com/coworker-ai/coworker/internal/metrics"
)

// TranscriptConfig controls NDJSON transcript logging.
type TranscriptConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// TranscriptEvent is one line of a session transcript.
type TranscriptEvent struct {
	Timestamp    string         `json:"ts"`
	AgentID      int64          `json:"agent_id"`
	SessionID    string         `json:"session_id"`
	Role         string         `json:"role"`
	Content      string         `json:"content"`
	ResponseTime int64          `json:"response_time_ms,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
}

// TranscriptLogger records chat turns outside the main store.
type TranscriptLogger interface {
	Log(event TranscriptEvent)
	Close() error
}

// NopTranscriptLogger discards every event.
type NopTranscriptLogger struct{}

func (NopTranscriptLogger) Log(TranscriptEvent) {}
func (NopTranscriptLogger) Close() error        { return nil }

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// fileLogger appends events to <dir>/<agentID>/<sessionID>.ndjson from a
// single writer goroutine. Log never blocks; events are dropped when the
// queue is full.
type fileLogger struct {
	dir     string
	queue   chan TranscriptEvent
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewTranscriptLogger returns a file-backed logger, or a no-op logger when
// transcripts are disabled.
func NewTranscriptLogger(cfg TranscriptConfig, logger *slog.Logger, m *metrics.Metrics) (TranscriptLogger, error) {
	if !cfg.Enabled {
		return NopTranscriptLogger{}, nil
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("transcript log dir is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	l := &fileLogger{
		dir:     cfg.Dir,
		queue:   make(chan TranscriptEvent, cfg.QueueSize),
		done:    make(chan struct{}),
		logger:  logger,
		metrics: m,
	}
	go l.run()
	return l, nil
}

func (l *fileLogger) Log(event TranscriptEvent) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		l.metrics.RecordTranscriptDropped()
		l.logger.Warn("Transcript queue full, dropping event",
			"agent_id", event.AgentID,
			"session_id", event.SessionID,
		)
	}
}

// Close drains queued events and stops the writer.
func (l *fileLogger) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()
	<-l.done
	return nil
}

func (l *fileLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		if err := l.write(event); err != nil {
			l.logger.Warn("Failed to write transcript event",
				"agent_id", event.AgentID,
				"session_id", event.SessionID,
				"error", err,
			)
		}
	}
}

func (l *fileLogger) write(event TranscriptEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	path := transcriptPath(l.dir, event.AgentID, event.SessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create agent dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			l.logger.Warn("failed to close transcript file", "error", closeErr)
		}
	}()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

func transcriptPath(dir string, agentID int64, sessionID string) string {
	name := unsafeFileChars.ReplaceAllString(sessionID, "_")
	if name == "" || name == "." || name == ".." {
		name = "session"
	}
	// Rewritten IDs get a hash suffix so "a/b" and "a_b" stay separate files.
	if name != sessionID {
		h := fnv.New32a()
		_, _ = h.Write([]byte(sessionID))
		name = fmt.Sprintf("%s-%08x", name, h.Sum32())
	}
	return filepath.Join(dir, strconv.FormatInt(agentID, 10), name+".ndjson")
}
