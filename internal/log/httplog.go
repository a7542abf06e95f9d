package log

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HTTPLogEntry represents an HTTP request/response log entry
type HTTPLogEntry struct {
	Timestamp  time.Time     `json:"timestamp"`
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	Status     int           `json:"status"`
	Duration   time.Duration `json:"duration"`
	Size       int           `json:"size"`
	RemoteAddr string        `json:"remote_addr"`
	UserAgent  string        `json:"user_agent"`
}

// LogBuffer keeps the most recent HTTP log entries in a ring.
type LogBuffer struct {
	mu      sync.Mutex
	entries []HTTPLogEntry
	next    int
	full    bool
}

// NewLogBuffer returns a buffer holding up to size entries.
func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = 1
	}
	return &LogBuffer{entries: make([]HTTPLogEntry, size)}
}

// AddEntry appends e, evicting the oldest entry when full.
func (b *LogBuffer) AddEntry(e HTTPLogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Entries returns the buffered entries, oldest first.
func (b *LogBuffer) Entries() []HTTPLogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		return append([]HTTPLogEntry(nil), b.entries[:b.next]...)
	}
	out := make([]HTTPLogEntry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	return append(out, b.entries[:b.next]...)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.size += n
	return n, err
}

// HTTPMiddleware logs every request to logger and, when buf is not nil,
// records it in buf.
func HTTPMiddleware(logger *zap.SugaredLogger, buf *LogBuffer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, req)

			entry := HTTPLogEntry{
				Timestamp:  start,
				Method:     req.Method,
				Path:       req.URL.Path,
				Status:     rec.status,
				Duration:   time.Since(start),
				Size:       rec.size,
				RemoteAddr: req.RemoteAddr,
				UserAgent:  req.UserAgent(),
			}
			if buf != nil {
				buf.AddEntry(entry)
			}

			logf := logger.Debugw
			if rec.status >= http.StatusInternalServerError {
				logf = logger.Warnw
			}
			logf("http request",
				"method", entry.Method,
				"path", entry.Path,
				"status", entry.Status,
				"duration_ms", entry.Duration.Milliseconds(),
				"size", entry.Size,
				"remote_addr", entry.RemoteAddr)
		})
	}
}
