package driver

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// TraceRecord is one provider round trip, written as a single NDJSON line.
type TraceRecord struct {
	Timestamp   time.Time       `json:"timestamp"`
	Driver      string          `json:"driver"`
	Endpoint    string          `json:"endpoint"`
	Model       string          `json:"model,omitempty"`
	PromptSlug  string          `json:"prompt_slug,omitempty"`
	RequestBody json.RawMessage `json:"request_body,omitempty"`
	StatusCode  int             `json:"status_code,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	Error       string          `json:"error,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

type traceSink struct {
	mu sync.Mutex
	w  io.WriteCloser
}

var activeTrace atomic.Pointer[traceSink]

// StartTrace appends every provider exchange to the file at path until the
// returned stop function runs. Starting again replaces the previous file.
func StartTrace(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	sink := &traceSink{w: f}
	if prev := activeTrace.Swap(sink); prev != nil {
		prev.close()
	}
	return func() {
		if activeTrace.CompareAndSwap(sink, nil) {
			sink.close()
		}
	}, nil
}

// Tracing reports whether a trace file is open.
func Tracing() bool {
	return activeTrace.Load() != nil
}

// Record writes rec to the trace file, if any. Bodies that are not JSON are
// stored as JSON strings.
func Record(rec TraceRecord) {
	sink := activeTrace.Load()
	if sink == nil {
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.RequestBody = rawOrQuoted(rec.RequestBody)
	rec.Response = rawOrQuoted(rec.Response)

	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.w != nil {
		_, _ = sink.w.Write(append(line, '\n'))
	}
}

func (s *traceSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w != nil {
		_ = s.w.Close()
		s.w = nil
	}
}

func rawOrQuoted(body json.RawMessage) json.RawMessage {
	if len(body) == 0 || json.Valid(body) {
		return body
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}
