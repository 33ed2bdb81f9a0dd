package observers

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/redferne/quill/pkg/metrics"
	"github.com/redferne/quill/pkg/redact"
)

// TranscriptObserver writes a per-conversation JSONL transcript.
type TranscriptObserver struct {
	dir   string
	mu    sync.Mutex
	files map[string]*os.File
}

// NewTranscriptObserver creates a new transcript observer writing to dir.
func NewTranscriptObserver(dir string) *TranscriptObserver {
	return &TranscriptObserver{dir: dir, files: make(map[string]*os.File)}
}

// RecordEvent implements metrics.Observer.
func (o *TranscriptObserver) RecordEvent(ev metrics.MetricsEvent) {
	id := ""
	traceID := ""
	if ev.Tags != nil {
		id = ev.Tags["conversation_id"]
		traceID = ev.Tags["trace_id"]
		if id == "" {
			id = traceID
		}
	}
	if id == "" || strings.TrimSpace(o.dir) == "" {
		return
	}
	entry := transcriptEvent{
		Time:           ev.Time.UTC(),
		Event:          ev.Name,
		ConversationID: id,
		TraceID:        traceID,
		Tags:           copyTags(ev.Tags),
		Fields:         sanitizeFields(ev.Fields),
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	f := o.fileFor(id)
	if f == nil {
		return
	}
	_, _ = f.Write(append(line, '\n'))
}

// Close closes any open files.
func (o *TranscriptObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var err error
	for _, f := range o.files {
		if f == nil {
			continue
		}
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	o.files = make(map[string]*os.File)
	return err
}

type transcriptEvent struct {
	Time           time.Time         `json:"time"`
	Event          string            `json:"event"`
	ConversationID string            `json:"conversation_id,omitempty"`
	TraceID        string            `json:"trace_id,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	Fields         map[string]any    `json:"fields,omitempty"`
}

func (o *TranscriptObserver) fileFor(id string) *os.File {
	safe := sanitizeID(id)
	if safe == "" {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if f := o.files[safe]; f != nil {
		return f
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return nil
	}
	path := filepath.Join(o.dir, safe+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil
	}
	o.files[safe] = f
	return f
}

func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}

func copyTags(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sanitizeFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			out[k] = redact.Text(s)
			continue
		}
		out[k] = v
	}
	return out
}

var _ metrics.Observer = (*TranscriptObserver)(nil)
