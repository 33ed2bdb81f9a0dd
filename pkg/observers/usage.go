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
)

type UsageSummary struct {
	ConversationID   string `json:"conversation_id,omitempty"`
	Provider         string `json:"provider,omitempty"`
	Requests         int    `json:"requests"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	RecordedAtUTC    string `json:"recorded_at_utc"`
}

// UsageObserver accumulates token usage per conversation and writes one
// summary file per conversation on Close.
type UsageObserver struct {
	dir   string
	mu    sync.Mutex
	stats map[string]*UsageSummary
}

func NewUsageObserver(dir string) *UsageObserver {
	return &UsageObserver{dir: dir, stats: make(map[string]*UsageSummary)}
}

func (o *UsageObserver) RecordEvent(ev metrics.MetricsEvent) {
	if strings.TrimSpace(o.dir) == "" || ev.Name != "llm_usage" {
		return
	}
	id := ""
	provider := ""
	if ev.Tags != nil {
		id = ev.Tags["conversation_id"]
		provider = ev.Tags["provider"]
	}
	if id == "" || ev.Fields == nil {
		return
	}
	o.mu.Lock()
	stat := o.stats[id]
	if stat == nil {
		stat = &UsageSummary{ConversationID: id, Provider: provider}
		o.stats[id] = stat
	}
	stat.Requests++
	stat.PromptTokens += intField(ev.Fields, "prompt_tokens")
	stat.CompletionTokens += intField(ev.Fields, "completion_tokens")
	stat.TotalTokens += intField(ev.Fields, "total_tokens")
	o.mu.Unlock()
}

func (o *UsageObserver) Close() error {
	if strings.TrimSpace(o.dir) == "" {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	var errOut error
	for id, stat := range o.stats {
		stat.RecordedAtUTC = time.Now().UTC().Format(time.RFC3339)
		b, err := json.MarshalIndent(stat, "", "  ")
		if err != nil {
			errOut = errors.Join(errOut, err)
			continue
		}
		path := filepath.Join(o.dir, sanitizeID(id)+".usage.json")
		if err := os.WriteFile(path, b, 0o644); err != nil {
			errOut = errors.Join(errOut, err)
		}
	}
	return errOut
}

func intField(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

var _ metrics.Observer = (*UsageObserver)(nil)
