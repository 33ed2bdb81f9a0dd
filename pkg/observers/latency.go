package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/redferne/quill/pkg/metrics"
)

// LatencyObserver tracks per-turn timings and logs a summary once the turn
// completes.
type LatencyObserver struct {
	mu    sync.Mutex
	turns map[string]*turnTrace
	log   *slog.Logger
}

type turnTrace struct {
	input      time.Time
	toolsDone  time.Time
	firstToken time.Time
	done       time.Time
	convID     string
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		turns: make(map[string]*turnTrace),
		log:   log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	traceID := ""
	if ev.Tags != nil {
		traceID = ev.Tags["trace_id"]
	}
	if traceID == "" {
		return
	}
	o.mu.Lock()
	t := o.turns[traceID]
	if t == nil {
		t = &turnTrace{}
		o.turns[traceID] = t
	}
	switch ev.Name {
	case "chat_input":
		if t.input.IsZero() {
			t.input = ev.Time
		}
		if t.convID == "" && ev.Tags != nil {
			t.convID = ev.Tags["conversation_id"]
		}
	case "tool_result":
		t.toolsDone = ev.Time
	case "llm_first_token":
		if t.firstToken.IsZero() {
			t.firstToken = ev.Time
		}
	case "llm_done":
		t.done = ev.Time
	}
	if !t.done.IsZero() {
		o.logTurnLocked(traceID, t)
		delete(o.turns, traceID)
	}
	o.mu.Unlock()
}

func (o *LatencyObserver) logTurnLocked(traceID string, t *turnTrace) {
	toolMs := durationMs(t.input, t.toolsDone)
	firstTokenMs := durationMs(t.input, t.firstToken)
	totalMs := durationMs(t.input, t.done)
	o.log.Info("latency",
		"trace_id", traceID,
		"conversation_id", t.convID,
		"tool_ms", toolMs,
		"first_token_ms", firstTokenMs,
		"total_ms", totalMs,
	)
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}
