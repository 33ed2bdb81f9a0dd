package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestMemoryObserverCollects(t *testing.T) {
	m := NewMemoryObserver()
	m.RecordEvent(Event("llm_done", map[string]string{"provider": "mock"}, nil))
	if len(m.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(m.Events))
	}
	if m.Events[0].Name != "llm_done" {
		t.Fatalf("unexpected event name %q", m.Events[0].Name)
	}
	if m.Events[0].Time.IsZero() {
		t.Fatalf("expected timestamp stamped")
	}
}

func TestJSONLObserverWritesLines(t *testing.T) {
	var buf bytes.Buffer
	o := NewJSONLObserver(&buf)
	o.RecordEvent(Event("llm_usage", map[string]string{"provider": "mock"}, map[string]any{"total_tokens": 37}))
	o.RecordEvent(Event("llm_done", nil, nil))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"name":"llm_usage"`) || !strings.Contains(lines[0], `"total_tokens":37`) {
		t.Fatalf("unexpected first line: %s", lines[0])
	}
}

func TestSamplingObserverRate(t *testing.T) {
	inner := NewMemoryObserver()
	s := NewSamplingObserver(inner, 0.5)
	for i := 0; i < 10; i++ {
		s.RecordEvent(MetricsEvent{Name: "tick"})
	}
	if len(inner.Events) != 5 {
		t.Fatalf("expected 5 sampled events, got %d", len(inner.Events))
	}
}

func TestSamplingObserverZeroRateDropsAll(t *testing.T) {
	inner := NewMemoryObserver()
	s := NewSamplingObserver(inner, 0)
	for i := 0; i < 4; i++ {
		s.RecordEvent(MetricsEvent{Name: "tick"})
	}
	if len(inner.Events) != 0 {
		t.Fatalf("expected no events, got %d", len(inner.Events))
	}
}

func TestAsyncObserverDelivers(t *testing.T) {
	inner := NewMemoryObserver()
	a := NewAsyncObserver(inner, 16)
	a.RecordEvent(MetricsEvent{Name: "tick"})
	deadline := time.Now().Add(time.Second)
	for {
		inner.mu.Lock()
		n := len(inner.Events)
		inner.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("event not delivered")
		}
		time.Sleep(time.Millisecond)
	}
	a.Close()
	a.RecordEvent(MetricsEvent{Name: "late"})
	if a.Dropped() != 0 {
		t.Fatalf("closed observer should ignore, not drop")
	}
}

func TestAsyncObserverCloseDrainsQueue(t *testing.T) {
	inner := NewMemoryObserver()
	a := NewAsyncObserver(inner, 64)
	for i := 0; i < 20; i++ {
		a.RecordEvent(MetricsEvent{Name: "tick"})
	}
	a.Close()
	inner.mu.Lock()
	n := len(inner.Events)
	inner.mu.Unlock()
	if n != 20 {
		t.Fatalf("expected 20 events after Close, got %d", n)
	}
}
