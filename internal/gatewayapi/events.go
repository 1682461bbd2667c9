package gatewayapi

import (
	"strings"
	"sync"
	"time"
)

const completedRunRetention = 30 * time.Second

// Event is one progress frame relayed to run watchers.
type Event struct {
	Type       string `json:"type"` // phase | task | completed | failed
	RunID      string `json:"runId"`
	Phase      string `json:"phase,omitempty"`
	TaskID     string `json:"taskId,omitempty"`
	TaskStatus string `json:"taskStatus,omitempty"`
	Message    string `json:"message,omitempty"`
	BuildID    int64  `json:"buildId,omitempty"`
	PreviewURL string `json:"previewUrl,omitempty"`
}

// Hub hands out one buffered event channel per run. Completed runs stay
// subscribable for a short retention window so a watcher connecting just
// after the run ends still sees the terminal event.
type Hub struct {
	mu   sync.RWMutex
	runs map[string]chan Event
}

func NewHub() *Hub {
	return &Hub{runs: make(map[string]chan Event)}
}

func (h *Hub) Allocate(runID string, size int) chan Event {
	if size <= 0 {
		size = 1
	}
	ch := make(chan Event, size)
	h.mu.Lock()
	h.runs[strings.TrimSpace(runID)] = ch
	h.mu.Unlock()
	return ch
}

func (h *Hub) Channel(runID string) (chan Event, bool) {
	h.mu.RLock()
	ch, ok := h.runs[strings.TrimSpace(runID)]
	h.mu.RUnlock()
	return ch, ok
}

func (h *Hub) ScheduleCleanup(runID string) {
	time.AfterFunc(completedRunRetention, func() {
		h.mu.Lock()
		delete(h.runs, strings.TrimSpace(runID))
		h.mu.Unlock()
	})
}

// Publish delivers without blocking the run: when the buffer is full the
// oldest frame is dropped in favor of the new one.
func (h *Hub) Publish(runID string, evt Event) {
	ch, ok := h.Channel(runID)
	if !ok {
		return
	}
	select {
	case ch <- evt:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- evt:
	default:
	}
}
