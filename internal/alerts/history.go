package alerts

import (
	"sync"

	"cloudscale/internal/models"
)

// DefaultHistorySize bounds the history when no size is given.
const DefaultHistorySize = 50

// History is the newest-first, de-duplicated, bounded alert list.
type History struct {
	mu      sync.RWMutex
	alerts  []models.Alert
	maxSize int
}

// NewHistory creates an empty history holding at most maxSize alerts.
func NewHistory(maxSize int) *History {
	if maxSize <= 0 {
		maxSize = DefaultHistorySize
	}
	return &History{
		alerts:  make([]models.Alert, 0, maxSize),
		maxSize: maxSize,
	}
}

// Merge prepends newAlerts, drops later duplicates of an id and truncates
// to the size bound. It returns a copy of the resulting history.
func (h *History) Merge(newAlerts []models.Alert) []models.Alert {
	h.mu.Lock()
	defer h.mu.Unlock()

	merged := make([]models.Alert, 0, min(len(newAlerts)+len(h.alerts), h.maxSize))
	seen := make(map[string]struct{}, cap(merged))

	for _, src := range [][]models.Alert{newAlerts, h.alerts} {
		for _, a := range src {
			if len(merged) == h.maxSize {
				break
			}
			if _, dup := seen[a.ID]; dup {
				continue
			}
			seen[a.ID] = struct{}{}
			merged = append(merged, a)
		}
	}

	h.alerts = merged
	return h.copyLocked(len(merged))
}

// Dismiss removes the alert with the given id. It reports whether one was removed.
func (h *History) Dismiss(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	i := h.indexLocked(id)
	if i < 0 {
		return false
	}
	h.alerts = append(h.alerts[:i], h.alerts[i+1:]...)
	return true
}

// Acknowledge marks the alert as seen and keeps it in the history.
func (h *History) Acknowledge(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	i := h.indexLocked(id)
	if i < 0 {
		return false
	}
	h.alerts[i].Acknowledged = true
	return true
}

// Unacknowledged returns the alerts not yet acknowledged, newest first.
func (h *History) Unacknowledged() []models.Alert {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]models.Alert, 0, len(h.alerts))
	for _, a := range h.alerts {
		if !a.Acknowledged {
			out = append(out, a)
		}
	}
	return out
}

// All returns the whole history, newest first.
func (h *History) All() []models.Alert {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.copyLocked(len(h.alerts))
}

// Recent returns at most n of the newest alerts.
func (h *History) Recent(n int) []models.Alert {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.copyLocked(min(max(n, 0), len(h.alerts)))
}

// Len returns the number of alerts held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.alerts)
}

func (h *History) indexLocked(id string) int {
	for i := range h.alerts {
		if h.alerts[i].ID == id {
			return i
		}
	}
	return -1
}

func (h *History) copyLocked(n int) []models.Alert {
	out := make([]models.Alert, n)
	copy(out, h.alerts[:n])
	return out
}
