package metrics

import (
	"sync"
	"time"
)

// PropertyRMSE groups the three per-property error metrics
type PropertyRMSE struct {
	Energy float64
	Force  float64
	Virial float64
}

// GenerationLoss is one checkpoint's loss decomposition
type GenerationLoss struct {
	Generation int
	Total      float64
	L1         float64
	L2         float64
	Train      PropertyRMSE
	Test       PropertyRMSE
	Timestamp  time.Time
}

// History collects per-checkpoint losses over a run
type History struct {
	mu      sync.RWMutex
	records []GenerationLoss
}

// NewHistory creates an empty loss history
func NewHistory() *History {
	return &History{records: make([]GenerationLoss, 0)}
}

// Append records one checkpoint
func (h *History) Append(rec GenerationLoss) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	h.records = append(h.records, rec)
}

// Len returns the number of recorded checkpoints
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Last returns the most recent record, if any
func (h *History) Last() (GenerationLoss, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.records) == 0 {
		return GenerationLoss{}, false
	}
	return h.records[len(h.records)-1], true
}

// Snapshot returns a copy of all records in append order
func (h *History) Snapshot() []GenerationLoss {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]GenerationLoss, len(h.records))
	copy(out, h.records)
	return out
}

// Best returns the record with the lowest total loss, if any
func (h *History) Best() (GenerationLoss, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.records) == 0 {
		return GenerationLoss{}, false
	}
	best := h.records[0]
	for _, rec := range h.records[1:] {
		if rec.Total < best.Total {
			best = rec
		}
	}
	return best, true
}
