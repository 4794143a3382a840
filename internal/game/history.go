package game

import "sync"

// History is the bounded, most-recent-first crash multiplier cache. It is
// seeded from the REST snapshot and appended to on each crash event.
type History struct {
	mu      sync.RWMutex
	cap     int
	records []CrashRecord
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 16
	}
	return &History{cap: capacity}
}

// Prepend records a crash multiplier. A value equal to the current head is
// dropped: the server emits overlapping crash event types and the cache
// must not double-insert.
func (h *History) Prepend(multiplier float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.records) > 0 && h.records[0].Multiplier == multiplier {
		return
	}

	h.records = append([]CrashRecord{{Multiplier: multiplier}}, h.records...)
	if len(h.records) > h.cap {
		h.records = h.records[:h.cap]
	}
}

// Seed replaces the cache with a REST snapshot (already most-recent-first).
func (h *History) Seed(multipliers []float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = h.records[:0]
	for _, m := range multipliers {
		if len(h.records) == h.cap {
			break
		}
		h.records = append(h.records, CrashRecord{Multiplier: m})
	}
}

func (h *History) Records() []CrashRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]CrashRecord, len(h.records))
	copy(out, h.records)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}
