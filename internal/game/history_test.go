package game

import "testing"

func TestHistory_MostRecentFirst(t *testing.T) {
	h := NewHistory(16)

	h.Prepend(1.5)
	h.Prepend(2.3)
	h.Prepend(4.1)

	records := h.Records()
	if len(records) != 3 {
		t.Fatalf("len = %d, want 3", len(records))
	}
	want := []float64{4.1, 2.3, 1.5}
	for i, r := range records {
		if r.Multiplier != want[i] {
			t.Errorf("records[%d] = %v, want %v", i, r.Multiplier, want[i])
		}
	}
}

func TestHistory_ConsecutiveDuplicateDropped(t *testing.T) {
	h := NewHistory(16)

	h.Prepend(2.15)
	h.Prepend(2.15) // overlapping crash/round_crashed events

	if h.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after duplicate append", h.Len())
	}

	// Same value later in the sequence is a genuine new crash.
	h.Prepend(3.0)
	h.Prepend(2.15)
	if h.Len() != 3 {
		t.Errorf("Len() = %d, want 3 (non-consecutive repeat is real)", h.Len())
	}
}

func TestHistory_Bounded(t *testing.T) {
	h := NewHistory(4)

	for i := 1; i <= 10; i++ {
		h.Prepend(float64(i))
	}

	records := h.Records()
	if len(records) != 4 {
		t.Fatalf("len = %d, want cap 4", len(records))
	}
	if records[0].Multiplier != 10 {
		t.Errorf("head = %v, want most recent 10", records[0].Multiplier)
	}
}

func TestHistory_Seed(t *testing.T) {
	h := NewHistory(3)
	h.Prepend(9.9)

	h.Seed([]float64{2.0, 1.5, 3.2, 8.8})

	records := h.Records()
	if len(records) != 3 {
		t.Fatalf("len = %d, want 3 (seed respects cap)", len(records))
	}
	if records[0].Multiplier != 2.0 {
		t.Errorf("head = %v, want snapshot head 2.0", records[0].Multiplier)
	}
}
