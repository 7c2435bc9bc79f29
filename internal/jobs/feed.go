package jobs

import (
	"sync"
	"time"

	"daq-console/internal/domain"
)

// EntryType classifies feed entries emitted during an acquisition run.
type EntryType string

const (
	EntryTypeStatus EntryType = "status"
	EntryTypeLog    EntryType = "log"
	EntryTypeError  EntryType = "error"
	EntryTypeFile   EntryType = "file"
)

// Entry is one sequenced, timestamped line of the live operator feed.
type Entry struct {
	Seq        int64            `json:"seq"`
	Timestamp  time.Time        `json:"timestamp"`
	RunID      string           `json:"runId"`
	Type       EntryType        `json:"type"`
	Status     domain.RunStatus `json:"status,omitempty"`
	Message    string           `json:"message,omitempty"`
	Path       string           `json:"path,omitempty"`
	EventCount int              `json:"eventCount,omitempty"`
}

// Feed stores recent feed entries in a bounded ring and provides incremental
// and tail reads. The producer never blocks on readers; slow readers miss
// entries that fell out of retention.
type Feed struct {
	mu         sync.RWMutex
	nextSeq    int64
	maxEntries int
	entries    []Entry
}

// NewFeed creates a bounded in-memory feed buffer.
func NewFeed(maxEntries int) *Feed {
	if maxEntries <= 0 {
		maxEntries = 500
	}

	return &Feed{
		maxEntries: maxEntries,
		entries:    make([]Entry, 0, maxEntries),
	}
}

// Publish appends one entry and assigns sequence and timestamp.
func (f *Feed) Publish(entry Entry) Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextSeq++
	entry.Seq = f.nextSeq
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	f.entries = append(f.entries, entry)
	if len(f.entries) > f.maxEntries {
		trim := len(f.entries) - f.maxEntries
		f.entries = append([]Entry(nil), f.entries[trim:]...)
	}

	return entry
}

// Since returns entries with sequence strictly greater than seq.
func (f *Feed) Since(seq int64) []Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.entries) == 0 {
		return nil
	}

	out := make([]Entry, 0, len(f.entries))
	for _, entry := range f.entries {
		if entry.Seq > seq {
			out = append(out, entry)
		}
	}
	return out
}

// Tail returns the most recent n entries in append order.
func (f *Feed) Tail(n int) []Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if n <= 0 || len(f.entries) == 0 {
		return nil
	}
	if n > len(f.entries) {
		n = len(f.entries)
	}

	out := make([]Entry, n)
	copy(out, f.entries[len(f.entries)-n:])
	return out
}
