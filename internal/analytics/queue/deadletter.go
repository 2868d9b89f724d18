package queue

import (
	"sync"
	"time"

	"github.com/smallbiznis/scholara/internal/analytics/domain"
)

// Category classifies why an update ended up in the dead-letter list.
type Category string

const (
	CategoryQueueFull    Category = "queue_full"
	CategoryHandlerError Category = "handler_error"
	CategoryPanic        Category = "panic"
	CategoryBreakerOpen  Category = "breaker_open"
)

// DeadLetter is an update that was dropped or failed processing.
type DeadLetter struct {
	Update   domain.Update `json:"update"`
	Category Category      `json:"category"`
	Error    string        `json:"error"`
	FailedAt time.Time     `json:"failed_at"`
}

type DeadLetterStats struct {
	Entries     int              `json:"entries"`
	TotalAdded  int64            `json:"total_added"`
	Evicted     int64            `json:"evicted"`
	ByCategory  map[Category]int `json:"by_category"`
	OldestEntry time.Time        `json:"oldest_entry,omitempty"`
	NewestEntry time.Time        `json:"newest_entry,omitempty"`
}

// DeadLetters is a bounded list of failed updates. When full the oldest entry is evicted.
// Entries are kept for inspection only and are never retried.
type DeadLetters struct {
	mu         sync.Mutex
	entries    []DeadLetter
	start      int
	capacity   int
	totalAdded int64
	evicted    int64
}

func NewDeadLetters(capacity int) *DeadLetters {
	if capacity <= 0 {
		capacity = 500
	}
	return &DeadLetters{
		entries:  make([]DeadLetter, 0, capacity),
		capacity: capacity,
	}
}

// Add records a dead letter and returns the resulting list size.
func (d *DeadLetters) Add(entry DeadLetter) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.totalAdded++
	if len(d.entries) < d.capacity {
		d.entries = append(d.entries, entry)
		return len(d.entries)
	}
	d.entries[d.start] = entry
	d.start = (d.start + 1) % d.capacity
	d.evicted++
	return len(d.entries)
}

// Snapshot returns the entries oldest first.
func (d *DeadLetters) Snapshot() []DeadLetter {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]DeadLetter, 0, len(d.entries))
	out = append(out, d.entries[d.start:]...)
	out = append(out, d.entries[:d.start]...)
	return out
}

func (d *DeadLetters) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *DeadLetters) Stats() DeadLetterStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := DeadLetterStats{
		Entries:    len(d.entries),
		TotalAdded: d.totalAdded,
		Evicted:    d.evicted,
		ByCategory: make(map[Category]int),
	}
	for _, entry := range d.entries {
		stats.ByCategory[entry.Category]++
		if stats.OldestEntry.IsZero() || entry.FailedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = entry.FailedAt
		}
		if entry.FailedAt.After(stats.NewestEntry) {
			stats.NewestEntry = entry.FailedAt
		}
	}
	return stats
}
