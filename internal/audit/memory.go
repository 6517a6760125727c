package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryJournal is an in-process Journal for running the workflow
// controller or the sync coordinator without a live database, as their
// tests do.
type MemoryJournal struct {
	mu      sync.Mutex
	nextID  int64
	entries []Entry
}

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// Append assigns the next monotonic id and stores entry.
func (j *MemoryJournal) Append(ctx context.Context, entry Entry) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.nextID++
	entry.ID = j.nextID
	entry.CreatedAt = time.Now()
	j.entries = append(j.entries, entry)
	return entry, nil
}

// ListForChange returns every entry for changeID in append order.
func (j *MemoryJournal) ListForChange(ctx context.Context, changeID string) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var result []Entry
	for _, e := range j.entries {
		if e.ChangeID == changeID {
			result = append(result, e)
		}
	}
	return result, nil
}
