package otp

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrConflict is returned when an atomic update keeps losing a race with
// concurrent writers.
var ErrConflict = errors.New("otp: concurrent update conflict")

// Entry is a pending code for one key.
type Entry struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
}

// Expired reports whether the entry is no longer usable at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// UpdateFunc receives the current entry (nil when absent) and returns the
// entry to store. Returning nil removes the key. It may be called more than
// once when a backend retries after a conflict, so it must not have side
// effects beyond its return values and locals it resets.
type UpdateFunc func(cur *Entry) (*Entry, error)

// Repository persists entries by key.
type Repository interface {
	// Get returns nil, nil when the key is absent.
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, key string) error
	// Update applies fn atomically with respect to other calls on the same key.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	// Keys returns a snapshot of the stored keys.
	Keys(ctx context.Context) ([]string, error)
}

// MemoryRepository keeps entries in a process-local map.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string]Entry)}
}

func (r *MemoryRepository) Get(_ context.Context, key string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *MemoryRepository) Put(_ context.Context, key string, e Entry) error {
	r.mu.Lock()
	r.entries[key] = e
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, key string, fn UpdateFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var cur *Entry
	if e, ok := r.entries[key]; ok {
		cur = &e
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	if next == nil {
		delete(r.entries, key)
		return nil
	}
	r.entries[key] = *next
	return nil
}

func (r *MemoryRepository) Keys(_ context.Context) ([]string, error) {
	r.mu.Lock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	r.mu.Unlock()
	sort.Strings(keys)
	return keys, nil
}
