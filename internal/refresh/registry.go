// Package refresh records which subject each issued refresh token belongs
// to. A refresh token is honoured only when its signature checks out and
// the registry binds it to the same subject the token claims.
package refresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Registry binds refresh tokens to subjects. Entries are never expired by
// the registry itself; token validation owns expiry.
type Registry interface {
	Register(ctx context.Context, token, subject string) error
	// Lookup returns ok=false when the token was never registered.
	Lookup(ctx context.Context, token string) (subject string, ok bool, err error)
}

// HashToken is the storage key for a token in persistent backends.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MemoryRegistry keeps bindings for the lifetime of the process.
type MemoryRegistry struct {
	mu       sync.RWMutex
	subjects map[string]string
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{subjects: make(map[string]string)}
}

func (r *MemoryRegistry) Register(_ context.Context, token, subject string) error {
	r.mu.Lock()
	r.subjects[token] = subject
	r.mu.Unlock()
	return nil
}

func (r *MemoryRegistry) Lookup(_ context.Context, token string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subjects[token]
	return s, ok, nil
}
