package service

import (
	"context"
	"sync"
	"time"
)

// ConfirmationStore holds one-shot tokens for two-step admin operations
type ConfirmationStore interface {
	// Put stores token until ttl elapses
	Put(ctx context.Context, token string, ttl time.Duration) error
	// Take consumes token, reporting whether it was still valid
	Take(ctx context.Context, token string) (bool, error)
}

// MemoryConfirmations keeps tokens in process memory
type MemoryConfirmations struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

// NewMemoryConfirmations creates an empty in-process token store
func NewMemoryConfirmations() *MemoryConfirmations {
	return &MemoryConfirmations{
		tokens: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (m *MemoryConfirmations) Put(_ context.Context, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for t, exp := range m.tokens {
		if now.After(exp) {
			delete(m.tokens, t)
		}
	}
	m.tokens[token] = now.Add(ttl)
	return nil
}

func (m *MemoryConfirmations) Take(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.tokens[token]
	if !ok {
		return false, nil
	}
	delete(m.tokens, token)
	return !m.now().After(exp), nil
}
