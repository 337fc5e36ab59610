package storage

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// MemoryPresigner 测试和本地开发用，只记录签发过的 key
type MemoryPresigner struct {
	mu     sync.Mutex
	Puts   []string
	Gets   []string
	Err    error
	now    func() time.Time
	prefix string
}

func NewMemoryPresigner() *MemoryPresigner {
	return &MemoryPresigner{now: time.Now, prefix: "memory://bucket/"}
}

func (m *MemoryPresigner) sign(key, method string, ttl time.Duration) (SignedURL, error) {
	if m.Err != nil {
		return SignedURL{}, m.Err
	}
	expiresAt := m.now().Add(ttl)
	q := url.Values{}
	q.Set("expires", expiresAt.UTC().Format(time.RFC3339))
	return SignedURL{
		URL:       m.prefix + key + "?" + q.Encode(),
		Method:    method,
		ExpiresAt: expiresAt,
	}, nil
}

func (m *MemoryPresigner) PresignPut(_ context.Context, key string, ttl time.Duration) (SignedURL, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.sign(key, "PUT", ttl)
	if err == nil {
		m.Puts = append(m.Puts, key)
	}
	return s, err
}

func (m *MemoryPresigner) PresignGet(_ context.Context, key string, ttl time.Duration) (SignedURL, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.sign(key, "GET", ttl)
	if err == nil {
		m.Gets = append(m.Gets, key)
	}
	return s, err
}
