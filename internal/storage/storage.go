// Package storage issues time-limited upload and download credentials for the object store.
package storage

import (
	"context"
	"time"
)

// SignedURL 一次性、有时效的访问凭证
type SignedURL struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Presigner 对象存储只需要提供这两个能力
type Presigner interface {
	PresignPut(ctx context.Context, key string, ttl time.Duration) (SignedURL, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (SignedURL, error)
}
