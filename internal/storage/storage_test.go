package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"docportal/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Presigner = (*S3Presigner)(nil)
	_ Presigner = (*MemoryPresigner)(nil)
)

func TestS3Presigner_SignsLocally(t *testing.T) {
	p, err := NewS3Presigner(context.Background(), config.StorageConfig{
		Bucket:       "evidence",
		Region:       "us-east-1",
		Endpoint:     "http://localhost:9000",
		AccessKey:    "minio",
		SecretKey:    "minio123",
		UsePathStyle: true,
	})
	require.NoError(t, err)

	put, err := p.PresignPut(context.Background(), "submissions/p/r/v1/abc-a.pdf", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "PUT", put.Method)
	assert.True(t, strings.HasPrefix(put.URL, "http://localhost:9000/evidence/submissions/p/r/v1/abc-a.pdf?"), put.URL)
	assert.Contains(t, put.URL, "X-Amz-Expires=600")

	get, err := p.PresignGet(context.Background(), "submissions/p/r/v1/abc-a.pdf", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "GET", get.Method)
	assert.Contains(t, get.URL, "X-Amz-Expires=300")
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), get.ExpiresAt, 5*time.Second)
}

func TestNewS3Presigner_RequiresBucket(t *testing.T) {
	_, err := NewS3Presigner(context.Background(), config.StorageConfig{})
	assert.Error(t, err)
}

func TestMemoryPresigner(t *testing.T) {
	m := NewMemoryPresigner()
	s, err := m.PresignPut(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "PUT", s.Method)
	assert.Equal(t, []string{"k"}, m.Puts)

	m.Err = errors.New("boom")
	_, err = m.PresignGet(context.Background(), "k", time.Minute)
	assert.Error(t, err)
	assert.Empty(t, m.Gets)
}
