package objectstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryObjectStore keeps objects in process memory. It backs local
// development and tests when no S3 credentials are configured;
// presigned URLs are synthetic and not actually fetchable.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{buckets: make(map[string]map[string][]byte)}
}

func (m *MemoryObjectStore) CreateBucket(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string][]byte)
	}
	return nil
}

func (m *MemoryObjectStore) DeleteBucket(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, bucket)
	return nil
}

func (m *MemoryObjectStore) Upload(_ context.Context, bucket, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		b = make(map[string][]byte)
		m.buckets[bucket] = b
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b[key] = cp
	return nil
}

func (m *MemoryObjectStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.buckets[bucket][key]
	if !ok {
		return nil, &ErrObjectNotFound{Bucket: bucket, Key: key}
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *MemoryObjectStore) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets[bucket], key)
	return nil
}

func (m *MemoryObjectStore) PresignGet(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.buckets[bucket][key]; !ok {
		return "", &ErrObjectNotFound{Bucket: bucket, Key: key}
	}
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}
	return fmt.Sprintf("memory://%s/%s?expires=%d", bucket, key, int64(ttl.Seconds())), nil
}
