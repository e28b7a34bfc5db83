package storage

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Memory records buckets and removed objects in process. Its URLs point at
// a fake host and are only useful for development and tests.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]bool
	removed map[string][]string
	expiry  time.Duration
	// Fail, when set, is returned by every call.
	Fail error
}

func NewMemory(expiry time.Duration) *Memory {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &Memory{buckets: map[string]bool{}, removed: map[string][]string{}, expiry: expiry}
}

func (m *Memory) EnsureBucket(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return connErr(m.Fail)
	}
	m.buckets[bucket] = true
	return nil
}

func (m *Memory) HasBucket(bucket string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buckets[bucket]
}

func (m *Memory) presign(method, bucket, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return "", connErr(m.Fail)
	}
	q := url.Values{}
	q.Set("X-Method", method)
	q.Set("X-Expires", fmt.Sprint(int(m.expiry.Seconds())))
	u := url.URL{Scheme: "https", Host: "storage.invalid", Path: "/" + bucket + "/" + key, RawQuery: q.Encode()}
	return u.String(), nil
}

func (m *Memory) GenerateUploadURL(ctx context.Context, bucket, key string) (string, error) {
	return m.presign("PUT", bucket, key)
}

func (m *Memory) GenerateDownloadURL(ctx context.Context, bucket, key string) (string, error) {
	return m.presign("GET", bucket, key)
}

func (m *Memory) RemoveObjects(ctx context.Context, bucket string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return connErr(m.Fail)
	}
	m.removed[bucket] = append(m.removed[bucket], keys...)
	return nil
}

func (m *Memory) Removed(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.removed[bucket]...)
}
