package blob

import (
	"context"
	"sync"
)

const memoryScheme = "mem"

// InMemory holds objects in a map. Pointers look like mem://<bucket>/<key>.
type InMemory struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string][]byte
}

func NewInMemory(bucket string) *InMemory {
	if bucket == "" {
		bucket = "records"
	}
	return &InMemory{bucket: bucket, objects: make(map[string][]byte)}
}

func (m *InMemory) Put(_ context.Context, objectKey string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectKey] = append([]byte(nil), data...)
	return memoryScheme + "://" + m.bucket + "/" + objectKey, nil
}

func (m *InMemory) Get(_ context.Context, pointer string) ([]byte, error) {
	bucket, key, err := parsePointer(pointer, memoryScheme)
	if err != nil {
		return nil, err
	}
	if bucket != m.bucket {
		return nil, ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *InMemory) Delete(_ context.Context, pointer string) error {
	bucket, key, err := parsePointer(pointer, memoryScheme)
	if err != nil {
		return err
	}
	if bucket != m.bucket {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Len reports how many objects are stored.
func (m *InMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
