package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// Memory keeps uploaded objects in memory.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	// FailWith, when set, is returned by the next Upload.
	FailWith error
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *Memory) Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailWith; err != nil {
		m.FailWith = nil
		return Object{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Object{}, err
	}
	m.objects[objectPath] = data
	m.types[objectPath] = contentType
	return Object{
		Path:        objectPath,
		URL:         "memory://" + objectPath,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func (m *Memory) Delete(ctx context.Context, objectPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[objectPath]; !ok {
		return fmt.Errorf("%s: %w", objectPath, ErrObjectNotFound)
	}
	delete(m.objects, objectPath)
	delete(m.types, objectPath)
	return nil
}

// Get returns a stored object's bytes.
func (m *Memory) Get(objectPath string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objectPath]
	return bytes.Clone(data), ok
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
