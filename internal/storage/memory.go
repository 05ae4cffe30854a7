package storage

import (
	"context"
	"sync"

	"github.com/ajitpratap0/boardlake/pkg/errors"
)

// MemoryStore keeps objects in process memory. It backs mem:// destinations
// for dry runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]*Object
	puts    int

	// FailWith, when set, is returned by every Put
	FailWith error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]*Object)}
}

// Scheme implements ObjectStore.
func (s *MemoryStore) Scheme() string { return SchemeMemory }

// Put stores a copy of obj.
func (s *MemoryStore) Put(ctx context.Context, obj *Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.puts++
	if s.FailWith != nil {
		return errors.Wrap(s.FailWith, errors.ErrorTypeWrite, "put failed")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeWrite, "write cancelled")
	}

	cp := *obj
	cp.Body = append([]byte(nil), obj.Body...)
	cp.Metadata = make(map[string]string, len(obj.Metadata))
	for k, v := range obj.Metadata {
		cp.Metadata[k] = v
	}
	s.objects[obj.Bucket+"/"+obj.Key] = &cp
	return nil
}

// Get returns the stored object for bucket/key.
func (s *MemoryStore) Get(bucket, key string) (*Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[bucket+"/"+key]
	return obj, ok
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Puts returns the number of Put calls, including failed ones.
func (s *MemoryStore) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// Close implements ObjectStore.
func (s *MemoryStore) Close() error { return nil }
