package kvstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// memoryStore keeps everything in process memory. It is the default dev
// backend and the store used by tests; it follows the same keyset-cursor
// contract as the database backend.
type memoryStore struct {
	mutex sync.RWMutex
	data  map[string]string
}

func NewMemoryStore() Store {
	return &memoryStore{data: make(map[string]string)}
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	val, ok := s.data[key]
	return val, ok, nil
}

func (s *memoryStore) Put(ctx context.Context, key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.data[key] = value
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memoryStore) List(ctx context.Context, prefix, cursor string, limit int64) (*ListResult, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	keys := make([]string, 0)
	for key := range s.data {
		if strings.HasPrefix(key, prefix) && (cursor == "" || key > cursor) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	result := &ListResult{}
	for _, key := range keys {
		if int64(len(result.Entries)) == limit {
			result.NextCursor = result.Entries[len(result.Entries)-1].Key
			break
		}
		result.Entries = append(result.Entries, Entry{Key: key, Value: s.data[key]})
	}
	return result, nil
}
