package ledger

import (
	"context"
	"sync"
	"time"
)

// MemorySpendStore is the in-process counterpart of RedisSpendStore, used in
// tests and single-node deployments without Redis.
type MemorySpendStore struct {
	mu       sync.Mutex
	counters map[string]float64
}

func NewMemorySpendStore() *MemorySpendStore {
	return &MemorySpendStore{counters: make(map[string]float64)}
}

func (s *MemorySpendStore) IncrBy(_ context.Context, key string, usd float64, _ time.Duration) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] += usd
	return s.counters[key], nil
}

func (s *MemorySpendStore) Get(_ context.Context, key string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key], nil
}
