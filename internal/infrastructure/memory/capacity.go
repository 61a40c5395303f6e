package memory

import (
	"context"
	"sync"

	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/command"
)

// CapacityStore はプロセス内の路線別座席在庫
// 単一ノード構成とテストで使用する
type CapacityStore struct {
	mu           sync.Mutex
	seats        map[string]int
	defaultSeats int
}

// NewCapacityStore は路線ごとの初期座席数を持つ在庫を作成する
func NewCapacityStore(defaultSeats int) *CapacityStore {
	return &CapacityStore{seats: make(map[string]int), defaultSeats: defaultSeats}
}

// SetSeats は特定路線の残席数を設定する
func (s *CapacityStore) SetSeats(routeKey string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seats[routeKey] = n
}

// Available は路線の残席数を返す
func (s *CapacityStore) Available(routeKey string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining(routeKey)
}

// ReserveSeats は座席を確保する（不足時は command.ErrNoCapacity）
func (s *CapacityStore) ReserveSeats(_ context.Context, routeKey string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := s.remaining(routeKey)
	if remaining < n {
		return command.ErrNoCapacity
	}
	s.seats[routeKey] = remaining - n
	return nil
}

// ReleaseSeats は座席を解放する
func (s *CapacityStore) ReleaseSeats(_ context.Context, routeKey string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seats[routeKey] = s.remaining(routeKey) + n
	return nil
}

func (s *CapacityStore) remaining(routeKey string) int {
	if n, ok := s.seats[routeKey]; ok {
		return n
	}
	return s.defaultSeats
}
