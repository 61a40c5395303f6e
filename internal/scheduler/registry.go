package scheduler

import (
	"sync"
	"time"
)

// Registry は予約の有効期限エントリ (ticketID, expiresAt) を保持する
// チケットIDのみを持ち、実体は常にレジストリ（Ledger）経由で解決する
type Registry struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewRegistry は空の期限レジストリを作成する
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]time.Time)}
}

// Register は期限エントリを登録する
func (r *Registry) Register(ticketID string, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[ticketID] = expiresAt
}

// Unregister はエントリを取り除く（確定・キャンセル時）
func (r *Registry) Unregister(ticketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, ticketID)
}

// ExpiresAt はエントリの期限を返す（コマンドの取り消しデータ取得用）
func (r *Registry) ExpiresAt(ticketID string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.entries[ticketID]
	return at, ok
}

// TakeDue は期限を過ぎたエントリをアトミックに取り出す
// 取り出されたエントリはレジストリから消えるため、並行スイープでも
// 同じ予約が二重に処理されることはない
func (r *Registry) TakeDue(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []string
	for id, at := range r.entries {
		if !at.After(now) {
			due = append(due, id)
			delete(r.entries, id)
		}
	}
	return due
}

// Len は登録件数を返す
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
