package ledger

import (
	"sync"

	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/domain/ticket"
)

// Ledger はチケットの正本レジストリ（プロセス内 id→Ticket マップ）
// 格納済みチケットの変更は WithTicket のエントリ単位ロックを通して直列化される
// ビジネスロジックは持たない
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu sync.Mutex
	t  *ticket.Ticket
}

// New は空のレジストリを作成する
func New() *Ledger {
	return &Ledger{entries: make(map[string]*entry)}
}

// Put はチケットを登録する（所有権はレジストリへ移る）
func (l *Ledger) Put(t *ticket.Ticket) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[t.ID] = &entry{t: t}
}

// Get はチケットの値コピーを返す（読み取り用）
func (l *Ledger) Get(id string) (*ticket.Ticket, error) {
	l.mu.RLock()
	e, ok := l.entries[id]
	l.mu.RUnlock()
	if !ok {
		return nil, ticket.ErrTicketNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.t.Clone(), nil
}

// Remove はチケットを削除する
func (l *Ledger) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, id)
}

// Values は全チケットの値コピーのスナップショットを返す（ライブビューではない）
func (l *Ledger) Values() []*ticket.Ticket {
	l.mu.RLock()
	entries := make([]*entry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	out := make([]*ticket.Ticket, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.t.Clone())
		e.mu.Unlock()
	}
	return out
}

// Len は登録件数を返す
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// WithTicket はエントリ単位ロックを保持したまま fn を実行する
// チケット単位の操作はここで直列化され、確定と失効の競合は
// 先にロックを取得した側が勝ち、敗者は状態機械の検査で安全に失敗する
func (l *Ledger) WithTicket(id string, fn func(t *ticket.Ticket) error) error {
	l.mu.RLock()
	e, ok := l.entries[id]
	l.mu.RUnlock()
	if !ok {
		return ticket.ErrTicketNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// ロック取得中に削除されていないか再確認
	l.mu.RLock()
	cur, ok := l.entries[id]
	l.mu.RUnlock()
	if !ok || cur != e {
		return ticket.ErrTicketNotFound
	}

	return fn(e.t)
}
