package command

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/pkg/logger"
)

// DefaultHistoryCap は実行履歴の既定の上限
const DefaultHistoryCap = 100

// Manager は実行・取り消し・やり直しの履歴を管理する
// 履歴スタックはインスタンスごとに独立しており、サービス境界を跨いで共有しない
type Manager struct {
	mu      sync.Mutex
	history []Command
	redo    []Command
	cap     int
}

// NewManager は履歴上限付きのマネージャを作成する
func NewManager(historyCap int) *Manager {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &Manager{cap: historyCap}
}

// Execute はコマンドを実行し、成功時に履歴へ積む
// 新しいコマンドの実行はやり直し履歴を破棄する
func (m *Manager) Execute(ctx context.Context, cmd Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := cmd.Execute(ctx); err != nil {
		return fmt.Errorf("コマンド %s の実行に失敗しました: %w", cmd.Name(), err)
	}
	m.pushHistory(cmd)
	m.redo = nil
	return nil
}

// Undo は直近のコマンドを取り消す
// コマンドが取り消しを拒否した場合は履歴を変えずに false を返す
func (m *Manager) Undo(ctx context.Context) (Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return nil, nil
	}
	last := m.history[len(m.history)-1]
	if !last.CanUndo() {
		return nil, nil
	}
	m.history = m.history[:len(m.history)-1]

	if err := last.Undo(ctx); err != nil {
		// 取り消しは原子的なので、失敗したコマンドは履歴へ戻す
		m.history = append(m.history, last)
		return nil, fmt.Errorf("コマンド %s の取り消しに失敗しました: %w", last.Name(), err)
	}
	m.redo = append(m.redo, last)
	return last, nil
}

// Redo は直近に取り消したコマンドを再実行する
func (m *Manager) Redo(ctx context.Context) (Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.redo) == 0 {
		return nil, nil
	}
	cmd := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]

	if err := cmd.Execute(ctx); err != nil {
		m.redo = append(m.redo, cmd)
		return nil, fmt.Errorf("コマンド %s の再実行に失敗しました: %w", cmd.Name(), err)
	}
	m.pushHistory(cmd)
	return cmd, nil
}

// ExecuteBatch はコマンド列を順に実行する
// いずれかが失敗した場合、成功済みのコマンドを逆順に取り消してから
// エラーを返す（全体として all-or-nothing）
func (m *Manager) ExecuteBatch(ctx context.Context, cmds []Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, cmd := range cmds {
		if err := cmd.Execute(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if uerr := cmds[j].Undo(ctx); uerr != nil {
					logger.Error("バッチ補償の取り消しに失敗",
						zap.String("command", cmds[j].Name()),
						zap.String("ticket_id", cmds[j].TicketID()),
						zap.Error(uerr),
					)
				}
			}
			return fmt.Errorf("バッチ実行に失敗しました（%d/%d 件目のコマンド %s）: %w", i+1, len(cmds), cmd.Name(), err)
		}
	}
	for _, cmd := range cmds {
		m.pushHistory(cmd)
	}
	m.redo = nil
	return nil
}

// HistoryLen は実行履歴の件数を返す
func (m *Manager) HistoryLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// RedoLen はやり直し履歴の件数を返す
func (m *Manager) RedoLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo)
}

// pushHistory は履歴へ追加し、上限を超えた場合は最古のコマンドを捨てる
func (m *Manager) pushHistory(cmd Command) {
	m.history = append(m.history, cmd)
	if len(m.history) > m.cap {
		m.history = m.history[1:]
	}
}
