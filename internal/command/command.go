package command

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/domain/pricing"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/ledger"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/scheduler"
)

var (
	// ErrNoCapacity は路線に座席の空きがない場合のエラー
	ErrNoCapacity = errors.New("座席の空きがありません")

	// ErrCannotUndo は取り消し条件を満たさないコマンドの取り消し試行
	ErrCannotUndo = errors.New("このコマンドは取り消せません")
)

// CapacityProvider は路線ごとの座席在庫を管理する協調コンポーネント
type CapacityProvider interface {
	ReserveSeats(ctx context.Context, routeKey string, n int) error
	ReleaseSeats(ctx context.Context, routeKey string, n int) error
}

// Command は実行と取り消しが可能なチケット変更の単位
// Execute は原子的であり、途中で失敗した場合は対象を呼び出し前の状態に残す
type Command interface {
	ID() string
	Name() string
	TicketID() string
	Execute(ctx context.Context) error
	Undo(ctx context.Context) error
	CanUndo() bool
}

// Deps はコマンドが操作する共有コンポーネント
type Deps struct {
	Ledger   *ledger.Ledger
	Engine   *pricing.Engine
	Capacity CapacityProvider
	Expiry   *scheduler.Registry
}

// base は全コマンド共通の識別情報と実行状態
type base struct {
	id         string
	ticketID   string
	executedAt time.Time
	executed   bool
	undone     bool
}

func newBase(ticketID string) base {
	return base{id: uuid.New().String(), ticketID: ticketID}
}

func (b *base) ID() string       { return b.id }
func (b *base) TicketID() string { return b.ticketID }

// CanUndo は実行済みかつ未取り消しの場合に true を返す
func (b *base) CanUndo() bool {
	return b.executed && !b.undone
}

func (b *base) markExecuted() {
	b.executed = true
	b.undone = false
	b.executedAt = time.Now()
}

func (b *base) markUndone() {
	b.undone = true
}
