package application

import (
	"context"

	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/domain/ticket"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/notify"
)

// TicketSink は確定した変更を永続化する協調コンポーネント
// 呼び出しはベストエフォートであり、失敗してもコア状態は変化しない
type TicketSink interface {
	Save(ctx context.Context, t *ticket.Ticket) error
}

// Notifier は状態遷移の確定後にイベントを配信する協調コンポーネント
// 失敗は確定済みの遷移へ影響しない
type Notifier interface {
	Notify(ctx context.Context, ev notify.Event) error
}
