package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/domain/ticket"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/pkg/logger"
)

// EventType はチケットライフサイクルイベントの種類
type EventType string

const (
	EventTicketPurchased   EventType = "ticket_purchased"
	EventTicketReserved    EventType = "ticket_reserved"
	EventTicketConfirmed   EventType = "ticket_confirmed"
	EventTicketModified    EventType = "ticket_modified"
	EventTicketCancelled   EventType = "ticket_cancelled"
	EventTicketRefunded    EventType = "ticket_refunded"
	EventTicketUsed        EventType = "ticket_used"
	EventTicketExpired     EventType = "ticket_expired"
	EventOperationUndone   EventType = "operation_undone"
	EventOperationRedone   EventType = "operation_redone"
)

// Event は状態遷移が確定した後に配信される通知
type Event struct {
	Type       EventType    `json:"type"`
	TicketID   string       `json:"ticket_id"`
	ClientID   string       `json:"client_id"`
	State      ticket.State `json:"state"`
	Price      float64      `json:"price"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// Notifier は通知の送り先（メール・SMS・プッシュなど）
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev Event) error
}

// Fanout は複数の通知先へベストエフォートで配信する
// ある通知先の失敗は他の通知先にも、確定済みの遷移にも影響しない
type Fanout struct {
	sinks []Notifier
}

// NewFanout は通知先リストから配信器を作成する
func NewFanout(sinks ...Notifier) *Fanout {
	return &Fanout{sinks: sinks}
}

// Attach は通知先を追加する
func (f *Fanout) Attach(n Notifier) {
	f.sinks = append(f.sinks, n)
}

// Notify は全通知先へ順に配信する（失敗はログに残して継続）
func (f *Fanout) Notify(ctx context.Context, ev Event) error {
	for _, sink := range f.sinks {
		if err := f.notifyOne(ctx, sink, ev); err != nil {
			logger.Warn("通知の配信に失敗",
				zap.String("sink", sink.Name()),
				zap.String("event", string(ev.Type)),
				zap.String("ticket_id", ev.TicketID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// notifyOne は通知先のパニックからも配信ループを保護する
func (f *Fanout) notifyOne(ctx context.Context, sink Notifier, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return sink.Notify(ctx, ev)
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return "通知先がパニックしました"
}

// LogNotifier はイベントを構造化ログへ出力する通知先
type LogNotifier struct{}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(_ context.Context, ev Event) error {
	logger.Info("チケットイベント",
		zap.String("event", string(ev.Type)),
		zap.String("ticket_id", ev.TicketID),
		zap.String("client_id", ev.ClientID),
		zap.String("state", string(ev.State)),
		zap.Float64("price", ev.Price),
		zap.Time("occurred_at", ev.OccurredAt),
	)
	return nil
}
