package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/command"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/domain/pricing"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/domain/ticket"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/ledger"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/notify"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/pkg/logger"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/pkg/metrics"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/scheduler"
)

// 既定値
const (
	DefaultValidity         = 15 * time.Minute
	DefaultModifyUndoWindow = 2 * time.Hour
)

// Config はサービスの動作パラメータ
type Config struct {
	// DefaultValidity は有効期限未指定の予約の有効期間
	DefaultValidity time.Duration
	// ModifyUndoWindow は変更コマンドの取り消しが許される期間
	ModifyUndoWindow time.Duration
	// HistoryCap はコマンド履歴の上限
	HistoryCap int
}

// TicketService はチケットライフサイクルの操作を提供する
// レジストリ・コマンド履歴・期限レジストリはサービスが排他的に所有し、
// プロセス内でひとつだけ構築して各操作へ参照渡しする
type TicketService struct {
	ledger     *ledger.Ledger
	manager    *command.Manager
	engine     *pricing.Engine
	expiry     *scheduler.Registry
	capacity   command.CapacityProvider
	sink       TicketSink
	notifier   Notifier
	metrics    *metrics.Metrics
	validity   time.Duration
	undoWindow time.Duration
}

// NewTicketService は新しいサービスを作成する
// sink / notifier / m は nil を許容する（省略時は該当の副作用をスキップ）
func NewTicketService(engine *pricing.Engine, capacity command.CapacityProvider, sink TicketSink, notifier Notifier, m *metrics.Metrics, cfg Config) *TicketService {
	if cfg.DefaultValidity <= 0 {
		cfg.DefaultValidity = DefaultValidity
	}
	if cfg.ModifyUndoWindow <= 0 {
		cfg.ModifyUndoWindow = DefaultModifyUndoWindow
	}
	return &TicketService{
		ledger:     ledger.New(),
		manager:    command.NewManager(cfg.HistoryCap),
		engine:     engine,
		expiry:     scheduler.NewRegistry(),
		capacity:   capacity,
		sink:       sink,
		notifier:   notifier,
		metrics:    m,
		validity:   cfg.DefaultValidity,
		undoWindow: cfg.ModifyUndoWindow,
	}
}

// PurchaseInput は購入・予約リクエストの入力
type PurchaseInput struct {
	ClientID    string
	Type        ticket.Type
	Origin      string
	Destination string
	TravelDate  time.Time
	DistanceKm  int
}

func (in PurchaseInput) build(state ticket.State) *ticket.Ticket {
	return ticket.NewTicket(in.ClientID, in.Type,
		ticket.Route{Origin: in.Origin, Destination: in.Destination},
		in.TravelDate, in.DistanceKm, state)
}

// Purchase はチケットを購入する（支払いは即時に完了したものとして扱う）
func (s *TicketService) Purchase(ctx context.Context, in PurchaseInput) (*ticket.Ticket, error) {
	tk := in.build(ticket.StatePaid)
	// 種別・距離の違反は状態が変化する前に拒否する
	if err := tk.Validate(); err != nil {
		s.recordOp("purchase", err)
		return nil, err
	}
	cmd := command.NewPurchase(s.deps(), tk)
	if err := s.manager.Execute(ctx, cmd); err != nil {
		s.recordOp("purchase", err)
		return nil, err
	}
	s.recordOp("purchase", nil)
	return s.afterChange(ctx, tk.ID, notify.EventTicketPurchased)
}

// PurchaseBatch は複数チケットをまとめて購入する
// いずれかが失敗した場合は成功済み分を巻き戻し、1件も残さない
func (s *TicketService) PurchaseBatch(ctx context.Context, inputs []PurchaseInput) ([]*ticket.Ticket, error) {
	cmds := make([]command.Command, 0, len(inputs))
	ids := make([]string, 0, len(inputs))
	for _, in := range inputs {
		tk := in.build(ticket.StatePaid)
		if err := tk.Validate(); err != nil {
			s.recordOp("purchase_batch", err)
			return nil, err
		}
		cmds = append(cmds, command.NewPurchase(s.deps(), tk))
		ids = append(ids, tk.ID)
	}
	if err := s.manager.ExecuteBatch(ctx, cmds); err != nil {
		s.recordOp("purchase_batch", err)
		return nil, err
	}
	s.recordOp("purchase_batch", nil)

	tickets := make([]*ticket.Ticket, 0, len(ids))
	for _, id := range ids {
		t, err := s.afterChange(ctx, id, notify.EventTicketPurchased)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

// Reserve はチケットを期限付きで仮押さえする
// validityMinutes が負の場合は既定の有効期間を使う（0 は即時失効を意味する）
func (s *TicketService) Reserve(ctx context.Context, in PurchaseInput, validityMinutes int) (*ticket.Ticket, error) {
	validity := time.Duration(validityMinutes) * time.Minute
	if validityMinutes < 0 {
		validity = s.validity
	}
	tk := in.build(ticket.StateReserved)
	if err := tk.Validate(); err != nil {
		s.recordOp("reserve", err)
		return nil, err
	}
	cmd := command.NewReserve(s.deps(), tk, validity)
	if err := s.manager.Execute(ctx, cmd); err != nil {
		s.recordOp("reserve", err)
		return nil, err
	}
	s.recordOp("reserve", nil)
	return s.afterChange(ctx, tk.ID, notify.EventTicketReserved)
}

// Confirm は仮押さえ中の予約を支払い済みへ確定する
func (s *TicketService) Confirm(ctx context.Context, id string) (*ticket.Ticket, error) {
	cmd := command.NewConfirm(s.deps(), id)
	if err := s.manager.Execute(ctx, cmd); err != nil {
		s.recordOp("confirm", err)
		return nil, err
	}
	s.recordOp("confirm", nil)
	return s.afterChange(ctx, id, notify.EventTicketConfirmed)
}

// ModifyInput は変更リクエストの入力（nil のフィールドは変更しない）
type ModifyInput struct {
	Type        *ticket.Type
	Origin      *string
	Destination *string
	TravelDate  *time.Time
	DistanceKm  *int
}

// Modify は価格に影響するフィールドを変更し、価格を再計算する
func (s *TicketService) Modify(ctx context.Context, id string, in ModifyInput) (*ticket.Ticket, error) {
	changes := command.FieldChanges{
		Type:        in.Type,
		Origin:      in.Origin,
		Destination: in.Destination,
		TravelDate:  in.TravelDate,
		DistanceKm:  in.DistanceKm,
	}
	cmd := command.NewModify(s.deps(), id, changes, s.undoWindow)
	if err := s.manager.Execute(ctx, cmd); err != nil {
		s.recordOp("modify", err)
		return nil, err
	}
	s.recordOp("modify", nil)
	return s.afterChange(ctx, id, notify.EventTicketModified)
}

// Refund はチケットを払い戻す（未払い予約は即時失効として扱う）
func (s *TicketService) Refund(ctx context.Context, id string) (*ticket.Ticket, error) {
	cmd := command.NewRefund(s.deps(), id)
	if err := s.manager.Execute(ctx, cmd); err != nil {
		s.recordOp("refund", err)
		return nil, err
	}
	s.recordOp("refund", nil)
	return s.afterChange(ctx, id, notify.EventTicketRefunded)
}

// Use は支払い済みチケットを使用済みにする
func (s *TicketService) Use(ctx context.Context, id string) (*ticket.Ticket, error) {
	cmd := command.NewUse(s.deps(), id)
	if err := s.manager.Execute(ctx, cmd); err != nil {
		s.recordOp("use", err)
		return nil, err
	}
	s.recordOp("use", nil)
	return s.afterChange(ctx, id, notify.EventTicketUsed)
}

// Cancel は予約を明示的にキャンセルする
// タイマーを介さないだけで、スイープと同一の失効経路を通る
func (s *TicketService) Cancel(ctx context.Context, id string) (*ticket.Ticket, error) {
	cmd := command.NewCancel(s.deps(), id)
	if err := s.manager.Execute(ctx, cmd); err != nil {
		s.recordOp("cancel", err)
		return nil, err
	}
	s.recordOp("cancel", nil)
	return s.afterChange(ctx, id, notify.EventTicketCancelled)
}

// UndoLast は直近のコマンドを取り消す
// 取り消すものがない、またはコマンドが拒否した場合は false を返す
func (s *TicketService) UndoLast(ctx context.Context) (bool, error) {
	cmd, err := s.manager.Undo(ctx)
	if err != nil {
		s.recordOp("undo", err)
		return false, err
	}
	if cmd == nil {
		return false, nil
	}
	s.recordOp("undo", nil)
	s.sideEffects(ctx, cmd.TicketID(), notify.EventOperationUndone)
	return true, nil
}

// RedoLast は直近に取り消したコマンドを再実行する
func (s *TicketService) RedoLast(ctx context.Context) (bool, error) {
	cmd, err := s.manager.Redo(ctx)
	if err != nil {
		s.recordOp("redo", err)
		return false, err
	}
	if cmd == nil {
		return false, nil
	}
	s.recordOp("redo", nil)
	s.sideEffects(ctx, cmd.TicketID(), notify.EventOperationRedone)
	return true, nil
}

// SweepExpired は期限切れの予約を失効させ、失効したチケットIDを返す
// 並行する確定との競合では先にチケットのロックを取得した側が勝ち、
// 敗者は状態機械の検査で安全に失敗する（失効は冪等）
func (s *TicketService) SweepExpired(ctx context.Context) []string {
	due := s.expiry.TakeDue(time.Now())
	var expired []string
	for _, id := range due {
		var routeKey string
		err := s.ledger.WithTicket(id, func(t *ticket.Ticket) error {
			if err := t.Apply(ticket.OpExpire); err != nil {
				return err
			}
			routeKey = t.Route.Key()
			return nil
		})
		if err != nil {
			// 既に確定・削除済みの予約はエントリを捨てるだけでよい
			if ticket.IsIllegalTransition(err) || errors.Is(err, ticket.ErrTicketNotFound) {
				logger.Debug("失効スイープの競合をスキップ", zap.String("ticket_id", id), zap.Error(err))
				continue
			}
			logger.Error("失効処理に失敗", zap.String("ticket_id", id), zap.Error(err))
			continue
		}
		// 座席は失効1回につき1度だけ解放される
		if rerr := s.capacity.ReleaseSeats(ctx, routeKey, 1); rerr != nil {
			logger.Warn("失効した予約の座席解放に失敗", zap.String("ticket_id", id), zap.Error(rerr))
		}
		expired = append(expired, id)
		s.sideEffects(ctx, id, notify.EventTicketExpired)
	}
	if s.metrics != nil && len(expired) > 0 {
		s.metrics.SweptReservationsTotal.Add(float64(len(expired)))
	}
	return expired
}

// GetTicket はチケットを取得する（最新状態を返すため先にスイープする）
func (s *TicketService) GetTicket(ctx context.Context, id string) (*ticket.Ticket, error) {
	s.SweepExpired(ctx)
	return s.ledger.Get(id)
}

// ListTickets は全チケットのスナップショットを返す
// clientID が空でない場合はそのクライアントのチケットに絞り込む
func (s *TicketService) ListTickets(ctx context.Context, clientID string) []*ticket.Ticket {
	s.SweepExpired(ctx)
	values := s.ledger.Values()
	if clientID == "" {
		return values
	}
	filtered := make([]*ticket.Ticket, 0, len(values))
	for _, t := range values {
		if t.ClientID == clientID {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// PendingExpiries は登録中の期限エントリ数を返す（監視用）
func (s *TicketService) PendingExpiries() int {
	return s.expiry.Len()
}

func (s *TicketService) deps() command.Deps {
	return command.Deps{
		Ledger:   s.ledger,
		Engine:   s.engine,
		Capacity: s.capacity,
		Expiry:   s.expiry,
	}
}

// afterChange は副作用を実行したうえで最新のチケットを返す
func (s *TicketService) afterChange(ctx context.Context, id string, evType notify.EventType) (*ticket.Ticket, error) {
	s.sideEffects(ctx, id, evType)
	return s.ledger.Get(id)
}

// sideEffects は永続化と通知を行う
// いずれもベストエフォートであり、失敗しても確定済みの遷移は巻き戻らない
func (s *TicketService) sideEffects(ctx context.Context, id string, evType notify.EventType) {
	t, err := s.ledger.Get(id)

	if s.sink != nil && err == nil {
		if serr := s.sink.Save(ctx, t); serr != nil {
			logger.Warn("チケットの永続化に失敗", zap.String("ticket_id", id), zap.Error(serr))
		}
	}
	if s.notifier != nil {
		ev := notify.Event{Type: evType, TicketID: id, OccurredAt: time.Now()}
		if err == nil {
			ev.ClientID = t.ClientID
			ev.State = t.State
			ev.Price = t.Price
		}
		if nerr := s.notifier.Notify(ctx, ev); nerr != nil {
			logger.Warn("イベント通知に失敗", zap.String("ticket_id", id), zap.Error(nerr))
		}
	}
	s.refreshGauges()
}

// recordOp は操作の結果をメトリクスへ記録する
func (s *TicketService) recordOp(op string, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	switch {
	case err == nil:
	case ticket.IsIllegalTransition(err),
		errors.Is(err, ticket.ErrTicketNotFound),
		errors.Is(err, command.ErrNoCapacity),
		ticket.IsPricingError(err):
		status = "rejected"
	default:
		status = "error"
	}
	s.metrics.TicketOperationsTotal.WithLabelValues(op, status).Inc()
}

// refreshGauges は状態別チケット数と履歴深さのゲージを更新する
func (s *TicketService) refreshGauges() {
	if s.metrics == nil {
		return
	}
	counts := make(map[ticket.State]int)
	for _, t := range s.ledger.Values() {
		counts[t.State]++
	}
	for _, st := range ticket.States() {
		s.metrics.TicketsByState.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
	s.metrics.CommandHistoryDepth.WithLabelValues("history").Set(float64(s.manager.HistoryLen()))
	s.metrics.CommandHistoryDepth.WithLabelValues("redo").Set(float64(s.manager.RedoLen()))
}
