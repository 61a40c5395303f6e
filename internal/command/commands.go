package command

import (
	"context"
	"time"

	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/domain/ticket"
)

// PurchaseCommand はチケットを購入（即時支払い済み）として登録する
type PurchaseCommand struct {
	base
	deps Deps
	t    *ticket.Ticket
}

// NewPurchase は購入コマンドを作成する（チケットは Paid 状態で構築しておく）
func NewPurchase(deps Deps, t *ticket.Ticket) *PurchaseCommand {
	return &PurchaseCommand{base: newBase(t.ID), deps: deps, t: t}
}

func (c *PurchaseCommand) Name() string { return "purchase" }

func (c *PurchaseCommand) Execute(ctx context.Context) error {
	if err := c.t.Validate(); err != nil {
		return err
	}
	price, err := c.deps.Engine.CalculateFinalPrice(c.t)
	if err != nil {
		return err
	}
	if err := c.deps.Capacity.ReserveSeats(ctx, c.t.Route.Key(), 1); err != nil {
		return err
	}
	c.t.Price = price
	c.deps.Ledger.Put(c.t)
	c.markExecuted()
	return nil
}

func (c *PurchaseCommand) Undo(ctx context.Context) error {
	if !c.CanUndo() {
		return ErrCannotUndo
	}
	if err := c.deps.Capacity.ReleaseSeats(ctx, c.t.Route.Key(), 1); err != nil {
		return err
	}
	c.deps.Ledger.Remove(c.t.ID)
	c.markUndone()
	return nil
}

// ReserveCommand はチケットを期限付き予約として登録する
type ReserveCommand struct {
	base
	deps      Deps
	t         *ticket.Ticket
	validity  time.Duration
	expiresAt time.Time
}

// NewReserve は予約コマンドを作成する（チケットは Reserved 状態で構築しておく）
func NewReserve(deps Deps, t *ticket.Ticket, validity time.Duration) *ReserveCommand {
	return &ReserveCommand{base: newBase(t.ID), deps: deps, t: t, validity: validity}
}

func (c *ReserveCommand) Name() string { return "reserve" }

func (c *ReserveCommand) ExpiresAt() time.Time { return c.expiresAt }

func (c *ReserveCommand) Execute(ctx context.Context) error {
	if err := c.t.Validate(); err != nil {
		return err
	}
	price, err := c.deps.Engine.CalculateFinalPrice(c.t)
	if err != nil {
		return err
	}
	if err := c.deps.Capacity.ReserveSeats(ctx, c.t.Route.Key(), 1); err != nil {
		return err
	}
	c.t.Price = price
	c.expiresAt = time.Now().Add(c.validity)
	c.deps.Ledger.Put(c.t)
	c.deps.Expiry.Register(c.t.ID, c.expiresAt)
	c.markExecuted()
	return nil
}

func (c *ReserveCommand) Undo(ctx context.Context) error {
	if !c.CanUndo() {
		return ErrCannotUndo
	}
	if err := c.deps.Capacity.ReleaseSeats(ctx, c.t.Route.Key(), 1); err != nil {
		return err
	}
	c.deps.Expiry.Unregister(c.t.ID)
	c.deps.Ledger.Remove(c.t.ID)
	c.markUndone()
	return nil
}

// ConfirmCommand は予約を支払い済みチケットへ確定する
type ConfirmCommand struct {
	base
	deps      Deps
	snap      ticket.Snapshot
	hadExpiry bool
	expiresAt time.Time
}

// NewConfirm は確定コマンドを作成する
func NewConfirm(deps Deps, ticketID string) *ConfirmCommand {
	return &ConfirmCommand{base: newBase(ticketID), deps: deps}
}

func (c *ConfirmCommand) Name() string { return "confirm" }

func (c *ConfirmCommand) Execute(ctx context.Context) error {
	err := c.deps.Ledger.WithTicket(c.ticketID, func(t *ticket.Ticket) error {
		snap := t.Snapshot()
		if err := t.Apply(ticket.OpConfirm); err != nil {
			return err
		}
		c.snap = snap
		return nil
	})
	if err != nil {
		return err
	}
	// 取り消しに備えて元の期限を退避してから期限エントリを取り除く
	c.expiresAt, c.hadExpiry = c.deps.Expiry.ExpiresAt(c.ticketID)
	c.deps.Expiry.Unregister(c.ticketID)
	c.markExecuted()
	return nil
}

func (c *ConfirmCommand) Undo(ctx context.Context) error {
	if !c.CanUndo() {
		return ErrCannotUndo
	}
	err := c.deps.Ledger.WithTicket(c.ticketID, func(t *ticket.Ticket) error {
		t.Restore(c.snap)
		return nil
	})
	if err != nil {
		return err
	}
	if c.hadExpiry {
		c.deps.Expiry.Register(c.ticketID, c.expiresAt)
	}
	c.markUndone()
	return nil
}

// FieldChanges は変更コマンドが適用するフィールドの差分（nil は変更なし）
type FieldChanges struct {
	Type        *ticket.Type
	Origin      *string
	Destination *string
	TravelDate  *time.Time
	DistanceKm  *int
}

// ModifyCommand は価格に影響するフィールドを変更し、価格を再計算する
// 取り消しは一定時間内かつチケットが変更可能な状態の場合に限り許可される
type ModifyCommand struct {
	base
	deps       Deps
	changes    FieldChanges
	undoWindow time.Duration
	snap       ticket.Snapshot
	oldRoute   string
	newRoute   string
}

// NewModify は変更コマンドを作成する
func NewModify(deps Deps, ticketID string, changes FieldChanges, undoWindow time.Duration) *ModifyCommand {
	return &ModifyCommand{base: newBase(ticketID), deps: deps, changes: changes, undoWindow: undoWindow}
}

func (c *ModifyCommand) Name() string { return "modify" }

func (c *ModifyCommand) Execute(ctx context.Context) error {
	err := c.deps.Ledger.WithTicket(c.ticketID, func(t *ticket.Ticket) error {
		snap := t.Snapshot()
		if err := t.Apply(ticket.OpModify); err != nil {
			return err
		}

		c.applyChanges(t)
		if err := t.Validate(); err != nil {
			t.Restore(snap)
			return err
		}
		price, err := c.deps.Engine.CalculateFinalPrice(t)
		if err != nil {
			t.Restore(snap)
			return err
		}

		// 路線が変わる場合は新路線の座席を先に確保する
		oldRoute := snap.Route.Key()
		newRoute := t.Route.Key()
		if oldRoute != newRoute {
			if err := c.deps.Capacity.ReserveSeats(ctx, newRoute, 1); err != nil {
				t.Restore(snap)
				return err
			}
			if err := c.deps.Capacity.ReleaseSeats(ctx, oldRoute, 1); err != nil {
				// 旧路線の解放失敗は在庫の過少計上に留まり、チケット自体は矛盾しない
				_ = err
			}
		}

		t.Price = price
		c.snap = snap
		c.oldRoute = oldRoute
		c.newRoute = newRoute
		return nil
	})
	if err != nil {
		return err
	}
	c.markExecuted()
	return nil
}

func (c *ModifyCommand) applyChanges(t *ticket.Ticket) {
	if c.changes.Type != nil {
		t.Type = *c.changes.Type
	}
	if c.changes.Origin != nil {
		t.Route.Origin = *c.changes.Origin
	}
	if c.changes.Destination != nil {
		t.Route.Destination = *c.changes.Destination
	}
	if c.changes.TravelDate != nil {
		t.TravelDate = *c.changes.TravelDate
	}
	if c.changes.DistanceKm != nil {
		t.DistanceKm = *c.changes.DistanceKm
	}
}

// CanUndo は実行済み・未取り消しに加え、取り消し期限内かつ
// チケットがまだ変更可能な状態であることを要求する
func (c *ModifyCommand) CanUndo() bool {
	if !c.base.CanUndo() {
		return false
	}
	if c.undoWindow > 0 && time.Since(c.executedAt) > c.undoWindow {
		return false
	}
	t, err := c.deps.Ledger.Get(c.ticketID)
	if err != nil {
		return false
	}
	return t.CanModify()
}

func (c *ModifyCommand) Undo(ctx context.Context) error {
	if !c.CanUndo() {
		return ErrCannotUndo
	}
	if c.oldRoute != c.newRoute {
		if err := c.deps.Capacity.ReserveSeats(ctx, c.oldRoute, 1); err != nil {
			return err
		}
	}
	err := c.deps.Ledger.WithTicket(c.ticketID, func(t *ticket.Ticket) error {
		t.Restore(c.snap)
		return nil
	})
	if err != nil {
		return err
	}
	if c.oldRoute != c.newRoute {
		_ = c.deps.Capacity.ReleaseSeats(ctx, c.newRoute, 1)
	}
	c.markUndone()
	return nil
}

// CancelCommand は予約を即時失効させる（タイマーを介さず同一の状態経路を使う）
type CancelCommand struct {
	base
	deps      Deps
	snap      ticket.Snapshot
	routeKey  string
	hadExpiry bool
	expiresAt time.Time
}

// NewCancel はキャンセルコマンドを作成する
func NewCancel(deps Deps, ticketID string) *CancelCommand {
	return &CancelCommand{base: newBase(ticketID), deps: deps}
}

func (c *CancelCommand) Name() string { return "cancel" }

func (c *CancelCommand) Execute(ctx context.Context) error {
	err := c.deps.Ledger.WithTicket(c.ticketID, func(t *ticket.Ticket) error {
		// 座席解放より先に遷移の合法性を確認する（失敗時に在庫を汚さない）
		if !t.State.CanApply(ticket.OpExpire) {
			return &ticket.IllegalTransitionError{State: t.State, Op: ticket.OpExpire}
		}
		if err := c.deps.Capacity.ReleaseSeats(ctx, t.Route.Key(), 1); err != nil {
			return err
		}
		snap := t.Snapshot()
		if err := t.Apply(ticket.OpExpire); err != nil {
			return err
		}
		c.snap = snap
		c.routeKey = snap.Route.Key()
		return nil
	})
	if err != nil {
		return err
	}
	c.expiresAt, c.hadExpiry = c.deps.Expiry.ExpiresAt(c.ticketID)
	c.deps.Expiry.Unregister(c.ticketID)
	c.markExecuted()
	return nil
}

func (c *CancelCommand) Undo(ctx context.Context) error {
	if !c.CanUndo() {
		return ErrCannotUndo
	}
	if err := c.deps.Capacity.ReserveSeats(ctx, c.routeKey, 1); err != nil {
		return err
	}
	err := c.deps.Ledger.WithTicket(c.ticketID, func(t *ticket.Ticket) error {
		t.Restore(c.snap)
		return nil
	})
	if err != nil {
		return err
	}
	if c.hadExpiry {
		c.deps.Expiry.Register(c.ticketID, c.expiresAt)
	}
	c.markUndone()
	return nil
}

// RefundCommand は支払い済みチケットの払い戻し、または未払い予約の即時失効
type RefundCommand struct {
	base
	deps      Deps
	snap      ticket.Snapshot
	routeKey  string
	hadExpiry bool
	expiresAt time.Time
}

// NewRefund は払い戻しコマンドを作成する
func NewRefund(deps Deps, ticketID string) *RefundCommand {
	return &RefundCommand{base: newBase(ticketID), deps: deps}
}

func (c *RefundCommand) Name() string { return "refund" }

func (c *RefundCommand) Execute(ctx context.Context) error {
	err := c.deps.Ledger.WithTicket(c.ticketID, func(t *ticket.Ticket) error {
		if !t.State.CanApply(ticket.OpRefund) {
			return &ticket.IllegalTransitionError{State: t.State, Op: ticket.OpRefund}
		}
		if err := c.deps.Capacity.ReleaseSeats(ctx, t.Route.Key(), 1); err != nil {
			return err
		}
		snap := t.Snapshot()
		if err := t.Apply(ticket.OpRefund); err != nil {
			return err
		}
		c.snap = snap
		c.routeKey = snap.Route.Key()
		return nil
	})
	if err != nil {
		return err
	}
	c.expiresAt, c.hadExpiry = c.deps.Expiry.ExpiresAt(c.ticketID)
	c.deps.Expiry.Unregister(c.ticketID)
	c.markExecuted()
	return nil
}

func (c *RefundCommand) Undo(ctx context.Context) error {
	if !c.CanUndo() {
		return ErrCannotUndo
	}
	if err := c.deps.Capacity.ReserveSeats(ctx, c.routeKey, 1); err != nil {
		return err
	}
	err := c.deps.Ledger.WithTicket(c.ticketID, func(t *ticket.Ticket) error {
		t.Restore(c.snap)
		return nil
	})
	if err != nil {
		return err
	}
	if c.hadExpiry {
		c.deps.Expiry.Register(c.ticketID, c.expiresAt)
	}
	c.markUndone()
	return nil
}

// UseCommand は支払い済みチケットを使用済みにする
type UseCommand struct {
	base
	deps Deps
	snap ticket.Snapshot
}

// NewUse は使用コマンドを作成する
func NewUse(deps Deps, ticketID string) *UseCommand {
	return &UseCommand{base: newBase(ticketID), deps: deps}
}

func (c *UseCommand) Name() string { return "use" }

func (c *UseCommand) Execute(ctx context.Context) error {
	err := c.deps.Ledger.WithTicket(c.ticketID, func(t *ticket.Ticket) error {
		snap := t.Snapshot()
		if err := t.Apply(ticket.OpUse); err != nil {
			return err
		}
		c.snap = snap
		return nil
	})
	if err != nil {
		return err
	}
	c.markExecuted()
	return nil
}

func (c *UseCommand) Undo(ctx context.Context) error {
	if !c.CanUndo() {
		return ErrCannotUndo
	}
	err := c.deps.Ledger.WithTicket(c.ticketID, func(t *ticket.Ticket) error {
		t.Restore(c.snap)
		return nil
	})
	if err != nil {
		return err
	}
	c.markUndone()
	return nil
}
