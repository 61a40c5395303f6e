package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/domain/pricing"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/domain/ticket"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/ledger"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/scheduler"
)

// fakeCapacity はテスト用の座席在庫（路線ごとの残席を保持）
type fakeCapacity struct {
	mu    sync.Mutex
	seats map[string]int
}

func newFakeCapacity(seats map[string]int) *fakeCapacity {
	if seats == nil {
		seats = make(map[string]int)
	}
	return &fakeCapacity{seats: seats}
}

func (f *fakeCapacity) ReserveSeats(_ context.Context, routeKey string, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seats[routeKey] < n {
		return ErrNoCapacity
	}
	f.seats[routeKey] -= n
	return nil
}

func (f *fakeCapacity) ReleaseSeats(_ context.Context, routeKey string, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seats[routeKey] += n
	return nil
}

func (f *fakeCapacity) available(routeKey string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seats[routeKey]
}

const testRouteKey = "Roma Termini→Napoli Centrale"

func newTestDeps(seats int) (Deps, *fakeCapacity) {
	cap := newFakeCapacity(map[string]int{testRouteKey: seats})
	return Deps{
		Ledger:   ledger.New(),
		Engine:   pricing.NewEngine(),
		Capacity: cap,
		Expiry:   scheduler.NewRegistry(),
	}, cap
}

func newTestTicket(t *testing.T, state ticket.State) *ticket.Ticket {
	t.Helper()
	tk := ticket.NewTicket("client-123", ticket.TypeRegional,
		ticket.Route{Origin: "Roma Termini", Destination: "Napoli Centrale"},
		time.Now().Add(24*time.Hour), 225, state)
	require.NoError(t, tk.Validate())
	return tk
}

func TestPurchaseCommand_ExecuteUndo(t *testing.T) {
	ctx := context.Background()
	deps, cap := newTestDeps(1)
	tk := newTestTicket(t, ticket.StatePaid)

	cmd := NewPurchase(deps, tk)
	assert.False(t, cmd.CanUndo())

	require.NoError(t, cmd.Execute(ctx))
	assert.True(t, cmd.CanUndo())
	assert.Equal(t, 0, cap.available(testRouteKey))

	stored, err := deps.Ledger.Get(tk.ID)
	require.NoError(t, err)
	assert.InDelta(t, 22.50, stored.Price, 1e-9) // 225km × 0.10

	require.NoError(t, cmd.Undo(ctx))
	assert.False(t, cmd.CanUndo())
	assert.Equal(t, 1, cap.available(testRouteKey))
	_, err = deps.Ledger.Get(tk.ID)
	assert.ErrorIs(t, err, ticket.ErrTicketNotFound)
}

func TestPurchaseCommand_NoCapacity(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(0)
	tk := newTestTicket(t, ticket.StatePaid)

	cmd := NewPurchase(deps, tk)
	err := cmd.Execute(ctx)
	assert.ErrorIs(t, err, ErrNoCapacity)
	// 失敗したコマンドは何も残さない
	assert.Equal(t, 0, deps.Ledger.Len())
	assert.False(t, cmd.CanUndo())
}

func TestPurchaseCommand_PricingRejectedBeforeMutation(t *testing.T) {
	ctx := context.Background()
	deps, cap := newTestDeps(1)
	tk := newTestTicket(t, ticket.StatePaid)
	tk.DistanceKm = -10

	cmd := NewPurchase(deps, tk)
	err := cmd.Execute(ctx)
	assert.ErrorIs(t, err, ticket.ErrNegativeDistance)
	assert.Equal(t, 0, deps.Ledger.Len())
	assert.Equal(t, 1, cap.available(testRouteKey))
}

func TestReserveCommand_ExecuteUndo(t *testing.T) {
	ctx := context.Background()
	deps, cap := newTestDeps(1)
	tk := newTestTicket(t, ticket.StateReserved)

	cmd := NewReserve(deps, tk, 15*time.Minute)
	require.NoError(t, cmd.Execute(ctx))

	_, registered := deps.Expiry.ExpiresAt(tk.ID)
	assert.True(t, registered)
	assert.Equal(t, 0, cap.available(testRouteKey))

	require.NoError(t, cmd.Undo(ctx))
	_, registered = deps.Expiry.ExpiresAt(tk.ID)
	assert.False(t, registered)
	assert.Equal(t, 1, cap.available(testRouteKey))
	assert.Equal(t, 0, deps.Ledger.Len())
}

func TestConfirmCommand_ExecuteUndo(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(1)
	tk := newTestTicket(t, ticket.StateReserved)
	expiresAt := time.Now().Add(15 * time.Minute)
	deps.Ledger.Put(tk)
	deps.Expiry.Register(tk.ID, expiresAt)
	before := tk.Snapshot()

	cmd := NewConfirm(deps, tk.ID)
	require.NoError(t, cmd.Execute(ctx))

	stored, err := deps.Ledger.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.StatePaid, stored.State)
	_, registered := deps.Expiry.ExpiresAt(tk.ID)
	assert.False(t, registered)

	// 取り消しで実行前のスナップショットへ完全に戻る
	require.NoError(t, cmd.Undo(ctx))
	stored, err = deps.Ledger.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, before, stored.Snapshot())
	got, registered := deps.Expiry.ExpiresAt(tk.ID)
	assert.True(t, registered)
	assert.Equal(t, expiresAt, got)
}

func TestConfirmCommand_IllegalTransition(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(1)
	tk := newTestTicket(t, ticket.StateExpired)
	deps.Ledger.Put(tk)
	before := tk.Snapshot()

	cmd := NewConfirm(deps, tk.ID)
	err := cmd.Execute(ctx)

	var ite *ticket.IllegalTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, ticket.StateExpired, ite.State)
	assert.Equal(t, ticket.OpConfirm, ite.Op)

	stored, gerr := deps.Ledger.Get(tk.ID)
	require.NoError(t, gerr)
	assert.Equal(t, before, stored.Snapshot())
}

func TestConfirmCommand_NotFound(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(1)

	cmd := NewConfirm(deps, "missing")
	err := cmd.Execute(ctx)
	assert.ErrorIs(t, err, ticket.ErrTicketNotFound)
}

func TestModifyCommand_ExecuteUndo(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(1)
	tk := newTestTicket(t, ticket.StatePaid)
	tk.Price = 22.50
	deps.Ledger.Put(tk)
	before := tk.Snapshot()

	newType := ticket.TypeHighSpeed
	newDistance := 500
	cmd := NewModify(deps, tk.ID, FieldChanges{Type: &newType, DistanceKm: &newDistance}, 2*time.Hour)
	require.NoError(t, cmd.Execute(ctx))

	stored, err := deps.Ledger.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.TypeHighSpeed, stored.Type)
	assert.Equal(t, 500, stored.DistanceKm)
	assert.InDelta(t, 135.00, stored.Price, 1e-9) // 価格は必ず再計算される
	assert.Equal(t, ticket.StatePaid, stored.State)

	require.NoError(t, cmd.Undo(ctx))
	stored, err = deps.Ledger.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, before, stored.Snapshot())
}

func TestModifyCommand_RouteChangeSwapsCapacity(t *testing.T) {
	ctx := context.Background()
	deps, cap := newTestDeps(0) // 旧路線は満席のまま
	cap.seats["Roma Termini→Milano Centrale"] = 1
	tk := newTestTicket(t, ticket.StateReserved)
	deps.Ledger.Put(tk)

	newDest := "Milano Centrale"
	cmd := NewModify(deps, tk.ID, FieldChanges{Destination: &newDest}, 2*time.Hour)
	require.NoError(t, cmd.Execute(ctx))

	assert.Equal(t, 0, cap.available("Roma Termini→Milano Centrale"))
	assert.Equal(t, 1, cap.available(testRouteKey)) // 旧路線の座席が戻る

	require.NoError(t, cmd.Undo(ctx))
	assert.Equal(t, 1, cap.available("Roma Termini→Milano Centrale"))
	assert.Equal(t, 0, cap.available(testRouteKey))
}

func TestModifyCommand_RouteChange_NoCapacityIsAtomic(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(1)
	tk := newTestTicket(t, ticket.StateReserved)
	tk.Price = 22.50
	deps.Ledger.Put(tk)
	before := tk.Snapshot()

	newDest := "Milano Centrale" // 在庫未設定の路線 → 確保失敗
	cmd := NewModify(deps, tk.ID, FieldChanges{Destination: &newDest}, 2*time.Hour)
	err := cmd.Execute(ctx)
	assert.ErrorIs(t, err, ErrNoCapacity)

	stored, gerr := deps.Ledger.Get(tk.ID)
	require.NoError(t, gerr)
	assert.Equal(t, before, stored.Snapshot())
}

func TestModifyCommand_TerminalStateRejected(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(1)
	tk := newTestTicket(t, ticket.StateUsed)
	deps.Ledger.Put(tk)

	newDistance := 100
	cmd := NewModify(deps, tk.ID, FieldChanges{DistanceKm: &newDistance}, 2*time.Hour)
	err := cmd.Execute(ctx)
	assert.True(t, ticket.IsIllegalTransition(err))
}

func TestModifyCommand_UndoWindowExpired(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(1)
	tk := newTestTicket(t, ticket.StatePaid)
	deps.Ledger.Put(tk)

	newDistance := 100
	cmd := NewModify(deps, tk.ID, FieldChanges{DistanceKm: &newDistance}, 50*time.Millisecond)
	require.NoError(t, cmd.Execute(ctx))
	assert.True(t, cmd.CanUndo())

	time.Sleep(60 * time.Millisecond)
	assert.False(t, cmd.CanUndo())
	assert.ErrorIs(t, cmd.Undo(ctx), ErrCannotUndo)
}

func TestModifyCommand_UndoRefusedAfterTerminalState(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(1)
	tk := newTestTicket(t, ticket.StatePaid)
	deps.Ledger.Put(tk)

	newDistance := 100
	cmd := NewModify(deps, tk.ID, FieldChanges{DistanceKm: &newDistance}, 2*time.Hour)
	require.NoError(t, cmd.Execute(ctx))

	// チケットが使用済みになると変更の取り消しは許可されない
	require.NoError(t, deps.Ledger.WithTicket(tk.ID, func(t *ticket.Ticket) error {
		return t.Apply(ticket.OpUse)
	}))
	assert.False(t, cmd.CanUndo())
}

func TestCancelCommand_ExecuteUndo(t *testing.T) {
	ctx := context.Background()
	deps, cap := newTestDeps(0) // 予約が座席を保持している状態
	tk := newTestTicket(t, ticket.StateReserved)
	expiresAt := time.Now().Add(15 * time.Minute)
	deps.Ledger.Put(tk)
	deps.Expiry.Register(tk.ID, expiresAt)
	before := tk.Snapshot()

	cmd := NewCancel(deps, tk.ID)
	require.NoError(t, cmd.Execute(ctx))

	stored, err := deps.Ledger.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.StateExpired, stored.State)
	assert.Equal(t, 1, cap.available(testRouteKey)) // 座席が解放される
	_, registered := deps.Expiry.ExpiresAt(tk.ID)
	assert.False(t, registered)

	require.NoError(t, cmd.Undo(ctx))
	stored, err = deps.Ledger.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, before, stored.Snapshot())
	assert.Equal(t, 0, cap.available(testRouteKey))
	_, registered = deps.Expiry.ExpiresAt(tk.ID)
	assert.True(t, registered)
}

func TestCancelCommand_PaidTicketRejected(t *testing.T) {
	ctx := context.Background()
	deps, cap := newTestDeps(0)
	tk := newTestTicket(t, ticket.StatePaid)
	deps.Ledger.Put(tk)

	cmd := NewCancel(deps, tk.ID)
	err := cmd.Execute(ctx)
	assert.True(t, ticket.IsIllegalTransition(err))
	// 不正な遷移では座席在庫も変化しない
	assert.Equal(t, 0, cap.available(testRouteKey))
}

func TestRefundCommand_PaidToRefunded(t *testing.T) {
	ctx := context.Background()
	deps, cap := newTestDeps(0)
	tk := newTestTicket(t, ticket.StatePaid)
	deps.Ledger.Put(tk)
	before := tk.Snapshot()

	cmd := NewRefund(deps, tk.ID)
	require.NoError(t, cmd.Execute(ctx))

	stored, err := deps.Ledger.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.StateRefunded, stored.State)
	assert.Equal(t, 1, cap.available(testRouteKey))

	require.NoError(t, cmd.Undo(ctx))
	stored, err = deps.Ledger.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, before, stored.Snapshot())
}

func TestRefundCommand_ReservedBecomesExpired(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(0)
	tk := newTestTicket(t, ticket.StateReserved)
	deps.Ledger.Put(tk)
	deps.Expiry.Register(tk.ID, time.Now().Add(15*time.Minute))

	cmd := NewRefund(deps, tk.ID)
	require.NoError(t, cmd.Execute(ctx))

	stored, err := deps.Ledger.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.StateExpired, stored.State)
	_, registered := deps.Expiry.ExpiresAt(tk.ID)
	assert.False(t, registered)
}

func TestUseCommand_ExecuteUndo(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(1)
	tk := newTestTicket(t, ticket.StatePaid)
	deps.Ledger.Put(tk)
	before := tk.Snapshot()

	cmd := NewUse(deps, tk.ID)
	require.NoError(t, cmd.Execute(ctx))

	stored, err := deps.Ledger.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.StateUsed, stored.State)

	require.NoError(t, cmd.Undo(ctx))
	stored, err = deps.Ledger.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, before, stored.Snapshot())
}

func TestUseCommand_ReservedRejected(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(1)
	tk := newTestTicket(t, ticket.StateReserved)
	deps.Ledger.Put(tk)

	cmd := NewUse(deps, tk.ID)
	err := cmd.Execute(ctx)
	assert.True(t, ticket.IsIllegalTransition(err))
}
