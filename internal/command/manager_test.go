package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/domain/ticket"
)

func TestManager_ExecuteUndoRedo(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(1)
	tk := newTestTicket(t, ticket.StateReserved)
	deps.Ledger.Put(tk)
	deps.Expiry.Register(tk.ID, time.Now().Add(15*time.Minute))

	m := NewManager(10)
	require.NoError(t, m.Execute(ctx, NewConfirm(deps, tk.ID)))
	assert.Equal(t, 1, m.HistoryLen())

	stored, _ := deps.Ledger.Get(tk.ID)
	assert.Equal(t, ticket.StatePaid, stored.State)
	afterExecute := stored.Snapshot()

	// 取り消し
	undone, err := m.Undo(ctx)
	require.NoError(t, err)
	require.NotNil(t, undone)
	assert.Equal(t, tk.ID, undone.TicketID())
	assert.Equal(t, 0, m.HistoryLen())
	assert.Equal(t, 1, m.RedoLen())
	stored, _ = deps.Ledger.Get(tk.ID)
	assert.Equal(t, ticket.StateReserved, stored.State)

	// やり直しで実行直後の状態が正確に再現される
	redone, err := m.Redo(ctx)
	require.NoError(t, err)
	require.NotNil(t, redone)
	assert.Equal(t, 1, m.HistoryLen())
	assert.Equal(t, 0, m.RedoLen())
	stored, _ = deps.Ledger.Get(tk.ID)
	assert.Equal(t, afterExecute.State, stored.State)
	assert.Equal(t, afterExecute.Price, stored.Price)
}

func TestManager_Undo_EmptyHistory(t *testing.T) {
	m := NewManager(10)
	undone, err := m.Undo(context.Background())
	require.NoError(t, err)
	assert.Nil(t, undone)
}

func TestManager_Redo_EmptyStack(t *testing.T) {
	m := NewManager(10)
	redone, err := m.Redo(context.Background())
	require.NoError(t, err)
	assert.Nil(t, redone)
}

// TestManager_NewCommandClearsRedo は取り消し後の新規実行でやり直し履歴が破棄されることを検証する
func TestManager_NewCommandClearsRedo(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(5)
	tk := newTestTicket(t, ticket.StateReserved)
	deps.Ledger.Put(tk)

	m := NewManager(10)
	require.NoError(t, m.Execute(ctx, NewConfirm(deps, tk.ID)))

	_, err := m.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.RedoLen())

	// 新しいコマンドの実行でやり直し履歴が消える
	other := newTestTicket(t, ticket.StatePaid)
	require.NoError(t, m.Execute(ctx, NewPurchase(deps, other)))
	assert.Equal(t, 0, m.RedoLen())

	redone, err := m.Redo(ctx)
	require.NoError(t, err)
	assert.Nil(t, redone)
}

func TestManager_Execute_FailureNotRecorded(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(1)
	tk := newTestTicket(t, ticket.StateUsed)
	deps.Ledger.Put(tk)

	m := NewManager(10)
	err := m.Execute(ctx, NewConfirm(deps, tk.ID))
	require.Error(t, err)
	assert.True(t, ticket.IsIllegalTransition(err))
	assert.Equal(t, 0, m.HistoryLen())
}

func TestManager_Undo_RefusedKeepsHistory(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(1)
	tk := newTestTicket(t, ticket.StatePaid)
	deps.Ledger.Put(tk)

	m := NewManager(10)
	newDistance := 100
	cmd := NewModify(deps, tk.ID, FieldChanges{DistanceKm: &newDistance}, 10*time.Millisecond)
	require.NoError(t, m.Execute(ctx, cmd))
	time.Sleep(20 * time.Millisecond) // 取り消し期限を過ぎる

	undone, err := m.Undo(ctx)
	require.NoError(t, err)
	assert.Nil(t, undone)
	// 拒否されたコマンドは履歴に残り、副作用もない
	assert.Equal(t, 1, m.HistoryLen())
	stored, _ := deps.Ledger.Get(tk.ID)
	assert.Equal(t, 100, stored.DistanceKm)
}

func TestManager_HistoryCapEvictsOldest(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(100)

	m := NewManager(3)
	for i := 0; i < 5; i++ {
		tk := newTestTicket(t, ticket.StatePaid)
		require.NoError(t, m.Execute(ctx, NewPurchase(deps, tk)))
	}
	assert.Equal(t, 3, m.HistoryLen())
}

func TestManager_ExecuteBatch_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	deps, cap := newTestDeps(2) // 3件目の購入で満席になる

	m := NewManager(10)
	cmds := []Command{
		NewPurchase(deps, newTestTicket(t, ticket.StatePaid)),
		NewPurchase(deps, newTestTicket(t, ticket.StatePaid)),
		NewPurchase(deps, newTestTicket(t, ticket.StatePaid)),
	}
	err := m.ExecuteBatch(ctx, cmds)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCapacity)

	// 全件ロールバック：レジストリは空、座席も全て戻る
	assert.Equal(t, 0, deps.Ledger.Len())
	assert.Equal(t, 2, cap.available(testRouteKey))
	assert.Equal(t, 0, m.HistoryLen())
}

func TestManager_ExecuteBatch_Success(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(3)

	m := NewManager(10)
	cmds := []Command{
		NewPurchase(deps, newTestTicket(t, ticket.StatePaid)),
		NewPurchase(deps, newTestTicket(t, ticket.StatePaid)),
		NewPurchase(deps, newTestTicket(t, ticket.StatePaid)),
	}
	require.NoError(t, m.ExecuteBatch(ctx, cmds))
	assert.Equal(t, 3, deps.Ledger.Len())
	assert.Equal(t, 3, m.HistoryLen())
}

func TestManager_Execute_WrappedErrorPreservesCause(t *testing.T) {
	ctx := context.Background()
	deps, _ := newTestDeps(0)

	m := NewManager(10)
	err := m.Execute(ctx, NewPurchase(deps, newTestTicket(t, ticket.StatePaid)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoCapacity))
}
