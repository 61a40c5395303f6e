package ledger

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/domain/ticket"
)

func TestLedger_PutGet(t *testing.T) {
	l := New()
	tk := newTestTicket(t)
	l.Put(tk)

	got, err := l.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, got.ID)

	// Get はコピーを返すので、呼び出し側の変更は正本に影響しない
	got.Price = 999.99
	again, err := l.Get(tk.ID)
	require.NoError(t, err)
	assert.NotEqual(t, 999.99, again.Price)
}

func TestLedger_Get_NotFound(t *testing.T) {
	l := New()
	_, err := l.Get("missing")
	assert.ErrorIs(t, err, ticket.ErrTicketNotFound)
}

func TestLedger_Remove(t *testing.T) {
	l := New()
	tk := newTestTicket(t)
	l.Put(tk)
	l.Remove(tk.ID)

	_, err := l.Get(tk.ID)
	assert.ErrorIs(t, err, ticket.ErrTicketNotFound)
	assert.Equal(t, 0, l.Len())
}

func TestLedger_Values_Snapshot(t *testing.T) {
	l := New()
	a := newTestTicket(t)
	b := newTestTicket(t)
	l.Put(a)
	l.Put(b)

	values := l.Values()
	assert.Len(t, values, 2)

	// スナップショットはライブビューではない
	l.Remove(a.ID)
	assert.Len(t, values, 2)
}

func TestLedger_WithTicket(t *testing.T) {
	l := New()
	tk := newTestTicket(t)
	l.Put(tk)

	err := l.WithTicket(tk.ID, func(t *ticket.Ticket) error {
		return t.Apply(ticket.OpConfirm)
	})
	require.NoError(t, err)

	got, err := l.Get(tk.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.StatePaid, got.State)
}

func TestLedger_WithTicket_NotFound(t *testing.T) {
	l := New()
	err := l.WithTicket("missing", func(*ticket.Ticket) error { return nil })
	assert.ErrorIs(t, err, ticket.ErrTicketNotFound)
}

// TestLedger_WithTicket_Serialized はエントリ単位ロックで変更が直列化されることを検証する
func TestLedger_WithTicket_Serialized(t *testing.T) {
	l := New()
	tk := newTestTicket(t)
	l.Put(tk)

	const workers = 50
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.WithTicket(tk.ID, func(t *ticket.Ticket) error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, workers, counter)
}

func newTestTicket(t *testing.T) *ticket.Ticket {
	t.Helper()
	tk := ticket.NewTicket("client-123", ticket.TypeRegional,
		ticket.Route{Origin: "Roma Termini", Destination: "Napoli Centrale"},
		time.Now().Add(24*time.Hour), 225, ticket.StateReserved)
	require.NoError(t, tk.Validate())
	return tk
}
