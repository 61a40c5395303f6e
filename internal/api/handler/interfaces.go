package handler

import (
	"context"

	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/application"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/domain/ticket"
)

// TicketServiceInterface はチケットサービスのインターフェース
type TicketServiceInterface interface {
	Purchase(ctx context.Context, in application.PurchaseInput) (*ticket.Ticket, error)
	PurchaseBatch(ctx context.Context, inputs []application.PurchaseInput) ([]*ticket.Ticket, error)
	Reserve(ctx context.Context, in application.PurchaseInput, validityMinutes int) (*ticket.Ticket, error)
	Confirm(ctx context.Context, id string) (*ticket.Ticket, error)
	Modify(ctx context.Context, id string, in application.ModifyInput) (*ticket.Ticket, error)
	Refund(ctx context.Context, id string) (*ticket.Ticket, error)
	Use(ctx context.Context, id string) (*ticket.Ticket, error)
	Cancel(ctx context.Context, id string) (*ticket.Ticket, error)
	UndoLast(ctx context.Context) (bool, error)
	RedoLast(ctx context.Context) (bool, error)
	SweepExpired(ctx context.Context) []string
	GetTicket(ctx context.Context, id string) (*ticket.Ticket, error)
	ListTickets(ctx context.Context, clientID string) []*ticket.Ticket
}
