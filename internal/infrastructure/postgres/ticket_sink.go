package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/domain/ticket"
)

type ticketRow struct {
	ID          string    `db:"id"`
	ClientID    string    `db:"client_id"`
	Type        string    `db:"type"`
	Origin      string    `db:"origin"`
	Destination string    `db:"destination"`
	TravelDate  time.Time `db:"travel_date"`
	DistanceKm  int       `db:"distance_km"`
	Price       float64   `db:"price"`
	State       string    `db:"state"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// TicketSink は確定したチケット状態をPostgreSQLへ写し取るシンク
// 真実の状態は台帳側にあり、書き込みはベストエフォートで呼び出される
type TicketSink struct{ db *sqlx.DB }

// NewTicketSink は新しいTicketSinkインスタンスを作成する
func NewTicketSink(db *sqlx.DB) *TicketSink {
	return &TicketSink{db: db}
}

// Save はチケットの最新状態をupsertする
func (s *TicketSink) Save(ctx context.Context, t *ticket.Ticket) error {
	query := `
		INSERT INTO tickets (id, client_id, type, origin, destination, travel_date, distance_km, price, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			origin = EXCLUDED.origin,
			destination = EXCLUDED.destination,
			travel_date = EXCLUDED.travel_date,
			distance_km = EXCLUDED.distance_km,
			price = EXCLUDED.price,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at`
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.ClientID, string(t.Type), t.Route.Origin, t.Route.Destination,
		t.TravelDate, t.DistanceKm, t.Price, string(t.State), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("チケット保存に失敗: %w", err)
	}
	return nil
}

// GetByID は保存済みのチケットを取得する
func (s *TicketSink) GetByID(ctx context.Context, id string) (*ticket.Ticket, error) {
	var row ticketRow
	query := `SELECT id, client_id, type, origin, destination, travel_date, distance_km, price, state, created_at, updated_at FROM tickets WHERE id = $1`
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, fmt.Errorf("チケット取得に失敗: %w", err)
	}
	return toEntity(&row), nil
}

// ListByClient はクライアントの保存済みチケットを新しい順に返す
func (s *TicketSink) ListByClient(ctx context.Context, clientID string, limit, offset int) ([]*ticket.Ticket, error) {
	var rows []ticketRow
	query := `SELECT id, client_id, type, origin, destination, travel_date, distance_km, price, state, created_at, updated_at FROM tickets WHERE client_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := s.db.SelectContext(ctx, &rows, query, clientID, limit, offset); err != nil {
		return nil, fmt.Errorf("チケット一覧取得に失敗: %w", err)
	}
	result := make([]*ticket.Ticket, len(rows))
	for i := range rows {
		result[i] = toEntity(&rows[i])
	}
	return result, nil
}

func toEntity(row *ticketRow) *ticket.Ticket {
	return &ticket.Ticket{
		ID:       row.ID,
		ClientID: row.ClientID,
		Type:     ticket.Type(row.Type),
		Route: ticket.Route{
			Origin:      row.Origin,
			Destination: row.Destination,
		},
		TravelDate: row.TravelDate,
		DistanceKm: row.DistanceKm,
		Price:      row.Price,
		State:      ticket.State(row.State),
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}
