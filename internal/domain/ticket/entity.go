package ticket

import (
	"time"

	"github.com/google/uuid"
)

// Type は列車チケットの種別を表す
type Type string

const (
	TypeRegional  Type = "regional"
	TypeInterCity Type = "intercity"
	TypeHighSpeed Type = "highspeed"
)

// IsValid は既知の種別かを返す
func (t Type) IsValid() bool {
	switch t {
	case TypeRegional, TypeInterCity, TypeHighSpeed:
		return true
	}
	return false
}

// Route は出発駅と到着駅の組を表す
type Route struct {
	Origin      string
	Destination string
}

// Key は路線を識別する文字列を返す（座席在庫管理のキー）
func (r Route) Key() string {
	return r.Origin + "→" + r.Destination
}

// Ticket は列車チケットエンティティを表す
// Price は価格エンジンのみが再計算する派生値であり、手動で編集してはならない
type Ticket struct {
	ID         string
	ClientID   string
	Type       Type
	Route      Route
	TravelDate time.Time
	DistanceKm int
	Price      float64
	State      State
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewTicket は新しいチケットを作成する（価格は価格エンジンが後で設定する）
func NewTicket(clientID string, tt Type, route Route, travelDate time.Time, distanceKm int, state State) *Ticket {
	now := time.Now()
	return &Ticket{
		ID:         uuid.New().String(),
		ClientID:   clientID,
		Type:       tt,
		Route:      route,
		TravelDate: travelDate,
		DistanceKm: distanceKm,
		State:      state,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate はチケットの検証を行う
// 種別・距離の違反は状態が変化する前に拒否される
func (t *Ticket) Validate() error {
	if t.ClientID == "" {
		return ErrClientIDRequired
	}
	if t.Route.Origin == "" {
		return ErrOriginRequired
	}
	if t.Route.Destination == "" {
		return ErrDestinationRequired
	}
	if !t.Type.IsValid() {
		return ErrInvalidTicketType
	}
	if t.DistanceKm < 0 {
		return ErrNegativeDistance
	}
	return nil
}

// Apply は状態機械を通じて操作を適用する
// 不正な遷移の場合はチケットを変更せずエラーを返す
func (t *Ticket) Apply(op Operation) error {
	next, err := t.State.Next(op)
	if err != nil {
		return err
	}
	t.State = next
	t.UpdatedAt = time.Now()
	return nil
}

// CanModify は価格に影響するフィールドの変更が許可されているかを返す
func (t *Ticket) CanModify() bool {
	return t.State.CanApply(OpModify)
}

// Clone はチケットの値コピーを返す（読み取り用スナップショット）
func (t *Ticket) Clone() *Ticket {
	c := *t
	return &c
}

// Snapshot はコマンドの取り消しに必要な可変フィールドの複製を表す
type Snapshot struct {
	Type       Type
	Route      Route
	TravelDate time.Time
	DistanceKm int
	Price      float64
	State      State
	UpdatedAt  time.Time
}

// Snapshot は現在の可変フィールドを複製する
func (t *Ticket) Snapshot() Snapshot {
	return Snapshot{
		Type:       t.Type,
		Route:      t.Route,
		TravelDate: t.TravelDate,
		DistanceKm: t.DistanceKm,
		Price:      t.Price,
		State:      t.State,
		UpdatedAt:  t.UpdatedAt,
	}
}

// Restore はスナップショットの内容をチケットへ書き戻す
func (t *Ticket) Restore(s Snapshot) {
	t.Type = s.Type
	t.Route = s.Route
	t.TravelDate = s.TravelDate
	t.DistanceKm = s.DistanceKm
	t.Price = s.Price
	t.State = s.State
	t.UpdatedAt = s.UpdatedAt
}
