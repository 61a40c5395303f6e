package pricing

import (
	"time"

	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/domain/ticket"
)

// Strategy は価格調整戦略のインターフェース
// 戦略は状態を持たず、エラーも返さない（適用不可は no-op）
type Strategy interface {
	Name() string
	IsApplicable(t *ticket.Ticket) bool
	Apply(t *ticket.Ticket, price float64) float64
}

// Category は割引判定に使うクライアント区分
type Category string

const (
	CategoryGeneral Category = "general"
	CategoryStudent Category = "student"
	CategorySenior  Category = "senior"
)

// CategoryLookup はクライアントIDから区分を引く関数
type CategoryLookup func(clientID string) Category

// TierLookup はクライアントIDからロイヤルティ階層を引く関数
// 未加入のクライアントは階層 0 を返す
type TierLookup func(clientID string) int

// StudentDiscount は学生割引
type StudentDiscount struct {
	Percent float64
	Lookup  CategoryLookup
}

func (s *StudentDiscount) Name() string { return "student_discount" }

func (s *StudentDiscount) IsApplicable(t *ticket.Ticket) bool {
	return s.Lookup != nil && s.Lookup(t.ClientID) == CategoryStudent
}

func (s *StudentDiscount) Apply(_ *ticket.Ticket, price float64) float64 {
	return price * (1 - s.Percent/100)
}

// SeniorDiscount はシニア割引
type SeniorDiscount struct {
	Percent float64
	Lookup  CategoryLookup
}

func (s *SeniorDiscount) Name() string { return "senior_discount" }

func (s *SeniorDiscount) IsApplicable(t *ticket.Ticket) bool {
	return s.Lookup != nil && s.Lookup(t.ClientID) == CategorySenior
}

func (s *SeniorDiscount) Apply(_ *ticket.Ticket, price float64) float64 {
	return price * (1 - s.Percent/100)
}

// LoyaltyDiscount はロイヤルティ割引
// 割引率は明示的な階層引き当てで決まる（乱数は使わない）
type LoyaltyDiscount struct {
	PercentByTier map[int]float64
	Lookup        TierLookup
}

func (s *LoyaltyDiscount) Name() string { return "loyalty_discount" }

func (s *LoyaltyDiscount) IsApplicable(t *ticket.Ticket) bool {
	if s.Lookup == nil {
		return false
	}
	_, ok := s.PercentByTier[s.Lookup(t.ClientID)]
	return ok
}

func (s *LoyaltyDiscount) Apply(t *ticket.Ticket, price float64) float64 {
	pct := s.PercentByTier[s.Lookup(t.ClientID)]
	return price * (1 - pct/100)
}

// TimeBoxedPromotion は期間限定プロモーション
// 乗車日がウィンドウ内にあるチケットへ適用される
type TimeBoxedPromotion struct {
	From    time.Time
	To      time.Time
	Percent float64
}

func (s *TimeBoxedPromotion) Name() string { return "timeboxed_promotion" }

func (s *TimeBoxedPromotion) IsApplicable(t *ticket.Ticket) bool {
	return !t.TravelDate.Before(s.From) && !t.TravelDate.After(s.To)
}

func (s *TimeBoxedPromotion) Apply(_ *ticket.Ticket, price float64) float64 {
	return price * (1 - s.Percent/100)
}

// RoutePromotion は特定路線のプロモーション
type RoutePromotion struct {
	Route   ticket.Route
	Percent float64
}

func (s *RoutePromotion) Name() string { return "route_promotion" }

func (s *RoutePromotion) IsApplicable(t *ticket.Ticket) bool {
	return t.Route == s.Route
}

func (s *RoutePromotion) Apply(_ *ticket.Ticket, price float64) float64 {
	return price * (1 - s.Percent/100)
}
