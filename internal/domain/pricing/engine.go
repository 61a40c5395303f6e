package pricing

import (
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/domain/ticket"
)

// fare は種別ごとの運賃パラメータ
type fare struct {
	ratePerKm  float64
	surcharge  float64
	serviceFee float64
	floor      float64
}

// fares は種別ごとの運賃表
// 同一距離では highspeed > intercity > regional となるよう料率を設定している
var fares = map[ticket.Type]fare{
	ticket.TypeRegional:  {ratePerKm: 0.10, floor: 2.50},
	ticket.TypeInterCity: {ratePerKm: 0.15, surcharge: 3.00, floor: 5.00},
	ticket.TypeHighSpeed: {ratePerKm: 0.25, surcharge: 3.00, serviceFee: 7.00, floor: 15.00},
}

// Engine は基本運賃と登録済み戦略を合成して最終価格を算出する
// 戦略は登録順に適用され、後続の戦略は先行戦略の出力を受け取る
type Engine struct {
	strategies []Strategy
}

// NewEngine は新しい価格エンジンを作成する
func NewEngine(strategies ...Strategy) *Engine {
	return &Engine{strategies: strategies}
}

// Register は戦略を末尾に追加する
func (e *Engine) Register(s Strategy) {
	e.strategies = append(e.strategies, s)
}

// BasePrice は種別×距離から基本運賃を計算する（種別ごとの下限付き）
func (e *Engine) BasePrice(tt ticket.Type, distanceKm int) (float64, error) {
	f, ok := fares[tt]
	if !ok {
		return 0, ticket.ErrInvalidTicketType
	}
	if distanceKm < 0 {
		return 0, ticket.ErrNegativeDistance
	}
	price := float64(distanceKm)*f.ratePerKm + f.surcharge + f.serviceFee
	if price < f.floor {
		price = f.floor
	}
	return price, nil
}

// TypeFloor は種別の最低運賃を返す
func (e *Engine) TypeFloor(tt ticket.Type) float64 {
	return fares[tt].floor
}

// CalculateFinalPrice は基本運賃に適用可能な全戦略を折り込んだ最終価格を返す
// 適用不可の戦略は no-op として扱い、結果は 0 未満にならない
// 丸めは呼び出し側の責務であり、内部では完全な精度を保持する
func (e *Engine) CalculateFinalPrice(t *ticket.Ticket) (float64, error) {
	price, err := e.BasePrice(t.Type, t.DistanceKm)
	if err != nil {
		return 0, err
	}
	for _, s := range e.strategies {
		if !s.IsApplicable(t) {
			continue
		}
		price = s.Apply(t, price)
	}
	if price < 0 {
		price = 0
	}
	return price, nil
}
