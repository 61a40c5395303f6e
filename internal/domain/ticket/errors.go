package ticket

import (
	"errors"
	"fmt"
)

// Ticket ドメインのエラー定義
var (
	ErrTicketNotFound      = errors.New("チケットが見つかりません")
	ErrClientIDRequired    = errors.New("クライアントIDは必須です")
	ErrOriginRequired      = errors.New("出発駅は必須です")
	ErrDestinationRequired = errors.New("到着駅は必須です")

	// 価格計算前に拒否される入力エラー
	ErrInvalidTicketType = errors.New("不正なチケット種別です")
	ErrNegativeDistance  = errors.New("距離は0以上である必要があります")
)

// IsPricingError は価格計算の前提条件違反（種別不正・距離負）かを返す
func IsPricingError(err error) bool {
	return errors.Is(err, ErrInvalidTicketType) || errors.Is(err, ErrNegativeDistance)
}

// IllegalTransitionError は状態機械が拒否した操作を表す
// 現在の状態と試行された操作を保持する
type IllegalTransitionError struct {
	State State
	Op    Operation
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("状態 %s では操作 %s は許可されていません", e.State, e.Op)
}

// IsIllegalTransition は状態遷移エラーかを返す
func IsIllegalTransition(err error) bool {
	var ite *IllegalTransitionError
	return errors.As(err, &ite)
}
