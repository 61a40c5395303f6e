package ticket

// State はチケットの状態を表す
type State string

const (
	StateReserved State = "reserved"
	StatePaid     State = "paid"
	StateUsed     State = "used"
	StateRefunded State = "refunded"
	StateExpired  State = "expired"
)

// Operation は状態機械に対する操作を表す
type Operation string

const (
	OpConfirm Operation = "confirm"
	OpUse     Operation = "use"
	OpRefund  Operation = "refund"
	OpModify  Operation = "modify"
	OpExpire  Operation = "expire"
)

// transitions は (状態, 操作) から遷移先状態への対応表
// 表に存在しない組み合わせはすべて不正な遷移として扱う
var transitions = map[State]map[Operation]State{
	StateReserved: {
		OpConfirm: StatePaid,
		OpRefund:  StateExpired, // 未払い予約の払い戻しは即時失効として扱う
		OpModify:  StateReserved,
		OpExpire:  StateExpired,
	},
	StatePaid: {
		OpUse:    StateUsed,
		OpRefund: StateRefunded,
		OpModify: StatePaid,
	},
	// Used / Refunded / Expired は終端状態（遷移なし）
}

// Next は操作を適用した場合の遷移先状態を返す
// 不正な遷移の場合は *IllegalTransitionError を返す
func (s State) Next(op Operation) (State, error) {
	ops, ok := transitions[s]
	if !ok {
		return s, &IllegalTransitionError{State: s, Op: op}
	}
	next, ok := ops[op]
	if !ok {
		return s, &IllegalTransitionError{State: s, Op: op}
	}
	return next, nil
}

// CanApply は操作が現在の状態で許可されているかを返す
func (s State) CanApply(op Operation) bool {
	_, err := s.Next(op)
	return err == nil
}

// IsTerminal は終端状態（以降の遷移が存在しない）かを返す
func (s State) IsTerminal() bool {
	_, ok := transitions[s]
	return !ok
}

// IsValid は既知の状態かを返す
func (s State) IsValid() bool {
	switch s {
	case StateReserved, StatePaid, StateUsed, StateRefunded, StateExpired:
		return true
	}
	return false
}

// States は全状態の一覧を返す（テスト・集計用）
func States() []State {
	return []State{StateReserved, StatePaid, StateUsed, StateRefunded, StateExpired}
}

// Operations は全操作の一覧を返す（テスト用）
func Operations() []Operation {
	return []Operation{OpConfirm, OpUse, OpRefund, OpModify, OpExpire}
}
