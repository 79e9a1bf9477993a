package convert

import "math/big"

// AllowanceDecision 授权步骤判定结果
type AllowanceDecision struct {
	NeedsReset bool
	NeedsRaise bool
}

// DecideAllowanceSteps 根据当前授权额度和兑换金额判断是否需要重置/提高授权.
// 非零但不足的授权必须先归零再提高. nil 视为 0.
func DecideAllowanceSteps(current, requested *big.Int) AllowanceDecision {
	cur := orZero(current)
	raise := cur.Cmp(orZero(requested)) < 0
	return AllowanceDecision{
		NeedsRaise: raise,
		NeedsReset: raise && cur.Sign() != 0,
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
