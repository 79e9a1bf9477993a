package convert

import "math/big"

// Form 提交兑换前由调用方提供的表单状态
type Form struct {
	WalletConnected bool
	PriceLoading    bool
	Amount          *big.Int
	Balance         *big.Int
}

// CheckSubmit 判断兑换按钮是否可用, 不可用时返回原因
func CheckSubmit(f Form) error {
	switch {
	case !f.WalletConnected:
		return ErrNoWallet
	case f.PriceLoading:
		return ErrPriceLoading
	case f.Amount == nil || f.Amount.Sign() <= 0:
		return ErrInvalidAmount
	case orZero(f.Balance).Cmp(f.Amount) < 0:
		return ErrInsufficientFunds
	}
	return nil
}
