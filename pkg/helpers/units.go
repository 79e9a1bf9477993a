package helpers

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToBaseUnits 把 "1.5" 这样的金额转换为最小单位, 小数位超出精度时报错
func ToBaseUnits(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("无效的金额: %w", err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("金额不能为负: %s", amount)
	}
	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("金额精度超过%d位小数: %s", decimals, amount)
	}
	return shifted.BigInt(), nil
}

// FromBaseUnits 把最小单位转换为十进制字符串, places>=0 时截断到指定小数位
func FromBaseUnits(v *big.Int, decimals int32, places int32) string {
	if v == nil {
		return "0"
	}
	d := decimal.NewFromBigInt(v, -decimals)
	if places >= 0 {
		d = d.Truncate(places)
	}
	return d.String()
}
