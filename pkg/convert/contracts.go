package convert

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Contracts 兑换所需的链上操作, 由 curve.Market 实现.
// 所有返回 common.Hash 的方法在交易广播后立即返回, 不等待上链.
type Contracts interface {
	// ReadAllowance 读取市商合约对 COLLATERAL 的授权额度
	ReadAllowance(ctx context.Context) (*big.Int, error)
	// ChangeAllowance 发送 approve 交易
	ChangeAllowance(ctx context.Context, amount *big.Int) (common.Hash, error)
	// OpenOrder 开买单或卖单, 返回的交易哈希即订单句柄
	OpenOrder(ctx context.Context, amount *big.Int, toBonded bool) (common.Hash, error)
	// WaitForBatchSettlement 阻塞直到订单所在批次结束
	WaitForBatchSettlement(ctx context.Context, order common.Hash) error
	// ClaimOrder 领取已结算订单
	ClaimOrder(ctx context.Context, order common.Hash, toBonded bool) (common.Hash, error)
	// ReadClaimedAmount 从领取交易中读取实际到账金额
	ReadClaimedAmount(ctx context.Context, claimTx common.Hash) (*big.Int, error)
	// ReadTokenBalance 读取账户余额
	ReadTokenBalance(ctx context.Context, d Denomination) (*big.Int, error)
}

// Confirmer 等待交易上链, 交易回滚时返回错误
type Confirmer interface {
	WaitMined(ctx context.Context, tx common.Hash) error
}
