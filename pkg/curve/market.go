package curve

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/mer-coder/curve-convert/pkg/convert"
	"github.com/mer-coder/curve-convert/pkg/helpers"
)

const defaultBatchPollInterval = 5 * time.Second

var (
	_ convert.Contracts = (*Market)(nil)
	_ convert.Confirmer = (*Market)(nil)
)

// Market 批量结算的联合曲线市商合约操作封装
type Market struct {
	sender     *helpers.Sender
	collateral *ERC20
	bonded     *ERC20
	abi        abi.ABI
	addrs      Addresses
	pollEvery  time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	batches map[common.Hash]*big.Int
}

// NewMarket 创建市商操作实例
func NewMarket(sender *helpers.Sender, cfg Config, logger *zap.Logger) (*Market, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	parsed, err := abi.JSON(strings.NewReader(marketMakerABI))
	if err != nil {
		return nil, fmt.Errorf("解析ABI失败: %w", err)
	}
	collateral, err := NewERC20(sender, cfg.Addresses.CollateralToken)
	if err != nil {
		return nil, err
	}
	bonded, err := NewERC20(sender, cfg.Addresses.BondedToken)
	if err != nil {
		return nil, err
	}

	addrs := cfg.Addresses
	if addrs.Spender == (common.Address{}) {
		addrs.Spender = addrs.MarketMaker
	}
	pollEvery := cfg.BatchPollInterval
	if pollEvery <= 0 {
		pollEvery = defaultBatchPollInterval
	}

	return &Market{
		sender:     sender,
		collateral: collateral,
		bonded:     bonded,
		abi:        parsed,
		addrs:      addrs,
		pollEvery:  pollEvery,
		logger:     logger,
		batches:    make(map[common.Hash]*big.Int),
	}, nil
}

// From 发送交易的账户
func (m *Market) From() common.Address { return m.sender.From() }

// ReadAllowance 读取当前账户对 spender 的 COLLATERAL 授权额度
func (m *Market) ReadAllowance(ctx context.Context) (*big.Int, error) {
	allowance, err := m.collateral.Allowance(ctx, m.sender.From(), m.addrs.Spender)
	if err != nil {
		return nil, fmt.Errorf("读取授权额度失败: %w", err)
	}
	m.logger.Debug("授权额度", zap.String("spender", m.addrs.Spender.Hex()), zap.String("allowance", allowance.String()))
	return allowance, nil
}

// ChangeAllowance 发送approve交易
func (m *Market) ChangeAllowance(ctx context.Context, amount *big.Int) (common.Hash, error) {
	txData, err := m.collateral.GetApproveData(m.addrs.Spender, amount)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := m.sender.Send(ctx, txData)
	if err != nil {
		return common.Hash{}, fmt.Errorf("发送Approve交易失败: %w", err)
	}
	return hash, nil
}

// OpenOrder 开买单(COLLATERAL -> BONDED)或卖单
func (m *Market) OpenOrder(ctx context.Context, amount *big.Int, toBonded bool) (common.Hash, error) {
	method := "openSellOrder"
	if toBonded {
		method = "openBuyOrder"
	}
	input, err := m.abi.Pack(method, m.addrs.CollateralToken, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("打包交易数据失败: %w", err)
	}
	hash, err := m.sender.Send(ctx, &helpers.TxData{To: m.addrs.Controller, Data: input})
	if err != nil {
		return common.Hash{}, fmt.Errorf("开单失败: %w", err)
	}
	return hash, nil
}

// WaitForBatchSettlement 轮询当前批次ID, 直到订单所在批次结束
func (m *Market) WaitForBatchSettlement(ctx context.Context, order common.Hash) error {
	batchID, err := m.batchOf(ctx, order)
	if err != nil {
		return err
	}

	for {
		current, err := m.currentBatchID(ctx)
		if err != nil {
			return err
		}
		if current.Cmp(batchID) > 0 {
			m.logger.Info("批次已结束", zap.String("order", order.Hex()), zap.String("batch_id", batchID.String()))
			return nil
		}
		m.logger.Debug("等待批次结束",
			zap.String("batch_id", batchID.String()),
			zap.String("current_batch_id", current.String()))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.pollEvery):
		}
	}
}

// ClaimOrder 领取已结算的订单
func (m *Market) ClaimOrder(ctx context.Context, order common.Hash, toBonded bool) (common.Hash, error) {
	batchID, err := m.batchOf(ctx, order)
	if err != nil {
		return common.Hash{}, err
	}
	method := "claimSellOrder"
	if toBonded {
		method = "claimBuyOrder"
	}
	input, err := m.abi.Pack(method, m.sender.From(), batchID, m.addrs.CollateralToken)
	if err != nil {
		return common.Hash{}, fmt.Errorf("打包交易数据失败: %w", err)
	}
	hash, err := m.sender.Send(ctx, &helpers.TxData{To: m.addrs.Controller, Data: input})
	if err != nil {
		return common.Hash{}, fmt.Errorf("领取订单失败: %w", err)
	}
	return hash, nil
}

// ReadClaimedAmount 从领取交易的事件中读取到账金额.
// 买单为获得的 BONDED 数量, 卖单为扣除手续费后的 COLLATERAL 数量.
func (m *Market) ReadClaimedAmount(ctx context.Context, claimTx common.Hash) (*big.Int, error) {
	receipt, err := m.sender.WaitMined(ctx, claimTx)
	if err != nil {
		return nil, err
	}

	for _, l := range m.marketLogs(receipt) {
		switch l.Topics[0] {
		case m.abi.Events["ClaimBuyOrder"].ID:
			return m.unpackAmount("ClaimBuyOrder", l, 0)
		case m.abi.Events["ClaimSellOrder"].ID:
			return m.unpackAmount("ClaimSellOrder", l, 1)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEventNotFound, claimTx.Hex())
}

// ReadTokenBalance 读取当前账户余额
func (m *Market) ReadTokenBalance(ctx context.Context, d convert.Denomination) (*big.Int, error) {
	token := m.collateral
	if d == convert.Bonded {
		token = m.bonded
	}
	balance, err := token.BalanceOf(ctx, m.sender.From())
	if err != nil {
		return nil, fmt.Errorf("读取%s余额失败: %w", d, err)
	}
	return balance, nil
}

// WaitMined 等待交易上链, 执行失败时返回错误
func (m *Market) WaitMined(ctx context.Context, tx common.Hash) error {
	_, err := m.sender.WaitMined(ctx, tx)
	return err
}

// CurrentBatchID 当前批次ID
func (m *Market) CurrentBatchID(ctx context.Context) (*big.Int, error) {
	return m.currentBatchID(ctx)
}

func (m *Market) currentBatchID(ctx context.Context) (*big.Int, error) {
	input, err := m.abi.Pack("getCurrentBatchId")
	if err != nil {
		return nil, fmt.Errorf("打包getCurrentBatchId失败: %w", err)
	}
	result, err := m.sender.Call(ctx, m.addrs.MarketMaker, input)
	if err != nil {
		return nil, fmt.Errorf("读取批次ID失败: %w", err)
	}
	var id *big.Int
	if err := m.abi.UnpackIntoInterface(&id, "getCurrentBatchId", result); err != nil {
		return nil, fmt.Errorf("解析批次ID失败: %w", err)
	}
	return id, nil
}

// batchOf 从开单交易的收据中读取批次ID, 结果按订单哈希缓存
func (m *Market) batchOf(ctx context.Context, order common.Hash) (*big.Int, error) {
	m.mu.Lock()
	if id, ok := m.batches[order]; ok {
		m.mu.Unlock()
		return id, nil
	}
	m.mu.Unlock()

	receipt, err := m.sender.WaitMined(ctx, order)
	if err != nil {
		return nil, err
	}

	buyID := m.abi.Events["OpenBuyOrder"].ID
	sellID := m.abi.Events["OpenSellOrder"].ID
	for _, l := range m.marketLogs(receipt) {
		if (l.Topics[0] == buyID || l.Topics[0] == sellID) && len(l.Topics) > 2 {
			id := l.Topics[2].Big()
			m.mu.Lock()
			m.batches[order] = id
			m.mu.Unlock()
			return id, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEventNotFound, order.Hex())
}

// marketLogs 只保留市商合约发出的日志
func (m *Market) marketLogs(receipt *types.Receipt) []*types.Log {
	var logs []*types.Log
	for _, l := range receipt.Logs {
		if l.Address == m.addrs.MarketMaker && len(l.Topics) > 0 {
			logs = append(logs, l)
		}
	}
	return logs
}

func (m *Market) unpackAmount(event string, l *types.Log, index int) (*big.Int, error) {
	values, err := m.abi.Unpack(event, l.Data)
	if err != nil {
		return nil, fmt.Errorf("解析%s事件失败: %w", event, err)
	}
	if len(values) <= index {
		return nil, fmt.Errorf("%s事件字段不足", event)
	}
	amount, ok := values[index].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s事件字段类型错误", event)
	}
	return amount, nil
}
