package helpers

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// ErrTxReverted 交易已上链但执行失败
var ErrTxReverted = errors.New("交易执行失败")

// 默认参数
const (
	DefaultGasLimit     = uint64(300000)
	DefaultPollInterval = 2 * time.Second
)

// TxData 表示交易数据
type TxData struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// ChainClient 发送交易和读取合约需要的节点接口, *ethclient.Client 满足该接口
type ChainClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// SenderOptions 发送交易的参数
type SenderOptions struct {
	// GasLimit 估算失败时使用
	GasLimit     uint64
	PollInterval time.Duration
	// ReceiptTimeout 等待上链的最长时间, 0 表示不限
	ReceiptTimeout time.Duration
}

// Sender 用私钥签名并发送交易
type Sender struct {
	client  ChainClient
	chainID *big.Int
	key     *ecdsa.PrivateKey
	from    common.Address
	opts    SenderOptions
	logger  *zap.Logger

	// 保证同一账户的nonce顺序
	mu sync.Mutex
}

// NewSender 创建交易发送器
func NewSender(client ChainClient, chainID *big.Int, key *ecdsa.PrivateKey, opts SenderOptions, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.GasLimit == 0 {
		opts.GasLimit = DefaultGasLimit
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Sender{
		client:  client,
		chainID: chainID,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		opts:    opts,
		logger:  logger,
	}
}

// From 发送地址
func (s *Sender) From() common.Address { return s.from }

// Client 底层节点客户端
func (s *Sender) Client() ChainClient { return s.client }

// Send 签名并广播交易, 不等待确认
func (s *Sender) Send(ctx context.Context, txData *TxData) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 设置交易值，如果未指定则默认为0
	value := big.NewInt(0)
	if txData.Value != nil {
		value = txData.Value
	}

	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("获取nonce失败: %w", err)
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("获取gas价格失败: %w", err)
	}

	to := txData.To
	gas, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.from,
		To:    &to,
		Value: value,
		Data:  txData.Data,
	})
	if err != nil {
		s.logger.Warn("估算gas失败, 使用默认gas limit", zap.Uint64("gas_limit", s.opts.GasLimit), zap.Error(err))
		gas = s.opts.GasLimit
	} else {
		gas = gas * 12 / 10
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     txData.Data,
	})

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(s.chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("签名交易失败: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("发送交易失败: %w", err)
	}

	s.logger.Info("交易已发送",
		zap.String("tx_hash", signedTx.Hash().Hex()),
		zap.String("from", s.from.Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas),
		zap.String("gas_price", gasPrice.String()))

	return signedTx.Hash(), nil
}

// WaitMined 等待交易被确认并返回收据, 执行失败返回 ErrTxReverted
func (s *Sender) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if s.opts.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ReceiptTimeout)
		defer cancel()
	}

	receipt, err := waitForTransactionReceipt(ctx, s.client, txHash, s.opts.PollInterval, s.logger)
	if err != nil {
		return nil, fmt.Errorf("等待交易确认失败: %w", err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		s.logger.Warn("交易已确认但执行失败", zap.String("tx_hash", txHash.Hex()), zap.Stringer("block", receipt.BlockNumber))
		return receipt, fmt.Errorf("%w: %s", ErrTxReverted, txHash.Hex())
	}

	s.logger.Info("交易已确认",
		zap.String("tx_hash", txHash.Hex()),
		zap.Stringer("block", receipt.BlockNumber),
		zap.Uint64("gas_used", receipt.GasUsed))
	return receipt, nil
}

// Call 只读调用合约
func (s *Sender) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return s.client.CallContract(ctx, ethereum.CallMsg{From: s.from, To: &to, Data: data}, nil)
}

// waitForTransactionReceipt 轮询收据直到交易上链
func waitForTransactionReceipt(ctx context.Context, client ChainClient, txHash common.Hash, interval time.Duration, logger *zap.Logger) (*types.Receipt, error) {
	for {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		// not found 说明还在等待打包
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		logger.Debug("交易仍在等待确认", zap.String("tx_hash", txHash.Hex()))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}
