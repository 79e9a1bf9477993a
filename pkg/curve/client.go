package curve

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/mer-coder/curve-convert/pkg/helpers"
)

// Connection 节点连接及基于它的市商操作
type Connection struct {
	Client *ethclient.Client
	Market *Market
}

// Close 关闭节点连接
func (c *Connection) Close() {
	c.Client.Close()
}

// ParsePrivateKey 解析16进制私钥, 0x前缀可选
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("无效的私钥: %w", err)
	}
	return key, nil
}

// Dial 连接节点并创建市商操作实例
func Dial(ctx context.Context, rpcURL string, key *ecdsa.PrivateKey, cfg Config, opts helpers.SenderOptions, logger *zap.Logger) (*Connection, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到以太坊节点: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("获取链ID失败: %w", err)
	}

	sender := helpers.NewSender(client, chainID, key, opts, logger)
	market, err := NewMarket(sender, cfg, logger)
	if err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("已连接节点",
		zap.String("chain_id", chainID.String()),
		zap.String("account", sender.From().Hex()),
		zap.String("controller", cfg.Addresses.Controller.Hex()))

	return &Connection{Client: client, Market: market}, nil
}
