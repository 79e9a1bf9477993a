package curve

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrEventNotFound 交易收据中没有找到期望的事件
var ErrEventNotFound = errors.New("收据中没有找到订单事件")

// Addresses 合约地址
type Addresses struct {
	CollateralToken common.Address
	BondedToken     common.Address
	// Controller 接收开单/领取交易
	Controller common.Address
	// MarketMaker 发出订单事件并提供批次ID
	MarketMaker common.Address
	// Spender approve 的对象, 为空时使用 MarketMaker
	Spender common.Address
}

// Config 市商合约配置
type Config struct {
	Addresses         Addresses
	BatchPollInterval time.Duration
}

// 市商合约ABI, 只包含用到的方法和事件
const marketMakerABI = `[
	{
		"inputs": [
			{"name": "_collateral", "type": "address"},
			{"name": "_value", "type": "uint256"}
		],
		"name": "openBuyOrder",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "_collateral", "type": "address"},
			{"name": "_amount", "type": "uint256"}
		],
		"name": "openSellOrder",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "_buyer", "type": "address"},
			{"name": "_batchId", "type": "uint256"},
			{"name": "_collateral", "type": "address"}
		],
		"name": "claimBuyOrder",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "_seller", "type": "address"},
			{"name": "_batchId", "type": "uint256"},
			{"name": "_collateral", "type": "address"}
		],
		"name": "claimSellOrder",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getCurrentBatchId",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "buyer", "type": "address"},
			{"indexed": true, "name": "batchId", "type": "uint256"},
			{"indexed": true, "name": "collateral", "type": "address"},
			{"indexed": false, "name": "fee", "type": "uint256"},
			{"indexed": false, "name": "value", "type": "uint256"}
		],
		"name": "OpenBuyOrder",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "seller", "type": "address"},
			{"indexed": true, "name": "batchId", "type": "uint256"},
			{"indexed": true, "name": "collateral", "type": "address"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		],
		"name": "OpenSellOrder",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "buyer", "type": "address"},
			{"indexed": true, "name": "batchId", "type": "uint256"},
			{"indexed": true, "name": "collateral", "type": "address"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		],
		"name": "ClaimBuyOrder",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "seller", "type": "address"},
			{"indexed": true, "name": "batchId", "type": "uint256"},
			{"indexed": true, "name": "collateral", "type": "address"},
			{"indexed": false, "name": "fee", "type": "uint256"},
			{"indexed": false, "name": "value", "type": "uint256"}
		],
		"name": "ClaimSellOrder",
		"type": "event"
	}
]`
