package curve

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mer-coder/curve-convert/pkg/helpers"
)

// ERC20简化ABI字符串
var erc20ABI = `[
	{
		"constant": true,
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"payable": false,
		"stateMutability": "view",
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"name": "", "type": "bool"}],
		"payable": false,
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "balance", "type": "uint256"}],
		"payable": false,
		"stateMutability": "view",
		"type": "function"
	}
]`

// ERC20 是ERC20代币合约的简化接口
type ERC20 struct {
	address common.Address
	abi     abi.ABI
	sender  *helpers.Sender
}

// NewERC20 创建ERC20接口实例
func NewERC20(sender *helpers.Sender, address common.Address) (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("解析ABI失败: %w", err)
	}

	return &ERC20{
		address: address,
		abi:     parsed,
		sender:  sender,
	}, nil
}

// Address 代币合约地址
func (e *ERC20) Address() common.Address { return e.address }

// Allowance 获取代币的授权额度
func (e *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return e.callUint(ctx, "allowance", owner, spender)
}

// BalanceOf 获取余额
func (e *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return e.callUint(ctx, "balanceOf", owner)
}

// GetApproveData 返回approve调用的交易数据
func (e *ERC20) GetApproveData(spender common.Address, amount *big.Int) (*helpers.TxData, error) {
	input, err := e.abi.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("打包交易数据失败: %w", err)
	}
	return &helpers.TxData{To: e.address, Data: input}, nil
}

func (e *ERC20) callUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	data, err := e.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("打包%s失败: %w", method, err)
	}

	result, err := e.sender.Call(ctx, e.address, data)
	if err != nil {
		return nil, fmt.Errorf("调用%s失败: %w", method, err)
	}
	// 从未交互过的地址可能返回空结果
	if len(result) == 0 {
		return big.NewInt(0), nil
	}

	var out *big.Int
	if err := e.abi.UnpackIntoInterface(&out, method, result); err != nil {
		return nil, fmt.Errorf("解析%s结果失败: %w", method, err)
	}
	if out == nil {
		out = big.NewInt(0)
	}
	return out, nil
}
