package convert

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Direction 兑换方向
type Direction int

const (
	// ToBonded COLLATERAL -> BONDED (买单)
	ToBonded Direction = iota
	// ToCollateral BONDED -> COLLATERAL (卖单)
	ToCollateral
)

// String 返回订单类型, buy 或 sell
func (d Direction) String() string {
	switch d {
	case ToBonded:
		return "buy"
	case ToCollateral:
		return "sell"
	default:
		return "unknown"
	}
}

// Source 返回被卖出的代币
func (d Direction) Source() Denomination {
	if d == ToBonded {
		return Collateral
	}
	return Bonded
}

// Denomination 代币种类
type Denomination string

const (
	Collateral Denomination = "COLLATERAL"
	Bonded     Denomination = "BONDED"
)

// Request 一次兑换请求, 创建后不可修改
type Request struct {
	direction Direction
	amount    *big.Int
}

// NewRequest 创建兑换请求, amount 为最小单位且必须大于0
func NewRequest(direction Direction, amount *big.Int) (Request, error) {
	if direction != ToBonded && direction != ToCollateral {
		return Request{}, fmt.Errorf("未知的兑换方向: %d", direction)
	}
	if amount == nil || amount.Sign() <= 0 {
		return Request{}, ErrInvalidAmount
	}
	return Request{direction: direction, amount: new(big.Int).Set(amount)}, nil
}

// Direction 兑换方向
func (r Request) Direction() Direction { return r.direction }

// ToBonded 是否为买单
func (r Request) ToBonded() bool { return r.direction == ToBonded }

// Amount 返回金额的副本
func (r Request) Amount() *big.Int {
	if r.amount == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(r.amount)
}

// StepKind 步骤类型
type StepKind int

const (
	StepResetApproval StepKind = iota
	StepRaiseApproval
	StepCreateOrder
	StepWaitBatch
	StepClaimOrder
)

func (k StepKind) String() string {
	switch k {
	case StepResetApproval:
		return "reset_approval"
	case StepRaiseApproval:
		return "raise_approval"
	case StepCreateOrder:
		return "create_order"
	case StepWaitBatch:
		return "wait_batch"
	case StepClaimOrder:
		return "claim_order"
	default:
		return "unknown"
	}
}

// StepStatus 单个步骤的状态
type StepStatus int

const (
	StatusPending StepStatus = iota
	StatusActive
	StatusConfirming
	StatusDone
	StatusFailed
)

func (s StepStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusConfirming:
		return "confirming"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// InFlight 步骤是否正在执行
func (s StepStatus) InFlight() bool {
	return s == StatusActive || s == StatusConfirming
}

// Update 执行过程中推送给展示层的进度
type Update struct {
	RunID           string
	StepIndex       int
	Kind            StepKind
	Label           string
	Status          StepStatus
	ShowDescription bool
	TxHash          common.Hash
	Err             error
}

// Observer 接收步骤进度, 在执行协程中同步调用
type Observer interface {
	OnStepUpdate(Update)
}

// ObserverFunc 函数形式的Observer
type ObserverFunc func(Update)

// OnStepUpdate implements Observer.
func (f ObserverFunc) OnStepUpdate(u Update) { f(u) }
