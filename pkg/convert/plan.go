package convert

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Step 计划中的一个步骤. 钩子均可为空.
//
// OnExecute 发起交易并返回交易哈希; OnWaitCondition 用于不发交易、只等待外部条件的步骤.
// OnHandleProduced 在拿到哈希后、上链确认前调用; OnCompleted 在效果确认后调用.
type Step struct {
	Kind            StepKind
	Label           string
	ShowDescription bool

	OnExecute        func(ctx context.Context) (common.Hash, error)
	OnHandleProduced func(tx common.Hash) error
	OnCompleted      func(ctx context.Context, tx common.Hash) error
	OnWaitCondition  func(ctx context.Context) error
}

// WaitOnly 是否为只等待、不发交易的步骤
func (s *Step) WaitOnly() bool {
	return s.OnExecute == nil && s.OnWaitCondition != nil
}

// Plan 一次兑换的有序步骤列表及运行期间的共享槽位
type Plan struct {
	Steps []Step

	request Request

	mu    sync.Mutex
	order common.Hash
	total *big.Int
}

// Request 计划对应的兑换请求
func (p *Plan) Request() Request { return p.request }

// Labels 步骤名称列表
func (p *Plan) Labels() []string {
	labels := make([]string, len(p.Steps))
	for i := range p.Steps {
		labels[i] = p.Steps[i].Label
	}
	return labels
}

// OrderHandle 返回已产生的订单哈希
func (p *Plan) OrderHandle() (common.Hash, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order, p.order != (common.Hash{})
}

// ConvertedTotal 领取后实际到账金额, 领取完成前返回 nil
func (p *Plan) ConvertedTotal() *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total == nil {
		return nil
	}
	return new(big.Int).Set(p.total)
}

func (p *Plan) setOrderHandle(h common.Hash) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.order != (common.Hash{}) && p.order != h {
		return ErrHandleAlreadySet
	}
	p.order = h
	return nil
}

func (p *Plan) setConvertedTotal(v *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = new(big.Int).Set(v)
}

func (p *Plan) requireOrderHandle() (common.Hash, error) {
	h, ok := p.OrderHandle()
	if !ok {
		return common.Hash{}, ErrMissingOrderHandle
	}
	return h, nil
}

// Validate 检查步骤顺序: 授权步骤(先重置后提高)在创建订单之前,
// 创建订单之后紧跟等待批次, 领取订单在最后且各只有一个.
func (p *Plan) Validate() error {
	n := len(p.Steps)
	if n < 3 {
		return fmt.Errorf("%w: 步骤数量%d", ErrInvalidPlan, n)
	}
	counts := make(map[StepKind]int)
	for _, s := range p.Steps {
		counts[s.Kind]++
	}
	for _, k := range []StepKind{StepCreateOrder, StepWaitBatch, StepClaimOrder} {
		if counts[k] != 1 {
			return fmt.Errorf("%w: %s 出现%d次", ErrInvalidPlan, k, counts[k])
		}
	}
	if counts[StepResetApproval] > 1 || counts[StepRaiseApproval] > 1 {
		return fmt.Errorf("%w: 授权步骤重复", ErrInvalidPlan)
	}
	if counts[StepResetApproval] == 1 && counts[StepRaiseApproval] == 0 {
		return fmt.Errorf("%w: 重置授权后缺少提高授权", ErrInvalidPlan)
	}
	if p.Steps[n-1].Kind != StepClaimOrder || p.Steps[n-2].Kind != StepWaitBatch || p.Steps[n-3].Kind != StepCreateOrder {
		return fmt.Errorf("%w: 订单步骤顺序错误", ErrInvalidPlan)
	}
	prefix := p.Steps[:n-3]
	for i, s := range prefix {
		switch {
		case s.Kind == StepResetApproval && i != 0:
			return fmt.Errorf("%w: 重置授权必须在提高授权之前", ErrInvalidPlan)
		case s.Kind != StepResetApproval && s.Kind != StepRaiseApproval:
			return fmt.Errorf("%w: 创建订单前出现%s", ErrInvalidPlan, s.Kind)
		}
	}
	if !p.request.ToBonded() && len(prefix) > 0 {
		return fmt.Errorf("%w: 卖单不需要授权", ErrInvalidPlan)
	}
	return nil
}

// BuildPlan 根据兑换方向和当前授权额度生成步骤列表.
//
// 买单需要 2~4 笔交易: 重置授权(已有非零但不足的授权), 提高授权, 开买单, 领取.
// 卖单不托管 COLLATERAL, 直接开卖单和领取. 只有读取授权失败时返回错误.
func BuildPlan(ctx context.Context, req Request, contracts Contracts) (*Plan, error) {
	if req.amount == nil {
		return nil, ErrInvalidAmount
	}
	plan := &Plan{request: req}
	amount := req.Amount()
	toBonded := req.ToBonded()

	if toBonded {
		allowance, err := contracts.ReadAllowance(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, cancelled(ctx)
			}
			return nil, &PlanConstructionError{Err: err}
		}
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}

		decision := DecideAllowanceSteps(allowance, amount)
		if decision.NeedsReset {
			plan.Steps = append(plan.Steps, Step{
				Kind:            StepResetApproval,
				Label:           "Reset approval",
				ShowDescription: true,
				OnExecute: func(ctx context.Context) (common.Hash, error) {
					return contracts.ChangeAllowance(ctx, new(big.Int))
				},
			})
		}
		if decision.NeedsRaise {
			plan.Steps = append(plan.Steps, Step{
				Kind:            StepRaiseApproval,
				Label:           "Raise approval",
				ShowDescription: true,
				OnExecute: func(ctx context.Context) (common.Hash, error) {
					return contracts.ChangeAllowance(ctx, amount)
				},
			})
		}
	}

	plan.Steps = append(plan.Steps,
		Step{
			Kind:            StepCreateOrder,
			Label:           fmt.Sprintf("Create %s order", req.Direction()),
			ShowDescription: true,
			OnExecute: func(ctx context.Context) (common.Hash, error) {
				return contracts.OpenOrder(ctx, amount, toBonded)
			},
			// 后续两个步骤需要这个哈希
			OnHandleProduced: plan.setOrderHandle,
		},
		Step{
			Kind:            StepWaitBatch,
			Label:           "Wait for batch to finish",
			ShowDescription: false,
			OnWaitCondition: func(ctx context.Context) error {
				order, err := plan.requireOrderHandle()
				if err != nil {
					return err
				}
				return contracts.WaitForBatchSettlement(ctx, order)
			},
		},
		Step{
			Kind:            StepClaimOrder,
			Label:           "Claim order",
			ShowDescription: true,
			OnExecute: func(ctx context.Context) (common.Hash, error) {
				order, err := plan.requireOrderHandle()
				if err != nil {
					return common.Hash{}, err
				}
				return contracts.ClaimOrder(ctx, order, toBonded)
			},
			OnCompleted: func(ctx context.Context, claimTx common.Hash) error {
				total, err := contracts.ReadClaimedAmount(ctx, claimTx)
				if err != nil {
					return fmt.Errorf("读取到账金额失败: %w", err)
				}
				plan.setConvertedTotal(total)
				return nil
			},
		},
	)

	return plan, nil
}
