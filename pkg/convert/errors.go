package convert

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount 金额为空或不大于0
	ErrInvalidAmount = errors.New("兑换金额必须大于0")
	// ErrStaleInput 计划构建期间输入已变化, 旧的运行被取消
	ErrStaleInput = errors.New("输入已变化")
	// ErrReturnedToForm 用户返回表单, 运行被放弃
	ErrReturnedToForm = errors.New("已返回表单")
	// ErrRunInProgress 有步骤正在执行, 不能重置或开始新的兑换
	ErrRunInProgress = errors.New("兑换正在执行")
	// ErrNoActiveRun 当前没有运行
	ErrNoActiveRun = errors.New("没有进行中的兑换")
	// ErrMissingOrderHandle 订单哈希尚未产生
	ErrMissingOrderHandle = errors.New("订单哈希尚未产生")
	// ErrHandleAlreadySet 订单哈希只能写入一次
	ErrHandleAlreadySet = errors.New("订单哈希已写入")
	// ErrInvalidPlan 计划不满足步骤顺序约束
	ErrInvalidPlan = errors.New("无效的兑换计划")
)

// 提交表单前的检查
var (
	ErrNoWallet          = errors.New("钱包未连接")
	ErrPriceLoading      = errors.New("价格加载中")
	ErrInsufficientFunds = errors.New("余额不足")
)

// PlanConstructionError 构建计划失败(读取授权额度失败)
type PlanConstructionError struct {
	Err error
}

func (e *PlanConstructionError) Error() string {
	return fmt.Sprintf("构建兑换计划失败: %v", e.Err)
}

func (e *PlanConstructionError) Unwrap() error { return e.Err }

// StepExecutionError 某个步骤执行失败, 之前完成的步骤不会回滚
type StepExecutionError struct {
	Index int
	Kind  StepKind
	Label string
	Err   error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("步骤%d(%s)失败: %v", e.Index+1, e.Label, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// CancelledError 运行被取消, Cause 为取消原因
type CancelledError struct {
	Cause error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("兑换已取消: %v", e.Cause)
}

func (e *CancelledError) Unwrap() error { return e.Cause }

// IsCancelled 判断错误是否为取消而非失败
func IsCancelled(err error) bool {
	var ce *CancelledError
	if errors.As(err, &ce) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrStaleInput) || errors.Is(err, ErrReturnedToForm)
}

// cancelled 将ctx的取消原因包装为CancelledError
func cancelled(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = ctx.Err()
	}
	return &CancelledError{Cause: cause}
}
