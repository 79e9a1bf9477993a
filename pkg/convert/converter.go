package convert

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultRevealDelay 计划构建完成后展示前的等待时间
const DefaultRevealDelay = 900 * time.Millisecond

// Status 兑换器的顶层状态
type Status int

const (
	// AwaitingInput 等待用户输入
	AwaitingInput Status = iota
	// Executing 已确认兑换, 正在构建或执行计划
	Executing
)

func (s Status) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting_input"
	case Executing:
		return "executing"
	default:
		return "unknown"
	}
}

// Outcome 一次运行所处阶段
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeConstructing
	OutcomeRunning
	OutcomeSucceeded
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeConstructing:
		return "constructing"
	case OutcomeRunning:
		return "running"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Finished 运行是否已结束
func (o Outcome) Finished() bool {
	return o == OutcomeSucceeded || o == OutcomeFailed || o == OutcomeCancelled
}

// Options Converter 配置
type Options struct {
	RevealDelay time.Duration
	Observers   []Observer
	Logger      *zap.Logger
	// NewRunID 默认使用 uuid
	NewRunID func() string
	// OnPlanRevealed 计划展示后, 第一个步骤开始前调用
	OnPlanRevealed func(runID string, plan *Plan)
}

// Converter 管理兑换的整个生命周期: 确认后构建计划, 执行, 返回表单.
// 同一时间最多一个运行.
type Converter struct {
	contracts   Contracts
	executor    *Executor
	logger      *zap.Logger
	revealDelay time.Duration
	newRunID    func() string
	onRevealed  func(string, *Plan)

	mu     sync.Mutex
	status Status
	active *activeRun
}

type activeRun struct {
	id      string
	request Request
	cancel  context.CancelCauseFunc
	done    chan struct{}

	// 以下字段由 Converter.mu 保护
	run     *Run
	outcome Outcome
	total   *big.Int
	err     error
}

// NewConverter 创建兑换器
func NewConverter(contracts Contracts, confirmer Confirmer, opts Options) *Converter {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	newRunID := opts.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}
	return &Converter{
		contracts:   contracts,
		executor:    NewExecutor(confirmer, logger, opts.Observers...),
		logger:      logger,
		revealDelay: opts.RevealDelay,
		newRunID:    newRunID,
		onRevealed:  opts.OnPlanRevealed,
		status:      AwaitingInput,
	}
}

// Start 用户确认兑换后调用, 在后台构建并执行计划, 返回运行ID.
//
// 如果上一次运行仍在构建计划, 它会以 ErrStaleInput 取消; 如果有步骤正在执行返回 ErrRunInProgress.
// ctx 的生命周期覆盖整个运行.
func (c *Converter) Start(ctx context.Context, req Request) (string, error) {
	ar, err := c.start(ctx, req)
	if err != nil {
		return "", err
	}
	return ar.id, nil
}

// Convert 阻塞执行一次兑换, 返回到账金额
func (c *Converter) Convert(ctx context.Context, req Request) (*big.Int, error) {
	ar, err := c.start(ctx, req)
	if err != nil {
		return nil, err
	}
	<-ar.done

	c.mu.Lock()
	defer c.mu.Unlock()
	return ar.total, ar.err
}

// Wait 等待当前运行结束
func (c *Converter) Wait(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	ar := c.active
	c.mu.Unlock()
	if ar == nil {
		return nil, ErrNoActiveRun
	}

	select {
	case <-ar.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return ar.total, ar.err
}

func (c *Converter) start(ctx context.Context, req Request) (*activeRun, error) {
	if req.amount == nil || req.amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	c.mu.Lock()
	if prev := c.active; prev != nil {
		switch prev.outcome {
		case OutcomeRunning:
			c.mu.Unlock()
			return nil, ErrRunInProgress
		case OutcomeConstructing:
			prev.cancel(ErrStaleInput)
			c.logger.Info("输入已变化, 取消构建中的计划", zap.String("run_id", prev.id))
		}
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	ar := &activeRun{
		id:      c.newRunID(),
		request: req,
		cancel:  cancel,
		done:    make(chan struct{}),
		outcome: OutcomeConstructing,
	}
	c.active = ar
	c.status = Executing
	c.mu.Unlock()

	c.logger.Info("开始兑换",
		zap.String("run_id", ar.id),
		zap.Stringer("direction", req.Direction()),
		zap.String("amount", req.amount.String()))

	go c.drive(runCtx, ar)
	return ar, nil
}

func (c *Converter) drive(ctx context.Context, ar *activeRun) {
	defer close(ar.done)
	defer ar.cancel(nil)

	plan, err := BuildPlan(ctx, ar.request, c.contracts)
	if err != nil {
		c.finish(ar, nil, err)
		return
	}

	if c.revealDelay > 0 {
		timer := time.NewTimer(c.revealDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.finish(ar, nil, cancelled(ctx))
			return
		case <-timer.C:
		}
	}

	c.mu.Lock()
	if c.active != ar || ctx.Err() != nil {
		c.mu.Unlock()
		c.finish(ar, nil, cancelled(ctx))
		return
	}
	ar.run = NewRun(ar.id, plan)
	ar.outcome = OutcomeRunning
	c.mu.Unlock()

	c.logger.Info("兑换计划已生成", zap.String("run_id", ar.id), zap.Strings("steps", plan.Labels()))
	if c.onRevealed != nil {
		c.onRevealed(ar.id, plan)
	}

	total, err := c.executor.Execute(ctx, ar.run)
	c.finish(ar, total, err)
}

// finish 记录运行结果. 已被丢弃的运行不再修改兑换器状态.
func (c *Converter) finish(ar *activeRun, total *big.Int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ar.total = total
	ar.err = err
	switch {
	case err == nil:
		ar.outcome = OutcomeSucceeded
	case IsCancelled(err):
		ar.outcome = OutcomeCancelled
	default:
		ar.outcome = OutcomeFailed
	}

	if c.active != ar {
		c.logger.Debug("运行已被丢弃", zap.String("run_id", ar.id), zap.Stringer("outcome", ar.outcome))
		return
	}

	fields := []zap.Field{zap.String("run_id", ar.id), zap.Stringer("outcome", ar.outcome)}
	switch ar.outcome {
	case OutcomeSucceeded:
		if total != nil {
			fields = append(fields, zap.String("converted_total", total.String()))
		}
		c.logger.Info("兑换完成", fields...)
	case OutcomeCancelled:
		c.logger.Info("兑换已取消", append(fields, zap.Error(err))...)
	default:
		c.logger.Error("兑换失败", append(fields, zap.Error(err))...)
	}
}

// ReturnToForm 丢弃运行状态并回到输入状态. 构建中的计划会被取消, 有步骤在执行时返回 ErrRunInProgress.
func (c *Converter) ReturnToForm() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ar := c.active; ar != nil {
		switch ar.outcome {
		case OutcomeRunning:
			return ErrRunInProgress
		case OutcomeConstructing:
			ar.cancel(ErrReturnedToForm)
		}
		c.logger.Debug("返回表单", zap.String("run_id", ar.id))
	}
	c.active = nil
	c.status = AwaitingInput
	return nil
}

// StepView 展示层渲染一个步骤所需的信息
type StepView struct {
	Index           int
	Label           string
	Status          StepStatus
	ShowDescription bool
	TxHash          common.Hash
}

// Snapshot 兑换器状态的副本
type Snapshot struct {
	Status         Status
	RunID          string
	Outcome        Outcome
	Steps          []StepView
	OrderHandle    common.Hash
	ConvertedTotal *big.Int
	Err            error
}

// Snapshot 返回当前状态, 计划未生成时 Steps 为空
func (c *Converter) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{Status: c.status}
	ar := c.active
	if ar == nil {
		return snap
	}
	snap.RunID = ar.id
	snap.Outcome = ar.outcome
	snap.Err = ar.err
	if ar.run == nil {
		return snap
	}

	state := ar.run.State.Snapshot()
	snap.OrderHandle = state.OrderHandle
	snap.ConvertedTotal = state.ConvertedTotal
	snap.Steps = make([]StepView, len(ar.run.Plan.Steps))
	for i, s := range ar.run.Plan.Steps {
		snap.Steps[i] = StepView{
			Index:           i,
			Label:           s.Label,
			Status:          state.Statuses[i],
			ShowDescription: s.ShowDescription,
			TxHash:          state.TxHashes[i],
		}
	}
	return snap
}
