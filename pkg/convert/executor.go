package convert

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ExecutionState 一次运行中每个步骤的状态. 只有执行器写入, 展示层通过 Snapshot 读取.
type ExecutionState struct {
	mu       sync.Mutex
	plan     *Plan
	current  int
	statuses []StepStatus
	txs      []common.Hash
}

// NewExecutionState 所有步骤初始为 pending
func NewExecutionState(plan *Plan) *ExecutionState {
	return &ExecutionState{
		plan:     plan,
		statuses: make([]StepStatus, len(plan.Steps)),
		txs:      make([]common.Hash, len(plan.Steps)),
	}
}

// StateSnapshot ExecutionState 的只读副本
type StateSnapshot struct {
	CurrentStep    int
	Statuses       []StepStatus
	TxHashes       []common.Hash
	OrderHandle    common.Hash
	ConvertedTotal *big.Int
}

// Snapshot 返回当前状态的副本
func (s *ExecutionState) Snapshot() StateSnapshot {
	s.mu.Lock()
	snap := StateSnapshot{
		CurrentStep: s.current,
		Statuses:    append([]StepStatus(nil), s.statuses...),
		TxHashes:    append([]common.Hash(nil), s.txs...),
	}
	s.mu.Unlock()
	snap.OrderHandle, _ = s.plan.OrderHandle()
	snap.ConvertedTotal = s.plan.ConvertedTotal()
	return snap
}

// Status 单个步骤的状态
func (s *ExecutionState) Status(i int) StepStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[i]
}

func (s *ExecutionState) set(i int, status StepStatus, tx common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = i
	s.statuses[i] = status
	if tx != (common.Hash{}) {
		s.txs[i] = tx
	}
}

// Run 执行器的一次运行
type Run struct {
	ID    string
	Plan  *Plan
	State *ExecutionState
}

// NewRun 为计划创建一次运行
func NewRun(id string, plan *Plan) *Run {
	return &Run{ID: id, Plan: plan, State: NewExecutionState(plan)}
}

// Executor 按顺序逐个执行计划中的步骤
type Executor struct {
	confirmer Confirmer
	logger    *zap.Logger
	observers []Observer
}

// NewExecutor 创建执行器. confirmer 为空时交易广播即视为确认.
func NewExecutor(confirmer Confirmer, logger *zap.Logger, observers ...Observer) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		confirmer: confirmer,
		logger:    logger,
		observers: observers,
	}
}

// Execute 依次执行步骤, 全部完成后返回到账金额.
//
// 步骤失败时停止, 后续步骤保持 pending, 已完成的链上操作不回滚.
// ctx 取消后不再写入任何状态, 返回 *CancelledError.
func (e *Executor) Execute(ctx context.Context, run *Run) (*big.Int, error) {
	logger := e.logger.With(zap.String("run_id", run.ID))

	for i := range run.Plan.Steps {
		step := &run.Plan.Steps[i]
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}

		e.transition(run, i, StatusActive, common.Hash{}, nil)
		logger.Debug("步骤开始", zap.Int("step", i), zap.String("label", step.Label))

		tx, err := e.runStep(ctx, run, i, step)
		if ctx.Err() != nil {
			logger.Info("运行已取消, 丢弃步骤结果", zap.Int("step", i), zap.String("label", step.Label))
			return nil, cancelled(ctx)
		}
		if err != nil {
			e.transition(run, i, StatusFailed, tx, err)
			logger.Error("步骤失败",
				zap.Int("step", i),
				zap.String("label", step.Label),
				zap.String("tx_hash", hashString(tx)),
				zap.Error(err))
			return nil, &StepExecutionError{Index: i, Kind: step.Kind, Label: step.Label, Err: err}
		}

		e.transition(run, i, StatusDone, tx, nil)
		logger.Info("步骤完成", zap.Int("step", i), zap.String("label", step.Label), zap.String("tx_hash", hashString(tx)))
	}

	return run.Plan.ConvertedTotal(), nil
}

func (e *Executor) runStep(ctx context.Context, run *Run, i int, step *Step) (common.Hash, error) {
	var tx common.Hash

	if step.OnExecute != nil {
		var err error
		tx, err = step.OnExecute(ctx)
		if err != nil {
			return tx, err
		}
		if ctx.Err() != nil {
			return tx, cancelled(ctx)
		}

		e.transition(run, i, StatusConfirming, tx, nil)
		if step.OnHandleProduced != nil {
			if err := step.OnHandleProduced(tx); err != nil {
				return tx, err
			}
		}
		if e.confirmer != nil {
			if err := e.confirmer.WaitMined(ctx, tx); err != nil {
				return tx, err
			}
		}
	}

	if step.OnWaitCondition != nil {
		if err := step.OnWaitCondition(ctx); err != nil {
			return tx, err
		}
	}

	if step.OnCompleted != nil {
		if ctx.Err() != nil {
			return tx, cancelled(ctx)
		}
		if err := step.OnCompleted(ctx, tx); err != nil {
			return tx, err
		}
	}
	return tx, nil
}

func (e *Executor) transition(run *Run, i int, status StepStatus, tx common.Hash, err error) {
	run.State.set(i, status, tx)
	step := &run.Plan.Steps[i]
	u := Update{
		RunID:           run.ID,
		StepIndex:       i,
		Kind:            step.Kind,
		Label:           step.Label,
		Status:          status,
		ShowDescription: step.ShowDescription,
		TxHash:          tx,
		Err:             err,
	}
	for _, o := range e.observers {
		e.notify(o, u)
	}
}

// notify 观察者 panic 不影响执行
func (e *Executor) notify(o Observer, u Update) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("观察者处理进度时panic", zap.Any("panic", r), zap.Int("step", u.StepIndex))
		}
	}()
	o.OnStepUpdate(u)
}

func hashString(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}
