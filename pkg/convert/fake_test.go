package convert

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type fakeContracts struct {
	mu sync.Mutex

	allowance    *big.Int
	allowanceErr error
	// allowanceGate 非空时 ReadAllowance 阻塞到关闭或ctx取消
	allowanceGate chan struct{}
	// batchGate 非空时 WaitForBatchSettlement 阻塞到关闭或ctx取消
	batchGate chan struct{}

	claimed  *big.Int
	balances map[Denomination]*big.Int
	fail     map[string]error

	calls          []string
	allowanceReads int
	nextTx         int64
}

func newFakeContracts(allowance int64) *fakeContracts {
	return &fakeContracts{
		allowance: big.NewInt(allowance),
		claimed:   big.NewInt(42),
		balances:  map[Denomination]*big.Int{},
		fail:      map[string]error{},
	}
}

func (f *fakeContracts) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	for prefix, err := range f.fail {
		if len(call) >= len(prefix) && call[:len(prefix)] == prefix {
			return err
		}
	}
	return nil
}

func (f *fakeContracts) newTx() common.Hash {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTx++
	return common.BigToHash(big.NewInt(f.nextTx))
}

func (f *fakeContracts) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeContracts) AllowanceReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allowanceReads
}

func (f *fakeContracts) ReadAllowance(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	f.allowanceReads++
	gate := f.allowanceGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.allowanceErr != nil {
		return nil, f.allowanceErr
	}
	return new(big.Int).Set(f.allowance), nil
}

func (f *fakeContracts) ChangeAllowance(ctx context.Context, amount *big.Int) (common.Hash, error) {
	if err := f.record(fmt.Sprintf("ChangeAllowance(%s)", amount)); err != nil {
		return common.Hash{}, err
	}
	return f.newTx(), nil
}

func (f *fakeContracts) OpenOrder(ctx context.Context, amount *big.Int, toBonded bool) (common.Hash, error) {
	if err := f.record(fmt.Sprintf("OpenOrder(%s,%t)", amount, toBonded)); err != nil {
		return common.Hash{}, err
	}
	return f.newTx(), nil
}

func (f *fakeContracts) WaitForBatchSettlement(ctx context.Context, order common.Hash) error {
	if err := f.record(fmt.Sprintf("WaitForBatchSettlement(%s)", order.Big())); err != nil {
		return err
	}
	f.mu.Lock()
	gate := f.batchGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeContracts) ClaimOrder(ctx context.Context, order common.Hash, toBonded bool) (common.Hash, error) {
	if err := f.record(fmt.Sprintf("ClaimOrder(%s,%t)", order.Big(), toBonded)); err != nil {
		return common.Hash{}, err
	}
	return f.newTx(), nil
}

func (f *fakeContracts) ReadClaimedAmount(ctx context.Context, claimTx common.Hash) (*big.Int, error) {
	if err := f.record(fmt.Sprintf("ReadClaimedAmount(%s)", claimTx.Big())); err != nil {
		return nil, err
	}
	return new(big.Int).Set(f.claimed), nil
}

func (f *fakeContracts) ReadTokenBalance(ctx context.Context, d Denomination) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[d]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

type fakeConfirmer struct {
	mu     sync.Mutex
	mined  []common.Hash
	revert map[common.Hash]error
}

func (c *fakeConfirmer) WaitMined(ctx context.Context, tx common.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mined = append(c.mined, tx)
	if err, ok := c.revert[tx]; ok {
		return err
	}
	return nil
}

func kinds(p *Plan) []StepKind {
	out := make([]StepKind, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Kind
	}
	return out
}

func mustRequest(d Direction, amount int64) Request {
	req, err := NewRequest(d, big.NewInt(amount))
	if err != nil {
		panic(err)
	}
	return req
}
