package curve

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mer-coder/curve-convert/pkg/convert"
	"github.com/mer-coder/curve-convert/pkg/helpers"
)

var (
	collateralAddr  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	bondedAddr      = common.HexToAddress("0x2000000000000000000000000000000000000002")
	controllerAddr  = common.HexToAddress("0x3000000000000000000000000000000000000003")
	marketMakerAddr = common.HexToAddress("0x4000000000000000000000000000000000000004")
)

var (
	testMarketABI = mustABI(marketMakerABI)
	testERC20ABI  = mustABI(erc20ABI)
)

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

type fakeNode struct {
	mu sync.Mutex

	allowance *big.Int
	balances  map[common.Address]*big.Int
	batchIDs  []int64
	receipts  map[common.Hash]*types.Receipt

	calls []ethereum.CallMsg
	sent  []*types.Transaction
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		allowance: big.NewInt(0),
		balances:  map[common.Address]*big.Int{},
		receipts:  map[common.Hash]*types.Receipt{},
	}
}

func (f *fakeNode) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeNode) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeNode) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 100000, nil
}

func (f *fakeNode) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeNode) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeNode) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msg)

	if *msg.To == marketMakerAddr {
		method, err := testMarketABI.MethodById(msg.Data[:4])
		if err != nil {
			return nil, err
		}
		if method.Name != "getCurrentBatchId" {
			return nil, fmt.Errorf("unexpected call %s", method.Name)
		}
		id := f.batchIDs[0]
		if len(f.batchIDs) > 1 {
			f.batchIDs = f.batchIDs[1:]
		}
		return method.Outputs.Pack(big.NewInt(id))
	}

	method, err := testERC20ABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "allowance":
		return method.Outputs.Pack(f.allowance)
	case "balanceOf":
		b, ok := f.balances[*msg.To]
		if !ok {
			return nil, nil
		}
		return method.Outputs.Pack(b)
	}
	return nil, fmt.Errorf("unexpected call %s", method.Name)
}

func (f *fakeNode) addReceipt(hash common.Hash, logs ...*types.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[hash] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: big.NewInt(1),
		Logs:        logs,
	}
}

func eventLog(t *testing.T, address common.Address, name string, account common.Address, batchID int64, values ...interface{}) *types.Log {
	t.Helper()
	ev := testMarketABI.Events[name]
	data, err := ev.Inputs.NonIndexed().Pack(values...)
	require.NoError(t, err)
	return &types.Log{
		Address: address,
		Topics: []common.Hash{
			ev.ID,
			common.BytesToHash(account.Bytes()),
			common.BigToHash(big.NewInt(batchID)),
			common.BytesToHash(collateralAddr.Bytes()),
		},
		Data: data,
	}
}

func newTestMarket(t *testing.T, node helpers.ChainClient) *Market {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := helpers.NewSender(node, big.NewInt(1337), key, helpers.SenderOptions{PollInterval: time.Millisecond}, nil)
	m, err := NewMarket(sender, Config{
		Addresses: Addresses{
			CollateralToken: collateralAddr,
			BondedToken:     bondedAddr,
			Controller:      controllerAddr,
			MarketMaker:     marketMakerAddr,
		},
		BatchPollInterval: time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return m
}

func decodeInput(t *testing.T, parsed abi.ABI, data []byte) (string, []interface{}) {
	t.Helper()
	method, err := parsed.MethodById(data[:4])
	require.NoError(t, err)
	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	return method.Name, args
}

func TestMarket_ReadAllowanceUsesMarketMakerAsDefaultSpender(t *testing.T) {
	node := newFakeNode()
	node.allowance = big.NewInt(77)
	m := newTestMarket(t, node)

	allowance, err := m.ReadAllowance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "77", allowance.String())

	require.Len(t, node.calls, 1)
	name, args := decodeInput(t, testERC20ABI, node.calls[0].Data)
	assert.Equal(t, "allowance", name)
	assert.Equal(t, m.sender.From(), args[0])
	assert.Equal(t, marketMakerAddr, args[1])
	assert.Equal(t, collateralAddr, *node.calls[0].To)
}

func TestMarket_ChangeAllowance(t *testing.T) {
	node := newFakeNode()
	m := newTestMarket(t, node)

	hash, err := m.ChangeAllowance(context.Background(), big.NewInt(0))
	require.NoError(t, err)
	require.Len(t, node.sent, 1)
	assert.Equal(t, hash, node.sent[0].Hash())
	assert.Equal(t, collateralAddr, *node.sent[0].To())

	name, args := decodeInput(t, testERC20ABI, node.sent[0].Data())
	assert.Equal(t, "approve", name)
	assert.Equal(t, marketMakerAddr, args[0])
	assert.Equal(t, int64(0), args[1].(*big.Int).Int64())
}

func TestMarket_OpenOrder(t *testing.T) {
	node := newFakeNode()
	m := newTestMarket(t, node)

	_, err := m.OpenOrder(context.Background(), big.NewInt(100), true)
	require.NoError(t, err)
	_, err = m.OpenOrder(context.Background(), big.NewInt(30), false)
	require.NoError(t, err)
	require.Len(t, node.sent, 2)

	name, args := decodeInput(t, testMarketABI, node.sent[0].Data())
	assert.Equal(t, "openBuyOrder", name)
	assert.Equal(t, collateralAddr, args[0])
	assert.Equal(t, int64(100), args[1].(*big.Int).Int64())
	assert.Equal(t, controllerAddr, *node.sent[0].To())

	name, args = decodeInput(t, testMarketABI, node.sent[1].Data())
	assert.Equal(t, "openSellOrder", name)
	assert.Equal(t, int64(30), args[1].(*big.Int).Int64())
}

func TestMarket_WaitForBatchSettlementAndClaim(t *testing.T) {
	node := newFakeNode()
	m := newTestMarket(t, node)
	order := common.HexToHash("0xaa")
	node.addReceipt(order, eventLog(t, marketMakerAddr, "OpenBuyOrder", m.sender.From(), 5, big.NewInt(1), big.NewInt(99)))
	node.batchIDs = []int64{5, 5, 6}

	require.NoError(t, m.WaitForBatchSettlement(context.Background(), order))
	assert.Len(t, node.calls, 3)

	_, err := m.ClaimOrder(context.Background(), order, true)
	require.NoError(t, err)
	name, args := decodeInput(t, testMarketABI, node.sent[0].Data())
	assert.Equal(t, "claimBuyOrder", name)
	assert.Equal(t, m.sender.From(), args[0])
	assert.Equal(t, int64(5), args[1].(*big.Int).Int64())
	assert.Equal(t, collateralAddr, args[2])
}

func TestMarket_WaitForBatchSettlementCancelled(t *testing.T) {
	node := newFakeNode()
	m := newTestMarket(t, node)
	order := common.HexToHash("0xaa")
	node.addReceipt(order, eventLog(t, marketMakerAddr, "OpenSellOrder", m.sender.From(), 9, big.NewInt(30)))
	node.batchIDs = []int64{9}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.WaitForBatchSettlement(ctx, order), context.DeadlineExceeded)
}

func TestMarket_OrderWithoutEvent(t *testing.T) {
	node := newFakeNode()
	m := newTestMarket(t, node)
	order := common.HexToHash("0xbb")
	// 其他合约发出的同名事件不算
	node.addReceipt(order, eventLog(t, bondedAddr, "OpenBuyOrder", m.sender.From(), 1, big.NewInt(1), big.NewInt(1)))

	_, err := m.ClaimOrder(context.Background(), order, true)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestMarket_ReadClaimedAmount(t *testing.T) {
	node := newFakeNode()
	m := newTestMarket(t, node)
	from := m.sender.From()

	buyClaim := common.HexToHash("0x01")
	node.addReceipt(buyClaim, eventLog(t, marketMakerAddr, "ClaimBuyOrder", from, 5, big.NewInt(1500)))
	sellClaim := common.HexToHash("0x02")
	node.addReceipt(sellClaim, eventLog(t, marketMakerAddr, "ClaimSellOrder", from, 5, big.NewInt(3), big.NewInt(27)))
	empty := common.HexToHash("0x03")
	node.addReceipt(empty)

	amount, err := m.ReadClaimedAmount(context.Background(), buyClaim)
	require.NoError(t, err)
	assert.Equal(t, "1500", amount.String())

	amount, err = m.ReadClaimedAmount(context.Background(), sellClaim)
	require.NoError(t, err)
	assert.Equal(t, "27", amount.String(), "fee is not part of the converted total")

	_, err = m.ReadClaimedAmount(context.Background(), empty)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestMarket_ReadTokenBalance(t *testing.T) {
	node := newFakeNode()
	node.balances[bondedAddr] = big.NewInt(12)
	m := newTestMarket(t, node)

	b, err := m.ReadTokenBalance(context.Background(), convert.Bonded)
	require.NoError(t, err)
	assert.Equal(t, "12", b.String())

	b, err = m.ReadTokenBalance(context.Background(), convert.Collateral)
	require.NoError(t, err)
	assert.Equal(t, "0", b.String())
}

func TestMarket_DrivesFullConversion(t *testing.T) {
	node := newFakeNode()
	node.allowance = big.NewInt(10)
	node.batchIDs = []int64{3, 4}
	// 每笔交易广播后立即生成收据
	auto := &autoReceiptNode{fakeNode: node}
	m := newTestMarket(t, auto)
	auto.events = map[string]*types.Log{
		"openBuyOrder":  eventLog(t, marketMakerAddr, "OpenBuyOrder", m.sender.From(), 3, big.NewInt(1), big.NewInt(99)),
		"claimBuyOrder": eventLog(t, marketMakerAddr, "ClaimBuyOrder", m.sender.From(), 3, big.NewInt(4242)),
	}

	c := convert.NewConverter(m, m, convert.Options{})
	total, err := c.Convert(context.Background(), mustRequest(t, convert.ToBonded, 100))
	require.NoError(t, err)
	assert.Equal(t, "4242", total.String())

	var methods []string
	for _, tx := range node.sent {
		if *tx.To() == collateralAddr {
			name, _ := decodeInput(t, testERC20ABI, tx.Data())
			methods = append(methods, name)
			continue
		}
		name, _ := decodeInput(t, testMarketABI, tx.Data())
		methods = append(methods, name)
	}
	assert.Equal(t, []string{"approve", "approve", "openBuyOrder", "claimBuyOrder"}, methods)
}

// autoReceiptNode 广播交易时按方法生成收据和事件
type autoReceiptNode struct {
	*fakeNode
	events map[string]*types.Log
}

func (a *autoReceiptNode) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := a.fakeNode.SendTransaction(ctx, tx); err != nil {
		return err
	}
	var logs []*types.Log
	if method, err := testMarketABI.MethodById(tx.Data()[:4]); err == nil {
		if l, ok := a.events[method.Name]; ok {
			logs = append(logs, l)
		}
	}
	a.addReceipt(tx.Hash(), logs...)
	return nil
}

func mustRequest(t *testing.T, d convert.Direction, amount int64) convert.Request {
	t.Helper()
	req, err := convert.NewRequest(d, big.NewInt(amount))
	require.NoError(t, err)
	return req
}
