package vm

import (
	"os"
	"testing"

	"github.com/clydemeng/evmrt/core/chain"
	"github.com/clydemeng/evmrt/core/runtime"
	"github.com/clydemeng/evmrt/core/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var (
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	contract = common.HexToAddress("0x000000000000000000000000000000000000c0de")

	// With calldata, stores the first word in slot 0. Without, returns slot 0.
	rwRuntime = common.FromHex("3615600c57600035600055005b60005460005260206000f3")
	// Copies the 24 bytes following it into memory and returns them.
	rwInit = append(common.FromHex("6018600c60003960186000f3"), rwRuntime...)
)

func init() {
	log.SetDefault(log.NewLogger(log.NewTerminalHandler(os.Stderr, true)))
}

func newSnapshot(t *testing.T) *state.Store {
	t.Helper()
	rt, err := runtime.New(1)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	store, err := state.NewMemoryStore(rt)
	require.NoError(t, err)
	require.NoError(t, store.InsertAccount(alice, &state.AccountInfo{Balance: uint256.NewInt(1e18)}, nil))
	require.NoError(t, store.InsertAccount(contract, &state.AccountInfo{Code: rwRuntime},
		map[common.Hash]common.Hash{{}: common.HexToHash("0x2a")}))
	return store
}

func mergedEnv() (CfgEnv, *BlockEnv) {
	random := common.HexToHash("0x01")
	return NewCfgEnv(params.MergedTestChainConfig, 1, 0), &BlockEnv{
		Number:     1,
		GasLimit:   30_000_000,
		Prevrandao: &random,
	}
}

func execute(t *testing.T, store *state.Store, tx *TxEnv, insp Inspector) (*ExecutionResult, *state.Changeset) {
	t.Helper()
	cfg, block := mergedEnv()
	interp, err := NewBackend().NewInterpreter(chain.NewMemoryView(), store.Snapshot(), cfg, tx, block)
	require.NoError(t, err)
	res, cs, err := interp.Execute(insp)
	require.NoError(t, err)
	return res, cs
}

// TestGoEVMTransfer runs a plain value transfer and checks gas accounting
// and the resulting changeset.
func TestGoEVMTransfer(t *testing.T) {
	store := newSnapshot(t)
	root := store.Root()

	res, cs := execute(t, store, &TxEnv{Caller: alice, To: &bob, Value: uint256.NewInt(7), GasLimit: params.TxGas}, nil)
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, params.TxGas, res.GasUsed)
	require.Nil(t, res.ContractAddress)

	require.Equal(t, uint64(7), cs.Accounts[bob].Balance.Uint64())
	require.Equal(t, uint64(1), cs.Accounts[alice].Nonce)
	require.Equal(t, root, store.Root(), "execution must not touch the store")

	require.NoError(t, store.Apply(cs))
	require.Equal(t, uint64(7), store.Account(bob).Balance.Uint64())
	require.Equal(t, uint64(1), store.Account(alice).Nonce)
}

func TestGoEVMContractReadWrite(t *testing.T) {
	store := newSnapshot(t)

	res, cs := execute(t, store, &TxEnv{Caller: alice, To: &contract, GasLimit: 100_000}, nil)
	require.True(t, res.Succeeded())
	require.Equal(t, common.HexToHash("0x2a").Bytes(), res.Output)
	require.Empty(t, cs.Storage[contract])

	word := common.HexToHash("0x99")
	res, cs = execute(t, store, &TxEnv{Caller: alice, To: &contract, Data: word.Bytes(), GasLimit: 100_000}, nil)
	require.True(t, res.Succeeded())
	require.Equal(t, word, cs.Storage[contract][common.Hash{}])
}

func TestGoEVMCreate(t *testing.T) {
	store := newSnapshot(t)

	res, cs := execute(t, store, &TxEnv{Caller: alice, Data: rwInit, GasLimit: 200_000}, nil)
	require.True(t, res.Succeeded(), "err: %v", res.Err)
	want := crypto.CreateAddress(alice, 0)
	require.NotNil(t, res.ContractAddress)
	require.Equal(t, want, *res.ContractAddress)
	require.Equal(t, rwRuntime, cs.Accounts[want].Code)
}

func TestGoEVMInvalidTransaction(t *testing.T) {
	store := newSnapshot(t)
	nonce := uint64(5)
	cfg, block := mergedEnv()
	interp, err := NewBackend().NewInterpreter(nil, store.Snapshot(), cfg, &TxEnv{Caller: alice, To: &bob, GasLimit: params.TxGas, Nonce: &nonce}, block)
	require.NoError(t, err)
	_, _, err = interp.Execute(nil)
	require.Error(t, err)
}

// TestGoEVMBalanceCheckDisabled funds an empty caller on the snapshot only.
func TestGoEVMBalanceCheckDisabled(t *testing.T) {
	store := newSnapshot(t)
	poor := common.HexToAddress("0x0000000000000000000000000000000000000bad")
	tx := &TxEnv{Caller: poor, To: &bob, Value: uint256.NewInt(1000), GasLimit: params.TxGas, GasPrice: uint256.NewInt(1)}

	cfg, block := mergedEnv()
	interp, err := NewBackend().NewInterpreter(nil, store.Snapshot(), cfg, tx, block)
	require.NoError(t, err)
	_, _, err = interp.Execute(nil)
	require.Error(t, err)

	cfg.DisableBalanceCheck = true
	interp, err = NewBackend().NewInterpreter(nil, store.Snapshot(), cfg, tx, block)
	require.NoError(t, err)
	res, cs, err := interp.Execute(nil)
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.Equal(t, uint64(1000), cs.Accounts[bob].Balance.Uint64())
	require.True(t, store.Account(poor).IsEmpty())
}

// TestGoEVMFundCallerSaturates checks that a fee overflowing 256 bits tops
// the caller up to the maximum balance instead of wrapping around.
func TestGoEVMFundCallerSaturates(t *testing.T) {
	store := newSnapshot(t)
	poor := common.HexToAddress("0x0000000000000000000000000000000000000bad")
	price := new(uint256.Int).Lsh(uint256.NewInt(1), 255)
	tx := &TxEnv{Caller: poor, To: &bob, Value: uint256.NewInt(1), GasLimit: params.TxGas, GasPrice: price}

	cfg, block := mergedEnv()
	cfg.DisableBalanceCheck = true
	snap := store.Snapshot()
	in := &goInterpreter{snap: snap, cfg: cfg, tx: tx, block: block}
	in.fundCaller(snap.StateDB())

	ceiling := new(uint256.Int).SetAllOne()
	require.Equal(t, ceiling, snap.Account(poor).Balance)
}

// TestGoEVMRefund clears a populated slot and expects the SSTORE refund to be
// reported and deducted from the gas used.
func TestGoEVMRefund(t *testing.T) {
	store := newSnapshot(t)
	zero := common.Hash{}
	res, cs := execute(t, store, &TxEnv{Caller: alice, To: &contract, Data: zero.Bytes(), GasLimit: 100_000}, nil)
	require.True(t, res.Succeeded())
	require.Equal(t, common.Hash{}, cs.Storage[contract][common.Hash{}])
	require.NotZero(t, res.GasRefunded)
	require.LessOrEqual(t, res.GasRefunded, (res.GasUsed+res.GasRefunded)/params.RefundQuotientEIP3529)
}

type recordingInspector struct {
	NoopInspector
	inits, steps, stepEnds int
	ops                    []gethvm.OpCode
	calls                  []CallInputs
	callEnds               []InterpreterResult
	logs                   int
}

func (r *recordingInspector) InitializeInterp(*Interp, Context) { r.inits++ }

func (r *recordingInspector) Step(in *Interp, _ Context) {
	r.steps++
	r.ops = append(r.ops, in.Op)
}

func (r *recordingInspector) StepEnd(*Interp, Context) { r.stepEnds++ }

func (r *recordingInspector) Log(Context, *types.Log) { r.logs++ }

func (r *recordingInspector) Call(ctx Context, in *CallInputs) *CallOutcome {
	r.calls = append(r.calls, in.Clone())
	return nil
}

func (r *recordingInspector) CallEnd(_ Context, _ *CallInputs, res InterpreterResult) InterpreterResult {
	r.callEnds = append(r.callEnds, res.Clone())
	return res
}

// TestGoEVMHooks checks the order and pairing of hook callbacks for a call
// into a contract.
func TestGoEVMHooks(t *testing.T) {
	store := newSnapshot(t)
	rec := new(recordingInspector)

	res, _ := execute(t, store, &TxEnv{Caller: alice, To: &contract, GasLimit: 100_000}, rec)
	require.True(t, res.Succeeded())

	require.Equal(t, 1, rec.inits)
	require.Equal(t, 12, rec.steps)
	require.Equal(t, rec.steps, rec.stepEnds)
	require.Equal(t, gethvm.CALLDATASIZE, rec.ops[0])
	require.Equal(t, gethvm.RETURN, rec.ops[len(rec.ops)-1])

	require.Len(t, rec.calls, 1)
	require.Equal(t, contract, rec.calls[0].Target)
	require.Equal(t, alice, rec.calls[0].Caller)
	require.Len(t, rec.callEnds, 1)
	require.Equal(t, res.Output, rec.callEnds[0].Output)
	require.Zero(t, rec.logs)
}

type selfDestructInspector struct {
	NoopInspector
	depths []int
}

func (s *selfDestructInspector) SelfDestruct(ctx Context, _, _ common.Address, _ *uint256.Int) {
	s.depths = append(s.depths, ctx.Depth())
}

// TestGoEVMSelfDestructDepth calls a contract that self-destructs and checks
// the hook sees the depth of the calling frame.
func TestGoEVMSelfDestructDepth(t *testing.T) {
	store := newSnapshot(t)
	doomed := common.HexToAddress("0x000000000000000000000000000000000000dead")
	// CALLER SELFDESTRUCT
	require.NoError(t, store.InsertAccount(doomed, &state.AccountInfo{Code: common.FromHex("33ff")}, nil))

	insp := new(selfDestructInspector)
	res, _ := execute(t, store, &TxEnv{Caller: alice, To: &doomed, GasLimit: 100_000}, insp)
	require.True(t, res.Succeeded())
	require.Equal(t, []int{0}, insp.depths)
}
