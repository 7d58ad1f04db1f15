package core

import (
	"os"
	"sync/atomic"
	"testing"

	"github.com/clydemeng/evmrt/core/chain"
	"github.com/clydemeng/evmrt/core/runtime"
	"github.com/clydemeng/evmrt/core/state"
	"github.com/clydemeng/evmrt/core/vm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var (
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	contract = common.HexToAddress("0x000000000000000000000000000000000000c0de")
	miner    = common.HexToAddress("0x00000000000000000000000000000000000f00d0")

	// With calldata, stores the first word in slot 0. Without, returns slot 0.
	rwRuntime = common.FromHex("3615600c57600035600055005b60005460005260206000f3")

	prevrandao = common.HexToHash("0x5eed")
)

func init() {
	log.SetDefault(log.NewLogger(log.NewTerminalHandler(os.Stderr, true)))
}

// countingBackend wraps a real backend and counts constructed interpreters.
type countingBackend struct {
	vm.Backend
	interpreters atomic.Int32
}

func (c *countingBackend) NewInterpreter(bc chain.Blockchain, snap *state.Snapshot, cfg vm.CfgEnv, tx *vm.TxEnv, block *vm.BlockEnv) (vm.Interpreter, error) {
	c.interpreters.Add(1)
	return c.Backend.NewInterpreter(bc, snap, cfg, tx, block)
}

type testEnv struct {
	chain   *chain.View
	store   *state.Store
	cfg     vm.CfgEnv
	backend *countingBackend
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	rt, err := runtime.New(4)
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	store, err := state.NewMemoryStore(rt)
	require.NoError(t, err)
	require.NoError(t, store.InsertAccount(alice, &state.AccountInfo{Balance: uint256.NewInt(1e18)}, nil))
	require.NoError(t, store.InsertAccount(contract, &state.AccountInfo{Code: rwRuntime}, nil))

	return &testEnv{
		chain:   chain.NewMemoryView(),
		store:   store,
		cfg:     vm.NewCfgEnv(params.MergedTestChainConfig, 1, 0),
		backend: &countingBackend{Backend: vm.NewBackend()},
	}
}

func (e *testEnv) executor() *Executor {
	return NewExecutor(e.chain, e.store, e.cfg, e.backend)
}

func mergedBlock() *vm.BlockEnv {
	random := prevrandao
	return &vm.BlockEnv{Number: 1, GasLimit: 30_000_000, Prevrandao: &random}
}

func transfer(value uint64) *vm.TxEnv {
	return &vm.TxEnv{Caller: alice, To: &bob, Value: uint256.NewInt(value), GasLimit: params.TxGas}
}

func store(word common.Hash) *vm.TxEnv {
	return &vm.TxEnv{Caller: alice, To: &contract, Data: word.Bytes(), GasLimit: 100_000}
}
