package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/clydemeng/evmrt/core/vm"
	"github.com/clydemeng/evmrt/tracing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

// TestMissingPrevrandao checks that a post-merge block without beacon
// randomness is refused before any interpreter is built.
func TestMissingPrevrandao(t *testing.T) {
	env := newTestEnv(t)
	ex := env.executor()
	block := &vm.BlockEnv{Number: 1, GasLimit: 30_000_000}
	root := env.store.Root()

	_, _, _, err := ex.DryRun(transfer(1), block, nil)
	require.ErrorIs(t, err, ErrMissingPrevrandao)
	_, _, _, err = ex.GuaranteedDryRun(transfer(1), block, nil)
	require.ErrorIs(t, err, ErrMissingPrevrandao)
	_, _, err = ex.Run(transfer(1), block, nil)
	require.ErrorIs(t, err, ErrMissingPrevrandao)
	_, err = ex.DryRunBatch(context.Background(), []*vm.TxEnv{transfer(1)}, block)
	require.ErrorIs(t, err, ErrMissingPrevrandao)

	require.Zero(t, env.backend.interpreters.Load())
	require.Equal(t, root, env.store.Root())
}

// TestPreMergeWithoutPrevrandao runs a transfer under pre-merge rules, where
// no randomness is needed.
func TestPreMergeWithoutPrevrandao(t *testing.T) {
	env := newTestEnv(t)
	env.cfg = vm.CfgEnv{ChainConfig: params.AllEthashProtocolChanges, Spec: vm.London}
	ex := env.executor()

	res, _, _, err := ex.DryRun(transfer(1), &vm.BlockEnv{Number: 1, GasLimit: 30_000_000}, nil)
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.Equal(t, int32(1), env.backend.interpreters.Load())
}

func TestDryRunLeavesStoreUntouched(t *testing.T) {
	env := newTestEnv(t)
	ex := env.executor()
	root := env.store.Root()

	res, cs, trace, err := ex.DryRun(store(common.HexToHash("0x11")), mergedBlock(), nil)
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.Equal(t, common.HexToHash("0x11"), cs.Storage[contract][common.Hash{}])
	require.NotZero(t, trace.Len())

	require.Equal(t, root, env.store.Root())
	require.Equal(t, common.Hash{}, env.store.StorageAt(contract, common.Hash{}))
	require.Equal(t, "go-evm", ex.Engine())
}

// TestRunMatchesDryRun executes the same transaction both ways from the same
// state and compares results and traces.
func TestRunMatchesDryRun(t *testing.T) {
	env := newTestEnv(t)
	ex := env.executor()
	tx := store(common.HexToHash("0x22"))
	root := env.store.Root()

	dryRes, _, dryTrace, err := ex.DryRun(tx, mergedBlock(), nil)
	require.NoError(t, err)
	require.Equal(t, root, env.store.Root())

	runRes, runTrace, err := ex.Run(tx, mergedBlock(), nil)
	require.NoError(t, err)

	require.Equal(t, dryRes, runRes)
	require.Equal(t, dryTrace, runTrace)
	require.NotEqual(t, root, env.store.Root())
	require.Equal(t, common.HexToHash("0x22"), env.store.StorageAt(contract, common.Hash{}))
	require.Equal(t, uint64(1), env.store.Account(alice).Nonce)
}

func TestGuaranteedDryRun(t *testing.T) {
	env := newTestEnv(t)
	ex := env.executor()
	poor := common.HexToAddress("0x0000000000000000000000000000000000000bad")
	tx := &vm.TxEnv{Caller: poor, To: &bob, Value: uint256.NewInt(500), GasLimit: params.TxGas, GasPrice: uint256.NewInt(2)}

	_, _, _, err := ex.DryRun(tx, mergedBlock(), nil)
	require.Error(t, err)

	res, cs, _, err := ex.GuaranteedDryRun(tx, mergedBlock(), nil)
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	require.Equal(t, uint64(500), cs.Accounts[bob].Balance.Uint64())
	require.True(t, env.store.Account(poor).IsEmpty())
	require.True(t, env.store.Account(bob).IsEmpty())
}

type stepCounter struct {
	vm.NoopInspector
	steps int
}

func (s *stepCounter) Step(*vm.Interp, vm.Context) { s.steps++ }

// TestExternalInspectorAlongsideTrace runs with a caller inspector and checks
// that both it and the built-in collector saw every step.
func TestExternalInspectorAlongsideTrace(t *testing.T) {
	env := newTestEnv(t)
	counter := new(stepCounter)

	_, _, trace, err := env.executor().DryRun(store(common.HexToHash("0x01")), mergedBlock(), counter)
	require.NoError(t, err)
	require.NotZero(t, counter.steps)
	require.Len(t, trace.Steps(), counter.steps)

	kinds := []string{}
	for _, ev := range trace.Events {
		if _, ok := ev.(*tracing.StepEvent); !ok {
			kinds = append(kinds, ev.Kind())
		}
	}
	require.Equal(t, []string{"call", "call_end"}, kinds)
}

func TestDryRunBatch(t *testing.T) {
	env := newTestEnv(t)
	ex := env.executor()
	txs := []*vm.TxEnv{transfer(1), store(common.HexToHash("0x05")), transfer(3)}

	outs, err := ex.DryRunBatch(context.Background(), txs, mergedBlock())
	require.NoError(t, err)
	require.Len(t, outs, 3)
	require.Equal(t, uint64(1), outs[0].Changeset.Accounts[bob].Balance.Uint64())
	require.Equal(t, common.HexToHash("0x05"), outs[1].Changeset.Storage[contract][common.Hash{}])
	require.Equal(t, uint64(3), outs[2].Changeset.Accounts[bob].Balance.Uint64())
	for _, out := range outs {
		require.True(t, out.Result.Succeeded())
		// Every transaction saw the same starting nonce.
		require.Equal(t, uint64(1), out.Changeset.Accounts[alice].Nonce)
	}
}

// parkingInspector blocks the first step of an execution until released.
type parkingInspector struct {
	vm.NoopInspector
	once    sync.Once
	parked  chan struct{}
	release chan struct{}
}

func (p *parkingInspector) Step(*vm.Interp, vm.Context) {
	p.once.Do(func() {
		close(p.parked)
		<-p.release
	})
}

// TestConcurrentCommitsOnSharedStore runs a committing executor and a block
// builder on the same store. The builder's transaction must wait for the
// executor's commit, so both nonce increments survive.
func TestConcurrentCommitsOnSharedStore(t *testing.T) {
	env := newTestEnv(t)
	b, _ := env.builder(t, 1_000_000, HeaderData{})
	insp := &parkingInspector{parked: make(chan struct{}), release: make(chan struct{})}

	runErr := make(chan error, 1)
	go func() {
		_, _, err := env.executor().Run(store(common.HexToHash("0x77")), mergedBlock(), insp)
		runErr <- err
	}()
	<-insp.parked

	addErr := make(chan error, 1)
	go func() {
		_, _, err := b.AddTransaction(transfer(1), nil)
		addErr <- err
	}()
	time.Sleep(50 * time.Millisecond)
	select {
	case err := <-addErr:
		t.Fatalf("transaction committed during another commit: %v", err)
	default:
	}

	close(insp.release)
	require.NoError(t, <-runErr)
	require.NoError(t, <-addErr)

	require.Equal(t, uint64(2), env.store.Account(alice).Nonce)
	require.Equal(t, uint64(1), env.store.Account(bob).Balance.Uint64())
	require.Equal(t, common.HexToHash("0x77"), env.store.StorageAt(contract, common.Hash{}))
}
