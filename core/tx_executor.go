package core

import (
	"context"
	"time"

	"github.com/clydemeng/evmrt/core/chain"
	"github.com/clydemeng/evmrt/core/inspector"
	"github.com/clydemeng/evmrt/core/runtime"
	"github.com/clydemeng/evmrt/core/state"
	"github.com/clydemeng/evmrt/core/vm"
	"github.com/clydemeng/evmrt/tracing"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const largeTxGasLimit = 10000000 // 10M Gas, to measure the execution time of large tx

// Outcome bundles everything one execution produces.
type Outcome struct {
	Result    *vm.ExecutionResult
	Changeset *state.Changeset
	Trace     *tracing.Trace
}

// Executor runs single transactions against a state store. Every entry point
// dispatches one unit of work onto the store's runtime and waits for it.
type Executor struct {
	chain   chain.Blockchain
	store   *state.Store
	cfg     vm.CfgEnv
	backend vm.Backend
}

// NewExecutor creates an executor. A nil backend selects vm.NewBackend.
func NewExecutor(bc chain.Blockchain, store *state.Store, cfg vm.CfgEnv, backend vm.Backend) *Executor {
	if backend == nil {
		backend = vm.NewBackend()
	}
	return &Executor{chain: bc, store: store, cfg: cfg, backend: backend}
}

// Engine returns the name of the interpreter backend in use.
func (e *Executor) Engine() string { return e.backend.Engine() }

// DryRun executes tx without committing. The optional inspector is invoked
// alongside the built-in trace collector.
func (e *Executor) DryRun(tx *vm.TxEnv, block *vm.BlockEnv, insp vm.Inspector) (*vm.ExecutionResult, *state.Changeset, *tracing.Trace, error) {
	out, err := e.dryRun(e.cfg, tx, block, insp)
	if err != nil {
		return nil, nil, nil, err
	}
	return out.Result, out.Changeset, out.Trace, nil
}

// GuaranteedDryRun is DryRun with the caller's balance check disabled.
func (e *Executor) GuaranteedDryRun(tx *vm.TxEnv, block *vm.BlockEnv, insp vm.Inspector) (*vm.ExecutionResult, *state.Changeset, *tracing.Trace, error) {
	cfg := e.cfg
	cfg.DisableBalanceCheck = true
	out, err := e.dryRun(cfg, tx, block, insp)
	if err != nil {
		return nil, nil, nil, err
	}
	return out.Result, out.Changeset, out.Trace, nil
}

// Run executes tx and commits its changeset to the store.
func (e *Executor) Run(tx *vm.TxEnv, block *vm.BlockEnv, insp vm.Inspector) (*vm.ExecutionResult, *tracing.Trace, error) {
	if err := checkPrevrandao(e.cfg, block); err != nil {
		return nil, nil, err
	}
	out, err := e.commit(e.cfg, tx, block, insp)
	if err != nil {
		return nil, nil, err
	}
	return out.Result, out.Trace, nil
}

// DryRunBatch dry-runs independent transactions concurrently, each against
// the store state at the time it starts. Outcomes are returned in input
// order. The first failure cancels transactions that have not started yet.
func (e *Executor) DryRunBatch(ctx context.Context, txs []*vm.TxEnv, block *vm.BlockEnv) ([]*Outcome, error) {
	if err := checkPrevrandao(e.cfg, block); err != nil {
		return nil, err
	}
	outs := make([]*Outcome, len(txs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.store.Runtime().Workers())
	for i, tx := range txs {
		i, tx := i, tx
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := e.dryRun(e.cfg, tx, block, nil)
			if err != nil {
				return errors.Wrapf(err, "tx %d", i)
			}
			outs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outs, nil
}

func checkPrevrandao(cfg vm.CfgEnv, block *vm.BlockEnv) error {
	if cfg.Spec.IsEnabledIn(vm.Merge) && block.Prevrandao == nil {
		prevrandaoMiss.Inc(1)
		return ErrMissingPrevrandao
	}
	return nil
}

func (e *Executor) dryRun(cfg vm.CfgEnv, tx *vm.TxEnv, block *vm.BlockEnv, insp vm.Inspector) (*Outcome, error) {
	if err := checkPrevrandao(cfg, block); err != nil {
		return nil, err
	}
	dryRunCounter.Inc(1)
	return runtime.Spawn(e.store.Runtime(), func() (*Outcome, error) {
		return e.execute(e.store.Snapshot(), cfg, tx, block, insp)
	})
}

// commit executes tx and applies the changeset in one unit of work, holding
// the store's commit lock throughout. The caller must have checked the block
// environment.
func (e *Executor) commit(cfg vm.CfgEnv, tx *vm.TxEnv, block *vm.BlockEnv, insp vm.Inspector) (*Outcome, error) {
	commitCounter.Inc(1)
	return runtime.Spawn(e.store.Runtime(), func() (*Outcome, error) {
		var out *Outcome
		err := e.store.Commit(func(snap *state.Snapshot) (*state.Changeset, error) {
			var err error
			if out, err = e.execute(snap, cfg, tx, block, insp); err != nil {
				return nil, err
			}
			return out.Changeset, nil
		})
		if err != nil {
			if out != nil {
				return nil, errors.Wrap(err, "commit changeset")
			}
			return nil, err
		}
		return out, nil
	})
}

// execute runs tx on snap with a trace collector attached. It must run inside
// a unit of work.
func (e *Executor) execute(snap *state.Snapshot, cfg vm.CfgEnv, tx *vm.TxEnv, block *vm.BlockEnv, insp vm.Inspector) (*Outcome, error) {
	start := time.Now()
	defer executeTimer.UpdateSince(start)

	comp := inspector.New(true, insp)
	interp, err := e.backend.NewInterpreter(e.chain, snap, cfg, tx, block)
	if err != nil {
		return nil, errors.Wrap(err, "construct interpreter")
	}
	res, cs, err := interp.Execute(comp.Inspector())
	if err != nil {
		return nil, errors.Wrap(err, "execute transaction")
	}
	if tx.GasLimit > largeTxGasLimit && res.GasUsed > largeTxGasLimit {
		log.Info("LargeTX execution time", "block", block.Number, "caller", tx.Caller, "gasUsed", res.GasUsed, "elapsed", time.Since(start))
	}
	log.Debug("Transaction executed", "engine", e.backend.Engine(), "block", block.Number, "caller", tx.Caller,
		"status", res.Status, "gasUsed", res.GasUsed, "logs", len(res.Logs))
	return &Outcome{Result: res, Changeset: cs, Trace: comp.ClearTrace()}, nil
}
