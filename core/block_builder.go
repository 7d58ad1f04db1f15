package core

import (
	"sync"

	"github.com/clydemeng/evmrt/core/chain"
	"github.com/clydemeng/evmrt/core/runtime"
	"github.com/clydemeng/evmrt/core/state"
	"github.com/clydemeng/evmrt/core/vm"
	"github.com/clydemeng/evmrt/tracing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// HeaderData overrides fields of the header template. Nil fields keep their
// defaults.
type HeaderData struct {
	ParentHash *common.Hash
	Number     *uint64
	GasLimit   *uint64
	Coinbase   *common.Address
	Timestamp  *uint64
	Difficulty *uint256.Int
	BaseFee    *uint256.Int
	MixHash    *common.Hash
}

// PartialHeader is the header template of a block under construction. It
// lacks everything computed at sealing time.
type PartialHeader struct {
	ParentHash common.Hash
	Number     uint64
	GasLimit   uint64
	GasUsed    uint64
	Coinbase   common.Address
	Timestamp  uint64
	Difficulty *uint256.Int
	BaseFee    *uint256.Int
	MixHash    *common.Hash
}

// PendingBlock is the result of a finalized build.
type PendingBlock struct {
	Header       PartialHeader
	Transactions []*vm.TxEnv
}

// Reward credits Amount to Address when a block is finalized.
type Reward struct {
	Address common.Address
	Amount  *uint256.Int
}

// BuilderStatus is the lifecycle state of a BlockBuilder.
type BuilderStatus int

const (
	Building BuilderStatus = iota
	Finalized
	Aborted
)

func (s BuilderStatus) String() string {
	switch s {
	case Building:
		return "building"
	case Finalized:
		return "finalized"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

// BlockBuilder assembles a candidate block on top of a parent by executing
// transactions one by one against the store. Construction takes a store
// checkpoint; Abort reverts to it. Calls are serialized.
type BlockBuilder struct {
	executor *Executor
	store    *state.Store

	mu         sync.Mutex
	header     PartialHeader
	txs        []*vm.TxEnv
	checkpoint state.Checkpoint
	status     BuilderStatus
}

// NewBlockBuilder starts a block on top of parent. A nil backend selects
// vm.NewBackend.
func NewBlockBuilder(bc chain.Blockchain, store *state.Store, cfg vm.CfgEnv, backend vm.Backend, parent *types.Header, overrides HeaderData) (*BlockBuilder, error) {
	header := PartialHeader{
		ParentHash: parent.Hash(),
		Number:     parent.Number.Uint64() + 1,
		GasLimit:   parent.GasLimit,
		Difficulty: new(uint256.Int),
		BaseFee:    new(uint256.Int),
	}
	if overrides.ParentHash != nil {
		header.ParentHash = *overrides.ParentHash
	}
	if overrides.Number != nil {
		header.Number = *overrides.Number
	}
	if overrides.GasLimit != nil {
		header.GasLimit = *overrides.GasLimit
	}
	if overrides.Coinbase != nil {
		header.Coinbase = *overrides.Coinbase
	}
	if overrides.Timestamp != nil {
		header.Timestamp = *overrides.Timestamp
	}
	if overrides.Difficulty != nil {
		header.Difficulty = new(uint256.Int).Set(overrides.Difficulty)
	}
	if overrides.BaseFee != nil {
		header.BaseFee = new(uint256.Int).Set(overrides.BaseFee)
	}
	if overrides.MixHash != nil {
		mix := *overrides.MixHash
		header.MixHash = &mix
	}

	cp, err := runtime.Spawn(store.Runtime(), store.Checkpoint)
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint block start")
	}
	log.Debug("Started block", "number", header.Number, "parent", header.ParentHash, "gasLimit", header.GasLimit)
	return &BlockBuilder{
		executor:   NewExecutor(bc, store, cfg, backend),
		store:      store,
		header:     header,
		checkpoint: cp,
	}, nil
}

// GasUsed returns the gas consumed by the accepted transactions.
func (b *BlockBuilder) GasUsed() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.header.GasUsed
}

// GasRemaining returns the gas still available in the block.
func (b *BlockBuilder) GasRemaining() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.header.GasLimit - b.header.GasUsed
}

// Header returns a copy of the current header template.
func (b *BlockBuilder) Header() PartialHeader {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.header
}

// Transactions returns the pending transactions in block order.
func (b *BlockBuilder) Transactions() []*vm.TxEnv {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*vm.TxEnv(nil), b.txs...)
}

func (b *BlockBuilder) Status() BuilderStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *BlockBuilder) blockEnv() *vm.BlockEnv {
	env := &vm.BlockEnv{
		Number:     b.header.Number,
		Coinbase:   b.header.Coinbase,
		Timestamp:  b.header.Timestamp,
		GasLimit:   b.header.GasLimit,
		BaseFee:    b.header.BaseFee,
		Difficulty: b.header.Difficulty,
	}
	if b.executor.cfg.Spec.IsEnabledIn(vm.Merge) {
		env.Prevrandao = b.header.MixHash
	}
	return env
}

// AddTransaction appends tx to the block, executes it on top of the block so
// far and commits its changeset. A transaction whose gas limit exceeds the
// remaining block gas is rejected with ErrExceedsBlockGasLimit and leaves the
// builder and store untouched, as does a post-merge block without a mix hash.
// Any later failure keeps tx in the pending list; callers either abort or
// continue with another transaction.
func (b *BlockBuilder) AddTransaction(tx *vm.TxEnv, insp vm.Inspector) (*vm.ExecutionResult, *tracing.Trace, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != Building {
		return nil, nil, ErrBuilderClosed
	}
	if remaining := b.header.GasLimit - b.header.GasUsed; tx.GasLimit > remaining {
		builderRejectCount.Inc(1)
		return nil, nil, errors.Wrapf(ErrExceedsBlockGasLimit, "gas limit %d, remaining %d", tx.GasLimit, remaining)
	}
	block := b.blockEnv()
	if err := checkPrevrandao(b.executor.cfg, block); err != nil {
		return nil, nil, err
	}
	b.txs = append(b.txs, tx)

	out, err := b.executor.commit(b.executor.cfg, tx, block, insp)
	if err != nil {
		return nil, nil, err
	}
	b.header.GasUsed += out.Result.GasUsed

	builderTxMeter.Mark(1)
	builderGasGauge.Update(int64(b.header.GasUsed))
	log.Debug("Added transaction to block", "number", b.header.Number, "index", len(b.txs)-1,
		"gasUsed", out.Result.GasUsed, "blockGasUsed", b.header.GasUsed)
	return out.Result, out.Trace, nil
}

// Finalize credits the rewards in order and closes the builder. If crediting
// fails the builder stays open; rewards already credited remain until Abort.
func (b *BlockBuilder) Finalize(rewards []Reward) (*PendingBlock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != Building {
		return nil, ErrBuilderClosed
	}
	_, err := runtime.Spawn(b.store.Runtime(), func() (struct{}, error) {
		for _, r := range rewards {
			amount := r.Amount
			if amount == nil {
				continue
			}
			err := b.store.ModifyAccount(r.Address, func(acc *state.AccountInfo) {
				acc.Balance = new(uint256.Int).Add(acc.Balance, amount)
			})
			if err != nil {
				return struct{}{}, errors.Wrapf(err, "credit reward to %s", r.Address)
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return nil, err
	}
	if err := b.store.Discard(b.checkpoint); err != nil {
		log.Warn("Block checkpoint already released", "number", b.header.Number, "err", err)
	}
	b.status = Finalized

	log.Info("Finalized block", "number", b.header.Number, "txs", len(b.txs), "gasUsed", b.header.GasUsed, "rewards", len(rewards))
	return &PendingBlock{Header: b.header, Transactions: append([]*vm.TxEnv(nil), b.txs...)}, nil
}

// Abort closes the builder and reverts the store to the state it had when
// the builder was created.
func (b *BlockBuilder) Abort() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != Building {
		return ErrBuilderClosed
	}
	cp := b.checkpoint
	if _, err := runtime.Spawn(b.store.Runtime(), func() (struct{}, error) {
		return struct{}{}, b.store.Revert(cp)
	}); err != nil {
		return errors.Wrap(err, "revert block")
	}
	b.status = Aborted
	log.Debug("Aborted block", "number", b.header.Number, "txs", len(b.txs))
	return nil
}
