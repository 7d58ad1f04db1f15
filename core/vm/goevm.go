package vm

import (
	"math/big"

	"github.com/clydemeng/evmrt/core/chain"
	"github.com/clydemeng/evmrt/core/state"
	"github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core"
	gethstate "github.com/ethereum/go-ethereum/core/state"
	gethvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

type goBackend struct{}

func (goBackend) Engine() string { return "go-evm" }

func (goBackend) NewInterpreter(bc chain.Blockchain, snap *state.Snapshot, cfg CfgEnv, tx *TxEnv, block *BlockEnv) (Interpreter, error) {
	if cfg.ChainConfig == nil {
		return nil, errors.New("go-evm: missing chain config")
	}
	if snap == nil {
		return nil, errors.New("go-evm: missing state snapshot")
	}
	return &goInterpreter{bc: bc, snap: snap, cfg: cfg, tx: tx, block: block}, nil
}

// goInterpreter runs a transaction through go-ethereum's interpreter on a
// private snapshot and turns the resulting state into a changeset.
type goInterpreter struct {
	bc    chain.Blockchain
	snap  *state.Snapshot
	cfg   CfgEnv
	tx    *TxEnv
	block *BlockEnv
}

func (in *goInterpreter) blockContext() gethvm.BlockContext {
	getHash := func(uint64) common.Hash { return common.Hash{} }
	if in.bc != nil {
		getHash = chain.BlockHash(in.bc)
	}
	ctx := gethvm.BlockContext{
		CanTransfer: gethcore.CanTransfer,
		Transfer:    gethcore.Transfer,
		GetHash:     getHash,
		Coinbase:    in.block.Coinbase,
		GasLimit:    in.block.GasLimit,
		BlockNumber: new(big.Int).SetUint64(in.block.Number),
		Time:        in.block.Timestamp,
		Difficulty:  bigOrZero(in.block.Difficulty),
		BaseFee:     bigOrZero(in.block.BaseFee),
		BlobBaseFee: new(big.Int),
	}
	// A non-nil Random is what switches go-ethereum to post-merge rules.
	if in.cfg.Spec.IsEnabledIn(Merge) && in.block.Prevrandao != nil {
		random := *in.block.Prevrandao
		ctx.Random = &random
	}
	return ctx
}

func (in *goInterpreter) message(db *gethstate.StateDB) *gethcore.Message {
	tx := in.tx
	msg := &gethcore.Message{
		From:       tx.Caller,
		To:         tx.To,
		Value:      bigOrZero(tx.Value),
		GasLimit:   tx.GasLimit,
		Data:       tx.Data,
		AccessList: tx.AccessList,
	}
	if tx.Nonce != nil {
		msg.Nonce = *tx.Nonce
	} else {
		msg.Nonce = db.GetNonce(tx.Caller)
	}
	price := bigOrZero(tx.GasPrice)
	if tx.GasPriorityFee == nil {
		msg.GasPrice, msg.GasFeeCap, msg.GasTipCap = price, price, price
		return msg
	}
	msg.GasFeeCap = price
	msg.GasTipCap = tx.GasPriorityFee.ToBig()
	// Effective price is min(fee cap, base fee + tip).
	effective := new(big.Int).Add(msg.GasTipCap, bigOrZero(in.block.BaseFee))
	if effective.Cmp(msg.GasFeeCap) > 0 {
		effective.Set(msg.GasFeeCap)
	}
	msg.GasPrice = effective
	return msg
}

// fundCaller raises the caller's balance on the snapshot to cover the
// maximum gas fee and the transferred value.
func (in *goInterpreter) fundCaller(db *gethstate.StateDB) {
	tx := in.tx
	required := new(uint256.Int)
	overflow := false
	if tx.GasPrice != nil {
		_, overflow = required.MulOverflow(uint256.NewInt(tx.GasLimit), tx.GasPrice)
	}
	if tx.Value != nil && !overflow {
		_, overflow = required.AddOverflow(required, tx.Value)
	}
	if overflow {
		required.SetAllOne()
	}
	if db.GetBalance(tx.Caller).Cmp(required) < 0 {
		db.SetBalance(tx.Caller, required, state.BalanceChangeTopUp.Hook())
	}
}

func (in *goInterpreter) Execute(insp Inspector) (*ExecutionResult, *state.Changeset, error) {
	db := in.snap.StateDB()
	if in.cfg.DisableBalanceCheck {
		in.fundCaller(db)
	}
	msg := in.message(db)
	db.SetTxContext(in.tx.Hash, 0)

	bridge := newHookBridge(in, insp)
	bridge.touch(in.tx.Caller)
	bridge.touch(in.block.Coinbase)
	hooks := bridge.hooks()

	evm := gethvm.NewEVM(in.blockContext(), gethstate.NewHookedState(db, hooks), in.cfg.ChainConfig, gethvm.Config{Tracer: hooks})
	evm.SetTxContext(gethcore.NewEVMTxContext(msg))

	res, err := gethcore.ApplyMessage(evm, msg, new(gethcore.GasPool).AddGas(msg.GasLimit))
	if err != nil {
		return nil, nil, errors.Wrap(err, "go-evm: invalid transaction")
	}

	result := &ExecutionResult{
		Status:      StatusSuccess,
		GasUsed:     res.UsedGas,
		GasRefunded: res.MaxUsedGas - res.UsedGas,
		Output:      res.ReturnData,
		Logs:        db.Logs(),
		Err:         res.Err,
	}
	switch {
	case res.Err == nil:
		if in.tx.IsCreate() {
			addr := crypto.CreateAddress(msg.From, msg.Nonce)
			result.ContractAddress = &addr
		}
	case errors.Is(res.Err, gethvm.ErrExecutionReverted):
		result.Status = StatusRevert
	default:
		result.Status = StatusHalt
	}
	return result, bridge.changeset(db), nil
}
