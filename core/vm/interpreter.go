package vm

import (
	"github.com/clydemeng/evmrt/core/chain"
	"github.com/clydemeng/evmrt/core/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Status is the terminal state of a transaction.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusRevert
	StatusHalt
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusRevert:
		return "revert"
	case StatusHalt:
		return "halt"
	}
	return "unknown"
}

// ExecutionResult is the outcome of one transaction.
type ExecutionResult struct {
	Status          Status
	GasUsed         uint64
	GasRefunded     uint64
	Output          []byte // return data, or revert data
	Logs            []*types.Log
	ContractAddress *common.Address // set for successful creations
	Err             error           // halt or revert reason
}

// Succeeded reports whether the transaction completed without revert or halt.
func (r *ExecutionResult) Succeeded() bool { return r.Status == StatusSuccess }

// Interpreter executes a single prepared transaction against a private
// snapshot. Hooks on the given inspector are invoked synchronously; a nil
// inspector disables them.
type Interpreter interface {
	Execute(insp Inspector) (*ExecutionResult, *state.Changeset, error)
}

// Backend constructs interpreters. It is the seam between transaction
// orchestration and opcode semantics.
type Backend interface {
	// Engine returns a human-readable short name identifying the backend.
	Engine() string

	NewInterpreter(bc chain.Blockchain, snap *state.Snapshot, cfg CfgEnv, tx *TxEnv, block *BlockEnv) (Interpreter, error)
}

// NewBackend returns the default interpreter backend, built on the
// go-ethereum interpreter.
func NewBackend() Backend {
	return goBackend{}
}
