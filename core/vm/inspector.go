package vm

import (
	"math/big"

	"github.com/clydemeng/evmrt/core/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
)

// Interp is the interpreter state presented to hooks at an opcode boundary.
// Stack and Memory alias the live frame for Inspector hooks.
type Interp struct {
	PC         uint64
	Op         gethvm.OpCode
	Gas        uint64
	Cost       uint64
	Depth      int
	Contract   common.Address
	Caller     common.Address
	Stack      []uint256.Int
	Memory     []byte
	ReturnData []byte
	Err        error
}

// Clone returns a copy that shares no memory with the live frame.
func (i *Interp) Clone() Interp {
	cpy := *i
	cpy.Stack = append([]uint256.Int(nil), i.Stack...)
	cpy.Memory = common.CopyBytes(i.Memory)
	cpy.ReturnData = common.CopyBytes(i.ReturnData)
	return cpy
}

// Context is the read-only execution context handed to hooks.
type Context interface {
	Spec() SpecID
	Block() *BlockEnv
	Tx() *TxEnv
	// Depth is the current call depth, zero for the outermost frame.
	Depth() int
	Account(addr common.Address) *state.AccountInfo
	Storage(addr common.Address, slot common.Hash) common.Hash
}

// CallInputs describes a message call frame about to execute.
type CallInputs struct {
	Type   gethvm.OpCode // CALL, CALLCODE, DELEGATECALL or STATICCALL
	Caller common.Address
	Target common.Address
	Input  []byte
	Gas    uint64
	Value  *big.Int
	Depth  int
}

func (c *CallInputs) Clone() CallInputs {
	cpy := *c
	cpy.Input = common.CopyBytes(c.Input)
	if c.Value != nil {
		cpy.Value = new(big.Int).Set(c.Value)
	}
	return cpy
}

// CreateInputs describes a contract creation frame about to execute.
type CreateInputs struct {
	Type    gethvm.OpCode // CREATE or CREATE2
	Caller  common.Address
	Address common.Address // address the contract will be deployed at
	Init    []byte
	Gas     uint64
	Value   *big.Int
	Depth   int
}

func (c *CreateInputs) Clone() CreateInputs {
	cpy := *c
	cpy.Init = common.CopyBytes(c.Init)
	if c.Value != nil {
		cpy.Value = new(big.Int).Set(c.Value)
	}
	return cpy
}

// InterpreterResult is the outcome of a frame.
type InterpreterResult struct {
	Output   []byte
	GasUsed  uint64
	Err      error
	Reverted bool
}

func (r InterpreterResult) Clone() InterpreterResult {
	r.Output = common.CopyBytes(r.Output)
	return r
}

// CallOutcome, when returned from Inspector.Call, replaces the call with
// the given result.
type CallOutcome struct {
	Result InterpreterResult
}

// CreateOutcome, when returned from Inspector.Create, replaces the creation
// with the given result and address.
type CreateOutcome struct {
	Result  InterpreterResult
	Address *common.Address
}

// Inspector is the full hook capability set. Implementations may alter
// control flow: a non-nil outcome from Call or Create short-circuits the
// frame, and the values returned from CallEnd and CreateEnd replace the
// frame results.
type Inspector interface {
	InitializeInterp(interp *Interp, ctx Context)
	Step(interp *Interp, ctx Context)
	StepEnd(interp *Interp, ctx Context)
	Log(ctx Context, log *types.Log)
	Call(ctx Context, inputs *CallInputs) *CallOutcome
	CallEnd(ctx Context, inputs *CallInputs, result InterpreterResult) InterpreterResult
	Create(ctx Context, inputs *CreateInputs) *CreateOutcome
	CreateEnd(ctx Context, inputs *CreateInputs, result InterpreterResult, address *common.Address) (InterpreterResult, *common.Address)
	SelfDestruct(ctx Context, contract, target common.Address, value *uint256.Int)
}

// Observer receives the same callbacks as an Inspector but only ever sees
// copies, and has no way to influence execution.
type Observer interface {
	InitializeInterp(interp Interp, ctx Context)
	Step(interp Interp, ctx Context)
	StepEnd(interp Interp, ctx Context)
	Log(ctx Context, log types.Log)
	Call(ctx Context, inputs CallInputs)
	CallEnd(ctx Context, inputs CallInputs, result InterpreterResult)
	Create(ctx Context, inputs CreateInputs)
	CreateEnd(ctx Context, inputs CreateInputs, result InterpreterResult, address *common.Address)
	SelfDestruct(ctx Context, contract, target common.Address, value uint256.Int)
}

// NoopInspector implements Inspector without affecting execution. Embed it
// to implement only the hooks of interest.
type NoopInspector struct{}

func (NoopInspector) InitializeInterp(*Interp, Context) {}
func (NoopInspector) Step(*Interp, Context) {}
func (NoopInspector) StepEnd(*Interp, Context) {}
func (NoopInspector) Log(Context, *types.Log) {}
func (NoopInspector) Call(Context, *CallInputs) *CallOutcome { return nil }
func (NoopInspector) Create(Context, *CreateInputs) *CreateOutcome { return nil }
func (NoopInspector) SelfDestruct(Context, common.Address, common.Address, *uint256.Int) {}

func (NoopInspector) CallEnd(_ Context, _ *CallInputs, result InterpreterResult) InterpreterResult {
	return result
}

func (NoopInspector) CreateEnd(_ Context, _ *CreateInputs, result InterpreterResult, address *common.Address) (InterpreterResult, *common.Address) {
	return result, address
}
