package vm

import (
	"bytes"
	"math/big"

	"github.com/clydemeng/evmrt/core/state"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	gethstate "github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	gethvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
)

// frame is one entry of the call stack as seen through tracing hooks.
type frame struct {
	call         *CallInputs
	create       *CreateInputs
	selfDestruct bool // marker pushed for the SELFDESTRUCT enter/exit pair
	started      bool // first opcode seen
}

type pendingStep struct {
	interp Interp
	scope  tracing.OpContext
}

// hookBridge translates go-ethereum tracing hooks into Inspector callbacks
// and records every account and slot the execution touches.
type hookBridge struct {
	in   *goInterpreter
	insp Inspector

	frames  []*frame
	pending *pendingStep
	warned  bool

	touched   mapset.Set[common.Address]
	slots     map[common.Address]mapset.Set[common.Hash]
	destructs mapset.Set[common.Address]
}

func newHookBridge(in *goInterpreter, insp Inspector) *hookBridge {
	return &hookBridge{
		in:        in,
		insp:      insp,
		touched:   mapset.NewThreadUnsafeSet[common.Address](),
		slots:     make(map[common.Address]mapset.Set[common.Hash]),
		destructs: mapset.NewThreadUnsafeSet[common.Address](),
	}
}

func (b *hookBridge) hooks() *tracing.Hooks {
	h := &tracing.Hooks{
		OnEnter:         b.onEnter,
		OnExit:          b.onExit,
		OnBalanceChange: func(addr common.Address, _, _ *big.Int, _ tracing.BalanceChangeReason) { b.touch(addr) },
		OnNonceChange:   func(addr common.Address, _, _ uint64) { b.touch(addr) },
		OnCodeChange: func(addr common.Address, _ common.Hash, _ []byte, _ common.Hash, _ []byte) {
			b.touch(addr)
		},
		OnStorageChange: b.onStorageChange,
	}
	if b.insp != nil {
		h.OnOpcode = b.onOpcode
		h.OnLog = b.onLog
	}
	return h
}

func (b *hookBridge) touch(addr common.Address) {
	b.touched.Add(addr)
}

// Spec implements Context.
func (b *hookBridge) Spec() SpecID { return b.in.cfg.Spec }

// Block implements Context.
func (b *hookBridge) Block() *BlockEnv { return b.in.block }

// Tx implements Context.
func (b *hookBridge) Tx() *TxEnv { return b.in.tx }

// Depth implements Context.
func (b *hookBridge) Depth() int {
	if len(b.frames) == 0 {
		return 0
	}
	return len(b.frames) - 1
}

// Account implements Context.
func (b *hookBridge) Account(addr common.Address) *state.AccountInfo {
	return b.in.snap.Account(addr)
}

// Storage implements Context.
func (b *hookBridge) Storage(addr common.Address, slot common.Hash) common.Hash {
	return b.in.snap.Storage(addr, slot)
}

// ignoredOverride is reported when an inspector asks to replace a frame
// outcome. The go-ethereum interpreter offers no way to do so.
func (b *hookBridge) ignoredOverride(hook string) {
	if b.warned {
		return
	}
	b.warned = true
	log.Warn("Inspector override ignored by interpreter backend", "engine", "go-evm", "hook", hook)
}

func (b *hookBridge) onEnter(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
	op := gethvm.OpCode(typ)
	b.touch(from)
	b.touch(to)
	if op == gethvm.SELFDESTRUCT {
		b.destructs.Add(from)
		if b.insp != nil {
			b.insp.SelfDestruct(b, from, to, toUint256(value))
		}
		b.frames = append(b.frames, &frame{selfDestruct: true})
		return
	}
	b.flushStep(true)

	f := new(frame)
	switch op {
	case gethvm.CREATE, gethvm.CREATE2:
		f.create = &CreateInputs{Type: op, Caller: from, Address: to, Init: input, Gas: gas, Value: value, Depth: depth}
	default:
		f.call = &CallInputs{Type: op, Caller: from, Target: to, Input: input, Gas: gas, Value: value, Depth: depth}
	}
	b.frames = append(b.frames, f)
	if b.insp == nil {
		return
	}
	if f.create != nil {
		if out := b.insp.Create(b, f.create); out != nil {
			b.ignoredOverride("create")
		}
		return
	}
	if out := b.insp.Call(b, f.call); out != nil {
		b.ignoredOverride("call")
	}
}

func (b *hookBridge) onExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	if len(b.frames) == 0 {
		return
	}
	f := b.frames[len(b.frames)-1]
	if f.selfDestruct {
		b.frames = b.frames[:len(b.frames)-1]
		return
	}
	b.flushStep(false)
	defer func() { b.frames = b.frames[:len(b.frames)-1] }()

	if b.insp == nil {
		return
	}
	res := InterpreterResult{Output: output, GasUsed: gasUsed, Err: err, Reverted: reverted}
	if f.create != nil {
		var addr *common.Address
		if err == nil {
			created := f.create.Address
			addr = &created
		}
		out, outAddr := b.insp.CreateEnd(b, f.create, res, addr)
		if !sameResult(out, res) || !sameAddress(outAddr, addr) {
			b.ignoredOverride("create_end")
		}
		return
	}
	if out := b.insp.CallEnd(b, f.call, res); !sameResult(out, res) {
		b.ignoredOverride("call_end")
	}
}

func (b *hookBridge) onOpcode(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	b.flushStep(true)
	if len(b.frames) == 0 {
		return
	}
	f := b.frames[len(b.frames)-1]
	interp := Interp{
		PC:         pc,
		Op:         gethvm.OpCode(op),
		Gas:        gas,
		Cost:       cost,
		Depth:      depth - 1,
		Contract:   scope.Address(),
		Caller:     scope.Caller(),
		Stack:      scope.StackData(),
		Memory:     scope.MemoryData(),
		ReturnData: rData,
		Err:        err,
	}
	if !f.started {
		f.started = true
		b.insp.InitializeInterp(&interp, b)
	}
	b.insp.Step(&interp, b)
	b.pending = &pendingStep{interp: interp, scope: scope}
}

// flushStep delivers StepEnd for the last stepped opcode. The live frame is
// only re-read while it is still executing.
func (b *hookBridge) flushStep(refresh bool) {
	p := b.pending
	if p == nil || b.insp == nil {
		return
	}
	b.pending = nil
	interp := p.interp
	if interp.Gas >= interp.Cost {
		interp.Gas -= interp.Cost
	} else {
		interp.Gas = 0
	}
	if refresh {
		interp.Stack = p.scope.StackData()
		interp.Memory = p.scope.MemoryData()
	}
	b.insp.StepEnd(&interp, b)
}

func (b *hookBridge) onLog(l *types.Log) {
	b.insp.Log(b, l)
}

func (b *hookBridge) onStorageChange(addr common.Address, slot common.Hash, _, _ common.Hash) {
	b.touch(addr)
	slots, ok := b.slots[addr]
	if !ok {
		slots = mapset.NewThreadUnsafeSet[common.Hash]()
		b.slots[addr] = slots
	}
	slots.Add(slot)
}

// changeset finalises db and reads back the final value of everything the
// execution touched.
func (b *hookBridge) changeset(db *gethstate.StateDB) *state.Changeset {
	cs := state.NewChangeset()
	destructed := mapset.NewThreadUnsafeSet[common.Address]()
	b.destructs.Each(func(addr common.Address) bool {
		if db.HasSelfDestructed(addr) {
			destructed.Add(addr)
		}
		return false
	})
	db.Finalise(true)

	b.touched.Each(func(addr common.Address) bool {
		if !destructed.Contains(addr) {
			cs.SetAccount(addr, b.in.snap.Account(addr))
		}
		return false
	})
	for addr, slots := range b.slots {
		if destructed.Contains(addr) {
			continue
		}
		slots.Each(func(slot common.Hash) bool {
			cs.SetStorage(addr, slot, db.GetState(addr, slot))
			return false
		})
	}
	destructed.Each(func(addr common.Address) bool {
		cs.Destruct(addr)
		return false
	})
	return cs
}

func toUint256(v *big.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return u
}

func sameResult(a, b InterpreterResult) bool {
	return a.GasUsed == b.GasUsed && a.Reverted == b.Reverted && a.Err == b.Err && bytes.Equal(a.Output, b.Output)
}

func sameAddress(a, b *common.Address) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
