package tracing

import (
	"github.com/clydemeng/evmrt/core/vm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Collector builds a Trace from observer callbacks. It never influences
// execution.
type Collector struct {
	trace *Trace
}

var _ vm.Observer = (*Collector)(nil)

// NewCollector returns a collector with an empty trace.
func NewCollector() *Collector {
	return &Collector{trace: new(Trace)}
}

// Trace returns the events collected so far. The collector keeps appending
// to the returned value.
func (c *Collector) Trace() *Trace { return c.trace }

// Take returns the collected trace and leaves the collector empty.
func (c *Collector) Take() *Trace {
	t := c.trace
	c.trace = new(Trace)
	return t
}

func (c *Collector) push(ev Event) {
	c.trace.Events = append(c.trace.Events, ev)
}

func (c *Collector) InitializeInterp(vm.Interp, vm.Context) {}

func (c *Collector) Step(interp vm.Interp, _ vm.Context) {
	ev := &StepEvent{
		PC:       interp.PC,
		Op:       interp.Op,
		Gas:      interp.Gas,
		Cost:     interp.Cost,
		Depth:    interp.Depth,
		Contract: interp.Contract,
	}
	if n := len(interp.Stack); n > 0 {
		top := interp.Stack[n-1]
		ev.StackTop = &top
	}
	c.push(ev)
}

func (c *Collector) StepEnd(vm.Interp, vm.Context) {}

func (c *Collector) Log(ctx vm.Context, log types.Log) {
	c.push(&LogEvent{Log: log, Depth: ctx.Depth()})
}

func (c *Collector) Call(_ vm.Context, inputs vm.CallInputs) {
	c.push(&CallEvent{Inputs: inputs})
}

func (c *Collector) CallEnd(_ vm.Context, inputs vm.CallInputs, result vm.InterpreterResult) {
	c.push(&CallEndEvent{Inputs: inputs, Result: result})
}

func (c *Collector) Create(_ vm.Context, inputs vm.CreateInputs) {
	c.push(&CreateEvent{Inputs: inputs})
}

func (c *Collector) CreateEnd(_ vm.Context, inputs vm.CreateInputs, result vm.InterpreterResult, address *common.Address) {
	c.push(&CreateEndEvent{Inputs: inputs, Result: result, Address: address})
}

func (c *Collector) SelfDestruct(ctx vm.Context, contract, target common.Address, value uint256.Int) {
	c.push(&SelfDestructEvent{Contract: contract, Target: target, Value: value, Depth: ctx.Depth()})
}
