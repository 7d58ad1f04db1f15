// Package inspector combines the built-in trace collector with an optional
// caller-supplied inspector into the single hook handle an interpreter
// accepts.
package inspector

import (
	"github.com/clydemeng/evmrt/core/vm"
	"github.com/clydemeng/evmrt/tracing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Kind identifies which hooks a Compositor carries.
type Kind int

const (
	Absent        Kind = iota // no hooks
	TracerOnly                // collector only
	InspectorOnly             // external inspector only
	Both                      // collector, then external inspector
)

func (k Kind) String() string {
	switch k {
	case Absent:
		return "absent"
	case TracerOnly:
		return "tracer"
	case InspectorOnly:
		return "inspector"
	case Both:
		return "both"
	}
	return "unknown"
}

// Compositor owns the trace collector of one execution and borrows the
// caller's inspector, if any. It is not safe for concurrent use.
type Compositor struct {
	kind      Kind
	collector *tracing.Collector
	external  vm.Inspector
}

// New selects the variant from whether a trace is wanted and whether an
// external inspector is supplied.
func New(withTrace bool, external vm.Inspector) *Compositor {
	c := &Compositor{external: external}
	if withTrace {
		c.collector = tracing.NewCollector()
	}
	switch {
	case withTrace && external != nil:
		c.kind = Both
	case withTrace:
		c.kind = TracerOnly
	case external != nil:
		c.kind = InspectorOnly
	default:
		c.kind = Absent
	}
	return c
}

func (c *Compositor) Kind() Kind { return c.kind }

// Inspector returns the hook handle to pass to an interpreter, or nil when
// the compositor is Absent.
func (c *Compositor) Inspector() vm.Inspector {
	switch c.kind {
	case TracerOnly:
		return &observerAdapter{obs: c.collector}
	case InspectorOnly:
		return c.external
	case Both:
		return &dual{obs: c.collector, insp: c.external}
	}
	return nil
}

// IntoCollector releases the collector, dropping the borrowed inspector. The
// compositor is Absent afterwards. Returns nil if there was no collector.
func (c *Compositor) IntoCollector() *tracing.Collector {
	col := c.collector
	c.collector, c.external, c.kind = nil, nil, Absent
	return col
}

// ClearTrace hands out the trace collected so far and leaves an empty one in
// its place. Returns nil if there is no collector.
func (c *Compositor) ClearTrace() *tracing.Trace {
	if c.collector == nil {
		return nil
	}
	return c.collector.Take()
}

func copyLog(l *types.Log) types.Log {
	cpy := *l
	cpy.Topics = append([]common.Hash(nil), l.Topics...)
	cpy.Data = common.CopyBytes(l.Data)
	return cpy
}

// observerAdapter presents an Observer as an Inspector that never alters
// execution.
type observerAdapter struct {
	obs vm.Observer
}

func (a *observerAdapter) InitializeInterp(interp *vm.Interp, ctx vm.Context) {
	a.obs.InitializeInterp(interp.Clone(), ctx)
}

func (a *observerAdapter) Step(interp *vm.Interp, ctx vm.Context) {
	a.obs.Step(interp.Clone(), ctx)
}

func (a *observerAdapter) StepEnd(interp *vm.Interp, ctx vm.Context) {
	a.obs.StepEnd(interp.Clone(), ctx)
}

func (a *observerAdapter) Log(ctx vm.Context, log *types.Log) {
	a.obs.Log(ctx, copyLog(log))
}

func (a *observerAdapter) Call(ctx vm.Context, inputs *vm.CallInputs) *vm.CallOutcome {
	a.obs.Call(ctx, inputs.Clone())
	return nil
}

func (a *observerAdapter) CallEnd(ctx vm.Context, inputs *vm.CallInputs, result vm.InterpreterResult) vm.InterpreterResult {
	a.obs.CallEnd(ctx, inputs.Clone(), result.Clone())
	return result
}

func (a *observerAdapter) Create(ctx vm.Context, inputs *vm.CreateInputs) *vm.CreateOutcome {
	a.obs.Create(ctx, inputs.Clone())
	return nil
}

func (a *observerAdapter) CreateEnd(ctx vm.Context, inputs *vm.CreateInputs, result vm.InterpreterResult, address *common.Address) (vm.InterpreterResult, *common.Address) {
	a.obs.CreateEnd(ctx, inputs.Clone(), result.Clone(), copyAddress(address))
	return result, address
}

func (a *observerAdapter) SelfDestruct(ctx vm.Context, contract, target common.Address, value *uint256.Int) {
	a.obs.SelfDestruct(ctx, contract, target, *value)
}

func copyAddress(addr *common.Address) *common.Address {
	if addr == nil {
		return nil
	}
	cpy := *addr
	return &cpy
}

// dual runs the observer and then the inspector for every callback. Only the
// inspector's return values are used.
type dual struct {
	obs  vm.Observer
	insp vm.Inspector
}

func (d *dual) InitializeInterp(interp *vm.Interp, ctx vm.Context) {
	d.obs.InitializeInterp(interp.Clone(), ctx)
	d.insp.InitializeInterp(interp, ctx)
}

func (d *dual) Step(interp *vm.Interp, ctx vm.Context) {
	d.obs.Step(interp.Clone(), ctx)
	d.insp.Step(interp, ctx)
}

func (d *dual) StepEnd(interp *vm.Interp, ctx vm.Context) {
	d.obs.StepEnd(interp.Clone(), ctx)
	d.insp.StepEnd(interp, ctx)
}

func (d *dual) Log(ctx vm.Context, log *types.Log) {
	d.obs.Log(ctx, copyLog(log))
	d.insp.Log(ctx, log)
}

func (d *dual) Call(ctx vm.Context, inputs *vm.CallInputs) *vm.CallOutcome {
	d.obs.Call(ctx, inputs.Clone())
	return d.insp.Call(ctx, inputs)
}

func (d *dual) CallEnd(ctx vm.Context, inputs *vm.CallInputs, result vm.InterpreterResult) vm.InterpreterResult {
	d.obs.CallEnd(ctx, inputs.Clone(), result.Clone())
	return d.insp.CallEnd(ctx, inputs, result)
}

func (d *dual) Create(ctx vm.Context, inputs *vm.CreateInputs) *vm.CreateOutcome {
	d.obs.Create(ctx, inputs.Clone())
	return d.insp.Create(ctx, inputs)
}

func (d *dual) CreateEnd(ctx vm.Context, inputs *vm.CreateInputs, result vm.InterpreterResult, address *common.Address) (vm.InterpreterResult, *common.Address) {
	d.obs.CreateEnd(ctx, inputs.Clone(), result.Clone(), copyAddress(address))
	return d.insp.CreateEnd(ctx, inputs, result, address)
}

func (d *dual) SelfDestruct(ctx vm.Context, contract, target common.Address, value *uint256.Int) {
	d.obs.SelfDestruct(ctx, contract, target, *value)
	d.insp.SelfDestruct(ctx, contract, target, value)
}
