// Package tracing records what happens during a transaction as an ordered
// list of events.
package tracing

import (
	"github.com/clydemeng/evmrt/core/vm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
)

// Event is a single entry in a trace.
type Event interface {
	// Kind names the event type.
	Kind() string
	// Level returns the call depth the event happened at.
	Level() int
}

// StepEvent is recorded before an opcode executes.
type StepEvent struct {
	PC       uint64
	Op       gethvm.OpCode
	Gas      uint64
	Cost     uint64
	Depth    int
	Contract common.Address
	StackTop *uint256.Int // nil on an empty stack
}

func (e *StepEvent) Kind() string { return "step" }
func (e *StepEvent) Level() int { return e.Depth }

// CallEvent is recorded when a message call frame starts.
type CallEvent struct {
	Inputs vm.CallInputs
}

func (e *CallEvent) Kind() string { return "call" }
func (e *CallEvent) Level() int { return e.Inputs.Depth }

// CallEndEvent is recorded when a message call frame returns.
type CallEndEvent struct {
	Inputs vm.CallInputs
	Result vm.InterpreterResult
}

func (e *CallEndEvent) Kind() string { return "call_end" }
func (e *CallEndEvent) Level() int { return e.Inputs.Depth }

// CreateEvent is recorded when a creation frame starts.
type CreateEvent struct {
	Inputs vm.CreateInputs
}

func (e *CreateEvent) Kind() string { return "create" }
func (e *CreateEvent) Level() int { return e.Inputs.Depth }

// CreateEndEvent is recorded when a creation frame returns. Address is nil
// if the creation failed.
type CreateEndEvent struct {
	Inputs  vm.CreateInputs
	Result  vm.InterpreterResult
	Address *common.Address
}

func (e *CreateEndEvent) Kind() string { return "create_end" }
func (e *CreateEndEvent) Level() int { return e.Inputs.Depth }

// LogEvent is recorded for every emitted log, including logs of frames that
// later revert.
type LogEvent struct {
	Log   types.Log
	Depth int
}

func (e *LogEvent) Kind() string { return "log" }
func (e *LogEvent) Level() int { return e.Depth }

// SelfDestructEvent is recorded when a contract self-destructs.
type SelfDestructEvent struct {
	Contract common.Address
	Target   common.Address
	Value    uint256.Int
	Depth    int
}

func (e *SelfDestructEvent) Kind() string { return "selfdestruct" }
func (e *SelfDestructEvent) Level() int { return e.Depth }

// Trace is the ordered event list of one transaction.
type Trace struct {
	Events []Event
}

// Len returns the number of recorded events.
func (t *Trace) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Events)
}

// Steps returns the step events in execution order.
func (t *Trace) Steps() []*StepEvent {
	return filter[*StepEvent](t)
}

// Logs returns the log events in emission order.
func (t *Trace) Logs() []*LogEvent {
	return filter[*LogEvent](t)
}

func filter[E Event](t *Trace) []E {
	if t == nil {
		return nil
	}
	var out []E
	for _, ev := range t.Events {
		if e, ok := ev.(E); ok {
			out = append(out, e)
		}
	}
	return out
}
