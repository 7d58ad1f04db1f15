// Package runtime provides the dedicated execution context that every
// transaction and block-building unit of work is dispatched onto.
package runtime

import (
	"fmt"
	goruntime "runtime"

	"github.com/clydemeng/evmrt/common/future"
	"github.com/ethereum/go-ethereum/log"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
)

// ErrShutdown is returned by Spawn once the runtime has been closed.
var ErrShutdown = errors.New("execution runtime shut down")

// Runtime is a bounded worker pool. Units of work submitted through Spawn run
// to completion on one worker; callers block until their unit finishes.
type Runtime struct {
	pool *ants.Pool
}

// New creates a runtime with the given number of workers. A non-positive
// size selects one worker per CPU.
func New(workers int) (*Runtime, error) {
	if workers <= 0 {
		workers = goruntime.NumCPU()
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p interface{}) {
		// Spawn recovers task panics itself, this only fires for bugs in
		// the dispatch wrapper.
		log.Error("Execution runtime worker panicked", "panic", p)
	}))
	if err != nil {
		return nil, errors.Wrap(err, "create worker pool")
	}
	return &Runtime{pool: pool}, nil
}

// Workers reports the configured pool size.
func (rt *Runtime) Workers() int { return rt.pool.Cap() }

// Close stops accepting new units. Units already running finish normally.
func (rt *Runtime) Close() {
	rt.pool.Release()
}

type panicked struct {
	value interface{}
	stack []byte
}

func (p *panicked) Error() string {
	return fmt.Sprintf("panic in execution runtime: %v\n%s", p.value, p.stack)
}

// Spawn runs fn on the runtime and waits for its outcome. A panic inside fn
// is re-raised on the calling goroutine.
func Spawn[T any](rt *Runtime, fn func() (T, error)) (T, error) {
	promise, done := future.Create[T]()
	err := rt.pool.Submit(func() {
		defer func() {
			if p := recover(); p != nil {
				buf := make([]byte, 64<<10)
				buf = buf[:goruntime.Stack(buf, false)]
				promise.Reject(&panicked{value: p, stack: buf})
			}
		}()
		v, err := fn()
		if err != nil {
			promise.Reject(err)
			return
		}
		promise.Resolve(v)
	})
	if err != nil {
		var zero T
		if errors.Is(err, ants.ErrPoolClosed) {
			return zero, ErrShutdown
		}
		return zero, errors.Wrap(err, "submit unit of work")
	}
	v, err := done.Await().Get()
	if p, ok := err.(*panicked); ok {
		panic(p.Error())
	}
	return v, err
}
