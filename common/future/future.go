package future

// Promise is the producing end of a single Result. Exactly one of Fulfill,
// Resolve or Reject must be called, exactly once.
type Promise[T any] struct {
	ch chan<- Result[T]
}

// Future is the consuming end of a Promise.
type Future[T any] struct {
	ch <-chan Result[T]
}

// Create returns a connected promise and future. Fulfilling the promise never
// blocks.
func Create[T any]() (Promise[T], Future[T]) {
	ch := make(chan Result[T], 1)
	return Promise[T]{ch: ch}, Future[T]{ch: ch}
}

func (p Promise[T]) Fulfill(r Result[T]) {
	p.ch <- r
	close(p.ch)
}

func (p Promise[T]) Resolve(value T) { p.Fulfill(Ok(value)) }

func (p Promise[T]) Reject(err error) { p.Fulfill(Err[T](err)) }

// Await blocks until the promise is fulfilled.
func (f Future[T]) Await() Result[T] {
	return <-f.ch
}
