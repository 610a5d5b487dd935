package engine

// coroutine runs a function on its own goroutine in strict alternation with
// the caller: exactly one side runs at any time. Resume hands control to the
// function until it calls yield or returns; yield hands control back.
//
// The function is only ever resumed from the engine's frame loop, so the host
// and the engine never run concurrently with the suspended script.
type coroutine struct {
	resume chan struct{}
	yield  chan struct{}
	done   bool
}

func startCoroutine(fn func()) *coroutine {
	co := &coroutine{
		resume: make(chan struct{}),
		yield:  make(chan struct{}),
	}
	go func() {
		<-co.resume
		defer func() {
			co.done = true
			co.yield <- struct{}{}
		}()
		fn()
	}()
	return co
}

// Resume runs the function until its next yield. Returns false once the
// function has returned.
func (co *coroutine) Resume() bool {
	if co.done {
		return false
	}
	co.resume <- struct{}{}
	<-co.yield
	return !co.done
}

// Yield suspends the function until the next Resume. Must only be called
// from inside the coroutine.
func (co *coroutine) Yield() {
	co.yield <- struct{}{}
	<-co.resume
}

// unwind signals recovered at the coroutine boundary.
type (
	abortSignal   struct{}
	finishSignal  struct{}
	requireSignal struct{}
)

func (abortSignal) Unwind()   {}
func (finishSignal) Unwind()  {}
func (requireSignal) Unwind() {}
