package synccontext

import (
	"context"
	"sync"
)

// serialExecutor is a single goroutine draining a channel of closures:
// message-passing to a dedicated task rather than a mutex. It backs both
// the writer domain and the push/pull lane — the two differ only in what
// kind of work gets submitted to them.
type serialExecutor struct {
	tasks chan func()
	done  chan struct{}
}

func newSerialExecutor() *serialExecutor {
	e := &serialExecutor{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *serialExecutor) run() {
	defer close(e.done)
	for fn := range e.tasks {
		fn()
	}
}

// submit enqueues fn and blocks until it has run, returning whatever error
// fn produced or ctx's error if ctx is cancelled first. Submitting after
// close panics: never write to a closed channel.
func (e *serialExecutor) submit(ctx context.Context, fn func(ctx context.Context) error) error {
	result := make(chan error, 1)
	select {
	case e.tasks <- func() { result <- fn(ctx) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post enqueues fn without waiting for it to run, for callers whose public
// entry point must return immediately.
func (e *serialExecutor) post(fn func()) {
	e.tasks <- fn
}

// close stops accepting new work and waits for the goroutine to drain what
// is already queued.
func (e *serialExecutor) close() {
	close(e.tasks)
	<-e.done
}

// callbackPool is a small fixed-size worker pool that every user completion
// is dispatched through, so the core never invokes a callback on the writer
// domain or the push/pull lane. A bounded worker pool gating fan-out,
// adapted here to bound callback dispatch instead of inbound requests.
type callbackPool struct {
	jobs chan func()
	wg   sync.WaitGroup
}

func newCallbackPool(workers int) *callbackPool {
	if workers <= 0 {
		workers = 4
	}
	p := &callbackPool{jobs: make(chan func(), 256)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *callbackPool) worker() {
	defer p.wg.Done()
	for fn := range p.jobs {
		fn()
	}
}

func (p *callbackPool) submit(fn func()) {
	p.jobs <- fn
}

func (p *callbackPool) close() {
	close(p.jobs)
	p.wg.Wait()
}
