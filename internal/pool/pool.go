package pool

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Pool executes tasks in order of their deadlines, using a fixed number of goroutines.
// Tasks are added to the pool with a function that returns the next deadline.
// The pool will execute the tasks in the order of their deadlines, ensuring that
// tasks with earlier deadlines are executed before those with later deadlines.
// If a task is added while the pool is waiting for the next task, it will wake up
// the waiting goroutine to process the new task immediately.
//
// A task runs on one worker at a time: it is only re-queued after its function
// returns. Returning the zero time removes the task from the pool.
type Pool struct {
	mu     sync.Mutex
	queue  []*task
	reg    map[string]*task
	wait   chan struct{}
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

type task struct {
	name     string
	fn       func(context.Context) time.Time
	deadline time.Time
	rerun    bool
}

func New(workers int) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	pool := &Pool{reg: make(map[string]*task), ctx: ctx, cancel: cancel}

	for range workers {
		go pool.work()
	}

	return pool
}

// Add queues a task to run now.
func (p *Pool) Add(name string, fn func(context.Context) time.Time) {
	p.Schedule(name, time.Now(), fn)
}

// Schedule queues a task to run at the given time.
func (p *Pool) Schedule(name string, at time.Time, fn func(context.Context) time.Time) {
	p.enqueue(&task{name: name, fn: fn, deadline: at})
}

// Close stops the workers and drops every queued task. It does not wait for
// running tasks: their context is cancelled and their next deadline is
// discarded. Close returns the names of the queued tasks that were dropped.
func (p *Pool) Close() []string {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	dropped := make([]string, 0, len(p.queue))
	for _, t := range p.queue {
		dropped = append(dropped, t.name)
		delete(p.reg, t.name)
	}
	p.queue = nil
	p.sortAndWake()
	p.mu.Unlock()

	p.cancel()
	return dropped
}

// work is the main loop for each worker goroutine.
func (p *Pool) work() {
	for {
		t := p.dequeue()
		if t == nil {
			return
		}
		p.requeue(t, t.fn(p.ctx))
	}
}

// Trigger runs the named task NOW, if it is in the queue, regardless of the
// previous deadline, by pulling it into the front of the queue. If the named
// task is not queued, it's running. In that case, we'll have it override its
// next deadline to NOW, causing an immediate re-run after the current run.
// Subsequent runs will use the deadline returned by the task's `fn`.
func (p *Pool) Trigger(n string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("pool closed, cannot trigger %s", n)
	}

	if i := slices.IndexFunc(p.queue, func(t *task) bool { return t.name == n }); i != -1 {
		p.queue[i].deadline = time.Now()
		p.sortAndWake()
		return nil
	}
	// if it's not in p.queue, it must be running at the moment
	if t, ok := p.reg[n]; ok {
		t.rerun = true
		return nil
	}

	return fmt.Errorf("no task with name %s", n)
}

// sortAndWake is used in multiple places, but always needs to be run
// within a p.mu lock!
func (p *Pool) sortAndWake() {
	// Maintain the tasks in deadline order.
	slices.SortFunc(p.queue, func(a, b *task) int {
		return a.deadline.Compare(b.deadline)
	})

	// Wake up any waiting goroutine.
	if p.wait != nil {
		close(p.wait)
		p.wait = nil
	}
}

func (p *Pool) enqueue(t *task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.push(t)
}

// requeue records the deadline returned by a finished run of t.
func (p *Pool) requeue(t *task, next time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t.deadline = next
	if t.rerun && !next.IsZero() {
		t.deadline = time.Now()
	}
	t.rerun = false
	p.push(t)
}

// push must be run within a p.mu lock.
func (p *Pool) push(t *task) {
	if t.deadline.IsZero() || p.closed {
		// Task requested removal from the pool, or nobody will run it.
		delete(p.reg, t.name)
		return
	}

	p.reg[t.name] = t
	p.queue = append(p.queue, t)
	p.sortAndWake()
}

// dequeue blocks until a task is due. It returns nil once the pool is closed.
func (p *Pool) dequeue() *task {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.closed {
			return nil
		}

		var t *task
		if len(p.queue) == 0 {
			t = &task{name: "dummy", deadline: time.Now().Add(time.Hour * 24 * 365)} // Default to a far future deadline
		} else {
			t = p.queue[0]
		}

		if t.deadline.After(time.Now()) {
			// Task is not ready yet, wait for it to be executed or another (potentially earlier) task to arrive.

			if p.wait == nil {
				p.wait = make(chan struct{})
			}

			wait := p.wait

			p.mu.Unlock()

			timer := time.NewTimer(time.Until(t.deadline))
			select {
			case <-timer.C:
			case <-wait:
			}
			timer.Stop()

			p.mu.Lock()
			continue
		}

		// The first queued task is ready to be executed, remove it from the queue.
		break
	}

	var t *task
	t, p.queue = p.queue[0], p.queue[1:]
	return t
}
