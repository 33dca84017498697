// Package parallel provides the fixed worker pool used for ingestion.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// DefaultReserve is the number of hardware threads left free for the host
// application's render and UI threads.
const DefaultReserve = 2

// DefaultWorkers returns GOMAXPROCS minus reserve, never less than 1.
func DefaultWorkers(reserve int) int {
	if reserve < 0 {
		reserve = 0
	}
	n := runtime.GOMAXPROCS(0) - reserve
	if n < 1 {
		n = 1
	}
	return n
}

// WorkerPool is a fixed set of goroutines, each with its own queue.
//
// Work spawned for index i lands on worker uint(i) % Workers(). Idle workers steal
// from the other queues, so a slow item never stalls the whole pool.
// JoinAll blocks until every item spawned so far has returned.
//
// A panic inside a work item is not recovered and terminates the process.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int

	// workQueues holds per-worker work queues.
	workQueues []chan func()

	// done signals workers to stop.
	done chan struct{}

	// wg waits for the worker goroutines on Close.
	wg sync.WaitGroup

	// inflight counts spawned items that have not returned yet.
	inflight sync.WaitGroup

	running atomic.Bool
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers is 0 or negative, DefaultWorkers(DefaultReserve) is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = DefaultWorkers(DefaultReserve)
	}

	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}

	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

// worker is the main loop for each worker goroutine.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	myQueue := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drainQueue(myQueue)
			return
		case work := <-myQueue:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(myQueue)
				return
			case work := <-myQueue:
				work()
			}
		}
	}
}

// drainQueue executes all remaining work in a queue.
func (p *WorkerPool) drainQueue(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

// steal takes one item from another worker's queue, or returns nil.
func (p *WorkerPool) steal(myID int) func() {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// Spawn queues fn on the worker owning index. It reports false if the pool
// is closed, in which case fn is not run.
func (p *WorkerPool) Spawn(index int, fn func()) bool {
	if fn == nil || !p.running.Load() {
		return false
	}
	owner := uint(index) % uint(p.workers)

	p.inflight.Add(1)
	wrapped := func() {
		defer p.inflight.Done()
		fn()
	}

	select {
	case p.workQueues[owner] <- wrapped:
		return true
	case <-p.done:
		p.inflight.Done()
		return false
	}
}

// JoinAll blocks until every item spawned so far has returned.
// It is the only synchronization barrier the pool offers.
func (p *WorkerPool) JoinAll() {
	p.inflight.Wait()
}

// ExecuteAll spawns each item on its own index and waits for all of them.
func (p *WorkerPool) ExecuteAll(work []func()) {
	for i, fn := range work {
		p.Spawn(i, fn)
	}
	p.JoinAll()
}

// Close stops accepting work, runs whatever is already queued, and stops the
// workers. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool still accepts work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// QueuedWork approximates the number of queued items.
func (p *WorkerPool) QueuedWork() int {
	total := 0
	for _, q := range p.workQueues {
		total += len(q)
	}
	return total
}
