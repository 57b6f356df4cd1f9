// Package sch implements the single-consumer event loop and the Runtime
// that owns it: a Scheduler drains an unbounded FIFO of task signals onto
// asynchronous runners and fires a periodic tick, and a Runtime wires the
// Scheduler to the process cache, store, emitter and act-package registry
// to form the addressable surface (Start/DoAction) the rest of the system
// drives.
package sch

import (
	"context"
	"sync"
	"time"

	"github.com/acts-go/acts/metrics"
)

// DefaultTickInterval is the tick emitter's period when none is
// configured.
const DefaultTickInterval = 15 * time.Second

// Scheduler is the runtime's event loop. Its only consumer pops one Signal
// at a time; a Task signal is handed to onTask on its own goroutine, an
// asynchronous runner, so a slow task never stalls the loop, while a
// Terminal signal ends Run once every in-flight runner has returned. A
// second goroutine fires onTick on tickInterval.
type Scheduler struct {
	queue        *signalQueue
	onTask       func(pid, tid string)
	onTick       func()
	tickInterval time.Duration
	metrics      *metrics.Metrics

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewScheduler returns a Scheduler. onTick may be nil to disable the tick
// emitter (e.g. in tests that drive timeouts manually).
func NewScheduler(onTask func(pid, tid string), onTick func(), tickInterval time.Duration, m *metrics.Metrics) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	return &Scheduler{
		queue:        newSignalQueue(),
		onTask:       onTask,
		onTick:       onTick,
		tickInterval: tickInterval,
		metrics:      m,
	}
}

// Schedule enqueues (pid, tid) for execution. It never runs the task
// synchronously.
func (s *Scheduler) Schedule(pid, tid string) {
	s.queue.push(Signal{Pid: pid, Tid: tid})
	if s.metrics != nil {
		s.metrics.UpdateQueueDepth(s.queue.len())
	}
}

// Stop enqueues the Terminal sentinel. Signals already ahead of it in the
// FIFO are still drained before Run returns.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.queue.push(Signal{Terminal: true})
	})
}

// QueueDepth reports the number of signals currently pending.
func (s *Scheduler) QueueDepth() int { return s.queue.len() }

// Run drives the event loop until it pops Terminal or ctx is cancelled,
// then waits for every spawned runner to finish before returning.
func (s *Scheduler) Run(ctx context.Context) {
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-watchDone:
		}
	}()
	defer close(watchDone)

	tickDone := make(chan struct{})
	go s.runTicks(tickDone)
	defer close(tickDone)

	for {
		sig := s.queue.pop()
		if s.metrics != nil {
			s.metrics.UpdateQueueDepth(s.queue.len())
		}
		if sig.Terminal {
			break
		}
		s.wg.Add(1)
		go func(sig Signal) {
			defer s.wg.Done()
			s.onTask(sig.Pid, sig.Tid)
		}(sig)
	}
	s.wg.Wait()
}

func (s *Scheduler) runTicks(done <-chan struct{}) {
	if s.onTick == nil {
		return
	}
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.onTick()
		case <-done:
			return
		}
	}
}
