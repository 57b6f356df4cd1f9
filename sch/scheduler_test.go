package sch

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSchedulerRunsEveryScheduledTask(t *testing.T) {
	var mu sync.Mutex
	var got []string

	s := NewScheduler(func(pid, tid string) {
		mu.Lock()
		got = append(got, pid+":"+tid)
		mu.Unlock()
	}, nil, 0, nil)

	s.Schedule("p1", "t1")
	s.Schedule("p1", "t2")
	s.Schedule("p2", "t1")

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	s.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Fatalf("got %d task runs, want 3: %v", len(got), got)
	}
}

func TestSchedulerStopDrainsQueuedSignalsFirst(t *testing.T) {
	var mu sync.Mutex
	count := 0

	s := NewScheduler(func(pid, tid string) {
		mu.Lock()
		count++
		mu.Unlock()
	}, nil, 0, nil)

	for i := 0; i < 5; i++ {
		s.Schedule("p", "t")
	}
	s.Stop()
	s.Run(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if count != 5 {
		t.Fatalf("count = %d, want 5", count)
	}
}

func TestSchedulerContextCancelStopsRun(t *testing.T) {
	s := NewScheduler(func(pid, tid string) {}, nil, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after ctx cancel")
	}
}

func TestSchedulerFiresTicksOnInterval(t *testing.T) {
	ticks := make(chan struct{}, 8)
	s := NewScheduler(func(pid, tid string) {}, func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	}, 10*time.Millisecond, nil)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("no tick fired")
	}
	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("second tick did not fire")
	}

	s.Stop()
	<-done
}

func TestSchedulerQueueDepthReflectsPending(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	s := NewScheduler(func(pid, tid string) {
		once.Do(func() { close(started) })
		<-block
	}, nil, 0, nil)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	s.Schedule("p", "t1")
	<-started
	s.Schedule("p", "t2")
	s.Schedule("p", "t3")

	// t1's runner is still blocked, but the loop hands every signal to its
	// own runner goroutine, so t2 and t3 are popped regardless; give the
	// loop a moment to do so before asserting depth.
	time.Sleep(20 * time.Millisecond)
	if depth := s.QueueDepth(); depth != 0 {
		t.Fatalf("QueueDepth = %d, want 0", depth)
	}

	close(block)
	s.Stop()
	<-done
}
