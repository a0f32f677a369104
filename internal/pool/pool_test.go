package pool

import (
	"context"
	"slices"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool(t *testing.T) {
	p := New(2)
	defer p.Close()

	// Add a task that returns a deadline in the future.
	p.Add("a", func(context.Context) time.Time {
		return time.Now().Add(100 * time.Millisecond)
	})

	// Add a task that returns a deadline in the past.
	p.Add("b", func(context.Context) time.Time {
		return time.Now().Add(-100 * time.Millisecond)
	})

	// Add a task that returns a deadline in the future.
	p.Add("c", func(context.Context) time.Time {
		return time.Now().Add(200 * time.Millisecond)
	})

	// Wait for a short period to allow tasks to be processed.
	time.Sleep(300 * time.Millisecond)

	// The pool should have processed all tasks without deadlock.
	// If it had gotten stuck, we'd never reach this line.
	t.Log("All tasks processed successfully")
}

type run struct {
	left     atomic.Int32
	ran      atomic.Int32
	sleep    time.Duration
	deadline time.Duration
}

func newRun(left int32, sleep, deadline time.Duration) *run {
	r := &run{sleep: sleep, deadline: deadline}
	r.left.Store(left)
	return r
}

func (t *run) Execute(context.Context) time.Time {
	if t.left.Load() > 0 {
		time.Sleep(t.sleep)
		t.left.Add(-1)
		t.ran.Add(1)
		return time.Now().Add(t.deadline)
	}

	var zero time.Time
	return zero // dequeue task
}

func TestTrigger(t *testing.T) {
	t.Run("trigger pulls queued task up from", func(t *testing.T) {
		p := New(2)
		defer p.Close()

		rx := newRun(3, 0, 200*time.Millisecond)

		p.Add("t", rx.Execute) // will run once (run #1), and be queued for 200 ms
		time.Sleep(10 * time.Millisecond)

		_ = p.Trigger("t") // pulled in front, run #2
		time.Sleep(50 * time.Millisecond)
		_ = p.Trigger("t")                 // pulled in front, run #3
		time.Sleep(300 * time.Millisecond) // no other runs, third run dequeued

		if exp, act := int32(3), rx.ran.Load(); exp != act {
			t.Errorf("expected counter of %d, got %d", exp, act)
		}
	})

	t.Run("trigger reruns executing task right away", func(t *testing.T) {
		p := New(2)
		defer p.Close()

		// if it wasn't triggered, we'd not see a second run: the next deadline is 1s
		rx := newRun(3, 100*time.Millisecond, time.Second)

		p.Add("t", rx.Execute) // will run once (run #1), and be queued for 1s
		time.Sleep(50 * time.Millisecond)
		_ = p.Trigger("t") // re-run after it's done, run #2

		time.Sleep(300 * time.Millisecond)

		if exp, act := int32(2), rx.ran.Load(); exp != act {
			t.Errorf("expected counter of %d, got %d", exp, act)
		}
	})

	t.Run("trigger unknown task", func(t *testing.T) {
		p := New(1)
		defer p.Close()

		if err := p.Trigger("nope"); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestSchedule(t *testing.T) {
	p := New(1)
	defer p.Close()

	var ran atomic.Int32
	p.Schedule("later", time.Now().Add(100*time.Millisecond), func(context.Context) time.Time {
		ran.Add(1)
		return time.Time{}
	})

	time.Sleep(30 * time.Millisecond)
	if ran.Load() != 0 {
		t.Fatal("expected task not to run before its deadline")
	}

	time.Sleep(150 * time.Millisecond)
	if exp, act := int32(1), ran.Load(); exp != act {
		t.Fatalf("expected counter of %d, got %d", exp, act)
	}
}

func TestClose(t *testing.T) {
	t.Run("drops queued tasks", func(t *testing.T) {
		p := New(1)

		var ran atomic.Int32
		p.Schedule("a", time.Now().Add(time.Hour), func(context.Context) time.Time {
			ran.Add(1)
			return time.Now()
		})
		p.Schedule("b", time.Now().Add(time.Hour), func(context.Context) time.Time {
			ran.Add(1)
			return time.Now()
		})

		dropped := p.Close()
		slices.Sort(dropped)
		if !slices.Equal(dropped, []string{"a", "b"}) {
			t.Fatalf("expected [a b] dropped, got %v", dropped)
		}

		if again := p.Close(); again != nil {
			t.Fatalf("expected second close to be a no-op, got %v", again)
		}

		if err := p.Trigger("a"); err == nil {
			t.Fatal("expected trigger on closed pool to fail")
		}
	})

	t.Run("does not wait for running task and discards its next deadline", func(t *testing.T) {
		p := New(1)

		started := make(chan struct{})
		var ran atomic.Int32
		p.Add("slow", func(ctx context.Context) time.Time {
			if ran.Add(1) == 1 {
				close(started)
			}
			<-ctx.Done()
			return time.Now()
		})

		<-started

		done := make(chan struct{})
		go func() {
			p.Close()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("expected close to return without waiting")
		}

		time.Sleep(50 * time.Millisecond)
		if exp, act := int32(1), ran.Load(); exp != act {
			t.Fatalf("expected counter of %d, got %d", exp, act)
		}
	})
}
