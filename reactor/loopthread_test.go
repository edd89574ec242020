package reactor

import "testing"

func TestLoopThreadStartLoopReturnsRunningLoop(t *testing.T) {
	lt := NewLoopThread()
	loop := lt.StartLoop()
	if loop == nil {
		t.Fatalf("StartLoop returned nil")
	}

	done := make(chan struct{})
	loop.RunInLoop(func() { close(done) })
	<-done

	lt.Stop()
}

func TestLoopThreadPoolRoundRobinsAcrossLoops(t *testing.T) {
	base := newTestLoop(t)
	doneBase := runLoopInBackground(t, base)

	pool := NewLoopThreadPool(base)
	pool.SetThreadNum(3)

	var loops []*EventLoop
	assigned := make(chan struct{})
	base.RunInLoop(func() {
		pool.Start()
		for i := 0; i < 6; i++ {
			loops = append(loops, pool.GetNextLoop())
		}
		close(assigned)
	})
	<-assigned

	if len(loops) != 6 {
		t.Fatalf("len(loops) = %d, want 6", len(loops))
	}
	for i := 0; i < 3; i++ {
		if loops[i] != loops[i+3] {
			t.Fatalf("round robin did not repeat after 3 loops at index %d", i)
		}
	}
	if loops[0] == loops[1] || loops[1] == loops[2] {
		t.Fatalf("round robin assigned the same loop to consecutive calls")
	}

	pool.Stop()
	base.Quit()
	<-doneBase
	base.Close()
}

func TestLoopThreadPoolFallsBackToBaseLoopWithoutThreads(t *testing.T) {
	base := newTestLoop(t)
	doneBase := runLoopInBackground(t, base)

	pool := NewLoopThreadPool(base)

	var got *EventLoop
	assigned := make(chan struct{})
	base.RunInLoop(func() {
		pool.Start()
		got = pool.GetNextLoop()
		close(assigned)
	})
	<-assigned

	if got != base {
		t.Fatalf("GetNextLoop() with no I/O threads should return the base loop")
	}

	base.Quit()
	<-doneBase
	base.Close()
}
