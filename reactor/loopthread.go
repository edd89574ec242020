package reactor

// LoopThread owns one goroutine and the EventLoop that runs on it for the
// goroutine's entire lifetime. Where jmuduo's EventLoopThread rendezvous
// on a mutex and condition variable to hand the freshly constructed loop
// back to the caller, LoopThread uses a single-element buffered channel —
// the idiomatic Go substitute for a one-shot producer/consumer handoff.
type LoopThread struct {
	loopCh chan *EventLoop
	doneCh chan struct{}
	loop   *EventLoop
}

// NewLoopThread constructs an unstarted LoopThread.
func NewLoopThread() *LoopThread {
	return &LoopThread{loopCh: make(chan *EventLoop, 1), doneCh: make(chan struct{})}
}

// StartLoop spawns the goroutine that will own the new EventLoop and
// blocks until that loop exists, returning it.
func (lt *LoopThread) StartLoop() *EventLoop {
	go lt.threadFunc()
	lt.loop = <-lt.loopCh
	return lt.loop
}

func (lt *LoopThread) threadFunc() {
	loop, err := NewEventLoop()
	if err != nil {
		defaultLogger.Fatalf("LoopThread: %v", err)
	}
	lt.loopCh <- loop
	loop.Loop()
	loop.Close()
	close(lt.doneCh)
}

// Stop asks the owned loop to quit and waits for its goroutine to exit.
func (lt *LoopThread) Stop() {
	if lt.loop != nil {
		lt.loop.Quit()
	}
	<-lt.doneCh
}

// LoopThreadPool hands connections off a base loop's Acceptor to a
// round-robin pool of I/O loops, so accept and I/O work can spread across
// goroutines instead of competing for a single loop's attention. A pool
// with zero threads degenerates to handing every connection back to the
// base loop, matching the single-threaded configuration.
type LoopThreadPool struct {
	baseLoop *EventLoop

	numThreads int
	next       int

	threads []*LoopThread
	loops   []*EventLoop

	started bool
}

// NewLoopThreadPool constructs a pool whose GetNextLoop falls back to
// baseLoop until SetThreadNum and Start are called.
func NewLoopThreadPool(baseLoop *EventLoop) *LoopThreadPool {
	return &LoopThreadPool{baseLoop: baseLoop}
}

// SetThreadNum configures how many I/O loops Start creates. Must be
// called before Start.
func (p *LoopThreadPool) SetThreadNum(n int) { p.numThreads = n }

// Start spawns the pool's I/O threads. Must run on the base loop.
func (p *LoopThreadPool) Start() {
	p.baseLoop.assertInLoopThread()
	if p.started {
		defaultLogger.Fatalf("LoopThreadPool.Start called more than once")
	}
	p.started = true

	for i := 0; i < p.numThreads; i++ {
		lt := NewLoopThread()
		p.threads = append(p.threads, lt)
		p.loops = append(p.loops, lt.StartLoop())
	}
}

// GetNextLoop returns the next loop in round-robin order, or the base
// loop if the pool has no I/O threads of its own. Must run on the base
// loop.
func (p *LoopThreadPool) GetNextLoop() *EventLoop {
	p.baseLoop.assertInLoopThread()
	if len(p.loops) == 0 {
		return p.baseLoop
	}
	loop := p.loops[p.next]
	p.next = (p.next + 1) % len(p.loops)
	return loop
}

// Stop quits and waits for every I/O thread the pool owns.
func (p *LoopThreadPool) Stop() {
	for _, lt := range p.threads {
		lt.Stop()
	}
}
