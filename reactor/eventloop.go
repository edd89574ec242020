package reactor

import (
	"sync"
	"sync/atomic"
	"time"
)

// defaultPollTimeout bounds how long a single poll() call blocks when
// nothing is ready, so a loop with no active channels still periodically
// notices it has been asked to quit.
const defaultPollTimeout = 10 * time.Second

// Functor is a unit of work queued onto an EventLoop from any goroutine.
type Functor func()

// EventLoop is the reactor core: one per goroutine, for the entire
// lifetime of that goroutine. Every Channel, Timer and TcpConnection it
// owns may only be touched from the goroutine running EventLoop.Loop;
// cross-goroutine callers must go through RunInLoop or QueueInLoop.
type EventLoop struct {
	looping int32
	quit_   int32

	callingPendingFunctors int32

	ownerGID uint64

	poller     *poller
	timerQueue *timerQueue

	wakeupFD      int
	wakeupChannel *Channel

	pollTimeout int64 // nanoseconds, atomic; read fresh every iteration

	mu              sync.Mutex
	pendingFunctors []Functor

	activeChannels []*Channel
}

// NewEventLoop constructs an EventLoop bound to the calling goroutine.
// The returned loop must have Loop called on that same goroutine.
func NewEventLoop() (*EventLoop, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	wfd, err := createWakeupFD()
	if err != nil {
		p.close()
		return nil, err
	}

	l := &EventLoop{ownerGID: currentGoroutineID(), poller: p, wakeupFD: wfd, pollTimeout: int64(defaultPollTimeout)}
	l.wakeupChannel = newChannel(l, wfd)
	l.wakeupChannel.SetReadCallback(func(time.Time) { l.handleWakeupRead() })
	l.wakeupChannel.EnableReading()
	l.timerQueue = newTimerQueue(l)
	return l, nil
}

// IsInLoopThread reports whether the calling goroutine is the one that
// constructed this loop.
func (l *EventLoop) IsInLoopThread() bool { return currentGoroutineID() == l.ownerGID }

func (l *EventLoop) assertInLoopThread() {
	if !l.IsInLoopThread() {
		defaultLogger.Fatalf("EventLoop used from goroutine %d, owned by goroutine %d", currentGoroutineID(), l.ownerGID)
	}
}

// Loop runs the reactor's poll/dispatch/drain cycle until Quit is called.
// It must be called exactly once, from the owning goroutine.
func (l *EventLoop) Loop() {
	l.assertInLoopThread()
	if !atomic.CompareAndSwapInt32(&l.looping, 0, 1) {
		defaultLogger.Fatalf("EventLoop.Loop called more than once")
	}
	atomic.StoreInt32(&l.quit_, 0)

	for atomic.LoadInt32(&l.quit_) == 0 {
		timeout := time.Duration(atomic.LoadInt64(&l.pollTimeout))
		now, active, err := l.poller.poll(int(timeout / time.Millisecond))
		if err != nil {
			defaultLogger.Errorf("poller.poll: %v", err)
			continue
		}
		l.activeChannels = active
		for _, ch := range l.activeChannels {
			ch.HandleEvent(now)
		}
		l.doPendingFunctors()
	}

	atomic.StoreInt32(&l.looping, 0)
}

// Quit asks the loop to return from Loop after its current iteration.
// Safe to call from any goroutine; wakes the loop if called from outside
// it so the quit flag is observed promptly rather than after the poll
// timeout.
func (l *EventLoop) Quit() {
	atomic.StoreInt32(&l.quit_, 1)
	if !l.IsInLoopThread() {
		l.Wakeup()
	}
}

// SetPollTimeout changes how long a blocked poll() call waits when no
// channel is ready. Safe to call from any goroutine; takes effect on the
// loop's next iteration, no wakeup required since it only shortens or
// lengthens an idle wait. config.Watch uses this to apply an operator's
// idle_poll_timeout live.
func (l *EventLoop) SetPollTimeout(d time.Duration) {
	if d <= 0 {
		d = defaultPollTimeout
	}
	atomic.StoreInt64(&l.pollTimeout, int64(d))
}

// RunInLoop runs fn immediately if called from the loop's own goroutine,
// otherwise queues it to run on the next iteration.
func (l *EventLoop) RunInLoop(fn Functor) {
	if l.IsInLoopThread() {
		fn()
	} else {
		l.QueueInLoop(fn)
	}
}

// QueueInLoop always defers fn to run on the loop's goroutine during its
// next pending-functor drain, waking the loop if necessary.
func (l *EventLoop) QueueInLoop(fn Functor) {
	l.mu.Lock()
	l.pendingFunctors = append(l.pendingFunctors, fn)
	l.mu.Unlock()

	if !l.IsInLoopThread() || atomic.LoadInt32(&l.callingPendingFunctors) == 1 {
		l.Wakeup()
	}
}

// RunAt schedules cb to run once at when.
func (l *EventLoop) RunAt(when time.Time, cb TimerCallback) TimerID {
	return l.timerQueue.addTimer(cb, when, 0)
}

// RunAfter schedules cb to run once after delay.
func (l *EventLoop) RunAfter(delay time.Duration, cb TimerCallback) TimerID {
	return l.RunAt(time.Now().Add(delay), cb)
}

// RunEvery schedules cb to run repeatedly every interval, starting after
// one interval has elapsed.
func (l *EventLoop) RunEvery(interval time.Duration, cb TimerCallback) TimerID {
	return l.timerQueue.addTimer(cb, time.Now().Add(interval), interval)
}

func (l *EventLoop) updateChannel(ch *Channel) {
	l.assertInLoopThread()
	l.poller.updateChannel(ch)
}

func (l *EventLoop) removeChannel(ch *Channel) {
	l.assertInLoopThread()
	l.poller.removeChannel(ch)
}

// Wakeup unblocks a poll() call in progress on this loop's goroutine.
func (l *EventLoop) Wakeup() {
	if err := wakeupWrite(l.wakeupFD); err != nil {
		defaultLogger.Errorf("EventLoop.Wakeup: %v", err)
	}
}

func (l *EventLoop) handleWakeupRead() {
	if err := wakeupDrain(l.wakeupFD); err != nil {
		defaultLogger.Errorf("EventLoop: drain wakeup descriptor: %v", err)
	}
}

// doPendingFunctors drains exactly the functors queued as of entry, once
// per loop iteration — not to exhaustion — so a functor that queues
// another functor doesn't starve channel dispatch on a busy loop. The
// callingPendingFunctors flag lets QueueInLoop tell whether a functor
// queued from inside this very drain needs an extra wakeup to be picked
// up on the following iteration rather than silently waiting on the
// poller.
func (l *EventLoop) doPendingFunctors() {
	l.mu.Lock()
	functors := l.pendingFunctors
	l.pendingFunctors = nil
	l.mu.Unlock()

	atomic.StoreInt32(&l.callingPendingFunctors, 1)
	for _, fn := range functors {
		fn()
	}
	atomic.StoreInt32(&l.callingPendingFunctors, 0)
}

// Close releases the loop's wake-up and poller descriptors. Call only
// after Loop has returned.
func (l *EventLoop) Close() error {
	l.timerQueue.close()
	closeWakeupFD(l.wakeupFD)
	return l.poller.close()
}
