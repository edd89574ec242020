package reactor

import (
	"sort"
	"sync/atomic"
	"time"
)

// minTimerArmingDistance is the smallest distance into the future a timer
// descriptor will actually be armed for; requests closer than this (or
// already past) are armed for exactly this distance from now instead.
const minTimerArmingDistance = 100 * time.Microsecond

type timerEntry struct {
	expiration time.Time
	seq        uint64
	t          *timer
}

// timerQueue is an event-loop-integrated timer service backed by a kernel
// timer descriptor registered as an ordinary readable Channel. Its ordered
// set of pending timers is an append-sorted slice in place of jmuduo's
// std::set<Entry>; it holds no lock of its own because every mutation is
// marshalled onto the owning loop via RunInLoop.
type timerQueue struct {
	loop *EventLoop

	fd      int
	channel *Channel

	entries []timerEntry // sorted by (expiration, seq)
	nextSeq uint64
}

func newTimerQueue(loop *EventLoop) *timerQueue {
	fd, err := createTimerFD()
	if err != nil {
		defaultLogger.Fatalf("timerQueue: %v", err)
	}
	q := &timerQueue{loop: loop, fd: fd}
	q.channel = newChannel(loop, fd)
	q.channel.SetReadCallback(func(time.Time) { q.handleRead() })
	q.channel.EnableReading()
	return q
}

// addTimer schedules cb to run at when, repeating every interval if
// interval is positive. Safe to call from any goroutine.
func (q *timerQueue) addTimer(cb TimerCallback, when time.Time, interval time.Duration) TimerID {
	seq := atomic.AddUint64(&q.nextSeq, 1)
	t := newTimer(cb, when, interval, seq)
	id := TimerID{seq: seq, expiration: when}
	q.loop.RunInLoop(func() { q.addTimerInLoop(t) })
	return id
}

func (q *timerQueue) addTimerInLoop(t *timer) {
	q.loop.assertInLoopThread()
	if q.insert(t) {
		resetTimerFD(q.fd, t.expiration)
	}
}

// insert adds t to the ordered set and reports whether it is now the
// earliest pending timer, in which case the timer descriptor must be
// re-armed.
func (q *timerQueue) insert(t *timer) bool {
	earliestChanged := len(q.entries) == 0 || t.expiration.Before(q.entries[0].expiration)

	entry := timerEntry{expiration: t.expiration, seq: t.seq, t: t}
	i := sort.Search(len(q.entries), func(i int) bool {
		e := q.entries[i]
		if e.expiration.Equal(entry.expiration) {
			return e.seq > entry.seq
		}
		return e.expiration.After(entry.expiration)
	})
	q.entries = append(q.entries, timerEntry{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = entry

	return earliestChanged
}

func (q *timerQueue) handleRead() {
	q.loop.assertInLoopThread()
	now := time.Now()
	if err := readTimerFD(q.fd); err != nil {
		defaultLogger.Debugf("timerQueue: readTimerFD: %v", err)
	}

	expired := q.getExpired(now)
	for _, e := range expired {
		e.t.run()
	}
	q.reset(expired, now)
}

// getExpired removes and returns every timer due at or before now, using
// a binary search for the first non-expired entry since the set is kept
// sorted.
func (q *timerQueue) getExpired(now time.Time) []timerEntry {
	i := sort.Search(len(q.entries), func(i int) bool {
		return q.entries[i].expiration.After(now)
	})
	expired := append([]timerEntry(nil), q.entries[:i]...)
	q.entries = q.entries[i:]
	return expired
}

// reset reinserts every repeating timer just expired and re-arms the
// timer descriptor for the new earliest deadline, if any remain.
func (q *timerQueue) reset(expired []timerEntry, now time.Time) {
	for _, e := range expired {
		if e.t.repeat {
			e.t.restart(now)
			q.insert(e.t)
		}
	}
	if len(q.entries) > 0 {
		resetTimerFD(q.fd, q.entries[0].expiration)
	}
}

func (q *timerQueue) close() error {
	q.loop.removeChannel(q.channel)
	return closeTimerFD(q.fd)
}
