//go:build !linux

package reactor

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// timerFD emulates a kernel timer descriptor on platforms without
// timerfd (BSD, Darwin), using a non-blocking self-pipe woken by a
// background time.AfterFunc timer. jmuduo is Linux-only so there is no
// pack precedent for this specific piece; it is the standard portable
// substitute for a readable-on-expiry descriptor.
type timerFD struct {
	readFD, writeFD int

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

var timerFDRegistry sync.Map // map[int]*timerFD keyed by readFD

func createTimerFD() (int, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, newError(CategorySetupFatal, "pipe2", err)
	}
	tfd := &timerFD{readFD: fds[0], writeFD: fds[1]}
	timerFDRegistry.Store(fds[0], tfd)
	return fds[0], nil
}

func resetTimerFD(fd int, expiration time.Time) error {
	v, ok := timerFDRegistry.Load(fd)
	if !ok {
		return nil
	}
	tfd := v.(*timerFD)

	d := time.Until(expiration)
	if d < minTimerArmingDistance {
		d = minTimerArmingDistance
	}

	tfd.mu.Lock()
	defer tfd.mu.Unlock()
	if tfd.timer != nil {
		tfd.timer.Stop()
	}
	tfd.gen++
	gen := tfd.gen
	writeFD := tfd.writeFD
	tfd.timer = time.AfterFunc(d, func() {
		tfd.mu.Lock()
		fire := tfd.gen == gen
		tfd.mu.Unlock()
		if fire {
			unix.Write(writeFD, []byte{1})
		}
	})
	return nil
}

func readTimerFD(fd int) error {
	var buf [64]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err != nil {
			return nil
		}
	}
}

func closeTimerFD(fd int) error {
	if v, ok := timerFDRegistry.LoadAndDelete(fd); ok {
		tfd := v.(*timerFD)
		tfd.mu.Lock()
		if tfd.timer != nil {
			tfd.timer.Stop()
		}
		tfd.mu.Unlock()
		unix.Close(tfd.writeFD)
	}
	return unix.Close(fd)
}
