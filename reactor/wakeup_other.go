//go:build !linux

package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// wakeupWriteFDs maps a wake-up descriptor's read end to its write end,
// standing in for Linux's single-descriptor eventfd where BSD/Darwin have
// no equivalent.
var wakeupWriteFDs sync.Map

func createWakeupFD() (int, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, newError(CategorySetupFatal, "pipe2", err)
	}
	wakeupWriteFDs.Store(fds[0], fds[1])
	return fds[0], nil
}

func wakeupWrite(fd int) error {
	v, ok := wakeupWriteFDs.Load(fd)
	if !ok {
		return nil
	}
	_, err := unix.Write(v.(int), []byte{1})
	return err
}

func wakeupDrain(fd int) error {
	var buf [64]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err != nil {
			return nil
		}
	}
}

func closeWakeupFD(fd int) error {
	if v, ok := wakeupWriteFDs.LoadAndDelete(fd); ok {
		unix.Close(v.(int))
	}
	return unix.Close(fd)
}
