//go:build linux

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

func createTimerFD() (int, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return -1, newError(CategorySetupFatal, "timerfd_create", err)
	}
	return fd, nil
}

// resetTimerFD arms fd to fire once at expiration, never sooner than
// minTimerArmingDistance from now.
func resetTimerFD(fd int, expiration time.Time) error {
	d := time.Until(expiration)
	if d < minTimerArmingDistance {
		d = minTimerArmingDistance
	}
	spec := unix.ItimerSpec{Value: unix.NsecToTimespec(d.Nanoseconds())}
	return unix.TimerfdSettime(fd, 0, &spec, nil)
}

// readTimerFD drains the expiration counter timerfd writes on fire.
func readTimerFD(fd int) error {
	var buf [8]byte
	_, err := unix.Read(fd, buf[:])
	return err
}

func closeTimerFD(fd int) error { return unix.Close(fd) }
