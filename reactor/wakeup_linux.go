//go:build linux

package reactor

import "golang.org/x/sys/unix"

func createWakeupFD() (int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return -1, newError(CategorySetupFatal, "eventfd", err)
	}
	return fd, nil
}

func wakeupWrite(fd int) error {
	var one [8]byte
	one[0] = 1
	_, err := unix.Write(fd, one[:])
	return err
}

func wakeupDrain(fd int) error {
	var buf [8]byte
	_, err := unix.Read(fd, buf[:])
	return err
}

func closeWakeupFD(fd int) error { return unix.Close(fd) }
