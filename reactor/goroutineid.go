package reactor

import (
	"bytes"
	"runtime"
	"strconv"
)

// currentGoroutineID returns the calling goroutine's runtime-assigned id
// by parsing the "goroutine N [state]:" header of a minimal stack trace.
// It plays the same role jmuduo's CurrentThread::tid() plays: identifying
// the owning execution context for assertInLoopThread, never for
// scheduling decisions. No library in the dependency set exposes
// goroutine identity, and the Go runtime deliberately doesn't either; this
// parsing trick is the standard, widely used substitute.
func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
