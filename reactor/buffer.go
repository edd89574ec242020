package reactor

import "golang.org/x/sys/unix"

const (
	// cheapPrepend reserves room at the front of the buffer so a header
	// can be prepended without shifting the readable region.
	cheapPrepend = 8
	// initialSize is the writable region's size for a freshly allocated
	// buffer.
	initialSize = 1024
)

// Buffer is a growable byte buffer laid out as
// [prependable | readable | writable], matching the layout every
// TcpConnection uses for its input and output streams. It is not safe for
// concurrent use; a Buffer is always confined to the loop that owns its
// connection.
type Buffer struct {
	buf    []byte
	reader int
	writer int
}

// NewBuffer returns an empty Buffer sized for the common case.
func NewBuffer() *Buffer {
	return &Buffer{
		buf:    make([]byte, cheapPrepend+initialSize),
		reader: cheapPrepend,
		writer: cheapPrepend,
	}
}

// ReadableBytes returns how many bytes are available to read.
func (b *Buffer) ReadableBytes() int { return b.writer - b.reader }

// WritableBytes returns how many bytes can be appended without growing.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writer }

// PrependableBytes returns how many bytes are free before the readable
// region.
func (b *Buffer) PrependableBytes() int { return b.reader }

// Peek returns the readable region without consuming it. The returned
// slice is only valid until the next mutating call.
func (b *Buffer) Peek() []byte { return b.buf[b.reader:b.writer] }

// Retrieve consumes n bytes from the front of the readable region.
func (b *Buffer) Retrieve(n int) {
	if n < b.ReadableBytes() {
		b.reader += n
	} else {
		b.RetrieveAll()
	}
}

// RetrieveAll consumes the entire readable region, resetting the buffer to
// its empty layout.
func (b *Buffer) RetrieveAll() {
	b.reader = cheapPrepend
	b.writer = cheapPrepend
}

// RetrieveAsString consumes the entire readable region and returns it as a
// string.
func (b *Buffer) RetrieveAsString() string {
	s := string(b.Peek())
	b.RetrieveAll()
	return s
}

// Append adds data to the end of the readable region, growing or sliding
// the buffer as needed.
func (b *Buffer) Append(data []byte) {
	b.ensureWritableBytes(len(data))
	copy(b.buf[b.writer:], data)
	b.writer += len(data)
}

// Prepend writes data immediately before the readable region. The caller
// must not prepend more than PrependableBytes(); Prepend neither checks
// nor grows that region (the cheap-prepend contract: headers are small
// and known in advance).
func (b *Buffer) Prepend(data []byte) {
	b.reader -= len(data)
	copy(b.buf[b.reader:], data)
}

func (b *Buffer) ensureWritableBytes(n int) {
	if b.WritableBytes() < n {
		b.makeSpace(n)
	}
}

func (b *Buffer) makeSpace(n int) {
	if b.WritableBytes()+b.PrependableBytes() < n+cheapPrepend {
		grown := make([]byte, b.writer+n)
		copy(grown, b.buf[:b.writer])
		b.buf = grown
		return
	}
	readable := b.ReadableBytes()
	copy(b.buf[cheapPrepend:], b.buf[b.reader:b.writer])
	b.reader = cheapPrepend
	b.writer = b.reader + readable
}

// ReadFromFD performs exactly one scatter read from fd into the buffer's
// writable region, spilling any overflow into a 64KiB stack scratch area
// and appending it. This keeps the syscall count at exactly one per call
// regardless of how much data the kernel has buffered, which matters for
// level-triggered fairness across many connections sharing a loop.
func (b *Buffer) ReadFromFD(fd int) (int, error) {
	var extra [65536]byte
	writable := b.WritableBytes()

	// The writable region can be fully exhausted (writable == 0) when a
	// slow consumer leaves the buffer full between reads; indexing
	// b.buf[b.writer] would then be out of range, so that segment is
	// only included when there is room for it.
	var iovs []unix.Iovec
	if writable > 0 {
		var first unix.Iovec
		first.Base = &b.buf[b.writer]
		first.SetLen(writable)
		iovs = append(iovs, first)
	}
	var second unix.Iovec
	second.Base = &extra[0]
	second.SetLen(len(extra))
	iovs = append(iovs, second)

	n, err := unix.Readv(fd, iovs)
	if err != nil {
		return 0, err
	}
	if n <= writable {
		b.writer += n
	} else {
		b.writer += writable
		b.Append(extra[:n-writable])
	}
	return n, nil
}
