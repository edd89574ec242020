package reactor

import (
	"bytes"
	"testing"
)

func TestBufferInitialLayout(t *testing.T) {
	b := NewBuffer()
	if got := b.ReadableBytes(); got != 0 {
		t.Fatalf("ReadableBytes() = %d, want 0", got)
	}
	if got := b.WritableBytes(); got != initialSize {
		t.Fatalf("WritableBytes() = %d, want %d", got, initialSize)
	}
	if got := b.PrependableBytes(); got != cheapPrepend {
		t.Fatalf("PrependableBytes() = %d, want %d", got, cheapPrepend)
	}
}

func TestBufferAppendRetrieve(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte("hello"))
	if got := b.ReadableBytes(); got != 5 {
		t.Fatalf("ReadableBytes() = %d, want 5", got)
	}
	if !bytes.Equal(b.Peek(), []byte("hello")) {
		t.Fatalf("Peek() = %q, want %q", b.Peek(), "hello")
	}
	b.Retrieve(2)
	if !bytes.Equal(b.Peek(), []byte("llo")) {
		t.Fatalf("Peek() after Retrieve(2) = %q, want %q", b.Peek(), "llo")
	}
	if got := b.RetrieveAsString(); got != "llo" {
		t.Fatalf("RetrieveAsString() = %q, want %q", got, "llo")
	}
	if got := b.ReadableBytes(); got != 0 {
		t.Fatalf("ReadableBytes() after RetrieveAll = %d, want 0", got)
	}
}

func TestBufferRetrieveBeyondReadableResetsAll(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte("abc"))
	b.Retrieve(100)
	if got := b.ReadableBytes(); got != 0 {
		t.Fatalf("ReadableBytes() = %d, want 0", got)
	}
	if got := b.PrependableBytes(); got != cheapPrepend {
		t.Fatalf("PrependableBytes() = %d, want %d", got, cheapPrepend)
	}
}

func TestBufferSlidesInsteadOfGrowingWhenThereIsRoom(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte("0123456789"))
	b.Retrieve(8) // frees prependable room but keeps 2 readable bytes
	before := len(b.buf)

	// Appending something that fits once the buffer slides left must not
	// reallocate.
	b.Append(make([]byte, initialSize-4))
	if len(b.buf) != before {
		t.Fatalf("buffer reallocated on a slide-eligible append: len=%d, want %d", len(b.buf), before)
	}
	if b.reader != cheapPrepend {
		t.Fatalf("reader = %d after slide, want %d", b.reader, cheapPrepend)
	}
}

func TestBufferGrowsWhenSlideWouldNotFit(t *testing.T) {
	b := NewBuffer()
	big := make([]byte, initialSize*4)
	b.Append(big)
	if b.ReadableBytes() != len(big) {
		t.Fatalf("ReadableBytes() = %d, want %d", b.ReadableBytes(), len(big))
	}
	if b.WritableBytes() < 0 {
		t.Fatalf("WritableBytes() went negative: %d", b.WritableBytes())
	}
}

func TestBufferPrepend(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte("body"))
	b.Prepend([]byte("head"))
	if got := b.ReadableBytes(); got != 8 {
		t.Fatalf("ReadableBytes() = %d, want 8", got)
	}
	if !bytes.Equal(b.Peek(), []byte("headbody")) {
		t.Fatalf("Peek() = %q, want %q", b.Peek(), "headbody")
	}
}

func TestBufferReadFromFD(t *testing.T) {
	r, w, err := pipeForTest(t)
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	payload := bytes.Repeat([]byte("x"), 200000) // forces use of the extrabuf path
	go func() {
		w.Write(payload)
		w.Close()
	}()

	b := NewBuffer()
	total := 0
	for total < len(payload) {
		n, err := b.ReadFromFD(int(r.Fd()))
		if err != nil {
			t.Fatalf("ReadFromFD: %v", err)
		}
		if n == 0 {
			break
		}
		total += n
	}
	if total != len(payload) {
		t.Fatalf("read %d bytes, want %d", total, len(payload))
	}
	if b.ReadableBytes() != len(payload) {
		t.Fatalf("ReadableBytes() = %d, want %d", b.ReadableBytes(), len(payload))
	}
}

func TestBufferReadFromFDWithNoWritableRoom(t *testing.T) {
	r, w, err := pipeForTest(t)
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	b := NewBuffer()
	// Fill the writable region exactly, leaving WritableBytes() == 0, the
	// boundary at which the first scatter-read segment must be omitted
	// instead of indexing one past the buffer's length.
	b.Append(make([]byte, b.WritableBytes()))
	if b.WritableBytes() != 0 {
		t.Fatalf("WritableBytes() = %d, want 0", b.WritableBytes())
	}

	payload := []byte("overflow")
	go func() {
		w.Write(payload)
		w.Close()
	}()

	n, err := b.ReadFromFD(int(r.Fd()))
	if err != nil {
		t.Fatalf("ReadFromFD with zero writable bytes: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("ReadFromFD() = %d, want %d", n, len(payload))
	}
}
