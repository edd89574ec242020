package reactor

import (
	"testing"
	"time"
)

func TestChannelDispatchOrder(t *testing.T) {
	var order []string
	c := &Channel{index: channelNew}
	c.SetReadCallback(func(time.Time) { order = append(order, "read") })
	c.SetWriteCallback(func() { order = append(order, "write") })
	c.SetErrorCallback(func() { order = append(order, "error") })
	c.SetCloseCallback(func() { order = append(order, "close") })

	c.SetRevents(EventReadable | EventWritable | EventError)
	c.HandleEvent(time.Now())

	want := []string{"error", "read", "write"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestChannelHangupWithoutReadableFiresClose(t *testing.T) {
	var fired string
	c := &Channel{index: channelNew}
	c.SetCloseCallback(func() { fired = "close" })
	c.SetReadCallback(func(time.Time) { fired = "read" })

	c.SetRevents(EventHangup)
	c.HandleEvent(time.Now())

	if fired != "close" {
		t.Fatalf("fired = %q, want close", fired)
	}
}

func TestChannelHangupWithReadableDoesNotSkipRead(t *testing.T) {
	var gotRead, gotClose bool
	c := &Channel{index: channelNew}
	c.SetCloseCallback(func() { gotClose = true })
	c.SetReadCallback(func(time.Time) { gotRead = true })

	c.SetRevents(EventHangup | EventReadable)
	c.HandleEvent(time.Now())

	if gotClose {
		t.Fatalf("close callback fired despite EventReadable being set")
	}
	if !gotRead {
		t.Fatalf("read callback did not fire")
	}
}

func TestChannelInterestToggles(t *testing.T) {
	l := &EventLoop{}
	c := newChannel(l, 7)
	if !c.IsNoneEvent() {
		t.Fatalf("new channel should have no interest")
	}

	c.events |= EventReadable // bypass update() which needs a real loop
	if !c.IsReading() {
		t.Fatalf("IsReading() = false, want true")
	}
	c.events |= EventWritable
	if !c.IsWriting() {
		t.Fatalf("IsWriting() = false, want true")
	}
	c.events &^= EventWritable
	if c.IsWriting() {
		t.Fatalf("IsWriting() = true after clearing, want false")
	}
}
