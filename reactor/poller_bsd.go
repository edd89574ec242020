//go:build darwin || freebsd || netbsd || openbsd

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// poller is a kqueue-backed demultiplexer using the usual kqueue
// registration pattern: one EVFILT_READ/EVFILT_WRITE
// change per interest toggle, EV_ADD|EV_ENABLE to arm and EV_DELETE to
// disarm, with a descriptor-to-Channel map standing in for the dense
// poll(2) array.
type poller struct {
	kq       int
	channels map[int]*Channel
	events   []unix.Kevent_t
}

func newPoller() (*poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, newError(CategorySetupFatal, "kqueue", err)
	}
	return &poller{
		kq:       fd,
		channels: make(map[int]*Channel),
		events:   make([]unix.Kevent_t, 16),
	}, nil
}

func (p *poller) poll(timeoutMs int) (time.Time, []*Channel, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * int64(time.Millisecond))
		ts = &t
	}

	n, err := unix.Kevent(p.kq, nil, p.events, ts)
	now := time.Now()
	if err != nil {
		if err == unix.EINTR {
			return now, nil, nil
		}
		return now, nil, err
	}

	// kqueue reports one event per (fd, filter) pair; a descriptor ready
	// for both read and write in the same pass produces two entries, so
	// merge by fd before handing channels to the loop — each Channel must
	// see at most one HandleEvent call per poll iteration.
	merged := make(map[int]Events, n)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ev := p.events[i]
		fd := int(ev.Ident)
		if _, seen := merged[fd]; !seen {
			order = append(order, fd)
		}
		var e Events
		if ev.Flags&unix.EV_ERROR != 0 {
			e |= EventError
		}
		switch ev.Filter {
		case unix.EVFILT_READ:
			e |= EventReadable
			if ev.Flags&unix.EV_EOF != 0 {
				e |= EventHangup
			}
		case unix.EVFILT_WRITE:
			e |= EventWritable
		}
		merged[fd] |= e
	}

	active := make([]*Channel, 0, len(order))
	for _, fd := range order {
		ch, ok := p.channels[fd]
		if !ok {
			continue
		}
		ch.SetRevents(merged[fd])
		active = append(active, ch)
	}
	if n == len(p.events) {
		p.events = make([]unix.Kevent_t, len(p.events)*2)
	}
	return now, active, nil
}

func (p *poller) updateChannel(ch *Channel) {
	var changes []unix.Kevent_t
	wasAdded := ch.index == channelAdded

	if ch.Events()&EventReadable != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(ch.fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE})
	} else if wasAdded {
		changes = append(changes, unix.Kevent_t{Ident: uint64(ch.fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE})
	}
	if ch.Events()&EventWritable != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(ch.fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE})
	} else if wasAdded {
		changes = append(changes, unix.Kevent_t{Ident: uint64(ch.fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
	}

	if len(changes) > 0 {
		if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
			defaultLogger.Errorf("kevent register fd=%d: %v", ch.fd, err)
		}
	}

	if ch.index == channelNew {
		p.channels[ch.fd] = ch
	}
	if ch.IsNoneEvent() {
		ch.index = channelDeleted
	} else {
		ch.index = channelAdded
	}
}

func (p *poller) removeChannel(ch *Channel) {
	delete(p.channels, ch.fd)
	changes := []unix.Kevent_t{
		{Ident: uint64(ch.fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(ch.fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, _ = unix.Kevent(p.kq, changes, nil, nil)
	ch.index = channelNew
}

func (p *poller) close() error { return unix.Close(p.kq) }
