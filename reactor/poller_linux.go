//go:build linux

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// poller is an epoll-backed demultiplexer. It keeps a map from descriptor
// to Channel instead of jmuduo's literal poll(2) dense array — epoll
// already reports only the ready descriptors, so there is no analogue of
// poll(2)'s "walk every registered fd" step to optimize away. The fixed
// O(1) add/modify/remove epoll gives is strictly the "more scalable
// mechanism" the reactor's Poller contract explicitly allows substituting
// for poll(2), provided level-triggered semantics and per-call single-pass
// ordering are preserved — both hold here.
type poller struct {
	epollFD  int
	events   []unix.EpollEvent
	channels map[int]*Channel
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, newError(CategorySetupFatal, "epoll_create1", err)
	}
	return &poller{
		epollFD:  fd,
		events:   make([]unix.EpollEvent, 16),
		channels: make(map[int]*Channel),
	}, nil
}

// poll blocks for at most timeoutMs and returns every Channel whose
// interest became ready, in the order epoll_wait reported them.
func (p *poller) poll(timeoutMs int) (time.Time, []*Channel, error) {
	n, err := unix.EpollWait(p.epollFD, p.events, timeoutMs)
	now := time.Now()
	if err != nil {
		if err == unix.EINTR {
			return now, nil, nil
		}
		return now, nil, err
	}

	active := make([]*Channel, 0, n)
	for i := 0; i < n; i++ {
		ch, ok := p.channels[int(p.events[i].Fd)]
		if !ok {
			continue
		}
		ch.SetRevents(fromEpollEvents(p.events[i].Events))
		active = append(active, ch)
	}
	if n == len(p.events) {
		p.events = make([]unix.EpollEvent, len(p.events)*2)
	}
	return now, active, nil
}

func (p *poller) updateChannel(ch *Channel) {
	switch ch.index {
	case channelNew, channelDeleted:
		if ch.index == channelNew {
			p.channels[ch.fd] = ch
		}
		ch.index = channelAdded
		p.epollCtl(unix.EPOLL_CTL_ADD, ch)
	default:
		if ch.IsNoneEvent() {
			p.epollCtl(unix.EPOLL_CTL_DEL, ch)
			ch.index = channelDeleted
		} else {
			p.epollCtl(unix.EPOLL_CTL_MOD, ch)
		}
	}
}

func (p *poller) removeChannel(ch *Channel) {
	delete(p.channels, ch.fd)
	if ch.index == channelAdded {
		p.epollCtl(unix.EPOLL_CTL_DEL, ch)
	}
	ch.index = channelNew
}

func (p *poller) epollCtl(op int, ch *Channel) {
	ev := unix.EpollEvent{Events: toEpollEvents(ch.Events()), Fd: int32(ch.fd)}
	if err := unix.EpollCtl(p.epollFD, op, ch.fd, &ev); err != nil {
		defaultLogger.Errorf("epoll_ctl(op=%d, fd=%d): %v", op, ch.fd, err)
	}
}

func (p *poller) close() error { return unix.Close(p.epollFD) }

func toEpollEvents(e Events) uint32 {
	var r uint32
	if e&EventReadable != 0 {
		r |= unix.EPOLLIN | unix.EPOLLPRI
	}
	if e&EventWritable != 0 {
		r |= unix.EPOLLOUT
	}
	return r
}

func fromEpollEvents(e uint32) Events {
	var r Events
	if e&(unix.EPOLLIN|unix.EPOLLPRI|unix.EPOLLRDHUP) != 0 {
		r |= EventReadable
	}
	if e&unix.EPOLLOUT != 0 {
		r |= EventWritable
	}
	if e&unix.EPOLLHUP != 0 {
		r |= EventHangup
	}
	if e&unix.EPOLLERR != 0 {
		r |= EventError
	}
	return r
}
