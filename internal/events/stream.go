package events

import (
	"errors"
	"sync"
)

// ErrDropped is reported (and logged by the bus) when a stream's buffer is full.
var ErrDropped = errors.New("stream buffer full, event dropped")

// Stream is a channel view of the bus for long-lived consumers such as SSE
// clients. Sends never block the publisher: when the buffer is full the
// event is dropped.
type Stream struct {
	C <-chan Event

	mu     sync.Mutex
	ch     chan Event
	closed bool
	subs   []Subscription
}

// Stream subscribes a buffered channel to the given names, or to every event
// when names is empty. Call Close when done.
func (b *Bus) Stream(buffer int, names ...Name) *Stream {
	if buffer <= 0 {
		buffer = 100
	}
	ch := make(chan Event, buffer)
	s := &Stream{C: ch, ch: ch}
	if len(names) == 0 {
		s.subs = append(s.subs, b.SubscribeAll(s.send))
	} else {
		for _, n := range names {
			s.subs = append(s.subs, b.Subscribe(n, s.send))
		}
	}
	return s
}

func (s *Stream) send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- ev:
		return nil
	default:
		return ErrDropped
	}
}

// Close unsubscribes the stream and closes its channel. Safe to call twice.
func (s *Stream) Close() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
