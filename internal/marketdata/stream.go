package marketdata

import (
	"context"
	"io"
	"sync"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
)

// Stream is the event queue of one Subscribe call. Events of every feed in
// the request are merged into one queue; each feed keeps its own order and
// its own bound on queued events.
type Stream struct {
	hub  *Hub
	subs []*subscriber

	mu       sync.Mutex
	queue    []*gatewayv1.SubscribeResponse
	pending  map[gatewayv1.FeedKey]int
	attached int
	closed   bool
	notify   chan struct{}
}

func newStream(h *Hub) *Stream {
	return &Stream{
		hub:     h,
		pending: make(map[gatewayv1.FeedKey]int),
		notify:  make(chan struct{}, 1),
	}
}

// Next blocks until an event is available. It returns io.EOF once every
// feed of the stream has ended and its events were drained.
func (s *Stream) Next(ctx context.Context) (*gatewayv1.SubscribeResponse, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			key := gatewayv1.FeedKey{Exchange: ev.Exchange, Channel: ev.Channel, Symbol: ev.Symbol}
			if s.pending[key]--; s.pending[key] <= 0 {
				delete(s.pending, key)
			}
			s.mu.Unlock()
			return ev, nil
		}
		done := s.attached == 0 || s.closed
		s.mu.Unlock()
		if done {
			return nil, io.EOF
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.notify:
		}
	}
}

// Close detaches the stream from all its feeds. Feeds left without
// subscribers are released upstream.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.hub.detach(s.subs...)
}

// push queues ev unless the feed already has limit events waiting
func (s *Stream) push(ev *gatewayv1.SubscribeResponse, limit int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	key := gatewayv1.FeedKey{Exchange: ev.Exchange, Channel: ev.Channel, Symbol: ev.Symbol}
	if limit > 0 && s.pending[key] >= limit {
		return false
	}
	s.enqueue(key, ev)
	return true
}

// end queues the last event of a feed regardless of the bound and marks the
// feed as finished for this stream
func (s *Stream) end(ev *gatewayv1.SubscribeResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached--
	if s.closed {
		return
	}
	key := gatewayv1.FeedKey{Exchange: ev.Exchange, Channel: ev.Channel, Symbol: ev.Symbol}
	s.enqueue(key, ev)
}

func (s *Stream) enqueue(key gatewayv1.FeedKey, ev *gatewayv1.SubscribeResponse) {
	s.queue = append(s.queue, ev)
	s.pending[key]++
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
