package exchange

import (
	"context"
	"sync"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
)

// Feeds fans adapter-side feed events out to the listeners opened through
// OpenFeed. Publish never blocks: a listener whose buffer is full is closed
// and has to resubscribe.
type Feeds struct {
	mu     sync.Mutex
	buffer int
	nextID uint64
	subs   map[gatewayv1.FeedKey]map[uint64]chan FeedEvent
	closed bool
}

func NewFeeds(buffer int) *Feeds {
	if buffer < 1 {
		buffer = 1
	}
	return &Feeds{
		buffer: buffer,
		subs:   make(map[gatewayv1.FeedKey]map[uint64]chan FeedEvent),
	}
}

// Open registers a listener for key with snapshot queued as its first event.
// Callers hold their own state lock across the snapshot and Open so that no
// update published in between is lost.
func (f *Feeds) Open(ctx context.Context, key gatewayv1.FeedKey, snapshot FeedEvent) <-chan FeedEvent {
	ch := make(chan FeedEvent, f.buffer)
	snapshot.Kind = FeedSnapshot
	ch <- snapshot

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch
	}
	f.nextID++
	id := f.nextID
	if f.subs[key] == nil {
		f.subs[key] = make(map[uint64]chan FeedEvent)
	}
	f.subs[key][id] = ch
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.remove(key, id)
	}()
	return ch
}

// Publish delivers ev to every listener of key and returns how many
// received it.
func (f *Feeds) Publish(key gatewayv1.FeedKey, ev FeedEvent) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	delivered := 0
	for id, ch := range f.subs[key] {
		select {
		case ch <- ev:
			delivered++
		default:
			close(ch)
			delete(f.subs[key], id)
		}
	}
	if len(f.subs[key]) == 0 {
		delete(f.subs, key)
	}
	return delivered
}

// Fail delivers err to every listener of key and closes them.
func (f *Feeds) Fail(key gatewayv1.FeedKey, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subs[key] {
		select {
		case ch <- FeedEvent{Kind: FeedUpdate, Err: err}:
		default:
		}
		close(ch)
	}
	delete(f.subs, key)
}

// Listeners returns the number of open listeners of key.
func (f *Feeds) Listeners(key gatewayv1.FeedKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[key])
}

// Keys returns the feeds with at least one listener.
func (f *Feeds) Keys() []gatewayv1.FeedKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]gatewayv1.FeedKey, 0, len(f.subs))
	for key := range f.subs {
		keys = append(keys, key)
	}
	return keys
}

// Close closes every listener; later Opens return closed channels.
func (f *Feeds) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for key, listeners := range f.subs {
		for _, ch := range listeners {
			close(ch)
		}
		delete(f.subs, key)
	}
}

func (f *Feeds) remove(key gatewayv1.FeedKey, id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.subs[key][id]
	if !ok {
		return
	}
	close(ch)
	delete(f.subs[key], id)
	if len(f.subs[key]) == 0 {
		delete(f.subs, key)
	}
}
