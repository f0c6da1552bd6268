package events

import "sync"

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 64

// Sink receives events. Implementations must not block.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

// Publish implements Sink.
func (f SinkFunc) Publish(e Event) { f(e) }

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Broker fans events out to subscribers over buffered channels.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Type][]chan Event
	bufferSize  int
}

// NewBroker creates a broker whose subscriber channels hold bufferSize
// events. A non-positive size selects DefaultBufferSize.
func NewBroker(bufferSize int) *Broker {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &Broker{
		subscribers: make(map[Type][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe returns a channel receiving the given types, or every type when
// none is given.
func (b *Broker) Subscribe(types ...Type) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)

	if len(types) == 0 {
		types = []Type{All}
	}

	for _, t := range types {
		b.subscribers[t] = append(b.subscribers[t], ch)
	}

	return ch
}

// Unsubscribe removes ch from every type and closes it.
func (b *Broker) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var found chan Event

	for t, subs := range b.subscribers {
		kept := subs[:0]

		for _, s := range subs {
			if s == ch {
				found = s

				continue
			}

			kept = append(kept, s)
		}

		if len(kept) == 0 {
			delete(b.subscribers, t)
		} else {
			b.subscribers[t] = kept
		}
	}

	if found != nil {
		close(found)
	}
}

// Publish delivers e to matching subscribers. A full channel drops the
// event for that subscriber.
func (b *Broker) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[e.Type] {
		select {
		case ch <- e:
		default:
		}
	}

	if e.Type == All {
		return
	}

	for _, ch := range b.subscribers[All] {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close closes every subscriber channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	closed := make(map[chan Event]bool)

	for _, subs := range b.subscribers {
		for _, ch := range subs {
			if !closed[ch] {
				close(ch)
				closed[ch] = true
			}
		}
	}

	b.subscribers = make(map[Type][]chan Event)
}
