package bus

import (
	"strings"
	"sync"
)

// Bus fans events out to in-process listeners. Kinds are dot-separated, and
// a listener's prefix selects the whole subtree: "sync." matches every sync
// event, "" matches everything.
type Bus struct {
	mu        sync.RWMutex
	listeners map[int]listener
	nextID    int
}

type listener struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{listeners: make(map[int]listener)}
}

// Publish delivers evt to every listener whose prefix matches. Delivery never
// blocks: a listener that has fallen behind loses the event.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, l := range b.listeners {
		if !strings.HasPrefix(evt.Kind, l.prefix) {
			continue
		}
		select {
		case l.ch <- evt:
		default:
		}
	}
}

// Subscribe registers a listener for the given kind prefix with a buffered
// channel of bufSize. The returned func removes the listener; the channel is
// left open so a racing Publish cannot panic.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = listener{prefix: prefix, ch: ch}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
	return ch, unsubscribe
}
