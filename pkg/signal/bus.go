// Package signal is an in-process listener registry for session signals.
// A Bus is constructed once and handed to whoever produces or consumes
// signals; there is no package-level instance.
package signal

import "sync"

// Topic names a signal. Signals carry no payload beyond their occurrence.
type Topic string

const (
	Logout         Topic = "logout"
	SessionExpired Topic = "session-expired"
)

// Notifier is the producer side of a Bus.
type Notifier interface {
	Publish(topic Topic)
}

type listener struct {
	id int
	fn func()
}

// Bus delivers published topics to subscribed listeners.
type Bus struct {
	mu        sync.Mutex
	nextID    int
	listeners map[Topic][]listener
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[Topic][]listener)}
}

// Subscribe registers fn for topic and returns a func that removes it.
func (b *Bus) Subscribe(topic Topic, fn func()) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[topic] = append(b.listeners[topic], listener{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic Topic, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ls := b.listeners[topic]
	for i, l := range ls {
		if l.id == id {
			b.listeners[topic] = append(ls[:i:i], ls[i+1:]...)
			return
		}
	}
}

// Publish calls every listener of topic in subscription order, synchronously.
// Listeners may subscribe, unsubscribe or publish from inside the callback.
func (b *Bus) Publish(topic Topic) {
	b.mu.Lock()
	ls := make([]listener, len(b.listeners[topic]))
	copy(ls, b.listeners[topic])
	b.mu.Unlock()

	for _, l := range ls {
		l.fn()
	}
}

// Channel returns a channel that receives one value per published topic
// and a func that stops delivery. Slow readers miss signals rather than
// block the publisher.
func (b *Bus) Channel(topic Topic) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	unsub := b.Subscribe(topic, func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	return ch, unsub
}
