// Package events provides the process-wide notification bus the client uses
// for cross-component signals that must not create direct references, most
// importantly the unauthorized signal from the HTTP transport to the session
// manager.
package events

import (
	"sync"
)

// TopicUnauthorized is published when the transport detects an
// unrecoverable authorization failure (refresh failed or no refresh token).
// It carries no payload.
//
// Contract: exactly one subscriber observes this topic for the lifetime of
// the process - the session manager, which reacts by logging out. Other
// components must not subscribe to it.
const TopicUnauthorized = "auth.unauthorized"

// Bus is a minimal publish/subscribe dispatcher. Publishing never blocks
// the caller: notifications are queued and delivered by a single dispatch
// goroutine, so handlers observe publications in order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]func()
	ch       chan string
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewBus creates a Bus and starts its dispatch goroutine.
func NewBus() *Bus {
	b := &Bus{
		handlers: make(map[string][]func()),
		ch:       make(chan string, 16),
		done:     make(chan struct{}),
	}
	b.wg.Add(1)
	go b.run()
	return b
}

func (b *Bus) run() {
	defer b.wg.Done()
	for {
		select {
		case topic := <-b.ch:
			b.dispatch(topic)
		case <-b.done:
			// Drain anything already queued before exiting.
			for {
				select {
				case topic := <-b.ch:
					b.dispatch(topic)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(topic string) {
	b.mu.RLock()
	handlers := b.handlers[topic]
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn()
	}
}

// Subscribe registers fn for topic. Registration is permanent for the life
// of the bus; there is no unsubscribe because the only consumers are
// process-lifetime components.
func (b *Bus) Subscribe(topic string, fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], fn)
}

// Publish queues a notification for topic. Notifications published after
// Close are dropped.
func (b *Bus) Publish(topic string) {
	select {
	case b.ch <- topic:
	case <-b.done:
	}
}

// Close stops the dispatch goroutine after draining queued notifications.
func (b *Bus) Close() {
	b.once.Do(func() {
		close(b.done)
	})
	b.wg.Wait()
}
