package election

import (
	"log/slog"
	"sync"
)

// DefaultSubscriptionBuffer is the channel size used by Subscribe for a buffer below 1.
const DefaultSubscriptionBuffer = 10

// LeadershipCallback receives leadership transitions.
// Callbacks run synchronously on the goroutine making the transition, in registration order.
// They must return quickly and must not call back into the Engine or Service that invoked them.
type LeadershipCallback func(event LeadershipChangedEvent)

type registration struct {
	id       uint64
	callback LeadershipCallback
}

// notifier fans leadership events out to registered callbacks.
type notifier struct {
	mu            sync.RWMutex
	nextID        uint64
	registrations []registration
	channels      map[uint64]*channelSubscriber
	logger        *slog.Logger
}

func newNotifier(logger *slog.Logger) *notifier {
	return &notifier{
		channels: make(map[uint64]*channelSubscriber),
		logger:   logger,
	}
}

func (n *notifier) subscribe(callback LeadershipCallback) (uint64, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	var id = n.nextID
	n.registrations = append(n.registrations, registration{id: id, callback: callback})

	var once sync.Once
	return id, func() {
		once.Do(func() { n.unsubscribe(id) })
	}
}

func (n *notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	for i, r := range n.registrations {
		if r.id == id {
			n.registrations = append(n.registrations[:i:i], n.registrations[i+1:]...)
			break
		}
	}
	var channel = n.channels[id]
	delete(n.channels, id)
	n.mu.Unlock()

	if channel != nil {
		channel.close()
	}
}

func (n *notifier) subscribeChannel(buffer int) (<-chan LeadershipChangedEvent, func()) {
	if buffer < 1 {
		buffer = DefaultSubscriptionBuffer
	}

	var channel = &channelSubscriber{
		ch:     make(chan LeadershipChangedEvent, buffer),
		logger: n.logger,
	}
	var id, unsubscribe = n.subscribe(channel.send)

	n.mu.Lock()
	n.channels[id] = channel
	n.mu.Unlock()

	return channel.ch, unsubscribe
}

// notify invokes every callback in registration order. A panicking callback is logged and
// does not stop the remaining callbacks.
func (n *notifier) notify(event LeadershipChangedEvent) {
	n.mu.RLock()
	var registrations = make([]registration, len(n.registrations))
	copy(registrations, n.registrations)
	n.mu.RUnlock()

	for _, r := range registrations {
		n.invoke(r.callback, event)
	}
}

func (n *notifier) invoke(callback LeadershipCallback, event LeadershipChangedEvent) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("leadership callback panicked", "panic", r)
		}
	}()

	callback(event)
}

// closeAll drops every registration and closes subscriber channels.
func (n *notifier) closeAll() {
	n.mu.Lock()
	var channels = n.channels
	n.registrations = nil
	n.channels = make(map[uint64]*channelSubscriber)
	n.mu.Unlock()

	for _, channel := range channels {
		channel.close()
	}
}

// channelSubscriber forwards events to a bounded channel, dropping them when it is full.
type channelSubscriber struct {
	mu     sync.Mutex
	ch     chan LeadershipChangedEvent
	closed bool
	logger *slog.Logger
}

func (c *channelSubscriber) send(event LeadershipChangedEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.ch <- event:
	default:
		c.logger.Warn("leadership channel full, dropping event", "is_leader", event.IsLeader)
	}
}

func (c *channelSubscriber) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
