package transport

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"yeectl/message"
)

// DefaultNotificationBuffer is the number of notifications a subscription
// queues before the oldest ones are dropped.
const DefaultNotificationBuffer = 16

// Observer is told about notification traffic. It is called from the read
// loop and must not block.
type Observer interface {
	NotificationReceived()
	NotificationDropped()
}

// Subscription exposes an event channel for consumers of bulb notifications.
// The channel is closed when the subscription is superseded, closed, or the
// connection goes away.
type Subscription struct {
	id      uuid.UUID
	events  chan message.Notification
	dropped atomic.Uint64
	owner   *Dispatcher
	closed  bool // guarded by owner.mu
}

// ID returns the unique ID for this subscription.
func (s *Subscription) ID() string {
	return s.id.String()
}

// Events returns a chan reader for notifications delivered to this
// subscription.
func (s *Subscription) Events() <-chan message.Notification {
	return s.events
}

// Dropped returns how many notifications were discarded because the
// consumer fell behind.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() error {
	return s.owner.unsubscribe(s)
}

// Dispatcher routes notifications to the single active subscription without
// ever blocking the read loop.
type Dispatcher struct {
	mu       sync.Mutex
	buffer   int
	current  *Subscription
	closed   bool
	observer Observer
}

// NewDispatcher returns a dispatcher whose subscriptions queue up to buffer
// notifications. A nil observer is allowed.
func NewDispatcher(buffer int, observer Observer) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultNotificationBuffer
	}
	return &Dispatcher{buffer: buffer, observer: observer}
}

// Subscribe registers a new subscription, superseding any previous one.
func (d *Dispatcher) Subscribe() (*Subscription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDisconnected
	}
	if d.current != nil {
		d.closeLocked(d.current)
	}
	s := &Subscription{
		id:     uuid.New(),
		events: make(chan message.Notification, d.buffer),
		owner:  d,
	}
	d.current = s
	return s, nil
}

// Dispatch delivers n to the active subscription. When its queue is full the
// oldest queued notification is discarded. It reports whether n was queued.
func (d *Dispatcher) Dispatch(n message.Notification) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.observer != nil {
		d.observer.NotificationReceived()
	}
	s := d.current
	if s == nil || d.closed {
		return false
	}
	for {
		select {
		case s.events <- n:
			return true
		default:
		}
		// Only this goroutine sends, under mu, so one receive always frees
		// a slot unless the consumer already did.
		select {
		case <-s.events:
			s.dropped.Add(1)
			if d.observer != nil {
				d.observer.NotificationDropped()
			}
		default:
		}
	}
}

// Close closes the active subscription and refuses new ones.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	if d.current != nil {
		d.closeLocked(d.current)
	}
}

func (d *Dispatcher) unsubscribe(s *Subscription) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s.closed {
		return ErrSubscriptionClosed
	}
	d.closeLocked(s)
	return nil
}

func (d *Dispatcher) closeLocked(s *Subscription) {
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	if d.current == s {
		d.current = nil
	}
}
