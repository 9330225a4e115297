package taskevents

import (
	"sync"
	"time"

	"github.com/cellgraph/cellgraph/pkg/ids"
)

// Kind identifies a point in a task's lifecycle worth telling a watcher
// about.
type Kind string

const (
	KindScheduled   Kind = "task.scheduled"
	KindStarted     Kind = "task.started"
	KindCompleted   Kind = "task.completed"
	KindFailed      Kind = "task.failed"
	KindInvalidated Kind = "task.invalidated"
	KindDeactivated Kind = "task.deactivated"
	KindQuiescent   Kind = "engine.quiescent"
)

// Event describes one lifecycle transition.
type Event struct {
	Kind      Kind
	Task      ids.TaskID
	Timestamp time.Time
	Message   string
}

// Subscriber is a channel that receives events.
type Subscriber chan Event

// Broker fans out published events to every current subscriber without
// blocking the publisher on a slow or stalled one.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
	eventCh     chan Event
	stopCh      chan struct{}
}

// NewBroker returns a Broker that isn't yet distributing events; call
// Start to begin the fan-out goroutine.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]struct{}),
		eventCh:     make(chan Event, 256),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop halts distribution. Subscribers are not closed; callers that hold
// a Subscriber should Unsubscribe themselves before or after.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe registers a new listener and returns its channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, 32)
	b.subscribers[sub] = struct{}{}
	return sub
}

// Unsubscribe removes and closes sub.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish enqueues event for distribution. If the broker's internal
// buffer is full, Publish drops the event rather than block a task
// execution on a watcher — this channel is diagnostic, not authoritative.
func (b *Broker) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case b.eventCh <- event:
	default:
	}
}

// SubscriberCount reports how many listeners are currently attached.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber is backed up; drop rather than stall the broker.
		}
	}
}
