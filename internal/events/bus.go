package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventBus defines the interface for the event bus system
type EventBus interface {
	// Publish publishes an event, blocking until accepted or ctx is done
	Publish(ctx context.Context, event Event) error

	// PublishAsync publishes an event without blocking; events are dropped
	// when the buffer is full
	PublishAsync(event Event)

	// Subscribe registers a handler for events matching the filter
	Subscribe(filter EventFilter, handler EventHandler) *Subscription

	// Unsubscribe removes a subscription
	Unsubscribe(subscriptionID string)

	// Start starts the event dispatch loop
	Start() error

	// Stop stops the event bus and waits for the dispatch loop to drain
	Stop()
}

// eventBus implements EventBus with a buffered channel and a single
// dispatch goroutine; handlers run on the dispatch goroutine.
type eventBus struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	eventChannel  chan Event
	running       bool
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewEventBus creates a new event bus with the given buffer size
func NewEventBus(bufferSize int) EventBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &eventBus{
		subscriptions: make(map[string]*Subscription),
		eventChannel:  make(chan Event, bufferSize),
		stopCh:        make(chan struct{}),
	}
}

func (eb *eventBus) Start() error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.running {
		return fmt.Errorf("event bus is already running")
	}
	eb.running = true
	eb.stopCh = make(chan struct{})

	eb.wg.Add(1)
	go eb.dispatch()
	return nil
}

func (eb *eventBus) Stop() {
	eb.mu.Lock()
	if !eb.running {
		eb.mu.Unlock()
		return
	}
	eb.running = false
	eb.mu.Unlock()

	close(eb.stopCh)
	eb.wg.Wait()
}

func (eb *eventBus) Publish(ctx context.Context, event Event) error {
	if !eb.isRunning() {
		return fmt.Errorf("event bus is not running")
	}
	event = stamp(event)

	select {
	case eb.eventChannel <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-eb.stopCh:
		return fmt.Errorf("event bus stopped")
	}
}

func (eb *eventBus) PublishAsync(event Event) {
	if !eb.isRunning() {
		return
	}
	event = stamp(event)

	select {
	case eb.eventChannel <- event:
	default:
		// Buffer full; async events are droppable by contract.
	}
}

func (eb *eventBus) Subscribe(filter EventFilter, handler EventHandler) *Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := &Subscription{
		ID:      uuid.New().String(),
		Filter:  filter,
		Handler: handler,
		Created: time.Now(),
	}
	eb.subscriptions[sub.ID] = sub
	return sub
}

func (eb *eventBus) Unsubscribe(subscriptionID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	delete(eb.subscriptions, subscriptionID)
}

func (eb *eventBus) isRunning() bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return eb.running
}

// dispatch fans events out to matching subscriptions until stopped.
// The event channel is drained before exit so Stop does not lose
// already-accepted events.
func (eb *eventBus) dispatch() {
	defer eb.wg.Done()

	for {
		select {
		case event := <-eb.eventChannel:
			eb.deliver(event)
		case <-eb.stopCh:
			for {
				select {
				case event := <-eb.eventChannel:
					eb.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (eb *eventBus) deliver(event Event) {
	eb.mu.RLock()
	subs := make([]*Subscription, 0, len(eb.subscriptions))
	for _, sub := range eb.subscriptions {
		if sub.Filter.Matches(event) {
			subs = append(subs, sub)
		}
	}
	eb.mu.RUnlock()

	for _, sub := range subs {
		sub.Handler(event)
	}
}

func stamp(event Event) Event {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return event
}

// NewEvent creates a new event with the common fields populated
func NewEvent(eventType EventType, source, title, message string) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}
}
