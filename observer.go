package stepflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer defines the interface for objects that want to be notified of
// scenario lifecycle events.
type Observer interface {
	// OnEvent is called synchronously on the goroutine running the scenario.
	// Observers should return quickly.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier used for registration tracking.
	ObserverID() string
}

// Subject defines the interface for objects that can be observed.
type Subject interface {
	// RegisterObserver adds an observer. If eventTypes is empty, the observer
	// receives all events.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. It is idempotent.
	UnregisterObserver(observer Observer) error

	// NotifyObservers sends an event to all interested observers.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers returns information about currently registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo provides information about a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// FunctionalObserver provides a simple way to create observers using functions.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates a new observer that uses the provided function
// to handle events.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

// OnEvent implements the Observer interface by calling the handler function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements the Observer interface by returning the observer ID.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}

// observerRegistration holds information about a registered observer
type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// EventBus is the Subject the installer reports scenario lifecycle events to.
// Delivery is synchronous and in registration order, so observers of a
// sequential run see events in the order they happened.
type EventBus struct {
	mu        sync.RWMutex
	observers []*observerRegistration
	logger    Logger
}

// NewEventBus creates an empty bus. A nil logger discards observer faults.
func NewEventBus(logger Logger) *EventBus {
	if logger == nil {
		logger = nopLogger{}
	}
	return &EventBus{logger: logger}
}

// RegisterObserver adds observer, replacing any earlier registration with the same ID.
func (b *EventBus) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return fmt.Errorf("%w: nil observer", ErrInvalidBinding)
	}

	eventTypeMap := make(map[string]bool, len(eventTypes))
	for _, eventType := range eventTypes {
		eventTypeMap[eventType] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.removeLocked(observer.ObserverID())
	b.observers = append(b.observers, &observerRegistration{
		observer:     observer,
		eventTypes:   eventTypeMap,
		registeredAt: time.Now(),
	})

	b.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes observer. Unknown observers are ignored.
func (b *EventBus) UnregisterObserver(observer Observer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.removeLocked(observer.ObserverID()) {
		b.logger.Debug("Observer unregistered", "observerID", observer.ObserverID())
	}
	return nil
}

func (b *EventBus) removeLocked(id string) bool {
	for i, reg := range b.observers {
		if reg.observer.ObserverID() == id {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			return true
		}
	}
	return false
}

// NotifyObservers validates event and delivers it to every interested
// observer. Observer errors and panics are logged and returned joined; they
// never stop delivery to the remaining observers.
func (b *EventBus) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}

	if err := ValidateCloudEvent(event); err != nil {
		b.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	b.mu.RLock()
	targets := make([]*observerRegistration, 0, len(b.observers))
	for _, reg := range b.observers {
		if len(reg.eventTypes) > 0 && !reg.eventTypes[event.Type()] {
			continue
		}
		targets = append(targets, reg)
	}
	b.mu.RUnlock()

	var errs []error
	for _, reg := range targets {
		if err := b.deliver(ctx, reg.observer, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *EventBus) deliver(ctx context.Context, observer Observer, event cloudevents.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Observer panicked", "observerID", observer.ObserverID(), "event", event.Type(), "panic", r)
			err = fmt.Errorf("observer %s panicked: %v", observer.ObserverID(), r)
		}
	}()

	if err = observer.OnEvent(ctx, event); err != nil {
		b.logger.Error("Observer error", "observerID", observer.ObserverID(), "event", event.Type(), "error", err)
		err = fmt.Errorf("observer %s: %w", observer.ObserverID(), err)
	}
	return err
}

// GetObservers returns information about currently registered observers.
func (b *EventBus) GetObservers() []ObserverInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	info := make([]ObserverInfo, 0, len(b.observers))
	for _, reg := range b.observers {
		eventTypes := make([]string, 0, len(reg.eventTypes))
		for eventType := range reg.eventTypes {
			eventTypes = append(eventTypes, eventType)
		}
		info = append(info, ObserverInfo{
			ID:           reg.observer.ObserverID(),
			EventTypes:   eventTypes,
			RegisteredAt: reg.registeredAt,
		})
	}
	return info
}

// emit builds and delivers an event. Delivery faults are logged only.
func (b *EventBus) emit(ctx context.Context, eventType string, data map[string]any) {
	if b == nil {
		return
	}
	if err := b.NotifyObservers(ctx, NewCloudEvent(eventType, EventSource, data, nil)); err != nil {
		b.logger.Debug("Event delivery reported errors", "event", eventType, "error", err)
	}
}
