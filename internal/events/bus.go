// Package events provides the in-process named-event bus the portal stores
// publish their mutations on.
package events

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Name identifies an event channel.
type Name string

const (
	VacationRequestAdded   Name = "vacation_request_added"
	VacationRequestUpdated Name = "vacation_request_updated"
	ObjectiveAdded         Name = "objective_added"
	ObjectiveUpdated       Name = "objective_updated"
	NotificationAdded      Name = "notification_added"
	NotificationUpdated    Name = "notification_updated"
	DataCleared            Name = "data_cleared"
	SurveyAdded            Name = "survey_added"
	SurveyUpdated          Name = "survey_updated"
	SurveyResponseAdded    Name = "survey_response_added"
)

// wildcard registrations receive every event.
const wildcard Name = "*"

// Event is one emission on the bus.
type Event struct {
	Name    Name      `json:"event"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Handler receives events. A returned error is logged and does not stop
// delivery to the remaining handlers.
type Handler func(Event) error

type registration struct {
	id uint64
	fn Handler
}

// Bus dispatches events synchronously, in registration order, on the
// publisher's goroutine.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[Name][]registration
	logger   *slog.Logger
	now      func() time.Time
}

// NewBus creates an empty bus. A nil logger uses slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[Name][]registration),
		logger:   logger,
		now:      time.Now,
	}
}

// Subscription identifies one registration. Subscribing the same function
// twice yields two independent subscriptions.
type Subscription struct {
	bus  *Bus
	name Name
	id   uint64
}

// Unsubscribe removes exactly this registration. It reports whether the
// registration was still active.
func (s Subscription) Unsubscribe() bool {
	if s.bus == nil {
		return false
	}
	return s.bus.remove(s.name, s.id)
}

// Subscribe registers fn for events named name.
func (b *Bus) Subscribe(name Name, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[name] = append(b.handlers[name], registration{id: b.nextID, fn: fn})
	return Subscription{bus: b, name: name, id: b.nextID}
}

// SubscribeAll registers fn for every event.
func (b *Bus) SubscribeAll(fn Handler) Subscription {
	return b.Subscribe(wildcard, fn)
}

func (b *Bus) remove(name Name, id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	regs := b.handlers[name]
	for i, r := range regs {
		if r.id != id {
			continue
		}
		next := make([]registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, name)
		} else {
			b.handlers[name] = next
		}
		return true
	}
	return false
}

// Publish delivers payload to every handler registered for name (and to
// wildcard handlers) in registration order. Handlers registered or removed
// during delivery take effect from the next Publish. It returns the number
// of handlers that completed without error.
func (b *Bus) Publish(name Name, payload any) int {
	b.mu.RLock()
	regs := make([]registration, 0, len(b.handlers[name])+len(b.handlers[wildcard]))
	regs = append(regs, b.handlers[name]...)
	regs = append(regs, b.handlers[wildcard]...)
	b.mu.RUnlock()

	sort.Slice(regs, func(i, j int) bool { return regs[i].id < regs[j].id })

	ev := Event{Name: name, Payload: payload, At: b.now().UTC()}
	delivered := 0
	for _, r := range regs {
		if err := b.deliver(r, ev); err != nil {
			b.logger.Warn("event handler failed", "event", string(name), "subscription", r.id, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

func (b *Bus) deliver(r registration, ev Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return r.fn(ev)
}
