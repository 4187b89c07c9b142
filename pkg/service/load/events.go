package load

import (
	"sync"
	"sync/atomic"
	"time"

	"go.keploy.io/testengine/pkg/models"
)

type EventKind string

const (
	EventUserCompleted EventKind = "user_completed"
	EventSystemStress  EventKind = "system_stress"
	EventTestCompleted EventKind = "test_completed"
	EventPhaseChanged  EventKind = "phase_changed"
)

// Event is a lifecycle notification. Only the fields of its Kind are set.
type Event struct {
	Kind EventKind `json:"kind"`
	At   time.Time `json:"at"`

	UserID   int   `json:"userId,omitempty"`
	Requests int64 `json:"requests,omitempty"`
	Errors   int64 `json:"errors,omitempty"`

	MemoryPercent float64 `json:"memoryPercent,omitempty"`
	LoadAverage   float64 `json:"loadAverage,omitempty"`

	From models.LoadState `json:"from,omitempty"`
	To   models.LoadState `json:"to,omitempty"`

	Results *models.LoadTestResults `json:"results,omitempty"`
}

// EventBus fans events out to subscriber channels. Publish never blocks:
// an event is dropped for any subscriber whose buffer is full.
type EventBus struct {
	mu      sync.RWMutex
	subs    []chan Event
	closed  bool
	dropped atomic.Int64
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe returns a channel that is closed when the bus closes.
func (b *EventBus) Subscribe(buffer int) <-chan Event {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *EventBus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
}
