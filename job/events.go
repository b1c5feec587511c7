package job

import (
	"sync"
	"time"

	"github.com/nixxel-company-limited/escpos-receipt-server/adapter"
)

// EventType represents job lifecycle events
type EventType string

const (
	EventJobStarted     EventType = "job.started"
	EventDeviceOpened   EventType = "device.opened"
	EventDeviceReleased EventType = "device.released"
	EventJobSucceeded   EventType = "job.succeeded"
	EventJobFailed      EventType = "job.failed"
)

// Event represents a job lifecycle event
type Event struct {
	Type   EventType                 `json:"type"`
	JobID  string                    `json:"jobId"`
	Device *adapter.DeviceDescriptor `json:"device,omitempty"`
	Kind   string                    `json:"kind,omitempty"`
	Error  string                    `json:"error,omitempty"`
	Time   time.Time                 `json:"time"`
}

// Events fans job events out to listeners and subscribers. A nil *Events
// drops everything.
type Events struct {
	eventListeners map[EventType][]func(Event)
	listenersMutex sync.RWMutex

	subscribers map[chan Event]struct{}
	subsMutex   sync.Mutex
}

// NewEvents creates an empty event hub
func NewEvents() *Events {
	return &Events{
		eventListeners: make(map[EventType][]func(Event)),
		subscribers:    make(map[chan Event]struct{}),
	}
}

// On adds an event listener
func (e *Events) On(eventType EventType, handler func(Event)) {
	e.listenersMutex.Lock()
	defer e.listenersMutex.Unlock()

	e.eventListeners[eventType] = append(e.eventListeners[eventType], handler)
}

// Subscribe returns a channel receiving every event and a func that ends
// the subscription. Events are dropped when the channel buffer is full.
func (e *Events) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	e.subsMutex.Lock()
	e.subscribers[ch] = struct{}{}
	e.subsMutex.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subsMutex.Lock()
			delete(e.subscribers, ch)
			e.subsMutex.Unlock()
			close(ch)
		})
	}
}

// emit triggers an event
func (e *Events) emit(event Event) {
	if e == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	e.listenersMutex.RLock()
	for _, handler := range e.eventListeners[event.Type] {
		go handler(event)
	}
	e.listenersMutex.RUnlock()

	e.subsMutex.Lock()
	defer e.subsMutex.Unlock()
	for ch := range e.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
