package events

import (
	"sync"
	"time"
)

// Emitter fans events out to registered listeners.
// A nil *Emitter is valid and discards everything.
type Emitter struct {
	mu        sync.RWMutex
	listeners []Listener
}

// NewEmitter creates an Emitter with the given listeners.
func NewEmitter(listeners ...Listener) *Emitter {
	e := &Emitter{}
	for _, l := range listeners {
		e.Subscribe(l)
	}
	return e
}

// Subscribe registers a listener. Nil listeners are ignored.
func (e *Emitter) Subscribe(l Listener) {
	if e == nil || l == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Emit stamps the event and delivers it to every listener.
func (e *Emitter) Emit(event Event) {
	if e == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	e.mu.RLock()
	listeners := e.listeners
	e.mu.RUnlock()

	for _, l := range listeners {
		l.OnEvent(event)
	}
}
