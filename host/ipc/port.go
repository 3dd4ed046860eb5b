// Package ipc connects the host process and the UI process. A pair of ports carries named
// events with JSON payloads in both directions, plus request/response invocations from
// the UI to handlers registered on the host.
package ipc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

// ErrNoHandler is returned by Invoke when the peer has no handler for the channel.
var ErrNoHandler = errors.New("no handler registered")

// Event is what a listener receives. Send replies to the port the event came from.
type Event struct {
	Name string
	port *Port
}

// Send delivers an event back to the sender of e.
func (e Event) Send(event string, payload any) error {
	if e.port == nil {
		return errors.New("[Event Send] event has no port")
	}
	return e.port.Send(event, payload)
}

// Listener handles an event. It runs on the sender's goroutine.
type Listener func(e Event, payload json.RawMessage)

// Handler answers an Invoke from the peer.
type Handler func(ctx context.Context, e Event, payload json.RawMessage) (any, error)

type listenerEntry struct {
	id int
	fn Listener
}

// Port is one end of a channel.
type Port struct {
	name string

	mu        sync.RWMutex
	peer      *Port
	nextID    int
	listeners map[string][]listenerEntry
	handlers  map[string]Handler
}

// NewPair creates two connected ports.
func NewPair(hostName, rendererName string) (*Port, *Port) {
	a := newPort(hostName)
	b := newPort(rendererName)
	a.peer, b.peer = b, a
	return a, b
}

func newPort(name string) *Port {
	return &Port{
		name:      name,
		listeners: make(map[string][]listenerEntry),
		handlers:  make(map[string]Handler),
	}
}

// Name identifies the port in logs.
func (p *Port) Name() string {
	return p.name
}

// On registers a listener for event and returns a function removing it.
func (p *Port) On(event string, fn Listener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.listeners[event] = append(p.listeners[event], listenerEntry{id: id, fn: fn})
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		entries := p.listeners[event]
		for i, entry := range entries {
			if entry.id == id {
				p.listeners[event] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// RemoveAllListeners drops every listener for event.
func (p *Port) RemoveAllListeners(event string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.listeners, event)
}

// ListenerCount is the number of listeners for event.
func (p *Port) ListenerCount(event string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.listeners[event])
}

// Send encodes payload and delivers it to the peer's listeners before returning.
func (p *Port) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "[Port Send] encode %s", event)
	}
	p.peer.deliver(event, data)
	return nil
}

func (p *Port) deliver(event string, data json.RawMessage) {
	p.mu.RLock()
	entries := append([]listenerEntry(nil), p.listeners[event]...)
	p.mu.RUnlock()

	for _, entry := range entries {
		entry.fn(Event{Name: event, port: p}, data)
	}
}

// Handle registers the handler for channel. Only one handler per channel is allowed.
func (p *Port) Handle(channel string, h Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.handlers[channel]; exists {
		return errors.Errorf("[Port Handle] a handler for %q is already registered", channel)
	}
	p.handlers[channel] = h
	return nil
}

// RemoveHandler drops the handler for channel, if any.
func (p *Port) RemoveHandler(channel string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handlers, channel)
}

// Invoke calls the peer's handler for channel and returns its encoded result.
func (p *Port) Invoke(ctx context.Context, channel string, payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "[Port Invoke] encode %s", channel)
	}

	p.peer.mu.RLock()
	h, ok := p.peer.handlers[channel]
	p.peer.mu.RUnlock()
	if !ok {
		return nil, errors.Wrap(ErrNoHandler, channel)
	}

	result, err := h(ctx, Event{Name: channel, port: p.peer}, data)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(result)
	if err != nil {
		return nil, errors.Wrapf(err, "[Port Invoke] encode %s result", channel)
	}
	return out, nil
}
