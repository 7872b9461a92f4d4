// Package session implements the Session Manager: it resolves agent
// requests against the installed-agent registry, claims PTYs from a
// ptypool.Pool, writes bootstrap scripts and agent launch lines, and
// manages each session's output pump and lifecycle.
package session

import "sync"

// OutputEvent carries post-DSR-filter bytes for one session as raw bytes;
// nothing in this package base64-encodes them.
type OutputEvent struct {
	SessionID int
	Data      []byte
}

// ExitEvent reports that a session's child/pump has ended.
// ExitCode is 0 on explicit destroy, -1 on EOF without destroy, or the
// child's exit code where available.
type ExitEvent struct {
	SessionID int
	ExitCode  int
}

// Event is the tagged union delivered to subscribers.
type Event struct {
	Output *OutputEvent
	Exit   *ExitEvent
}

// Bus is a minimal non-blocking fan-out event surface. Subscribers that
// fall behind drop events rather than stall a pump.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and an unsubscribe function.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, unsub
}

func (b *Bus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is behind; drop rather than block the publisher
			// (the output pump, in the common case).
		}
	}
}

// PublishOutput emits a session:output event.
func (b *Bus) PublishOutput(sessionID int, data []byte) {
	b.publish(Event{Output: &OutputEvent{SessionID: sessionID, Data: data}})
}

// PublishExit emits a session:exit event.
func (b *Bus) PublishExit(sessionID, exitCode int) {
	b.publish(Event{Exit: &ExitEvent{SessionID: sessionID, ExitCode: exitCode}})
}
