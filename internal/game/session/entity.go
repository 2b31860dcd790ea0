// Package session provides live connection tracking and per-connection outbound
// delivery for the room coordinator.
package session

import (
	"fmt"
	"sync"
)

// Notification is one outbound message addressed to a client, named by its target
// handler with positional arguments.
type Notification struct {
	Target string `json:"target"`
	Args   []any  `json:"arguments"`
}

// NewNotification builds a Notification for target with the given arguments.
func NewNotification(target string, args ...any) Notification {
	if args == nil {
		args = []any{}
	}
	return Notification{Target: target, Args: args}
}

// BridgeEntity routes notifications to a buffered Go channel, bridging the
// coordinator to a connection's transport write loop.
type BridgeEntity struct {
	connID string
	events chan Notification
	mu     sync.Mutex
	closed bool
}

// NewBridgeEntity creates a BridgeEntity for the given connection.
//
// Precondition: connID must be non-empty.
// Postcondition: Returns a BridgeEntity with an open events channel.
func NewBridgeEntity(connID string, bufferSize int) *BridgeEntity {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &BridgeEntity{
		connID: connID,
		events: make(chan Notification, bufferSize),
	}
}

// ConnID returns the transport-assigned connection identifier.
func (e *BridgeEntity) ConnID() string {
	return e.connID
}

// Push enqueues n without blocking.
//
// Postcondition: n is enqueued, or an error is returned if the entity is closed or full.
func (e *BridgeEntity) Push(n Notification) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("entity %s is closed", e.connID)
	}
	select {
	case e.events <- n:
		return nil
	default:
		return fmt.Errorf("entity %s event buffer full", e.connID)
	}
}

// Events returns the read-only events channel.
// The transport write loop drains this channel until it is closed.
func (e *BridgeEntity) Events() <-chan Notification {
	return e.events
}

// Close marks the entity as closed and closes the events channel.
//
// Postcondition: The events channel is closed. Further Push calls return an error.
func (e *BridgeEntity) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed {
		e.closed = true
		close(e.events)
	}
	return nil
}

// IsClosed reports whether the entity has been closed.
func (e *BridgeEntity) IsClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
