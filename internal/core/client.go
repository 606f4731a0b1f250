package core

import "sync"

const (
	commandBuffer = 8
	eventBuffer   = 64
)

// Close reasons set by the hub.
const (
	CloseReasonDisconnected = "disconnected"
	CloseReasonShutdown     = "server shutting down"
	CloseReasonReplaced     = "signed in from another connection"
)

// Client is one transport connection as seen by the core layer.
// It starts unauthenticated; Username is set once the hub accepts an identity claim.
type Client struct {
	ID       string
	Commands chan *Command
	Events   chan *Event

	mu       sync.RWMutex
	username string

	done        chan struct{}
	closeOnce   sync.Once
	closeReason string

	registered bool
	stopped    chan struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(id string) *Client {
	return &Client{
		ID:       id,
		Commands: make(chan *Command, commandBuffer),
		Events:   make(chan *Event, eventBuffer),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// ConnID implements Conn.
func (c *Client) ConnID() string {
	return c.ID
}

// Username returns the bound identity or "" while unauthenticated.
func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Client) setUsername(name string) {
	c.mu.Lock()
	c.username = name
	c.mu.Unlock()
}

// Push queues an event without blocking. It reports false when the client
// is closed or its queue is full; the event is then dropped.
func (c *Client) Push(ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

// Kick tells the client why it is being dropped and closes it.
func (c *Client) Kick(code, reason string) {
	c.Push(errorEvent(coreError(code, reason)))
	c.Close(reason)
}

// Close marks the client closed. Safe to call more than once.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeReason = reason
		c.mu.Unlock()
		close(c.done)
	})
}

// Done is closed once the client is closed or kicked.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// CloseReason returns the reason passed to Close or Kick.
func (c *Client) CloseReason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closeReason
}
