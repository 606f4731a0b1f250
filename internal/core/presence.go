package core

import (
	"sort"
	"sync"
)

// Conn is a live connection that can receive pushes.
type Conn interface {
	ConnID() string
	// Push must not block; false means the event was dropped.
	Push(ev *Event) bool
	// Kick closes the connection after telling it why.
	Kick(code, reason string)
}

type binding struct {
	conn     Conn
	username string
}

// Presence is the in-memory registry of authenticated connections.
// Both directions live under one lock so the mapping stays a bijection.
type Presence struct {
	mu     sync.RWMutex
	byConn map[string]binding
	byUser map[string]Conn
}

// NewPresence creates an empty registry.
func NewPresence() *Presence {
	return &Presence{
		byConn: make(map[string]binding),
		byUser: make(map[string]Conn),
	}
}

// Bind maps conn to username. A different connection previously bound to
// username is evicted from the registry and returned so the caller can
// close it; it stops being addressable immediately.
func (p *Presence) Bind(conn Conn, username string) (evicted Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := conn.ConnID()

	// Rebinding a connection to another name frees its old name.
	if prev, ok := p.byConn[id]; ok && prev.username != username {
		delete(p.byUser, prev.username)
	}

	if old, ok := p.byUser[username]; ok && old.ConnID() != id {
		delete(p.byConn, old.ConnID())
		evicted = old
	}

	p.byConn[id] = binding{conn: conn, username: username}
	p.byUser[username] = conn
	return evicted
}

// Unbind removes the mapping for connID and returns the freed username.
// It returns false when connID was not bound, e.g. after being evicted.
func (p *Presence) Unbind(connID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.byConn[connID]
	if !ok {
		return "", false
	}
	delete(p.byConn, connID)
	delete(p.byUser, b.username)
	return b.username, true
}

// IsOnline reports whether username has a live connection.
func (p *Presence) IsOnline(username string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byUser[username]
	return ok
}

// LiveConnection returns the connection bound to username.
func (p *Presence) LiveConnection(username string) (Conn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conn, ok := p.byUser[username]
	return conn, ok
}

// UsernameOf returns the username bound to connID.
func (p *Presence) UsernameOf(connID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.byConn[connID]
	return b.username, ok
}

// OnlineUsernames returns the online usernames sorted.
func (p *Presence) OnlineUsernames() []string {
	p.mu.RLock()
	names := make([]string, 0, len(p.byUser))
	for name := range p.byUser {
		names = append(names, name)
	}
	p.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Connections returns a snapshot of all bound connections.
func (p *Presence) Connections() []Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()

	conns := make([]Conn, 0, len(p.byUser))
	for _, conn := range p.byUser {
		conns = append(conns, conn)
	}
	return conns
}

// Len returns the number of bound connections.
func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byConn)
}

// Reset discards every entry.
func (p *Presence) Reset() {
	p.mu.Lock()
	p.byConn = make(map[string]binding)
	p.byUser = make(map[string]Conn)
	p.mu.Unlock()
}
