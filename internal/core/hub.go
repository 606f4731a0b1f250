package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/lanchat-server/internal/store"
)

const lastSeenTimeout = 5 * time.Second

// Hub drives the connection lifecycle: it binds authenticated clients in
// the presence registry, forwards their sends to the router and announces
// status changes. Each registered client gets its own command pump, so
// authenticate and disconnect for one connection never interleave.
type Hub struct {
	router   *Router
	presence *Presence
	users    store.UserStore
	log      *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[*Client]struct{}
	wg      sync.WaitGroup
}

// NewHub creates a hub. users may be nil, in which case last-seen is not tracked.
func NewHub(router *Router, presence *Presence, users store.UserStore, logger *zerolog.Logger) *Hub {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		router:   router,
		presence: presence,
		users:    users,
		log:      logger,
		ctx:      ctx,
		cancel:   cancel,
		clients:  make(map[*Client]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes every client and clears presence.
func (h *Hub) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-h.ctx.Done():
	}
	h.shutdown()
}

// RegisterClient starts processing commands for c.
func (h *Hub) RegisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.registered {
		return
	}
	c.registered = true
	if h.ctx.Err() != nil {
		c.Close(CloseReasonShutdown)
		close(c.stopped)
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	go h.pump(c)

	h.log.Debug().Str("conn_id", c.ID).Msg("client registered")
}

// UnregisterClient closes c and waits until its disconnect has been processed.
func (h *Hub) UnregisterClient(c *Client) {
	c.Close(CloseReasonDisconnected)

	h.mu.Lock()
	registered := c.registered
	h.mu.Unlock()
	if registered {
		<-c.stopped
	}
}

// ClientCount returns the number of registered clients, authenticated or not.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) pump(c *Client) {
	defer h.wg.Done()
	defer close(c.stopped)
	defer h.disconnect(c)

	for {
		select {
		case <-c.done:
			return
		case <-h.ctx.Done():
			return
		case cmd := <-c.Commands:
			if cmd != nil {
				h.handle(c, cmd)
			}
		}
	}
}

func (h *Hub) handle(c *Client, cmd *Command) {
	if cmd.Kind == CommandAuthenticate {
		h.authenticate(c, cmd.Username)
		return
	}

	from, ok := h.presence.UsernameOf(c.ID)
	if !ok {
		c.Push(errorEvent(coreError(ErrCodeUnauthorized, "authenticate first")))
		return
	}

	var err error
	switch cmd.Kind {
	case CommandSendPrivate:
		_, err = h.router.SendPrivate(h.ctx, from, cmd.To, cmd.Body, cmd.Timestamp)
	case CommandSendBroadcast:
		_, err = h.router.SendBroadcast(h.ctx, from, cmd.Body, cmd.Timestamp)
	case CommandShareFile:
		if cmd.File == nil {
			err = coreError(ErrCodeBadRequest, "file payload required")
			break
		}
		_, err = h.router.SendFile(h.ctx, FileShare{
			From:      from,
			To:        cmd.To,
			Filename:  cmd.File.Name,
			Data:      cmd.File.Data,
			MimeType:  cmd.File.MimeType,
			Timestamp: cmd.Timestamp,
		})
	default:
		err = coreError(ErrCodeBadRequest, "unknown command")
	}
	if err != nil {
		if !errors.Is(err, ErrStoreFailure) {
			h.log.Debug().Err(err).Str("conn_id", c.ID).Str("username", from).Msg("command rejected")
		}
		c.Push(errorEvent(errorFromErr(err)))
	}
}

func (h *Hub) authenticate(c *Client, username string) {
	username = strings.TrimSpace(username)
	if username == "" || username == store.BroadcastTarget {
		c.Push(errorEvent(coreError(ErrCodeBadRequest, "invalid username")))
		return
	}

	if current := c.Username(); current != "" {
		if current != username {
			c.Push(errorEvent(coreError(ErrCodeAlreadyAuthenticated, "connection already authenticated as "+current)))
		}
		return
	}

	c.setUsername(username)
	if evicted := h.presence.Bind(c, username); evicted != nil {
		h.log.Info().
			Str("username", username).
			Str("old_conn_id", evicted.ConnID()).
			Str("new_conn_id", c.ID).
			Msg("session replaced")
		evicted.Kick(ErrCodeSessionReplaced, CloseReasonReplaced)
	}

	h.log.Info().Str("username", username).Str("conn_id", c.ID).Msg("user online")
	h.touchLastSeen(username)
	h.broadcastStatus(username, true)
}

func (h *Hub) disconnect(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	username, ok := h.presence.Unbind(c.ID)
	if !ok {
		return
	}
	h.log.Info().Str("username", username).Str("conn_id", c.ID).Str("reason", c.CloseReason()).Msg("user offline")
	h.broadcastStatus(username, false)
	h.touchLastSeen(username)
}

func (h *Hub) broadcastStatus(username string, online bool) {
	ev := &Event{
		Kind: EventUserStatus,
		Status: &StatusChange{
			Username:    username,
			Online:      online,
			OnlineUsers: h.presence.OnlineUsernames(),
		},
	}
	for _, conn := range h.presence.Connections() {
		conn.Push(ev)
	}
}

// touchLastSeen is best effort and runs on its own deadline so it still
// completes while the hub is shutting down.
func (h *Hub) touchLastSeen(username string) {
	if h.users == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), lastSeenTimeout)
	defer cancel()
	if err := h.users.TouchLastSeen(ctx, username); err != nil {
		h.log.Warn().Err(err).Str("username", username).Msg("last seen update failed")
	}
}

func (h *Hub) shutdown() {
	h.cancel()

	h.mu.Lock()
	for c := range h.clients {
		c.Close(CloseReasonShutdown)
	}
	h.mu.Unlock()

	h.wg.Wait()
	h.presence.Reset()
	h.log.Info().Msg("hub stopped")
}
