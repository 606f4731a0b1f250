package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/lanchat-server/internal/auth"
	"github.com/vovakirdan/lanchat-server/internal/config"
	"github.com/vovakirdan/lanchat-server/internal/core"
	"github.com/vovakirdan/lanchat-server/internal/proto"
	"github.com/vovakirdan/lanchat-server/internal/utils"
)

var errClientClosed = errors.New("client closed by hub")

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub  *core.Hub
	auth *auth.Service
	cfg  *config.Config
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. authService may be nil when
// tokens are not used.
func NewWSHandler(hub *core.Hub, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, auth: authService, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	tokenUser, ok := h.upgradeIdentity(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewClient(utils.NewID())
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	h.log.Debug().Str("client_id", client.ID).Str("remote", r.RemoteAddr).Msg("ws connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, tokenUser)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	// Close before cancelling so the peer gets the real status rather than
	// the one a cancelled read would send.
	status, reason := h.closeStatus(client, err)
	_ = conn.Close(status, reason)
	cancel()
	<-errCh
}

// upgradeIdentity validates an optional bearer token before the upgrade.
// It returns the token username, or "" when no token was presented.
func (h *WSHandler) upgradeIdentity(w stdhttp.ResponseWriter, r *stdhttp.Request) (string, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		if h.cfg.AuthRequired {
			stdhttp.Error(w, "missing token", stdhttp.StatusUnauthorized)
			return "", false
		}
		return "", true
	}
	if h.auth == nil {
		stdhttp.Error(w, "tokens not supported", stdhttp.StatusUnauthorized)
		return "", false
	}
	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws upgrade with invalid token")
		stdhttp.Error(w, "invalid token", stdhttp.StatusUnauthorized)
		return "", false
	}
	return claims.Username, true
}

func (h *WSHandler) closeStatus(client *core.Client, err error) (websocket.StatusCode, string) {
	if errors.Is(err, errClientClosed) {
		switch client.CloseReason() {
		case core.CloseReasonReplaced:
			return websocket.StatusPolicyViolation, core.CloseReasonReplaced
		case core.CloseReasonShutdown:
			return websocket.StatusGoingAway, core.CloseReasonShutdown
		}
		return websocket.StatusNormalClosure, "closing"
	}
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return websocket.StatusNormalClosure, "closing"
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return websocket.StatusNormalClosure, "closing"
	case websocket.StatusMessageTooBig:
		return websocket.StatusMessageTooBig, "message too big"
	}
	h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
	return websocket.StatusInternalError, "internal error"
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, tokenUser string) error {
	limiter := newRateLimiter(h.cfg.RateLimitPerMinute)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.allow() {
			h.log.Debug().Str("client_id", client.ID).Msg("rate limited")
			pushError(client, core.ErrCodeRateLimited, "too many messages, slow down")
			continue
		}

		// wsjson.Read would drop the connection on a bad frame.
		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			pushError(client, core.ErrCodeInvalidMessage, "invalid json")
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			pushError(client, protoErr.Code, protoErr.Msg)
			continue
		}

		if tokenUser != "" && cmd.Kind == core.CommandAuthenticate && strings.TrimSpace(cmd.Username) != tokenUser {
			pushError(client, core.ErrCodeUnauthorized, "username does not match token")
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-client.Done():
			return errClientClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if err := h.write(ctx, conn, client, event); err != nil {
				return err
			}
		case <-client.Done():
			// Flush what was queued before the close, e.g. the reason it happened.
			for {
				select {
				case event := <-client.Events:
					if err := h.write(ctx, conn, client, event); err != nil {
						return err
					}
				default:
					return errClientClosed
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, client *core.Client, event *core.Event) error {
	if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
		h.log.Debug().Err(err).Str("client_id", client.ID).Msg("write ws event")
		return err
	}
	return nil
}

func pushError(client *core.Client, code, msg string) {
	client.Push(&core.Event{Kind: core.EventError, Error: &core.CoreError{Code: code, Message: msg}})
}
