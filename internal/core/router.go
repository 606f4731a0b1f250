package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/lanchat-server/internal/blob"
	"github.com/vovakirdan/lanchat-server/internal/store"
)

// ReceiptPolicy decides what happens to a stored message once its live push
// was accepted by the recipient's connection.
type ReceiptPolicy interface {
	Delivered(ctx context.Context, messageID int64, recipient string)
}

// FileShare is the input to Router.SendFile.
type FileShare struct {
	From      string
	To        string
	Filename  string
	Data      []byte
	MimeType  string
	Timestamp string
}

// RouterOption customises a Router.
type RouterOption func(*Router)

// WithBroadcastEcho makes broadcasts reach the sender's own connection too.
func WithBroadcastEcho(enabled bool) RouterOption {
	return func(r *Router) { r.echoBroadcast = enabled }
}

// WithReceiptPolicy replaces the default seen-on-delivery policy.
func WithReceiptPolicy(p ReceiptPolicy) RouterOption {
	return func(r *Router) {
		if p != nil {
			r.receipts = p
		}
	}
}

// Router persists outbound messages and pushes them to live recipients.
type Router struct {
	messages store.MessageStore
	blobs    blob.Store
	presence *Presence
	log      *zerolog.Logger

	echoBroadcast bool
	receipts      ReceiptPolicy
}

// NewRouter wires a router. blobs may be nil when file sharing is not used.
func NewRouter(messages store.MessageStore, blobs blob.Store, presence *Presence, logger *zerolog.Logger, opts ...RouterOption) *Router {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	r := &Router{
		messages: messages,
		blobs:    blobs,
		presence: presence,
		log:      logger,
	}
	r.receipts = seenOnDelivery{messages: messages, log: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SendPrivate stores a private message and pushes it to the recipient if online.
func (r *Router) SendPrivate(ctx context.Context, from, to, body, timestamp string) (int64, error) {
	to = strings.TrimSpace(to)
	if to == "" || to == store.BroadcastTarget {
		return 0, fmt.Errorf("%w: recipient required", ErrBadRequest)
	}
	if body == "" {
		return 0, fmt.Errorf("%w: empty message", ErrBadRequest)
	}

	id, err := r.append(ctx, &store.NewMessage{
		Sender:          from,
		Recipient:       to,
		Body:            body,
		ClientTimestamp: timestamp,
	})
	if err != nil {
		return 0, err
	}

	r.deliverPrivate(ctx, id, to, &Event{
		Kind: EventPrivateMessage,
		Message: &Delivery{
			ID:        id,
			From:      from,
			To:        to,
			Body:      body,
			Timestamp: timestamp,
		},
	})
	return id, nil
}

// SendBroadcast stores a broadcast message and pushes it to every live connection.
func (r *Router) SendBroadcast(ctx context.Context, from, body, timestamp string) (int64, error) {
	if body == "" {
		return 0, fmt.Errorf("%w: empty message", ErrBadRequest)
	}

	id, err := r.append(ctx, &store.NewMessage{
		Sender:          from,
		Recipient:       store.BroadcastTarget,
		Body:            body,
		IsBroadcast:     true,
		ClientTimestamp: timestamp,
	})
	if err != nil {
		return 0, err
	}

	r.deliverBroadcast(from, &Event{
		Kind: EventBroadcastMessage,
		Message: &Delivery{
			ID:        id,
			From:      from,
			To:        store.BroadcastTarget,
			Body:      body,
			Timestamp: timestamp,
		},
	})
	return id, nil
}

// SendFile stores the bytes in the blob store, records a message that
// references them and pushes the bytes inline to live recipients.
func (r *Router) SendFile(ctx context.Context, share FileShare) (int64, error) {
	to := strings.TrimSpace(share.To)
	if to == "" {
		return 0, fmt.Errorf("%w: recipient required", ErrBadRequest)
	}
	if share.Filename == "" {
		return 0, fmt.Errorf("%w: filename required", ErrBadRequest)
	}
	if r.blobs == nil {
		return 0, fmt.Errorf("%w: file sharing disabled", ErrStoreFailure)
	}

	handle, err := r.blobs.Put(ctx, share.Filename, share.Data)
	if err != nil {
		r.log.Error().Err(err).Str("from", share.From).Str("filename", share.Filename).Msg("blob put failed")
		return 0, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}

	isBroadcast := to == store.BroadcastTarget
	body := "Sent file: " + share.Filename
	id, err := r.append(ctx, &store.NewMessage{
		Sender:      share.From,
		Recipient:   to,
		Body:        body,
		IsBroadcast: isBroadcast,
		File: &store.FileRef{
			Handle:   handle,
			Name:     share.Filename,
			MimeType: share.MimeType,
		},
		ClientTimestamp: share.Timestamp,
	})
	if err != nil {
		// The blob stays behind unreferenced.
		return 0, err
	}

	ev := &Event{
		Kind: EventFileReceive,
		Message: &Delivery{
			ID:        id,
			From:      share.From,
			To:        to,
			Body:      body,
			Timestamp: share.Timestamp,
			File: &Attachment{
				Name:     share.Filename,
				MimeType: share.MimeType,
				Data:     share.Data,
			},
		},
	}
	if isBroadcast {
		r.deliverBroadcast(share.From, ev)
	} else {
		r.deliverPrivate(ctx, id, to, ev)
	}
	return id, nil
}

// History returns the conversation between viewer and chatID.
func (r *Router) History(ctx context.Context, viewer, chatID string) ([]*store.Message, error) {
	if viewer == "" || chatID == "" {
		return nil, fmt.Errorf("%w: username and chat id required", ErrBadRequest)
	}
	msgs, err := r.messages.History(ctx, viewer, chatID)
	if errors.Is(err, store.ErrMarkRead) {
		r.log.Warn().Err(err).Str("viewer", viewer).Str("chat", chatID).Msg("history read but not marked read")
		return msgs, nil
	}
	if err != nil {
		r.log.Error().Err(err).Str("viewer", viewer).Str("chat", chatID).Msg("history failed")
		return nil, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	return msgs, nil
}

// FetchFile returns the attachment metadata and bytes of a message.
func (r *Router) FetchFile(ctx context.Context, messageID int64) (*store.FileRef, []byte, error) {
	ref, err := r.messages.FileReference(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: file not found", ErrNotFound)
		}
		r.log.Error().Err(err).Int64("message_id", messageID).Msg("file reference lookup failed")
		return nil, nil, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	if r.blobs == nil {
		return nil, nil, fmt.Errorf("%w: file not found", ErrNotFound)
	}
	data, err := r.blobs.Get(ctx, ref.Handle)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: file not found", ErrNotFound)
		}
		r.log.Error().Err(err).Str("handle", ref.Handle).Msg("blob get failed")
		return nil, nil, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	return ref, data, nil
}

func (r *Router) append(ctx context.Context, msg *store.NewMessage) (int64, error) {
	id, err := r.messages.AppendMessage(ctx, msg)
	if err != nil {
		r.log.Error().Err(err).
			Str("from", msg.Sender).
			Str("to", msg.Recipient).
			Bool("broadcast", msg.IsBroadcast).
			Msg("append message failed")
		return 0, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	return id, nil
}

func (r *Router) deliverPrivate(ctx context.Context, id int64, to string, ev *Event) {
	conn, ok := r.presence.LiveConnection(to)
	if !ok {
		r.log.Debug().Int64("message_id", id).Str("to", to).Msg("recipient offline, stored only")
		return
	}
	if !conn.Push(ev) {
		r.log.Debug().Int64("message_id", id).Str("to", to).Str("conn_id", conn.ConnID()).Msg("live push dropped")
		return
	}
	r.receipts.Delivered(ctx, id, to)
}

func (r *Router) deliverBroadcast(from string, ev *Event) {
	var skip string
	if !r.echoBroadcast {
		if conn, ok := r.presence.LiveConnection(from); ok {
			skip = conn.ConnID()
		}
	}
	for _, conn := range r.presence.Connections() {
		if skip != "" && conn.ConnID() == skip {
			continue
		}
		if !conn.Push(ev) {
			r.log.Debug().Int64("message_id", ev.Message.ID).Str("conn_id", conn.ConnID()).Msg("live push dropped")
		}
	}
}

// seenOnDelivery treats an accepted live push as a read. Failures only
// leave the message unread, so they are logged and ignored.
type seenOnDelivery struct {
	messages store.MessageStore
	log      *zerolog.Logger
}

func (p seenOnDelivery) Delivered(ctx context.Context, messageID int64, recipient string) {
	if err := p.messages.MarkRead(ctx, messageID); err != nil {
		p.log.Warn().Err(err).Int64("message_id", messageID).Str("to", recipient).Msg("mark read after delivery failed")
	}
}
