package core

import (
	"context"
	"fmt"

	"github.com/vovakirdan/lanchat-server/internal/store"
)

// UnreadAggregator answers unread-count polls. It holds no state and has
// no side effects, so clients may call it as often as they like.
type UnreadAggregator struct {
	messages store.MessageStore
}

// NewUnreadAggregator wraps a message store.
func NewUnreadAggregator(messages store.MessageStore) *UnreadAggregator {
	return &UnreadAggregator{messages: messages}
}

// Counts returns the broadcast and per-sender unread counts for username.
func (u *UnreadAggregator) Counts(ctx context.Context, username string) (*store.UnreadCounts, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username required", ErrBadRequest)
	}
	counts, err := u.messages.UnreadCounts(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	if counts.Private == nil {
		counts.Private = []store.SenderCount{}
	}
	return counts, nil
}
