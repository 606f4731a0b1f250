package store

import (
	"context"
	"errors"
	"time"
)

// BroadcastTarget is the recipient recorded on broadcast messages and the
// chat id clients use to address the broadcast channel.
const BroadcastTarget = "broadcast"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUserExists is returned when a username is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrMarkRead is returned alongside a successful history read when
	// flipping the read flag failed. The messages are still valid.
	ErrMarkRead = errors.New("mark history read")
)

// User represents a provisioned account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	LastSeen     *time.Time
	CreatedAt    time.Time
}

// FileRef points at an uploaded blob owned by the blob store.
type FileRef struct {
	Handle   string
	Name     string
	MimeType string
}

// Message represents a persisted chat message.
// Messages are immutable once appended except for the read flag.
type Message struct {
	ID          int64
	Sender      string
	Recipient   string
	Body        string
	File        *FileRef
	IsBroadcast bool
	// ClientTimestamp is supplied by the sender and only used for display.
	ClientTimestamp string
	IsRead          bool
	CreatedAt       time.Time
}

// HasFile reports whether the message carries an attachment.
func (m *Message) HasFile() bool {
	return m.File != nil && m.File.Handle != ""
}

// NewMessage is the input to MessageStore.AppendMessage.
type NewMessage struct {
	Sender          string
	Recipient       string
	Body            string
	File            *FileRef
	IsBroadcast     bool
	ClientTimestamp string
}

// SenderCount is the number of unread private messages from one sender.
type SenderCount struct {
	Sender string
	Count  int
}

// UnreadCounts summarises what a user has not read yet.
type UnreadCounts struct {
	// Broadcast counts unread broadcast messages globally, not per user.
	// Viewing broadcast history does not change it.
	Broadcast int
	Private   []SenderCount
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	// Returns ErrUserExists if the username is taken.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ListUsers returns all users ordered by username.
	ListUsers(ctx context.Context) ([]*User, error)

	// UpdatePassword replaces the stored credential hash.
	UpdatePassword(ctx context.Context, username, passwordHash string) error

	// TouchLastSeen sets last_seen to now.
	TouchLastSeen(ctx context.Context, username string) error
}

// MessageStore is the durable message log.
type MessageStore interface {
	// AppendMessage persists a message and returns its id.
	// Ids are unique and strictly increasing in commit order.
	AppendMessage(ctx context.Context, msg *NewMessage) (int64, error)

	// History returns the conversation between viewer and chatID in append order.
	// chatID == BroadcastTarget selects all broadcast messages.
	// Unread private messages addressed to viewer are marked read afterwards.
	// Broadcast messages are never marked read here.
	// A failed mark-read returns the messages together with ErrMarkRead.
	History(ctx context.Context, viewer, chatID string) ([]*Message, error)

	// MarkRead sets the read flag on the given messages.
	MarkRead(ctx context.Context, ids ...int64) error

	// UnreadCounts returns broadcast and per-sender unread counts for username.
	UnreadCounts(ctx context.Context, username string) (*UnreadCounts, error)

	// FileReference returns the attachment of a message.
	// Returns ErrNotFound when the message is missing or has no file.
	FileReference(ctx context.Context, messageID int64) (*FileRef, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
