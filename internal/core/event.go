package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventUserStatus announces that a user went online or offline.
	EventUserStatus EventKind = iota
	// EventPrivateMessage delivers a private text message to its recipient.
	EventPrivateMessage
	// EventBroadcastMessage delivers a broadcast text message.
	EventBroadcastMessage
	// EventFileReceive delivers a shared file with its bytes inline.
	EventFileReceive
	// EventError notifies a client about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
// A single Event value may be pushed to many clients and must not be mutated.
type Event struct {
	Kind    EventKind
	Status  *StatusChange
	Message *Delivery
	Error   *CoreError
}

// StatusChange is the payload of EventUserStatus.
type StatusChange struct {
	Username    string
	Online      bool
	OnlineUsers []string
}

// Delivery is the live-push shape of a message. Unlike the stored record,
// file deliveries carry the raw bytes.
type Delivery struct {
	ID        int64
	From      string
	To        string
	Body      string
	Timestamp string
	File      *Attachment
}

// Attachment is a file carried inline.
type Attachment struct {
	Name     string
	MimeType string
	Data     []byte
}

func errorEvent(err *CoreError) *Event {
	return &Event{Kind: EventError, Error: err}
}
