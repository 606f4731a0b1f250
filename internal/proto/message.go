package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeAuthenticate     = "authenticate"
	InboundTypePrivateMessage   = "private_message"
	InboundTypeBroadcastMessage = "broadcast_message"
	InboundTypeFileShare        = "file_share"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventUserStatus       = "user_status"
	EventPrivateMessage   = "private_message"
	EventBroadcastMessage = "broadcast_message"
	EventFileReceive      = "file_receive"

	StatusOnline  = "online"
	StatusOffline = "offline"
)

// AuthenticateData claims a username for the connection.
type AuthenticateData struct {
	Username string `json:"username"`
}

// PrivateMessageData is a private text message from the client.
type PrivateMessageData struct {
	To        string `json:"to"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// BroadcastMessageData is a broadcast text message from the client.
type BroadcastMessageData struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// FileShareData uploads a file to one user or to "broadcast".
// FileData is standard base64 without a data URL prefix.
type FileShareData struct {
	To        string `json:"to"`
	Filename  string `json:"filename"`
	FileData  string `json:"fileData"`
	FileType  string `json:"fileType"`
	Timestamp string `json:"timestamp"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventUserStatusData announces a presence change.
type EventUserStatusData struct {
	Username    string   `json:"username"`
	Status      string   `json:"status"`
	OnlineUsers []string `json:"onlineUsers"`
}

// EventMessageData is a delivered private or broadcast message.
type EventMessageData struct {
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	MessageID int64  `json:"messageId"`
}

// EventFileReceiveData is a delivered file with its bytes inline.
type EventFileReceiveData struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Filename  string `json:"filename"`
	FileData  string `json:"fileData"`
	FileType  string `json:"fileType"`
	Timestamp string `json:"timestamp"`
	MessageID int64  `json:"messageId"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
