package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandAuthenticate claims a username for the connection.
	CommandAuthenticate CommandKind = iota
	// CommandSendPrivate sends a text message to one user.
	CommandSendPrivate
	// CommandSendBroadcast sends a text message to everyone.
	CommandSendBroadcast
	// CommandShareFile sends a file to one user or to the broadcast channel.
	CommandShareFile
)

// Command represents an action requested by a client.
type Command struct {
	Kind      CommandKind
	Username  string
	To        string
	Body      string
	Timestamp string
	File      *Attachment
}
