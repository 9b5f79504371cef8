package domain

// MessageType distinguishes text from file chat messages.
type MessageType string

const (
	MessageText MessageType = "text"
	MessageFile MessageType = "file"
)

// Sender labels who wrote a message from the local viewer's perspective. It is derived, never sent.
type Sender string

const SenderYou Sender = "You"

// DeliveryStatus tracks the local echo of an outgoing message.
type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "pending"
	DeliverySent     DeliveryStatus = "sent"
	DeliveryFailed   DeliveryStatus = "failed"
	DeliveryReceived DeliveryStatus = "received"
)

// ChatPayload is what travels over the wire for an in-call chat message.
// Object URLs of file messages are local only and never part of it.
type ChatPayload struct {
	Type     MessageType `json:"type"`
	Text     string      `json:"text,omitempty"`
	FileName string      `json:"fileName,omitempty"`
	FileSize int64       `json:"fileSize,omitempty"`
	FileType string      `json:"fileType,omitempty"`
}

// ChatMessage is one entry of the in-call chat panel. Messages are append-only
// and live only as long as the session.
type ChatMessage struct {
	ID       string
	Type     MessageType
	Text     string
	FileName string
	FileSize int64
	FileType string
	URL      string
	Sender   Sender
	// Seen is true once the viewing party has had the chat panel open with this message in it.
	Seen     bool
	Time     string
	Delivery DeliveryStatus
}

// Incoming reports whether the message was written by the other party.
func (m ChatMessage) Incoming() bool {
	return m.Sender != SenderYou
}

// DirectMessage is a payload of the separate one-to-one chat.
type DirectMessage struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
	SentAt     string `json:"sentAt,omitempty"`
}
