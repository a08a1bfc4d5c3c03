package models

// Content is the decrypted, typed payload extracted from an envelope.
// Exactly one of the message variants is populated per instance; the
// dispatcher checks them in a fixed priority order (configuration, data,
// receipt, typing).
type Content struct {
	Sender       string `json:"sender"`
	SenderDevice int    `json:"senderDevice"`
	Timestamp    int64  `json:"timestamp"`
	NeedsReceipt bool   `json:"needsReceipt"`

	Configuration *ConfigurationMessage `json:"configuration,omitempty"`
	DataMessage   *DataMessage          `json:"dataMessage,omitempty"`
	Receipt       *ReceiptMessage       `json:"receipt,omitempty"`
	Typing        *TypingMessage        `json:"typing,omitempty"`
}

// GroupContextType distinguishes plain deliveries from group control
// payloads carried in the group context.
type GroupContextType int

const (
	GroupContextDeliver GroupContextType = iota
	GroupContextUpdate
	GroupContextQuit
)

// GroupContext carries the group a data message is addressed to, plus
// control metadata for update/quit messages.
type GroupContext struct {
	ID      []byte           `json:"id"`
	Type    GroupContextType `json:"type"`
	Name    string           `json:"name,omitempty"`
	Members []string         `json:"members,omitempty"`
	Admins  []string         `json:"admins,omitempty"`
}

// GroupControlKind enumerates the closed-group control payloads.
type GroupControlKind int

const (
	GroupControlNew GroupControlKind = iota
	GroupControlNameChange
	GroupControlMembersAdded
	GroupControlMembersRemoved
	GroupControlMemberLeft
)

// GroupControlMessage mutates closed-group state: creation, membership
// changes, renames and departures.
type GroupControlMessage struct {
	Kind    GroupControlKind `json:"kind"`
	GroupID []byte           `json:"groupId"`
	Name    string           `json:"name,omitempty"`
	Members []string         `json:"members,omitempty"`
	Admins  []string         `json:"admins,omitempty"`
}

// Quote references an earlier message by (timestamp, author).
type Quote struct {
	ID          int64               `json:"id"`
	Author      string              `json:"author"`
	Text        string              `json:"text,omitempty"`
	Attachments []AttachmentPointer `json:"attachments,omitempty"`
}

// SharedContact is an address-book entry forwarded inside a message.
type SharedContact struct {
	Name   string `json:"name"`
	Number string `json:"number,omitempty"`
}

// Preview is a link preview candidate attached to a message. Previews
// are validated against the message body before being persisted.
type Preview struct {
	URL   string             `json:"url"`
	Title string             `json:"title,omitempty"`
	Image *AttachmentPointer `json:"image,omitempty"`
}

// DataMessage is the conversation-visible payload of a content: plain
// text, media, a group control message, or an expiration-timer update.
type DataMessage struct {
	Body             string               `json:"body,omitempty"`
	Timestamp        int64                `json:"timestamp"`
	ExpiresInSeconds int                  `json:"expiresInSeconds,omitempty"`
	ExpirationUpdate bool                 `json:"expirationUpdate,omitempty"`
	Group            *GroupContext        `json:"group,omitempty"`
	GroupControl     *GroupControlMessage `json:"groupControl,omitempty"`
	Attachments      []AttachmentPointer  `json:"attachments,omitempty"`
	Quote            *Quote               `json:"quote,omitempty"`
	Contacts         []SharedContact      `json:"contacts,omitempty"`
	Previews         []Preview            `json:"previews,omitempty"`
	ProfileKey       []byte               `json:"profileKey,omitempty"`
	// SyncTarget is the destination address embedded in a self-originated
	// message, used to reconcile multi-device conversation state.
	SyncTarget string `json:"syncTarget,omitempty"`
}

// IsGroupMessage reports whether the message targets a group conversation.
func (m *DataMessage) IsGroupMessage() bool {
	return m.Group != nil
}

// IsMediaMessage reports whether the message carries any media content:
// attachments, a quote, shared contacts or link previews.
func (m *DataMessage) IsMediaMessage() bool {
	return len(m.Attachments) > 0 || m.Quote != nil || len(m.Contacts) > 0 || len(m.Previews) > 0
}

// IsGroupUpdate reports whether the group context carries an update
// control payload.
func (m *DataMessage) IsGroupUpdate() bool {
	return m.Group != nil && m.Group.Type == GroupContextUpdate
}

// IsGroupQuit reports whether the group context carries a quit (leave)
// control payload.
func (m *DataMessage) IsGroupQuit() bool {
	return m.Group != nil && m.Group.Type == GroupContextQuit
}

// ReceiptType is the receipt subtype routing key.
type ReceiptType int

const (
	ReceiptTypeDelivery ReceiptType = iota
	ReceiptTypeRead
)

// ReceiptMessage acknowledges one or more messages by sent timestamp.
type ReceiptMessage struct {
	Type       ReceiptType `json:"type"`
	Timestamps []int64     `json:"timestamps"`
}

// TypingAction is the typing indicator state change.
type TypingAction int

const (
	TypingStarted TypingAction = iota
	TypingStopped
)

// TypingMessage updates the typing indicator for the sender's thread.
type TypingMessage struct {
	Timestamp int64        `json:"timestamp"`
	Action    TypingAction `json:"action"`
}

// ConfigurationMessage is a multi-device sync message carrying account
// state from another of the local user's devices.
type ConfigurationMessage struct {
	DisplayName string `json:"displayName,omitempty"`
	ProfileKey  []byte `json:"profileKey,omitempty"`
}
