package models

// IncomingMessage is a genuine inbound message addressed to the resolved
// master identity, ready for insertion into storage.
type IncomingMessage struct {
	From             Address
	SenderDevice     int
	SentTimestamp    int64
	ServerTimestamp  int64
	Body             string
	Group            *GroupContext
	ExpiresInSeconds int
	ExpirationUpdate bool
	NeedsReceipt     bool
	Attachments      []AttachmentPointer
	Quote            *Quote
	Contacts         []SharedContact
	Previews         []Preview
}

// IsMedia reports whether the message should be stored as a media record.
func (m *IncomingMessage) IsMedia() bool {
	return len(m.Attachments) > 0 || m.Quote != nil || len(m.Contacts) > 0 || len(m.Previews) > 0
}

// OutgoingMessage is a sync echo of the local user's own multi-device
// activity, filed as an outbound record under the sync target's thread.
type OutgoingMessage struct {
	To               Address
	SentTimestamp    int64
	ServerTimestamp  int64
	Body             string
	Group            *GroupContext
	ExpiresInSeconds int
	ExpirationUpdate bool
	Attachments      []AttachmentPointer
	Quote            *Quote
	Contacts         []SharedContact
	Previews         []Preview
}

// IsMedia reports whether the message should be stored as a media record.
func (m *OutgoingMessage) IsMedia() bool {
	return len(m.Attachments) > 0 || m.Quote != nil || len(m.Contacts) > 0 || len(m.Previews) > 0
}

// InsertResult identifies a freshly inserted message and the thread it
// was filed under.
type InsertResult struct {
	MessageID int64
	ThreadID  int64
}

// StoredMessage is the subset of a persisted message needed for quote
// resolution and duplicate checks.
type StoredMessage struct {
	ID       int64
	ThreadID int64
	Address  Address
	SentAt   int64
	Body     string
	Outgoing bool
}

// Recipient is a resolved conversation identity including local policy
// flags.
type Recipient struct {
	Address        Address
	Blocked        bool
	Muted          bool
	ExpireMessages int
	ForceFallback  bool
	ProfileKey     []byte
}

// Group is a locally known group conversation. A group absent from
// storage entirely is "unknown" and triggers out-of-band discovery; a
// known group with Active unset no longer accepts substantive messages.
type Group struct {
	EncodedID Address
	Title     string
	Members   []string
	Admins    []string
	Active    bool
}
